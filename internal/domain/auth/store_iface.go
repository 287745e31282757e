package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error)
	CreateSession(ctx context.Context, userID, tokenHash string, expires time.Time) error
	RevokeSession(ctx context.Context, userID, tokenHash string) error
	SessionValid(ctx context.Context, userID, tokenHash string) (bool, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	UpdateMFASecret(ctx context.Context, userID, sealed string) error
	GetMFASecret(ctx context.Context, userID string) (string, error)
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
	HasPermission(ctx context.Context, roleID, permission string) (bool, error)
}
