package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

type AuthUser struct {
	ID           string
	TenantID     string
	Email        string
	RoleID       string
	RoleName     string
	PasswordHash string
	MFAEnabled   bool
	MFASecret    string
}

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	var out AuthUser
	err := s.DB.QueryRow(ctx, `
    SELECT u.id, u.tenant_id, u.email, u.role_id, r.name, u.password_hash, u.mfa_enabled, COALESCE(u.mfa_secret, '')
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE lower(u.email) = lower($1) AND u.status = $2
  `, email, UserStatusActive).Scan(&out.ID, &out.TenantID, &out.Email, &out.RoleID, &out.RoleName, &out.PasswordHash, &out.MFAEnabled, &out.MFASecret)
	return out, err
}

func (s *Store) CreateSession(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO sessions (user_id, refresh_token, expires_at)
    VALUES ($1,$2,$3)
  `, userID, tokenHash, expires)
	return err
}

func (s *Store) RevokeSession(ctx context.Context, userID, tokenHash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND refresh_token = $2", userID, tokenHash)
	return err
}

func (s *Store) SessionValid(ctx context.Context, userID, tokenHash string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM sessions
    WHERE user_id = $1 AND refresh_token = $2 AND expires_at > now() AND revoked_at IS NULL
  `, userID, tokenHash).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) UpdateMFASecret(ctx context.Context, userID, sealed string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET mfa_secret = $1, mfa_enabled = false WHERE id = $2", sealed, userID)
	return err
}

func (s *Store) GetMFASecret(ctx context.Context, userID string) (string, error) {
	var sealed string
	if err := s.DB.QueryRow(ctx, "SELECT COALESCE(mfa_secret, '') FROM users WHERE id = $1", userID).Scan(&sealed); err != nil {
		return "", err
	}
	return sealed, nil
}

func (s *Store) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET mfa_enabled = $1 WHERE id = $2", enabled, userID)
	return err
}

func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions rp
    JOIN permissions p ON rp.permission_id = p.id
    WHERE rp.role_id = $1 AND p.key = $2
  `, roleID, permission).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
