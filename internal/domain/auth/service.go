package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	cryptoutil "pms/internal/platform/crypto"
)

const (
	DefaultTokenTTL = 8 * time.Hour
	mfaIssuer       = "PMS"
)

type Service struct {
	store    StoreAPI
	sealer   *cryptoutil.Sealer
	secret   string
	TokenTTL time.Duration
}

func NewService(store StoreAPI, sealer *cryptoutil.Sealer, secret string) *Service {
	return &Service{store: store, sealer: sealer, secret: secret, TokenTTL: DefaultTokenTTL}
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      LoginUser `json:"user"`
}

type LoginUser struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	RoleID   string `json:"roleId"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

type MFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (LoginResult, error) {
	user, err := s.store.FindActiveUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if strings.TrimSpace(mfaCode) == "" {
			return LoginResult{}, ErrMFARequired
		}
		secret, err := s.sealer.Open(user.MFASecret)
		if err != nil {
			slog.Warn("mfa secret open failed", "userId", user.ID, "err", err)
			return LoginResult{}, ErrMFAInvalid
		}
		if secret == "" || !totp.Validate(strings.TrimSpace(mfaCode), secret) {
			return LoginResult{}, ErrMFAInvalid
		}
	}

	sessionID, err := NewSessionToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("session token: %w", err)
	}
	expires := time.Now().Add(s.TokenTTL)
	if err := s.store.CreateSession(ctx, user.ID, HashToken(sessionID), expires); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	token, err := GenerateToken(s.secret, Claims{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		RoleID:    user.RoleID,
		RoleName:  user.RoleName,
		SessionID: sessionID,
	}, s.TokenTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	return LoginResult{
		Token:     token,
		ExpiresAt: expires.UTC(),
		User: LoginUser{
			ID:       user.ID,
			TenantID: user.TenantID,
			RoleID:   user.RoleID,
			Role:     user.RoleName,
			Email:    user.Email,
		},
	}, nil
}

func (s *Service) Logout(ctx context.Context, user UserContext) error {
	if user.SessionID == "" {
		return nil
	}
	return s.store.RevokeSession(ctx, user.UserID, HashToken(user.SessionID))
}

// SessionActive is consulted by the auth middleware so revoked tokens stop working before expiry.
func (s *Service) SessionActive(ctx context.Context, user UserContext) (bool, error) {
	if user.SessionID == "" {
		return false, nil
	}
	return s.store.SessionValid(ctx, user.UserID, HashToken(user.SessionID))
}

func (s *Service) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	return s.store.HasPermission(ctx, roleID, permission)
}

func (s *Service) SetupMFA(ctx context.Context, user UserContext, accountName string) (MFASetup, error) {
	if !s.sealer.Configured() {
		return MFASetup{}, ErrMFAUnavailable
	}
	if accountName == "" {
		accountName = user.UserID
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return MFASetup{}, err
	}
	sealed, err := s.sealer.Seal(key.Secret())
	if err != nil {
		return MFASetup{}, err
	}
	if err := s.store.UpdateMFASecret(ctx, user.UserID, sealed); err != nil {
		return MFASetup{}, err
	}
	return MFASetup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

func (s *Service) EnableMFA(ctx context.Context, user UserContext, code string) error {
	if !s.sealer.Configured() {
		return ErrMFAUnavailable
	}
	sealed, err := s.store.GetMFASecret(ctx, user.UserID)
	if err != nil {
		return err
	}
	if sealed == "" {
		return ErrMFANotSetUp
	}
	secret, err := s.sealer.Open(sealed)
	if err != nil {
		return ErrMFAInvalid
	}
	if !totp.Validate(strings.TrimSpace(code), secret) {
		return ErrMFAInvalid
	}
	return s.store.SetMFAEnabled(ctx, user.UserID, true)
}
