package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoutil "pms/internal/platform/crypto"
)

const testSealKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type fakeStore struct {
	users       map[string]AuthUser
	sessions    map[string]bool
	mfaSecrets  map[string]string
	mfaEnabled  map[string]bool
	permissions map[string][]string
	lastLogin   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[string]AuthUser{},
		sessions:    map[string]bool{},
		mfaSecrets:  map[string]string{},
		mfaEnabled:  map[string]bool{},
		permissions: map[string][]string{},
		lastLogin:   map[string]bool{},
	}
}

func (f *fakeStore) FindActiveUserByEmail(_ context.Context, email string) (AuthUser, error) {
	user, ok := f.users[email]
	if !ok {
		return AuthUser{}, pgx.ErrNoRows
	}
	user.MFAEnabled = f.mfaEnabled[user.ID]
	user.MFASecret = f.mfaSecrets[user.ID]
	return user, nil
}

func (f *fakeStore) CreateSession(_ context.Context, userID, tokenHash string, _ time.Time) error {
	f.sessions[userID+":"+tokenHash] = true
	return nil
}

func (f *fakeStore) RevokeSession(_ context.Context, userID, tokenHash string) error {
	f.sessions[userID+":"+tokenHash] = false
	return nil
}

func (f *fakeStore) SessionValid(_ context.Context, userID, tokenHash string) (bool, error) {
	return f.sessions[userID+":"+tokenHash], nil
}

func (f *fakeStore) UpdateLastLogin(_ context.Context, userID string) error {
	f.lastLogin[userID] = true
	return nil
}

func (f *fakeStore) UpdateMFASecret(_ context.Context, userID, sealed string) error {
	f.mfaSecrets[userID] = sealed
	f.mfaEnabled[userID] = false
	return nil
}

func (f *fakeStore) GetMFASecret(_ context.Context, userID string) (string, error) {
	return f.mfaSecrets[userID], nil
}

func (f *fakeStore) SetMFAEnabled(_ context.Context, userID string, enabled bool) error {
	f.mfaEnabled[userID] = enabled
	return nil
}

func (f *fakeStore) HasPermission(_ context.Context, roleID, permission string) (bool, error) {
	for _, p := range f.permissions[roleID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	hash, err := HashPassword("pass-1234")
	require.NoError(t, err)
	store := newFakeStore()
	store.users["ana@example.com"] = AuthUser{
		ID: "u1", TenantID: "t1", Email: "ana@example.com", RoleID: "r1", RoleName: RoleManager, PasswordHash: hash,
	}
	store.permissions["r1"] = RolePermissions[RoleManager]
	sealer, err := cryptoutil.NewSealer(testSealKey)
	require.NoError(t, err)
	return NewService(store, sealer, "jwt-secret"), store
}

func TestLoginIssuesTokenAndSession(t *testing.T) {
	svc, store := newTestService(t)

	res, err := svc.Login(context.Background(), " ana@example.com ", "pass-1234", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, RoleManager, res.User.Role)
	assert.True(t, store.lastLogin["u1"])

	claims, err := ParseToken("jwt-secret", res.Token)
	require.NoError(t, err)
	user := UserContext{UserID: claims.UserID, TenantID: claims.TenantID, SessionID: claims.SessionID}
	active, err := svc.SessionActive(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, svc.Logout(context.Background(), user))
	active, err = svc.SessionActive(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "ana@example.com", "wrong", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "pass-1234", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMFASetupEnableAndLogin(t *testing.T) {
	svc, store := newTestService(t)
	user := UserContext{UserID: "u1", TenantID: "t1"}

	setup, err := svc.SetupMFA(context.Background(), user, "ana@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.OTPAuthURL, "otpauth://totp/")
	assert.NotContains(t, store.mfaSecrets["u1"], setup.Secret)

	assert.ErrorIs(t, svc.EnableMFA(context.Background(), user, "000000x"), ErrMFAInvalid)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.EnableMFA(context.Background(), user, code))
	assert.True(t, store.mfaEnabled["u1"])

	_, err = svc.Login(context.Background(), "ana@example.com", "pass-1234", "")
	assert.ErrorIs(t, err, ErrMFARequired)

	_, err = svc.Login(context.Background(), "ana@example.com", "pass-1234", "12345x")
	assert.ErrorIs(t, err, ErrMFAInvalid)

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "ana@example.com", "pass-1234", code)
	assert.NoError(t, err)
}

func TestMFARequiresKey(t *testing.T) {
	store := newFakeStore()
	sealer, err := cryptoutil.NewSealer("")
	require.NoError(t, err)
	svc := NewService(store, sealer, "jwt-secret")

	_, err = svc.SetupMFA(context.Background(), UserContext{UserID: "u1"}, "")
	assert.ErrorIs(t, err, ErrMFAUnavailable)
	assert.ErrorIs(t, svc.EnableMFA(context.Background(), UserContext{UserID: "u1"}, "123456"), ErrMFAUnavailable)
}

func TestEnableMFAWithoutSetup(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.EnableMFA(context.Background(), UserContext{UserID: "u1"}, "123456"), ErrMFANotSetUp)
}

func TestHasPermissionDelegatesToStore(t *testing.T) {
	svc, _ := newTestService(t)
	ok, err := svc.HasPermission(context.Background(), "r1", PermKPICheck)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.HasPermission(context.Background(), "r1", PermAuditRead)
	require.NoError(t, err)
	assert.False(t, ok)
}
