package authhandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/auth"
	"pms/internal/transport/http/middleware"
)

type stubService struct {
	loginErr  error
	enableErr error
	loggedOut bool
}

func (s *stubService) Login(_ context.Context, email, _, _ string) (auth.LoginResult, error) {
	if s.loginErr != nil {
		return auth.LoginResult{}, s.loginErr
	}
	return auth.LoginResult{Token: "tok", User: auth.LoginUser{ID: "u1", TenantID: "t1", Email: email}}, nil
}

func (s *stubService) Logout(context.Context, auth.UserContext) error {
	s.loggedOut = true
	return nil
}

func (s *stubService) SetupMFA(context.Context, auth.UserContext, string) (auth.MFASetup, error) {
	return auth.MFASetup{Secret: "S", OTPAuthURL: "otpauth://totp/PMS:u1"}, nil
}

func (s *stubService) EnableMFA(context.Context, auth.UserContext, string) error {
	return s.enableErr
}

type auditStub struct{ actions []string }

func (a *auditStub) Record(_ context.Context, _, _, action, _, _, _, _ string, _, _ any) error {
	a.actions = append(a.actions, action)
	return nil
}

func newRouter(svc *stubService, log *auditStub) chi.Router {
	h := NewHandler(svc, log)
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	h.RegisterRoutes(r)
	return r
}

func send(r chi.Router, path, body string, user *auth.UserContext) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), *user))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLoginErrorsMapToCodes(t *testing.T) {
	cases := map[string]error{
		"invalid_credentials": auth.ErrInvalidCredentials,
		"mfa_required":        auth.ErrMFARequired,
		"mfa_invalid":         auth.ErrMFAInvalid,
	}
	for code, err := range cases {
		log := &auditStub{}
		r := newRouter(&stubService{loginErr: err}, log)
		rec := send(r, "/auth/login", `{"email":"a@example.com","password":"pw"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", code, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), code) {
			t.Fatalf("%s: body %s", code, rec.Body.String())
		}
		if len(log.actions) != 0 {
			t.Fatalf("%s: failed login must not be audited", code)
		}
	}
}

func TestLoginValidatesPayload(t *testing.T) {
	r := newRouter(&stubService{}, &auditStub{})
	rec := send(r, "/auth/login", `{"email":"not-an-email","password":"pw"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLoginSuccessIsAudited(t *testing.T) {
	log := &auditStub{}
	r := newRouter(&stubService{}, log)
	rec := send(r, "/auth/login", `{"email":"a@example.com","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"token":"tok"`) {
		t.Fatalf("missing token: %s", rec.Body.String())
	}
	if len(log.actions) != 1 || log.actions[0] != "auth.login" {
		t.Fatalf("unexpected audit actions %v", log.actions)
	}
}

func TestLogoutRequiresUser(t *testing.T) {
	svc := &stubService{}
	r := newRouter(svc, &auditStub{})
	if rec := send(r, "/auth/logout", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec := send(r, "/auth/logout", "", &auth.UserContext{UserID: "u1", TenantID: "t1", SessionID: "s"})
	if rec.Code != http.StatusOK || !svc.loggedOut {
		t.Fatalf("expected logout, got %d", rec.Code)
	}
}

func TestEnableMFAErrors(t *testing.T) {
	user := &auth.UserContext{UserID: "u1", TenantID: "t1"}

	r := newRouter(&stubService{enableErr: auth.ErrMFANotSetUp}, &auditStub{})
	if rec := send(r, "/auth/mfa/enable", `{"code":"123456"}`, user); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	r = newRouter(&stubService{}, &auditStub{})
	if rec := send(r, "/auth/mfa/enable", `{"code":"12ab"}`, user); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected validation failure, got %d", rec.Code)
	}
	if rec := send(r, "/auth/mfa/setup", "", user); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "otpauth://") {
		t.Fatalf("unexpected setup response %d %s", rec.Code, rec.Body.String())
	}
}
