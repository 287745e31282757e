package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Service interface {
	Login(ctx context.Context, email, password, mfaCode string) (auth.LoginResult, error)
	Logout(ctx context.Context, user auth.UserContext) error
	SetupMFA(ctx context.Context, user auth.UserContext, accountName string) (auth.MFASetup, error)
	EnableMFA(ctx context.Context, user auth.UserContext, code string) error
}

type AuditRecorder interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

type Handler struct {
	Service Service
	Audit   AuditRecorder
}

func NewHandler(service Service, auditor AuditRecorder) *Handler {
	return &Handler{Service: service, Audit: auditor}
}

// RegisterPublicRoutes mounts the routes reachable without a bearer token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/auth/mfa/setup", h.HandleMFASetup)
	r.Post("/auth/mfa/enable", h.HandleMFAEnable)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
	MFACode  string `json:"mfaCode" validate:"omitempty,numeric,len=6"`
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	result, err := h.Service.Login(r.Context(), payload.Email, payload.Password, payload.MFACode)
	if err != nil {
		writeError(w, err, reqID)
		return
	}
	h.record(r, result.User.TenantID, result.User.ID, "auth.login")
	api.Success(w, result, reqID)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	if err := h.Service.Logout(r.Context(), user); err != nil {
		slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
	}
	h.record(r, user.TenantID, user.UserID, "auth.logout")
	api.Success(w, map[string]string{"status": "logged_out"}, reqID)
}

func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	setup, err := h.Service.SetupMFA(r.Context(), user, "")
	if err != nil {
		writeError(w, err, reqID)
		return
	}
	api.Success(w, setup, reqID)
}

func (h *Handler) HandleMFAEnable(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	var payload mfaCodeRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	if err := h.Service.EnableMFA(r.Context(), user, payload.Code); err != nil {
		writeError(w, err, reqID)
		return
	}
	h.record(r, user.TenantID, user.UserID, "auth.mfa.enable")
	api.Success(w, map[string]string{"status": "enabled"}, reqID)
}

func (h *Handler) record(r *http.Request, tenantID, userID, action string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), tenantID, userID, action, audit.EntityUser, userID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit log failed", "action", action, "err", err)
	}
}

func writeError(w http.ResponseWriter, err error, reqID string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
	case errors.Is(err, auth.ErrMFARequired):
		api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", reqID)
	case errors.Is(err, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", reqID)
	case errors.Is(err, auth.ErrMFAUnavailable):
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires encryption key", reqID)
	case errors.Is(err, auth.ErrMFANotSetUp):
		api.Fail(w, http.StatusBadRequest, "mfa_missing", "mfa setup required", reqID)
	default:
		slog.Error("auth request failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", reqID)
	}
}
