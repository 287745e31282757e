package reportshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/auth"
	"pms/internal/domain/core"
	"pms/internal/domain/kpi"
	"pms/internal/domain/reports"
	"pms/internal/platform/jobs"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Service interface {
	Dashboard(ctx context.Context, tenantID, employeeID, period string) (reports.Dashboard, error)
	MeritScorecard(ctx context.Context, tenantID, recordID string) ([]byte, error)
	JobRuns(ctx context.Context, tenantID string, limit int) ([]jobs.Run, error)
}

// MeritRecords is used to check who may download a scorecard.
type MeritRecords interface {
	GetMeritRecord(ctx context.Context, tenantID, recordID string) (kpi.MeritRecord, error)
}

type EmployeeLookup interface {
	GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (core.Employee, error)
}

type Handler struct {
	Service   Service
	Merit     MeritRecords
	Employees EmployeeLookup
	Perms     middleware.PermissionStore
}

func NewHandler(service Service, merit MeritRecords, employees EmployeeLookup, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Merit: merit, Employees: employees, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermReportsRead, h.Perms))
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/kpi/merit/{recordID}/scorecard", h.handleScorecard)
		r.Get("/jobs", h.handleJobs)
	})
}

func (h *Handler) employeeID(r *http.Request, user auth.UserContext) (string, error) {
	emp, err := h.Employees.GetEmployeeByUserID(r.Context(), user.TenantID, user.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	return emp.ID, err
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	employeeID, err := h.employeeID(r, user)
	if err != nil {
		slog.Warn("dashboard employee lookup failed", "userId", user.UserID, "err", err)
	}

	dashboard, err := h.Service.Dashboard(r.Context(), user.TenantID, employeeID, r.URL.Query().Get("period"))
	if err != nil {
		slog.Error("dashboard failed", "tenantId", user.TenantID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "dashboard_failed", "failed to build dashboard", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleScorecard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	recordID, ok := shared.PathID(w, r, "recordID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}

	rec, err := h.Merit.GetMeritRecord(r.Context(), user.TenantID, recordID)
	if errors.Is(err, kpi.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "merit record not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "scorecard_failed", "failed to load merit record", middleware.GetRequestID(r.Context()))
		return
	}
	if !user.IsHR() {
		employeeID, err := h.employeeID(r, user)
		if err != nil || !rec.Participant(employeeID) {
			api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
			return
		}
	}

	pdf, err := h.Service.MeritScorecard(r.Context(), user.TenantID, recordID)
	if err != nil {
		slog.Error("scorecard render failed", "recordId", recordID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "scorecard_failed", "failed to render scorecard", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=merit-scorecard-"+recordID+".pdf")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		slog.Warn("scorecard write failed", "recordId", recordID, "err", err)
	}
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !user.IsHR() {
		api.Fail(w, http.StatusForbidden, "forbidden", "hr role required", middleware.GetRequestID(r.Context()))
		return
	}
	page := shared.ParsePagination(r, 50, 200)
	runs, err := h.Service.JobRuns(r.Context(), user.TenantID, page.Limit)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_list_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}
