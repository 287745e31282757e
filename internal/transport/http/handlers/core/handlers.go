package corehandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/core"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Service interface {
	GetEmployee(ctx context.Context, tenantID, employeeID string) (core.Employee, error)
	GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (core.Employee, error)
	ListEmployees(ctx context.Context, tenantID, managerID string, limit, offset int) ([]core.Employee, error)
	CreateEmployee(ctx context.Context, tenantID string, emp core.Employee) (core.Employee, error)
	IsInReportingLine(ctx context.Context, tenantID, managerID, employeeID string) (bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
	Audit   AuditRecorder
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor AuditRecorder) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Route("/employees", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/", h.handleListEmployees)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/", h.handleCreateEmployee)
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/{employeeID}", h.handleGetEmployee)
	})
}

type employeeRequest struct {
	UserID         string `json:"userId" validate:"omitempty,uuid"`
	EmployeeNumber string `json:"employeeNumber" validate:"max=64"`
	FirstName      string `json:"firstName" validate:"required,max=120"`
	LastName       string `json:"lastName" validate:"required,max=120"`
	Email          string `json:"email" validate:"omitempty,email"`
	JobTitle       string `json:"jobTitle" validate:"max=120"`
	DepartmentID   string `json:"departmentId" validate:"omitempty,uuid"`
	ManagerID      string `json:"managerId" validate:"omitempty,uuid"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var employee *core.Employee
	emp, err := h.Service.GetEmployeeByUserID(r.Context(), user.TenantID, user.UserID)
	switch {
	case err == nil:
		employee = &emp
	case !errors.Is(err, core.ErrNotFound):
		slog.Warn("employee lookup failed", "userId", user.UserID, "err", err)
	}

	api.Success(w, map[string]any{
		"user": map[string]string{
			"id":       user.UserID,
			"tenantId": user.TenantID,
			"roleId":   user.RoleID,
			"role":     user.RoleName,
		},
		"employee": employee,
	}, middleware.GetRequestID(r.Context()))
}

// handleListEmployees returns the whole tenant to HR, direct reports to managers and only the
// caller's own profile to everyone else.
func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	page := shared.ParsePagination(r, 100, 500)

	if user.IsHR() {
		employees, err := h.Service.ListEmployees(r.Context(), user.TenantID, r.URL.Query().Get("managerId"), page.Limit, page.Offset)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "employee_list_failed", "failed to list employees", middleware.GetRequestID(r.Context()))
			return
		}
		api.Success(w, employees, middleware.GetRequestID(r.Context()))
		return
	}

	self, err := h.Service.GetEmployeeByUserID(r.Context(), user.TenantID, user.UserID)
	if errors.Is(err, core.ErrNotFound) {
		api.Success(w, []core.Employee{}, middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_list_failed", "failed to list employees", middleware.GetRequestID(r.Context()))
		return
	}
	out := []core.Employee{self}
	if user.RoleName == auth.RoleManager {
		reports, err := h.Service.ListEmployees(r.Context(), user.TenantID, self.ID, page.Limit, page.Offset)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "employee_list_failed", "failed to list employees", middleware.GetRequestID(r.Context()))
			return
		}
		out = append(out, reports...)
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var payload employeeRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}

	emp, err := h.Service.CreateEmployee(r.Context(), user.TenantID, core.Employee{
		UserID:         payload.UserID,
		EmployeeNumber: payload.EmployeeNumber,
		FirstName:      payload.FirstName,
		LastName:       payload.LastName,
		Email:          payload.Email,
		JobTitle:       payload.JobTitle,
		DepartmentID:   payload.DepartmentID,
		ManagerID:      payload.ManagerID,
	})
	if errors.Is(err, core.ErrNotFound) {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "managerId", Reason: "must reference an existing employee"}})
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_create_failed", "failed to create employee", middleware.GetRequestID(r.Context()))
		return
	}

	if h.Audit != nil {
		if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "core.employee.create", audit.EntityEmployee, emp.ID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, emp); err != nil {
			slog.Warn("audit log failed", "action", "core.employee.create", "err", err)
		}
	}
	api.Created(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	employeeID, ok := shared.PathID(w, r, "employeeID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}

	emp, err := h.Service.GetEmployee(r.Context(), user.TenantID, employeeID)
	if errors.Is(err, core.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_get_failed", "failed to load employee", middleware.GetRequestID(r.Context()))
		return
	}

	isSelf := emp.UserID != "" && emp.UserID == user.UserID
	isManager := false
	if !isSelf && !user.IsHR() {
		caller, err := h.Service.GetEmployeeByUserID(r.Context(), user.TenantID, user.UserID)
		if err == nil {
			isManager, err = h.Service.IsInReportingLine(r.Context(), user.TenantID, caller.ID, emp.ID)
		}
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			slog.Warn("reporting line lookup failed", "userId", user.UserID, "err", err)
		}
		if !isManager {
			api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
			return
		}
	}

	core.FilterEmployeeFields(&emp, user, isSelf, isManager)
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}
