package appraisalhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/appraisal"
	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/core"
	"pms/internal/domain/scoring"
	"pms/internal/platform/jobs"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Service interface {
	CreateCycle(ctx context.Context, tenantID string, c appraisal.Cycle) (appraisal.Cycle, error)
	ListCycles(ctx context.Context, tenantID, status string) ([]appraisal.Cycle, error)
	UpdateCycleStatus(ctx context.Context, tenantID, cycleID, target string) (appraisal.Cycle, error)
	GetCycle(ctx context.Context, tenantID, cycleID string) (appraisal.Cycle, error)
	ComputeCycle(ctx context.Context, tenantID, cycleID string) (appraisal.CycleRun, error)

	CreateAppraisal(ctx context.Context, tenantID, cycleID, employeeID string) (appraisal.Appraisal, error)
	GetAppraisal(ctx context.Context, tenantID, appraisalID string) (appraisal.Appraisal, error)
	ListAppraisals(ctx context.Context, tenantID string, filter appraisal.Filter) ([]appraisal.Appraisal, error)
	SetKRAs(ctx context.Context, tenantID, appraisalID string, kras []scoring.KRA) ([]scoring.KRA, error)
	SetSelfRatings(ctx context.Context, tenantID, appraisalID string, ratings []scoring.SelfRating) ([]scoring.SelfRating, error)
	RequestFeedback(ctx context.Context, tenantID, appraisalID, reviewerID, role string) (appraisal.Feedback, error)
	SubmitFeedback(ctx context.Context, tenantID, appraisalID, feedbackID, reviewerID string, totalScore float64, comments string) (appraisal.Feedback, error)
	Compute(ctx context.Context, tenantID, appraisalID string) (appraisal.Result, error)
}

type EmployeeLookup interface {
	GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (core.Employee, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

// JobQueue runs cycle recomputation in the background.
type JobQueue interface {
	Enqueue(jobType, tenantID string, run jobs.RunFunc) bool
}

type Handler struct {
	Service   Service
	Employees EmployeeLookup
	Perms     middleware.PermissionStore
	Audit     AuditRecorder
	Jobs      JobQueue
}

func NewHandler(service Service, employees EmployeeLookup, perms middleware.PermissionStore, auditor AuditRecorder, queue JobQueue) *Handler {
	return &Handler{Service: service, Employees: employees, Perms: perms, Audit: auditor, Jobs: queue}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/appraisal", func(r chi.Router) {
		r.Route("/cycles", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/", h.handleListCycles)
			r.With(middleware.RequirePermission(auth.PermAppraisalManage, h.Perms)).Post("/", h.handleCreateCycle)
			r.With(middleware.RequirePermission(auth.PermAppraisalManage, h.Perms)).Post("/{cycleID}/status", h.handleCycleStatus)
			r.With(middleware.RequirePermission(auth.PermAppraisalManage, h.Perms)).Post("/{cycleID}/compute", h.handleComputeCycle)
		})
		r.Route("/appraisals", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/", h.handleListAppraisals)
			r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/", h.handleCreateAppraisal)
			r.Route("/{appraisalID}", func(r chi.Router) {
				r.With(middleware.RequirePermission(auth.PermAppraisalRead, h.Perms)).Get("/", h.handleGetAppraisal)
				r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Put("/kras", h.handleSetKRAs)
				r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Put("/self-ratings", h.handleSetSelfRatings)
				r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/feedback", h.handleRequestFeedback)
				r.With(middleware.RequirePermission(auth.PermAppraisalFeedback, h.Perms)).Post("/feedback/{feedbackID}/submit", h.handleSubmitFeedback)
				r.With(middleware.RequirePermission(auth.PermAppraisalWrite, h.Perms)).Post("/compute", h.handleCompute)
			})
		})
	})
}

type cycleRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	StartDate        string `json:"startDate" validate:"required"`
	EndDate          string `json:"endDate" validate:"required"`
	EvaluationMethod string `json:"evaluationMethod" validate:"omitempty,oneof=Manual Automatic"`
	UseFormula       bool   `json:"calculateFinalScoreBasedOnFormula"`
	Formula          string `json:"finalScoreFormula" validate:"max=500"`
}

type cycleStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active closed"`
}

type appraisalRequest struct {
	CycleID    string `json:"cycleId" validate:"required,uuid"`
	EmployeeID string `json:"employeeId" validate:"omitempty,uuid"`
}

type krasRequest struct {
	KRAs []scoring.KRA `json:"kras" validate:"dive"`
}

type selfRatingsRequest struct {
	Ratings []scoring.SelfRating `json:"ratings" validate:"dive"`
}

type feedbackRequest struct {
	ReviewerID string `json:"reviewerId" validate:"required,uuid"`
	Role       string `json:"role" validate:"required,oneof=peer manager"`
}

type submitFeedbackRequest struct {
	TotalScore float64 `json:"totalScore" validate:"gte=0"`
	Comments   string  `json:"comments" validate:"max=4000"`
}

func (h *Handler) handleListCycles(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	cycles, err := h.Service.ListCycles(r.Context(), user.TenantID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, cycles, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateCycle(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var payload cycleRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	v := shared.NewValidator()
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	cycle, err := h.Service.CreateCycle(r.Context(), user.TenantID, appraisal.Cycle{
		Name:             payload.Name,
		StartDate:        start,
		EndDate:          end,
		EvaluationMethod: payload.EvaluationMethod,
		UseFormula:       payload.UseFormula,
		Formula:          payload.Formula,
	})
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, user, "appraisal.cycle.create", audit.EntityAppraisalCycle, cycle.ID, nil, cycle)
	api.Created(w, cycle, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	cycleID, ok := shared.PathID(w, r, "cycleID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	var payload cycleStatusRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	cycle, err := h.Service.UpdateCycleStatus(r.Context(), user.TenantID, cycleID, payload.Status)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, user, "appraisal.cycle."+payload.Status, audit.EntityAppraisalCycle, cycleID, nil, map[string]string{"status": cycle.Status})
	api.Success(w, cycle, middleware.GetRequestID(r.Context()))
}

// handleComputeCycle queues a recomputation of every appraisal in the cycle.
func (h *Handler) handleComputeCycle(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	cycleID, ok := shared.PathID(w, r, "cycleID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	if _, err := h.Service.GetCycle(r.Context(), user.TenantID, cycleID); err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	tenantID := user.TenantID
	queued := h.Jobs.Enqueue(appraisal.JobTypeComputeCycle, tenantID, func(ctx context.Context) (any, error) {
		return h.Service.ComputeCycle(ctx, tenantID, cycleID)
	})
	if !queued {
		api.Fail(w, http.StatusServiceUnavailable, "queue_full", "job queue is full, retry later", middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, user, "appraisal.cycle.compute", audit.EntityAppraisalCycle, cycleID, nil, nil)
	api.Accepted(w, map[string]string{"jobType": appraisal.JobTypeComputeCycle, "cycleId": cycleID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListAppraisals(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	page := shared.ParsePagination(r, 50, 200)
	filter := appraisal.Filter{
		CycleID:    r.URL.Query().Get("cycleId"),
		EmployeeID: r.URL.Query().Get("employeeId"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if !c.user.IsHR() {
		// non-HR callers see their own appraisals, or those they manage when asking for a team
		if r.URL.Query().Get("scope") == "team" {
			filter.ManagerID = c.employee.ID
		} else {
			filter.EmployeeID = c.employee.ID
		}
	}
	items, err := h.Service.ListAppraisals(r.Context(), c.user.TenantID, filter)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateAppraisal(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var payload appraisalRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	employeeID := payload.EmployeeID
	if employeeID == "" {
		employeeID = c.employee.ID
	}
	if employeeID == "" || (employeeID != c.employee.ID && !c.user.IsHR()) {
		api.Fail(w, http.StatusForbidden, "forbidden", "appraisals can only be created for yourself", middleware.GetRequestID(r.Context()))
		return
	}
	created, err := h.Service.CreateAppraisal(r.Context(), c.user.TenantID, payload.CycleID, employeeID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "appraisal.create", audit.EntityAppraisal, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetAppraisal(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, ok := h.load(w, r, c, viewer)
	if !ok {
		return
	}
	api.Success(w, a, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetKRAs(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, ok := h.load(w, r, c, ownerOrManager)
	if !ok {
		return
	}
	var payload krasRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	kras, err := h.Service.SetKRAs(r.Context(), c.user.TenantID, a.ID, payload.KRAs)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "appraisal.kras.update", audit.EntityAppraisal, a.ID, a.KRAs, kras)
	api.Success(w, kras, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetSelfRatings(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, ok := h.load(w, r, c, ownerOnly)
	if !ok {
		return
	}
	var payload selfRatingsRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	ratings, err := h.Service.SetSelfRatings(r.Context(), c.user.TenantID, a.ID, payload.Ratings)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "appraisal.self_ratings.update", audit.EntityAppraisal, a.ID, a.SelfRatings, ratings)
	api.Success(w, ratings, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRequestFeedback(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, ok := h.load(w, r, c, ownerOrManager)
	if !ok {
		return
	}
	var payload feedbackRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	fb, err := h.Service.RequestFeedback(r.Context(), c.user.TenantID, a.ID, payload.ReviewerID, payload.Role)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "appraisal.feedback.request", audit.EntityAppraisalReview, fb.ID, nil, fb)
	api.Created(w, fb, middleware.GetRequestID(r.Context()))
}

// handleSubmitFeedback records the caller's own review; the service rejects anyone but the
// assigned reviewer.
func (h *Handler) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	appraisalID, ok := shared.PathID(w, r, "appraisalID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	feedbackID, ok := shared.PathID(w, r, "feedbackID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	var payload submitFeedbackRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	fb, err := h.Service.SubmitFeedback(r.Context(), c.user.TenantID, appraisalID, feedbackID, c.employee.ID, payload.TotalScore, payload.Comments)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "appraisal.feedback.submit", audit.EntityAppraisalReview, feedbackID, nil, map[string]any{"totalScore": fb.TotalScore})
	api.Success(w, fb, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, ok := h.load(w, r, c, managerOnly)
	if !ok {
		return
	}
	result, err := h.Service.Compute(r.Context(), c.user.TenantID, a.ID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "appraisal.compute", audit.EntityAppraisal, a.ID, nil, result.Final)
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

type caller struct {
	user     auth.UserContext
	employee core.Employee
}

type access int

const (
	viewer access = iota
	ownerOnly
	managerOnly
	ownerOrManager
)

func (c caller) allowed(a appraisal.Appraisal, mode access) bool {
	if c.user.IsHR() {
		return true
	}
	isOwner := c.employee.ID != "" && a.EmployeeID == c.employee.ID
	isManager := c.employee.ID != "" && a.ManagerID == c.employee.ID
	switch mode {
	case ownerOnly:
		return isOwner
	case managerOnly:
		return isManager
	case ownerOrManager:
		return isOwner || isManager
	}
	if isOwner || isManager {
		return true
	}
	for _, fb := range a.Feedback {
		if fb.ReviewerID == c.employee.ID {
			return true
		}
	}
	return false
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (caller, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return caller{}, false
	}
	emp, err := h.Employees.GetEmployeeByUserID(r.Context(), user.TenantID, user.UserID)
	switch {
	case err == nil:
		return caller{user: user, employee: emp}, true
	case errors.Is(err, core.ErrNotFound) && user.IsHR():
		return caller{user: user}, true
	case errors.Is(err, core.ErrNotFound):
		api.Fail(w, http.StatusForbidden, "forbidden", "no employee profile linked to this user", middleware.GetRequestID(r.Context()))
	default:
		writeError(w, err, middleware.GetRequestID(r.Context()))
	}
	return caller{}, false
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, c caller, mode access) (appraisal.Appraisal, bool) {
	appraisalID, ok := shared.PathID(w, r, "appraisalID", middleware.GetRequestID(r.Context()))
	if !ok {
		return appraisal.Appraisal{}, false
	}
	a, err := h.Service.GetAppraisal(r.Context(), c.user.TenantID, appraisalID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return appraisal.Appraisal{}, false
	}
	if !c.allowed(a, mode) {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return appraisal.Appraisal{}, false
	}
	return a, true
}

func (h *Handler) audit(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit log failed", "action", action, "entityId", entityID, "err", err)
	}
}

func writeError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, appraisal.ErrNotFound), errors.Is(err, appraisal.ErrCycleNotFound), errors.Is(err, appraisal.ErrFeedbackNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, core.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "employee_not_found", err.Error(), requestID)
	case errors.Is(err, appraisal.ErrDuplicateAppraisal), errors.Is(err, appraisal.ErrFeedbackSubmitted):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), requestID)
	case errors.Is(err, appraisal.ErrCycleTransition), errors.Is(err, appraisal.ErrCycleClosed):
		api.Fail(w, http.StatusConflict, "invalid_transition", err.Error(), requestID)
	case errors.Is(err, appraisal.ErrNotReviewer):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, appraisal.ErrInvalidFormula):
		api.Fail(w, http.StatusBadRequest, "invalid_formula", err.Error(), requestID)
	case errors.Is(err, appraisal.ErrInvalidCycle), errors.Is(err, appraisal.ErrInvalidKRA),
		errors.Is(err, appraisal.ErrInvalidRating), errors.Is(err, appraisal.ErrInvalidFeedback):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	default:
		slog.Error("appraisal request failed", "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "request failed", requestID)
	}
}
