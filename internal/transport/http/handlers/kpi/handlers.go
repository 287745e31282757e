package kpihandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/core"
	"pms/internal/domain/kpi"
	"pms/internal/domain/scoring"
	"pms/internal/domain/workflow"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

// Service is the part of kpi.Service the handlers call.
type Service interface {
	ListItems(ctx context.Context, tenantID string, filter kpi.ItemFilter) ([]kpi.Item, error)
	CreateItem(ctx context.Context, tenantID string, item kpi.Item) (kpi.Item, error)
	UpdateItem(ctx context.Context, tenantID string, item kpi.Item) (kpi.Item, error)
	CascadeItem(ctx context.Context, tenantID, parentID string, targets []kpi.CascadeTarget) ([]kpi.Item, error)
	ListCriteria(ctx context.Context, tenantID, kind string, activeOnly bool) ([]kpi.Criterion, error)
	CreateCriterion(ctx context.Context, tenantID string, c kpi.Criterion) (kpi.Criterion, error)

	CreateBonusRecord(ctx context.Context, tenantID, employeeID, period string, actor workflow.Actor) (kpi.BonusRecord, error)
	GetBonusRecord(ctx context.Context, tenantID, recordID string) (kpi.BonusRecord, error)
	ListBonusRecords(ctx context.Context, tenantID string, filter kpi.RecordFilter) ([]kpi.BonusRecord, error)
	SaveBonusEvaluations(ctx context.Context, tenantID, recordID string, evaluations map[string]scoring.Achievement, actor workflow.Actor, expectedVersion int) (kpi.BonusRecord, error)
	UpdateBonusStatus(ctx context.Context, tenantID, recordID string, target workflow.Status, comment string, actor workflow.Actor, expectedVersion int) (kpi.BonusRecord, workflow.Event, error)

	CreateMeritRecord(ctx context.Context, tenantID, employeeID, period string, actor workflow.Actor) (kpi.MeritRecord, error)
	GetMeritRecord(ctx context.Context, tenantID, recordID string) (kpi.MeritRecord, error)
	ListMeritRecords(ctx context.Context, tenantID string, filter kpi.RecordFilter) ([]kpi.MeritRecord, error)
	SaveMeritEvaluations(ctx context.Context, tenantID, recordID string, evaluations kpi.MeritEvaluations, actor workflow.Actor, expectedVersion int) (kpi.MeritRecord, error)
	UpdateMeritStatus(ctx context.Context, tenantID, recordID string, target workflow.Status, comment string, actor workflow.Actor, expectedVersion int) (kpi.MeritRecord, workflow.Event, error)

	History(ctx context.Context, tenantID string, recordType workflow.RecordType, recordID string) ([]workflow.HistoryEntry, error)
}

type EmployeeLookup interface {
	GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (core.Employee, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

type Handler struct {
	Service     Service
	Employees   EmployeeLookup
	Perms       middleware.PermissionStore
	Audit       AuditRecorder
	Idempotency middleware.IdempotencyKeys
}

func NewHandler(service Service, employees EmployeeLookup, perms middleware.PermissionStore, auditor AuditRecorder, idempotency middleware.IdempotencyKeys) *Handler {
	return &Handler{Service: service, Employees: employees, Perms: perms, Audit: auditor, Idempotency: idempotency}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/kpi", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/", h.handleListItems)
			r.With(middleware.RequirePermission(auth.PermKPIManage, h.Perms)).Post("/", h.handleCreateItem)
			r.With(middleware.RequirePermission(auth.PermKPIManage, h.Perms)).Put("/{itemID}", h.handleUpdateItem)
			r.With(middleware.RequirePermission(auth.PermKPIManage, h.Perms)).Post("/{itemID}/cascade", h.handleCascadeItem)
		})
		r.Route("/criteria", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/", h.handleListCriteria)
			r.With(middleware.RequirePermission(auth.PermKPIManage, h.Perms)).Post("/", h.handleCreateCriterion)
		})
		r.Route("/score", func(r chi.Router) {
			r.Use(middleware.RequirePermission(auth.PermKPIRead, h.Perms))
			r.Post("/bonus", h.handleScoreBonus)
			r.Post("/merit", h.handleScoreMerit)
			r.Get("/level", h.handleScoreLevel)
		})
		r.Route("/bonus", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/", h.handleListBonus)
			r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms)).Post("/", h.handleCreateBonus)
			r.Route("/{recordID}", func(r chi.Router) {
				r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/", h.handleGetBonus)
				r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms)).Put("/evaluations", h.handleSaveBonusEvaluations)
				r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms), middleware.Idempotent(h.Idempotency)).Post("/status", h.handleBonusStatus)
				r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/history", h.handleBonusHistory)
			})
		})
		r.Route("/merit", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/", h.handleListMerit)
			r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms)).Post("/", h.handleCreateMerit)
			r.Route("/{recordID}", func(r chi.Router) {
				r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/", h.handleGetMerit)
				r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms)).Put("/evaluations", h.handleSaveMeritEvaluations)
				r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms), middleware.Idempotent(h.Idempotency)).Post("/status", h.handleMeritStatus)
				r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/history", h.handleMeritHistory)
			})
		})
	})
}

type itemRequest struct {
	EmployeeID   string  `json:"employeeId" validate:"omitempty,uuid"`
	DepartmentID string  `json:"departmentId" validate:"omitempty,uuid"`
	Level        string  `json:"level" validate:"omitempty,oneof=corporate department individual"`
	Period       string  `json:"period" validate:"required,max=32"`
	Category     string  `json:"category" validate:"max=120"`
	Name         string  `json:"name" validate:"required,max=200"`
	Weight       float64 `json:"weight" validate:"gte=0,lte=100"`
	Target       string  `json:"target" validate:"max=200"`
	Measurement  string  `json:"measurement" validate:"max=200"`
}

type cascadeRequest struct {
	Targets []kpi.CascadeTarget `json:"targets" validate:"required,min=1,dive"`
}

type criterionRequest struct {
	Kind        string  `json:"kind" validate:"required,oneof=competency culture"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=1000"`
	Weight      float64 `json:"weight" validate:"gte=0,lte=100"`
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	q := r.URL.Query()
	filter := kpi.ItemFilter{
		EmployeeID: q.Get("employeeId"),
		Period:     q.Get("period"),
		Level:      q.Get("level"),
		ParentID:   q.Get("parentId"),
	}
	items, err := h.Service.ListItems(r.Context(), user.TenantID, filter)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var payload itemRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	item, err := h.Service.CreateItem(r.Context(), user.TenantID, payload.item())
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, user, "kpi.item.create", audit.EntityKPIItem, item.ID, nil, item)
	api.Created(w, item, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	itemID, ok := shared.PathID(w, r, "itemID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	var payload itemRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	item := payload.item()
	item.ID = itemID
	updated, err := h.Service.UpdateItem(r.Context(), user.TenantID, item)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, user, "kpi.item.update", audit.EntityKPIItem, itemID, nil, updated)
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCascadeItem(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	itemID, ok := shared.PathID(w, r, "itemID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}
	var payload cascadeRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	children, err := h.Service.CascadeItem(r.Context(), user.TenantID, itemID, payload.Targets)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, user, "kpi.item.cascade", audit.EntityKPIItem, itemID, nil, map[string]any{"children": len(children)})
	api.Created(w, children, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListCriteria(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	kind := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	activeOnly := r.URL.Query().Get("active") == "true"
	criteria, err := h.Service.ListCriteria(r.Context(), user.TenantID, kind, activeOnly)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, criteria, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateCriterion(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var payload criterionRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	created, err := h.Service.CreateCriterion(r.Context(), user.TenantID, kpi.Criterion{
		Kind:        payload.Kind,
		Name:        payload.Name,
		Description: payload.Description,
		Weight:      payload.Weight,
		Active:      true,
	})
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, user, "kpi.criterion.create", audit.EntityMeritCriterion, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

type scoreBonusRequest struct {
	Items       []scoring.WeightedItem         `json:"items" validate:"dive"`
	Evaluations map[string]scoring.Achievement `json:"evaluations"`
}

type scoreMeritRequest struct {
	KPIItems              []scoring.WeightedItem         `json:"kpiItems" validate:"dive"`
	KPIEvaluations        map[string]scoring.Achievement `json:"kpiEvaluations"`
	CompetencyItems       []scoring.WeightedItem         `json:"competencyItems" validate:"dive"`
	CompetencyEvaluations map[string]scoring.LevelRating `json:"competencyEvaluations"`
	CultureItems          []scoring.WeightedItem         `json:"cultureItems" validate:"dive"`
	CultureEvaluations    map[string]scoring.LevelRating `json:"cultureEvaluations"`
}

func (h *Handler) handleScoreBonus(w http.ResponseWriter, r *http.Request) {
	var payload scoreBonusRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	api.Success(w, scoring.CalculateKPIBonusScore(payload.Items, payload.Evaluations), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleScoreMerit(w http.ResponseWriter, r *http.Request) {
	var payload scoreMeritRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	kpiScore := scoring.CalculateKPIBonusScore(payload.KPIItems, payload.KPIEvaluations)
	competency := scoring.CalculateCompetencyScore(payload.CompetencyItems, payload.CompetencyEvaluations)
	culture := scoring.CalculateCultureScore(payload.CultureItems, payload.CultureEvaluations)
	api.Success(w, map[string]any{
		"kpiScore":        kpiScore,
		"competencyScore": competency,
		"cultureScore":    culture,
		"merit":           scoring.CalculateKPIMeritScore(kpiScore.TotalScore, competency.TotalScore, culture.TotalScore),
	}, middleware.GetRequestID(r.Context()))
}

// handleScoreLevel converts ?level= to a score or ?percentage= to a level.
func (h *Handler) handleScoreLevel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := q.Get("level"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "level", Reason: "must be an integer"}})
			return
		}
		api.Success(w, scoring.ConvertLevelToScore(level), middleware.GetRequestID(r.Context()))
		return
	}
	pct, err := strconv.ParseFloat(q.Get("percentage"), 64)
	if err != nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "percentage", Reason: "level or percentage is required"}})
		return
	}
	api.Success(w, map[string]int{"level": scoring.ConvertPercentageToLevel(pct)}, middleware.GetRequestID(r.Context()))
}

func (p itemRequest) item() kpi.Item {
	return kpi.Item{
		EmployeeID:   p.EmployeeID,
		DepartmentID: p.DepartmentID,
		Level:        p.Level,
		Period:       p.Period,
		Category:     p.Category,
		Name:         p.Name,
		Weight:       p.Weight,
		Target:       p.Target,
		Measurement:  p.Measurement,
	}
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
	case errors.Is(err, kpi.ErrNotFound), errors.Is(err, kpi.ErrItemNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, core.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "employee_not_found", err.Error(), requestID)
	case errors.Is(err, kpi.ErrConcurrentUpdate):
		api.Fail(w, http.StatusConflict, "concurrent_update", err.Error(), requestID)
	case errors.Is(err, kpi.ErrDuplicateRecord):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), requestID)
	case errors.Is(err, kpi.ErrNotEditable):
		api.Fail(w, http.StatusConflict, "not_editable", err.Error(), requestID)
	case errors.Is(err, workflow.ErrInvalidTransition):
		api.Fail(w, http.StatusConflict, "invalid_transition", err.Error(), requestID)
	case errors.Is(err, workflow.ErrActorNotAllowed):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, workflow.ErrRejectionReasonRequired):
		api.Fail(w, http.StatusBadRequest, "rejection_reason_required", err.Error(), requestID)
	case errors.Is(err, workflow.ErrUnknownStatus):
		api.Fail(w, http.StatusBadRequest, "invalid_status", err.Error(), requestID)
	case errors.Is(err, kpi.ErrWeightInvalid), errors.Is(err, kpi.ErrNoReviewer):
		api.Fail(w, http.StatusUnprocessableEntity, "unprocessable", err.Error(), requestID)
	case errors.Is(err, kpi.ErrUnknownItem), errors.Is(err, kpi.ErrInvalidEvaluation),
		errors.Is(err, kpi.ErrInvalidItem), errors.Is(err, kpi.ErrInvalidCriterion),
		errors.Is(err, kpi.ErrInvalidCascade):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	default:
		slog.Error("kpi request failed", "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "request failed", requestID)
	}
}
