package kpihandler

import (
	"errors"
	"net/http"

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

type createRecordRequest struct {
	EmployeeID string `json:"employeeId" validate:"omitempty,uuid"`
	Period     string `json:"period" validate:"required,max=32"`
}

type bonusEvaluationsRequest struct {
	Evaluations map[string]scoring.Achievement `json:"evaluations" validate:"required"`
	Version     int                            `json:"version" validate:"gte=0"`
}

type meritEvaluationsRequest struct {
	kpi.MeritEvaluations
	Version int `json:"version" validate:"gte=0"`
}

type statusRequest struct {
	Status  string `json:"status" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
	Version int    `json:"version" validate:"gte=0"`
}

// caller is the authenticated user plus their employee profile, when they have one.
type caller struct {
	user     auth.UserContext
	employee core.Employee
}

func (c caller) actorFor(rec workflow.Record) workflow.Actor {
	return workflow.ResolveActor(rec, c.employee.ID, c.employee.FullName(), c.user.IsHR()).OrUser(c.user.UserID)
}

func (c caller) canView(rec workflow.Record) bool {
	return c.user.IsHR() || rec.Participant(c.employee.ID)
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

// createTarget resolves whose record is being created. Only HR may create for someone else.
func (h *Handler) createTarget(w http.ResponseWriter, r *http.Request, c caller, requested string) (string, workflow.Actor, bool) {
	employeeID := requested
	if employeeID == "" {
		employeeID = c.employee.ID
	}
	if employeeID == "" {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "employeeId", Reason: "is required"}})
		return "", workflow.Actor{}, false
	}
	if employeeID != c.employee.ID && !c.user.IsHR() {
		api.Fail(w, http.StatusForbidden, "forbidden", "records can only be created for yourself", middleware.GetRequestID(r.Context()))
		return "", workflow.Actor{}, false
	}
	return employeeID, c.actorFor(workflow.Record{EmployeeID: employeeID}), true
}

func (h *Handler) recordFilter(r *http.Request, c caller) (kpi.RecordFilter, error) {
	q := r.URL.Query()
	page := shared.ParsePagination(r, 50, 200)
	filter := kpi.RecordFilter{
		EmployeeID: q.Get("employeeId"),
		Period:     q.Get("period"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if raw := q.Get("status"); raw != "" {
		status, err := workflow.ParseStatus(raw)
		if err != nil {
			return kpi.RecordFilter{}, err
		}
		filter.Status = &status
	}
	if !c.user.IsHR() {
		filter.ParticipantID = c.employee.ID
	}
	return filter, nil
}

// allowStatus checks the role permission matching the requested move. The workflow itself
// decides whether the caller holds the checker or approver seat on this record.
func (h *Handler) allowStatus(r *http.Request, c caller, target workflow.Status) (bool, error) {
	switch target {
	case workflow.StatusApproved:
		return h.Perms.HasPermission(r.Context(), c.user.RoleID, auth.PermKPIApprove)
	case workflow.StatusPendingApprover, workflow.StatusRejected:
		return middleware.HasAnyPermission(r.Context(), h.Perms, c.user.RoleID, auth.PermKPICheck, auth.PermKPIApprove)
	}
	return true, nil
}

func (h *Handler) parseStatus(w http.ResponseWriter, r *http.Request, c caller) (statusRequest, workflow.Status, bool) {
	var payload statusRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return statusRequest{}, 0, false
	}
	target, err := workflow.ParseStatus(payload.Status)
	if err != nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "status", Reason: "is not a known status"}})
		return statusRequest{}, 0, false
	}
	allowed, err := h.allowStatus(r, c, target)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", middleware.GetRequestID(r.Context()))
		return statusRequest{}, 0, false
	}
	if !allowed {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", middleware.GetRequestID(r.Context()))
		return statusRequest{}, 0, false
	}
	return payload, target, true
}

func (h *Handler) handleListBonus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	filter, err := h.recordFilter(r, c)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	records, err := h.Service.ListBonusRecords(r.Context(), c.user.TenantID, filter)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateBonus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var payload createRecordRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	employeeID, actor, ok := h.createTarget(w, r, c, payload.EmployeeID)
	if !ok {
		return
	}
	rec, err := h.Service.CreateBonusRecord(r.Context(), c.user.TenantID, employeeID, payload.Period, actor)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "kpi.bonus.create", audit.EntityKPIBonusRecord, rec.ID, nil, rec)
	api.Created(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) loadBonus(w http.ResponseWriter, r *http.Request, c caller) (kpi.BonusRecord, bool) {
	recordID, ok := shared.PathID(w, r, "recordID", middleware.GetRequestID(r.Context()))
	if !ok {
		return kpi.BonusRecord{}, false
	}
	rec, err := h.Service.GetBonusRecord(r.Context(), c.user.TenantID, recordID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return kpi.BonusRecord{}, false
	}
	if !c.canView(rec.Record) {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return kpi.BonusRecord{}, false
	}
	return rec, true
}

func (h *Handler) handleGetBonus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadBonus(w, r, c)
	if !ok {
		return
	}
	api.Success(w, map[string]any{
		"record":       rec,
		"nextStatuses": workflow.Available(rec.Record, c.actorFor(rec.Record)),
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveBonusEvaluations(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadBonus(w, r, c)
	if !ok {
		return
	}
	var payload bonusEvaluationsRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	updated, err := h.Service.SaveBonusEvaluations(r.Context(), c.user.TenantID, rec.ID, payload.Evaluations, c.actorFor(rec.Record), payload.Version)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "kpi.bonus.evaluate", audit.EntityKPIBonusRecord, rec.ID, rec.Evaluations, updated.Evaluations)
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBonusStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadBonus(w, r, c)
	if !ok {
		return
	}
	payload, target, ok := h.parseStatus(w, r, c)
	if !ok {
		return
	}
	updated, evt, err := h.Service.UpdateBonusStatus(r.Context(), c.user.TenantID, rec.ID, target, payload.Comment, c.actorFor(rec.Record), payload.Version)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "kpi.bonus."+string(evt.Action), audit.EntityKPIBonusRecord, rec.ID,
		map[string]string{"status": evt.From.String()}, map[string]string{"status": evt.To.String(), "comment": evt.Comment})
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBonusHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadBonus(w, r, c)
	if !ok {
		return
	}
	history, err := h.Service.History(r.Context(), c.user.TenantID, workflow.RecordKPIBonus, rec.ID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, history, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListMerit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	filter, err := h.recordFilter(r, c)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	records, err := h.Service.ListMeritRecords(r.Context(), c.user.TenantID, filter)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateMerit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var payload createRecordRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	employeeID, actor, ok := h.createTarget(w, r, c, payload.EmployeeID)
	if !ok {
		return
	}
	rec, err := h.Service.CreateMeritRecord(r.Context(), c.user.TenantID, employeeID, payload.Period, actor)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "kpi.merit.create", audit.EntityKPIMeritRecord, rec.ID, nil, rec)
	api.Created(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) loadMerit(w http.ResponseWriter, r *http.Request, c caller) (kpi.MeritRecord, bool) {
	recordID, ok := shared.PathID(w, r, "recordID", middleware.GetRequestID(r.Context()))
	if !ok {
		return kpi.MeritRecord{}, false
	}
	rec, err := h.Service.GetMeritRecord(r.Context(), c.user.TenantID, recordID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return kpi.MeritRecord{}, false
	}
	if !c.canView(rec.Record) {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return kpi.MeritRecord{}, false
	}
	return rec, true
}

func (h *Handler) handleGetMerit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadMerit(w, r, c)
	if !ok {
		return
	}
	api.Success(w, map[string]any{
		"record":       rec,
		"nextStatuses": workflow.Available(rec.Record, c.actorFor(rec.Record)),
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveMeritEvaluations(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadMerit(w, r, c)
	if !ok {
		return
	}
	var payload meritEvaluationsRequest
	if !shared.DecodeJSON(w, r, &payload, middleware.GetRequestID(r.Context())) {
		return
	}
	updated, err := h.Service.SaveMeritEvaluations(r.Context(), c.user.TenantID, rec.ID, payload.MeritEvaluations, c.actorFor(rec.Record), payload.Version)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "kpi.merit.evaluate", audit.EntityKPIMeritRecord, rec.ID, nil, payload.MeritEvaluations)
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMeritStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadMerit(w, r, c)
	if !ok {
		return
	}
	payload, target, ok := h.parseStatus(w, r, c)
	if !ok {
		return
	}
	updated, evt, err := h.Service.UpdateMeritStatus(r.Context(), c.user.TenantID, rec.ID, target, payload.Comment, c.actorFor(rec.Record), payload.Version)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	h.audit(r, c.user, "kpi.merit."+string(evt.Action), audit.EntityKPIMeritRecord, rec.ID,
		map[string]string{"status": evt.From.String()}, map[string]string{"status": evt.To.String(), "comment": evt.Comment})
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMeritHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadMerit(w, r, c)
	if !ok {
		return
	}
	history, err := h.Service.History(r.Context(), c.user.TenantID, workflow.RecordKPIMerit, rec.ID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, history, middleware.GetRequestID(r.Context()))
}
