package audithandler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

const maxExportRows = 10000

type Service interface {
	Count(ctx context.Context, tenantID string, filter audit.Filter) (int, error)
	List(ctx context.Context, tenantID string, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermAuditRead, h.Perms))
		r.Get("/events", h.handleListEvents)
		r.Get("/events/export", h.handleExportEvents)
	})
}

func filterFrom(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		ActorUser:  q.Get("actorUserId"),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	includeDetails := r.URL.Query().Get("includeDetails") == "true"
	filter := filterFrom(r)
	total, err := h.Service.Count(r.Context(), user.TenantID, filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	}

	events, err := h.Service.List(r.Context(), user.TenantID, filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	events, err := h.Service.List(r.Context(), user.TenantID, filterFrom(r), false, maxExportRows, 0)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_user_id", "action", "entity_type", "entity_id", "request_id", "ip", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		if err := writer.Write([]string{evt.ID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.RequestID, evt.IP, evt.CreatedAt.UTC().Format(time.RFC3339)}); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}
