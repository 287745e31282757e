package notificationshandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/notifications"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Service interface {
	List(ctx context.Context, tenantID, userID string, limit, offset int) ([]notifications.Notification, error)
	Count(ctx context.Context, tenantID, userID string) (int, error)
	UnreadCount(ctx context.Context, tenantID, userID string) (int, error)
	MarkRead(ctx context.Context, tenantID, userID, notificationID string) (bool, error)
}

type Handler struct {
	Service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/{notificationID}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	total, err := h.Service.Count(r.Context(), user.TenantID, user.UserID)
	if err != nil {
		slog.Warn("notification count failed", "err", err)
	}
	unread, err := h.Service.UnreadCount(r.Context(), user.TenantID, user.UserID)
	if err != nil {
		slog.Warn("notification unread count failed", "err", err)
	}

	items, err := h.Service.List(r.Context(), user.TenantID, user.UserID, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	w.Header().Set("X-Unread-Count", strconv.Itoa(unread))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	notificationID, ok := shared.PathID(w, r, "notificationID", middleware.GetRequestID(r.Context()))
	if !ok {
		return
	}

	updated, err := h.Service.MarkRead(r.Context(), user.TenantID, user.UserID, notificationID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to update notification", middleware.GetRequestID(r.Context()))
		return
	}
	if !updated {
		api.Fail(w, http.StatusNotFound, "not_found", "notification not found", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "read"}, middleware.GetRequestID(r.Context()))
}
