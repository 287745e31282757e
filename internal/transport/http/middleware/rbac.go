package middleware

import (
	"context"
	"net/http"

	"pms/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, roleID, permission string) (bool, error)
}

// HasAnyPermission reports whether roleID holds at least one of permissions.
func HasAnyPermission(ctx context.Context, store PermissionStore, roleID string, permissions ...string) (bool, error) {
	for _, perm := range permissions {
		ok, err := store.HasPermission(ctx, roleID, perm)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// RequirePermission admits authenticated callers whose role holds permission or any of also.
func RequirePermission(permission string, store PermissionStore, also ...string) func(http.Handler) http.Handler {
	perms := append([]string{permission}, also...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := GetRequestID(r.Context())
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
				return
			}

			allowed, err := HasAnyPermission(r.Context(), store, user.RoleID, perms...)
			switch {
			case err != nil:
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", reqID)
			case !allowed:
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", reqID)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
