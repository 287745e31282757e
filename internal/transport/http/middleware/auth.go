package middleware

import (
	"context"
	"net/http"
	"strings"

	"pms/internal/domain/auth"
	"pms/internal/transport/http/api"
)

// SessionChecker confirms a token's session has not been revoked.
type SessionChecker interface {
	SessionActive(ctx context.Context, user auth.UserContext) (bool, error)
}

// Auth attaches the bearer token's user to the context. Requests without a valid token pass
// through anonymously; RequirePermission rejects them later. When sessions is set, a token whose
// session was revoked is refused outright.
func Auth(secret string, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			user := auth.UserContext{
				UserID:    claims.UserID,
				TenantID:  claims.TenantID,
				RoleID:    claims.RoleID,
				RoleName:  claims.RoleName,
				SessionID: claims.SessionID,
			}
			if sessions != nil && user.SessionID != "" {
				active, err := sessions.SessionActive(r.Context(), user)
				if err != nil {
					api.Fail(w, http.StatusInternalServerError, "session_error", "session check failed", GetRequestID(r.Context()))
					return
				}
				if !active {
					api.Fail(w, http.StatusUnauthorized, "session_revoked", "session is no longer valid", GetRequestID(r.Context()))
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}

// WithUser is used by tests and internal callers that already resolved the user.
func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}
