package shared

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pms/internal/transport/http/api"
)

// PathID reads a UUID URL parameter. An invalid value writes a 400 and returns false.
func PathID(w http.ResponseWriter, r *http.Request, name, requestID string) (string, bool) {
	raw := chi.URLParam(r, name)
	if _, err := uuid.Parse(raw); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_id", name+" must be a valid id", requestID)
		return "", false
	}
	return raw, true
}
