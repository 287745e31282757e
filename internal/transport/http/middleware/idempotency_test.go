package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms/internal/domain/auth"
)

type storedResponse struct {
	hash string
	body json.RawMessage
}

type memKeys map[string]storedResponse

func (m memKeys) Check(_ context.Context, tenantID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	entry, ok := m[tenantID+"|"+userID+"|"+endpoint+"|"+key]
	if !ok {
		return nil, false, nil
	}
	if entry.hash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return entry.body, true, nil
}

func (m memKeys) Save(_ context.Context, tenantID, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	m[tenantID+"|"+userID+"|"+endpoint+"|"+key] = storedResponse{hash: requestHash, body: append(json.RawMessage(nil), response...)}
	return nil
}

func TestRequestHashDeterministic(t *testing.T) {
	assert.Equal(t, RequestHash([]byte("payload")), RequestHash([]byte("payload")))
	assert.NotEqual(t, RequestHash([]byte("payload")), RequestHash([]byte("other")))
}

func idempotentRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/kpi/bonus/b1/status", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", key)
	return req.WithContext(WithUser(req.Context(), auth.UserContext{UserID: "u1", TenantID: "t1"}))
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	calls := 0
	handler := Idempotent(memKeys{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"status":"pending_approver"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(`{"status":"pending_approver"}`, "k1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest(`{"status":"pending_approver"}`, "k1"))

	require.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestIdempotentConflictOnDifferentBody(t *testing.T) {
	handler := Idempotent(memKeys{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{"status":"completed"}`, "k2"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(`{"status":"rejected"}`, "k2"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "idempotency_conflict")
}

func TestIdempotentSkipsFailedResponses(t *testing.T) {
	calls := 0
	handler := Idempotent(memKeys{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{}`, "k3"))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{}`, "k3"))

	assert.Equal(t, 2, calls)
}

func TestIdempotentPassesThroughWithoutKey(t *testing.T) {
	calls := 0
	handler := Idempotent(memKeys{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{}`, ""))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{}`, ""))

	assert.Equal(t, 2, calls)
}
