package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecovererWritesEnvelope(t *testing.T) {
	handler := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

type recordedRequest struct {
	status int
	took   time.Duration
}

type recorderStub struct {
	calls []recordedRequest
}

func (r *recorderStub) Record(status int, duration time.Duration) {
	r.calls = append(r.calls, recordedRequest{status: status, took: duration})
}

func TestLoggerRecordsStatus(t *testing.T) {
	recorder := &recorderStub{}
	handler := Logger(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if assert.Len(t, recorder.calls, 2) {
		assert.Equal(t, http.StatusTeapot, recorder.calls[0].status)
	}
}

func TestLoggerDefaultsToOK(t *testing.T) {
	recorder := &recorderStub{}
	handler := Logger(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, recorder.calls[0].status)
}
