package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms/internal/domain/auth"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

type rateReq struct {
	method string
	path   string
	body   string
	addr   string
	user   *auth.UserContext
}

func (rr rateReq) send(h http.Handler) *httptest.ResponseRecorder {
	method := rr.method
	if method == "" {
		method = http.MethodPost
	}
	req := httptest.NewRequest(method, rr.path, strings.NewReader(rr.body))
	if rr.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = rr.addr
	if rr.user != nil {
		req = req.WithContext(WithUser(req.Context(), *rr.user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitKeysOnUserBeforeIP(t *testing.T) {
	h := RateLimit(1, time.Minute)(noContent)
	user := &auth.UserContext{TenantID: "tenant-1", UserID: "user-1"}

	first := rateReq{path: "/api/v1/kpi/bonus/b1/status", addr: "198.51.100.11:2222", user: user}.send(h)
	second := rateReq{path: "/api/v1/kpi/bonus/b1/status", addr: "198.51.100.12:3333", user: user}.send(h)

	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code, "same user on a new address shares the bucket")
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	h := RateLimit(1, time.Minute)(noContent)

	first := rateReq{path: "/api/v1/employees", body: `{"email":"a@example.com"}`, addr: "203.0.113.10:4444"}.send(h)
	second := rateReq{path: "/api/v1/employees", body: `{"email":"b@example.com"}`, addr: "203.0.113.10:5555"}.send(h)
	other := rateReq{path: "/api/v1/employees", addr: "203.0.113.99:5555"}.send(h)

	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusNoContent, other.Code)
}

func TestRateLimitWindowReset(t *testing.T) {
	h := RateLimit(1, 40*time.Millisecond)(noContent)
	req := rateReq{path: "/api/v1/auth/login", body: `{"email":"a@example.com"}`, addr: "192.0.2.20:1111"}

	require.Equal(t, http.StatusNoContent, req.send(h).Code)
	require.Equal(t, http.StatusTooManyRequests, req.send(h).Code)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, http.StatusNoContent, req.send(h).Code)
}

func TestRateLimitReturnsRetryMetadata(t *testing.T) {
	h := RateLimit(1, time.Minute)(noContent)
	req := rateReq{path: "/api/v1/auth/login", addr: "192.0.2.30:1234"}

	first := req.send(h)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	rec := req.send(h)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestSensitiveMutationRateLimitScope(t *testing.T) {
	h := SensitiveMutationRateLimit(4, time.Minute)(noContent)

	for i := 0; i < 6; i++ {
		rec := rateReq{method: http.MethodGet, path: "/api/v1/reports/dashboard", addr: "198.51.100.40:8888"}.send(h)
		require.Equal(t, http.StatusNoContent, rec.Code, "read request %d", i+1)
	}

	user := &auth.UserContext{TenantID: "tenant-1", UserID: "hr-1"}
	codes := make([]int, 3)
	for i := range codes {
		codes[i] = rateReq{path: "/api/v1/kpi/bonus/b1/status", addr: "198.51.100.41:9999", user: user}.send(h).Code
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestSensitiveLoginLimitedPerEmail(t *testing.T) {
	h := SensitiveMutationRateLimit(4, time.Minute)(noContent)

	first := rateReq{path: "/api/v1/auth/login", body: `{"email":"Victim@example.com"}`, addr: "192.0.2.1:1"}.send(h)
	second := rateReq{path: "/api/v1/auth/login", body: `{"email":"victim@example.com"}`, addr: "192.0.2.2:1"}.send(h)

	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code, "email key is case-insensitive across addresses")
}

func TestJSONStringFieldRestoresBody(t *testing.T) {
	var seen string
	h := RateLimit(5, time.Minute, WithKeyFunc(AuthEmailOrIPKey("")))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
	}))

	rateReq{path: "/api/v1/auth/login", body: `{"email":"a@example.com","password":"pw"}`, addr: "192.0.2.5:1"}.send(h)
	assert.Equal(t, `{"email":"a@example.com","password":"pw"}`, seen)
}

func TestLimiterSweepsExpiredWindows(t *testing.T) {
	clock := time.Unix(0, 0)
	l := newLimiter(1, time.Second, nil)
	l.now = func() time.Time { return clock }

	l.hit("stale")
	clock = clock.Add(2 * time.Second)
	for i := 1; i < sweepEvery; i++ {
		l.hit("fresh")
	}
	_, ok := l.windows["stale"]
	assert.False(t, ok)
}
