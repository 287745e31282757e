package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pms/internal/transport/http/api"
	"pms/internal/transport/http/shared"
)

// sweepEvery bounds how many hits pass between purges of expired buckets.
const sweepEvery = 1024

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*limiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(l *limiter) {
		if fn != nil {
			l.key = fn
		}
	}
}

// window is a fixed counting window for one key.
type window struct {
	hits    int
	resetAt time.Time
}

type limiter struct {
	limit  int
	period time.Duration
	key    RateLimitKeyFunc
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	calls   int
}

func newLimiter(limit int, period time.Duration, key RateLimitKeyFunc) *limiter {
	if key == nil {
		key = actorOrIPKey
	}
	return &limiter{limit: limit, period: period, key: key, now: time.Now, windows: map[string]*window{}}
}

type verdict struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

func (l *limiter) hit(key string) verdict {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		for k, w := range l.windows {
			if now.After(w.resetAt) {
				delete(l.windows, k)
			}
		}
	}

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}
	w.hits++
	return verdict{
		allowed:   w.hits <= l.limit,
		remaining: max(l.limit-w.hits, 0),
		resetIn:   w.resetAt.Sub(now),
	}
}

// allow writes the rate limit headers and, once the key is over its limit, the 429 response.
func (l *limiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if l.limit <= 0 {
		return true
	}
	key := l.key(r)
	if key == "" {
		key = shared.ClientIP(r)
	}
	v := l.hit(key)

	resetSec := ceilSeconds(v.resetIn)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if v.allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path, "limit", l.limit, "windowSec", int(l.period.Seconds()))
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// RateLimit allows limit requests per window for each key; the default key is the authenticated
// user, falling back to the client IP.
func RateLimit(limit int, period time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	l := newLimiter(limit, period, actorOrIPKey)
	for _, opt := range opts {
		opt(l)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.allow(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit adds tighter budgets on top of RateLimit. Login and MFA calls get a
// quarter of the base limit, counted both per IP and per submitted email. Workflow status changes
// and score computations get half of it per actor.
func SensitiveMutationRateLimit(baseLimit int, period time.Duration) func(http.Handler) http.Handler {
	authLimit := max(baseLimit/4, 1)
	byIP := newLimiter(authLimit, period, shared.ClientIP)
	byEmail := newLimiter(authLimit, period, AuthEmailOrIPKey("email"))
	byActor := newLimiter(max(baseLimit/2, 1), period, actorOrIPKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var chain []*limiter
			switch sensitiveRateScope(r) {
			case scopeAuth:
				chain = []*limiter{byIP, byEmail}
			case scopeActor:
				chain = []*limiter{byActor}
			}
			for _, l := range chain {
				if !l.allow(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthEmailOrIPKey keys on the email submitted in a JSON body so credential stuffing from many
// addresses still counts against one account.
func AuthEmailOrIPKey(field string) RateLimitKeyFunc {
	field = strings.TrimSpace(field)
	if field == "" {
		field = "email"
	}
	return func(r *http.Request) string {
		if email := jsonStringField(r, field); email != "" {
			return "email:" + strings.ToLower(email)
		}
		return shared.ClientIP(r)
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.TenantID + ":" + user.UserID
	}
	return shared.ClientIP(r)
}

// jsonStringField peeks at a top-level string field and restores the body for the handler.
func jsonStringField(r *http.Request, field string) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(fields[field], &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

type rateScope int

const (
	scopeNone rateScope = iota
	scopeAuth
	scopeActor
)

func sensitiveRateScope(r *http.Request) rateScope {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return scopeNone
	}

	path := strings.TrimPrefix(strings.TrimSpace(r.URL.Path), "/api/v1")
	switch path {
	case "/auth/login", "/auth/mfa/setup", "/auth/mfa/enable":
		return scopeAuth
	}
	isRecord := strings.HasPrefix(path, "/kpi/bonus/") || strings.HasPrefix(path, "/kpi/merit/")
	switch {
	case isRecord && strings.HasSuffix(path, "/status"):
		return scopeActor
	case strings.HasPrefix(path, "/appraisal/") && strings.HasSuffix(path, "/compute"):
		return scopeActor
	}
	return scopeNone
}
