package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestRecorder receives the status and latency of every request.
type RequestRecorder interface {
	Record(status int, duration time.Duration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Logger writes one structured line per request. recorder may be nil.
func Logger(recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			if recorder != nil {
				recorder.Record(rec.status, elapsed)
			}
			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"durationMs", elapsed.Milliseconds(),
				"requestId", GetRequestID(r.Context()),
			)
		})
	}
}
