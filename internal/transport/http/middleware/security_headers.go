package middleware

import (
	"net/http"
	"strings"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	spaCSP = "default-src 'self'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; object-src 'none'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self'"
)

// SecureHeaders sets the browser hardening headers. JSON and CSV
// responses under /api get a deny-all policy and are never cached;
// everything else is the web client and gets the SPA policy.
func SecureHeaders(isProd bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			if strings.HasPrefix(r.URL.Path, "/api/") {
				h.Set("Content-Security-Policy", apiCSP)
				h.Set("Cache-Control", "no-store")
			} else {
				h.Set("Content-Security-Policy", spaCSP)
				h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			}
			if isProd {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
