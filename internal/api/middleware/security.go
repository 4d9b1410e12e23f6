package middleware

import (
	"net/http"

	"github.com/routesafe/routesafe/internal/api/models"
)

// securityHeaders are set on every response, event streams included.
var securityHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
}

// SecurityHeaders sets the fixed security response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects requests that reached the load balancer over plain HTTP.
// Requests without X-Forwarded-Proto came in directly and pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Header.Get("X-Forwarded-Proto") {
			case "", "https":
				next.ServeHTTP(w, r)
			default:
				p := models.NewTLSRequired(GetRequestID(r.Context()), "route assembly is only served over HTTPS")
				p.Instance = r.URL.Path
				p.Write(w)
			}
		})
	}
}
