package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger writes one access log line when a request finishes. Assembly streams
// are logged on close with their run ID.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			level := zerolog.InfoLevel
			if rec.statusCode >= http.StatusInternalServerError {
				level = zerolog.WarnLevel
			}
			entry := log.WithLevel(level).
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", rec.statusCode).
				Int64("bytes", rec.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent())

			if runID := rec.Header().Get("X-Run-Id"); runID != "" {
				entry = entry.Str("run_id", runID)
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				entry = entry.
					Str("trace_id", sc.TraceID().String()).
					Str("span_id", sc.SpanID().String())
			}
			entry.Msg("request completed")
		})
	}
}
