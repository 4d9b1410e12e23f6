package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem. A panic after an event
// stream has started only ends the stream, since the status line is already
// on the wire. http.ErrAbortHandler is re-raised for the server to handle.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				v := recover()
				switch v {
				case nil:
					return
				case http.ErrAbortHandler: //nolint:errorlint // panic value
					panic(v)
				}

				id := GetRequestID(r.Context())
				log.Error().
					Str("request_id", id).
					Str("path", r.URL.Path).
					Bool("stream_started", rec.wroteHeader).
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				if !rec.wroteHeader {
					p := models.NewInternalError(id, "an unexpected error occurred")
					p.Instance = r.URL.Path
					p.Write(rec)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
