package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routesafe/routesafe/internal/api/middleware"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "missing", incoming: "", keep: false},
		{name: "client supplied", incoming: "mobile-7f3a:42", keep: true},
		{name: "whitespace", incoming: "has spaces", keep: false},
		{name: "header injection", incoming: "id\r\nX-Evil: 1", keep: false},
		{name: "too long", incoming: strings.Repeat("r", 129), keep: false},
		{name: "max length", incoming: strings.Repeat("r", 128), keep: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = middleware.GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/v1/routes:assemble", http.NoBody)
			if tt.incoming != "" {
				req.Header["X-Request-Id"] = []string{tt.incoming}
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			echoed := rec.Header().Get("X-Request-Id")
			assert.Equal(t, seen, echoed, "context and header must agree")
			if tt.keep {
				assert.Equal(t, tt.incoming, echoed)
			} else {
				assert.True(t, strings.HasPrefix(echoed, "req_"), echoed)
				assert.Len(t, echoed, len("req_")+22)
			}
		})
	}
}

func TestRequestID_GeneratedIDsDiffer(t *testing.T) {
	handler := middleware.RequestID(okHandler())

	seen := make(map[string]struct{}, 50)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))
		id := rec.Header().Get("X-Request-Id")
		_, dup := seen[id]
		assert.False(t, dup, "duplicate request ID %s", id)
		seen[id] = struct{}{}
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}
