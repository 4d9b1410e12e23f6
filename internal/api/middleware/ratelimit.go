package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/routesafe/routesafe/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// AssembleRateLimit applies to route assembly. Each request fans out to
	// one safety call plus one directions call per leg.
	AssembleRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to everything else under /v1.
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP limits requests per client IP.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg)),
	)
}

// RateLimitByCaller limits requests per authenticated caller, falling back to
// the client IP. Must run after Auth to see the caller.
func RateLimitByCaller(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByCallerOrIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg)),
	)
}

func keyByCallerOrIP(r *http.Request) (string, error) {
	if caller := GetCaller(r.Context()); caller != "" {
		return "caller:" + caller, nil
	}
	return httprate.KeyByRealIP(r)
}

func limitExceededHandler(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		// httprate does not expose the reset time; a full window is the upper bound.
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
