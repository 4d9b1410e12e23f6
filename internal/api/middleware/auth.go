package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/auth"
)

type callerKey struct{}

// TokenValidator resolves a bearer token to the caller it was issued to.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Auth requires a valid bearer token and stores the caller in the context
// for per-caller rate limiting.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, detail := bearerToken(r.Header.Get("Authorization"))
			if detail != "" {
				unauthorized(w, r, "", detail)
				return
			}

			caller, err := validator.Validate(token)
			switch {
			case errors.Is(err, auth.ErrAccessTokenExpired):
				unauthorized(w, r, "invalid_token", "access token has expired")
				return
			case errors.Is(err, auth.ErrInvalidAccessToken):
				unauthorized(w, r, "invalid_token", "invalid access token")
				return
			case err != nil:
				unauthorized(w, r, "invalid_token", "authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
		})
	}
}

// bearerToken extracts the token from an Authorization header. The scheme is
// case-insensitive. A non-empty detail explains why no token was found.
func bearerToken(header string) (token, detail string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// unauthorized writes a 401 problem with an RFC 6750 challenge. The response
// package imports middleware, so the problem is written directly.
func unauthorized(w http.ResponseWriter, r *http.Request, errCode, detail string) {
	challenge := `Bearer realm="routesafe"`
	if errCode != "" {
		challenge += `, error="` + errCode + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)

	p := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	p.Instance = r.URL.Path
	p.Write(w)
}

// GetCaller returns the authenticated caller, or "" for anonymous requests.
func GetCaller(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
