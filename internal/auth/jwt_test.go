package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-secret-key-for-testing-only"

func newTestService(issuer, audience string) *JWTService {
	return NewJWTService(JWTConfig{
		SigningKey: testKey,
		Issuer:     issuer,
		Audience:   audience,
	})
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newTestService("https://api.routesafe.dev", "routesafe-api")

	token, expiresAt, err := svc.IssueToken("client_mobile", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(AccessTokenExpiry), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "client_mobile", claims.Subject)
	assert.Equal(t, "client_mobile", claims.Caller())
	assert.Equal(t, "https://api.routesafe.dev", claims.Issuer)

	caller, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "client_mobile", caller)
}

func TestJWTService_ClientIDClaim(t *testing.T) {
	svc := newTestService("", "")

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc-account",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		ClientID: "dispatch-console",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	require.NoError(t, err)

	caller, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "dispatch-console", caller)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newTestService("https://api.routesafe.dev", "routesafe-api")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	svc := newTestService("https://api.routesafe.dev", "routesafe-api")
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := svc.IssueToken("client_mobile", time.Minute)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrAccessTokenExpired)
}

func TestJWTService_MissingExpiry(t *testing.T) {
	svc := newTestService("", "")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "forever"},
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestJWTService_WrongAlgorithm(t *testing.T) {
	svc := newTestService("", "")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "client",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestJWTService_Mismatch(t *testing.T) {
	tests := []struct {
		name     string
		issuer   *JWTService
		verifier *JWTService
	}{
		{
			name:     "signing key",
			issuer:   NewJWTService(JWTConfig{SigningKey: "key-one", Issuer: "iss", Audience: "aud"}),
			verifier: NewJWTService(JWTConfig{SigningKey: "key-two", Issuer: "iss", Audience: "aud"}),
		},
		{
			name:     "issuer",
			issuer:   newTestService("issuer-one", "aud"),
			verifier: newTestService("issuer-two", "aud"),
		},
		{
			name:     "audience",
			issuer:   newTestService("iss", "audience-one"),
			verifier: newTestService("iss", "audience-two"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := tt.issuer.IssueToken("client", time.Minute)
			require.NoError(t, err)

			_, err = tt.verifier.ValidateAccessToken(token)
			assert.ErrorIs(t, err, ErrInvalidAccessToken)
		})
	}
}
