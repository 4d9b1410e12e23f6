package safety_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routesafe/routesafe/internal/provider/resilience"
	"github.com/routesafe/routesafe/internal/routing"
	"github.com/routesafe/routesafe/internal/routing/safety"
)

var (
	stanford = routing.Coordinate{Lat: 37.4268, Lon: -122.1704}
	berkeley = routing.Coordinate{Lat: 37.8719, Lon: -122.2585}
	embarcad = routing.Coordinate{Lat: 37.7947, Lon: -122.3970}
)

func newTestClient(serverURL string, httpClient safety.HTTPDoer) *safety.Client {
	return safety.NewClient(safety.ClientConfig{
		BaseURL:    serverURL,
		APIKey:     "test-key",
		HTTPClient: httpClient,
		Timeout:    time.Second,
		Logger:     zerolog.Nop(),
	})
}

func TestClient_FetchWaypoints_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/waypoints", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 37.4268, body["origin"]["lat"], 1e-9)
		assert.InDelta(t, -122.1704, body["origin"]["lon"], 1e-9)
		assert.InDelta(t, 37.7947, body["destination"]["lat"], 1e-9)
		assert.InDelta(t, -122.3970, body["destination"]["lon"], 1e-9)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"waypoints":[[37.4268,-122.1704],[37.8719,-122.2585],[37.7947,-122.3970]]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	waypoints, err := client.FetchWaypoints(context.Background(), stanford, embarcad)
	require.NoError(t, err)
	assert.Equal(t, []routing.Coordinate{stanford, berkeley, embarcad}, waypoints)
}

func TestClient_FetchWaypoints_PreservesDegenerateSequence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"waypoints":[[37.4268,-122.1704],[37.4268,-122.1704],[37.7947,-122.3970]]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	waypoints, err := client.FetchWaypoints(context.Background(), stanford, embarcad)
	require.NoError(t, err)
	assert.Equal(t, []routing.Coordinate{stanford, stanford, embarcad}, waypoints)
}

func TestClient_FetchWaypoints_EmptySequence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"waypoints":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	waypoints, err := client.FetchWaypoints(context.Background(), stanford, embarcad)
	require.NoError(t, err)
	assert.Empty(t, waypoints)
}

func TestClient_FetchWaypoints_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		wantCode string
	}{
		{
			name:     "malformed json",
			status:   http.StatusOK,
			body:     `{"waypoints": [`,
			wantErr:  routing.ErrMalformedResponse,
			wantCode: "DECODE",
		},
		{
			name:     "missing waypoints field",
			status:   http.StatusOK,
			body:     `{}`,
			wantErr:  routing.ErrMalformedResponse,
			wantCode: "DECODE",
		},
		{
			name:     "pair with wrong arity",
			status:   http.StatusOK,
			body:     `{"waypoints":[[37.4268,-122.1704,0]]}`,
			wantErr:  routing.ErrMalformedResponse,
			wantCode: "DECODE",
		},
		{
			name:     "out of range coordinate",
			status:   http.StatusOK,
			body:     `{"waypoints":[[137.4268,-122.1704],[37.7947,-122.3970]]}`,
			wantErr:  routing.ErrMalformedResponse,
			wantCode: "DECODE",
		},
		{
			name:     "error payload with 200",
			status:   http.StatusOK,
			body:     `{"error":{"code":"NO_SAFE_PATH","message":"no safe path"}}`,
			wantErr:  routing.ErrRemote,
			wantCode: "NO_SAFE_PATH",
		},
		{
			name:     "error payload with 422",
			status:   http.StatusUnprocessableEntity,
			body:     `{"error":{"code":"OUT_OF_AREA","message":"destination outside coverage"}}`,
			wantErr:  routing.ErrRemote,
			wantCode: "OUT_OF_AREA",
		},
		{
			name:     "server error without payload",
			status:   http.StatusBadGateway,
			body:     `bad gateway`,
			wantErr:  routing.ErrProviderUnavailable,
			wantCode: "SERVER_502",
		},
		{
			name:     "rate limited without payload",
			status:   http.StatusTooManyRequests,
			body:     ``,
			wantErr:  routing.ErrRateLimitExceeded,
			wantCode: "RATE_LIMIT",
		},
		{
			name:     "client error without payload",
			status:   http.StatusNotFound,
			body:     `not found`,
			wantErr:  routing.ErrRemote,
			wantCode: "HTTP_404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL, server.Client())

			waypoints, err := client.FetchWaypoints(context.Background(), stanford, embarcad)
			require.Error(t, err)
			assert.Nil(t, waypoints)
			assert.ErrorIs(t, err, tt.wantErr)

			var routingErr *routing.Error
			require.True(t, errors.As(err, &routingErr))
			assert.Equal(t, safety.ProviderName, routingErr.Provider)
			assert.Equal(t, tt.wantCode, routingErr.Code)
		})
	}
}

func TestClient_FetchWaypoints_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url, http.DefaultClient)

	_, err := client.FetchWaypoints(context.Background(), stanford, embarcad)
	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
}

func TestClient_FetchWaypoints_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := safety.NewClient(safety.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Timeout:    30 * time.Millisecond,
		Logger:     zerolog.Nop(),
	})

	_, err := client.FetchWaypoints(context.Background(), stanford, embarcad)
	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrTimeout)
}

func TestClient_FetchWaypoints_SingleRoundTrip(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()

	// Default HTTP client: resilient, retries disabled.
	client := safety.NewClient(safety.ClientConfig{
		BaseURL:  server.URL,
		Timeout:  time.Second,
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	_, err := client.FetchWaypoints(context.Background(), stanford, embarcad)
	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
	assert.Equal(t, int32(1), attempts.Load(), "waypoint fetch must not retry")

	health := registry.Health(safety.ProviderName)
	require.NotNil(t, health)
	assert.NotNil(t, health.LastFailureAt)
}
