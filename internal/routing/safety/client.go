// Package safety provides a client for the remote safety routing service, which
// returns the waypoints a safer route should pass through.
package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/provider/resilience"
	"github.com/routesafe/routesafe/internal/routing"
)

const (
	// ProviderName identifies this service in errors, logs and health reports.
	ProviderName = "safety-routing"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	waypointsPath = "/v1/waypoints"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the safety routing client.
type ClientConfig struct {
	// BaseURL is the service base URL (required).
	BaseURL string

	// APIKey is sent as a bearer token when set (optional).
	APIKey string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with retries disabled.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a safety routing service client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewClient creates a new safety routing client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchWaypoints asks the service for the ordered waypoints between origin and
// destination. The sequence is returned exactly as the service sent it.
func (c *Client) FetchWaypoints(ctx context.Context, origin, destination routing.Coordinate) ([]routing.Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(waypointsRequest{
		Origin:      point{Lat: origin.Lat, Lon: origin.Lon},
		Destination: point{Lat: destination.Lat, Lon: destination.Lon},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+waypointsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug().
		Float64("origin_lat", origin.Lat).
		Float64("origin_lon", origin.Lon).
		Float64("dest_lat", destination.Lat).
		Float64("dest_lon", destination.Lon).
		Msg("requesting safety waypoints")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	waypoints, err := decodeWaypoints(respBody)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("waypoint_count", len(waypoints)).
		Msg("received safety waypoints")

	return waypoints, nil
}

// transportError maps network failures, distinguishing deadline expiry.
func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "TIMEOUT",
			Message:  "safety routing service timed out",
			Err:      routing.ErrTimeout,
		}
	}

	c.logger.Debug().Err(err).Msg("safety routing transport failure")

	return &routing.Error{
		Provider: ProviderName,
		Code:     "REQUEST_FAILED",
		Message:  "failed to reach safety routing service",
		Err:      errors.Join(routing.ErrProviderUnavailable, err),
	}
}

// handleErrorResponse maps non-200 responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		code := payload.Error.Code
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", statusCode)
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     code,
			Message:  payload.Error.Message,
			Err:      routing.ErrRemote,
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "safety routing rate limit exceeded",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "safety routing service is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("safety routing service returned status %d", statusCode),
			Err:      routing.ErrRemote,
		}
	}
}

// decodeWaypoints parses a success body. An error payload inside a 200 response
// is still a remote error.
func decodeWaypoints(body []byte) ([]routing.Coordinate, error) {
	var payload waypointsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed(fmt.Sprintf("decoding response: %v", err))
	}

	if payload.Error != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     payload.Error.Code,
			Message:  payload.Error.Message,
			Err:      routing.ErrRemote,
		}
	}

	if payload.Waypoints == nil {
		return nil, malformed("response has no waypoints field")
	}

	waypoints := make([]routing.Coordinate, 0, len(payload.Waypoints))
	for i, pair := range payload.Waypoints {
		if len(pair) != 2 {
			return nil, malformed(fmt.Sprintf("waypoint %d has %d values, want [lat, lon]", i, len(pair)))
		}
		c := routing.Coordinate{Lat: pair[0], Lon: pair[1]}
		if err := c.Validate(); err != nil {
			return nil, malformed(fmt.Sprintf("waypoint %d: %v", i, err))
		}
		waypoints = append(waypoints, c)
	}

	return waypoints, nil
}

func malformed(msg string) error {
	return &routing.Error{
		Provider: ProviderName,
		Code:     "DECODE",
		Message:  msg,
		Err:      routing.ErrMalformedResponse,
	}
}
