// Package openrouteservice fetches leg paths from the OpenRouteService
// directions API.
package openrouteservice

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
	"github.com/routesafe/routesafe/pkg/polyline"
)

const (
	// ProviderName identifies ORS in errors, paths and the provider registry.
	ProviderName = "openrouteservice"

	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultTimeout = 10 * time.Second

	directionsPath = "/v2/directions/driving-car"
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the ORS client. Only APIKey is required.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// HTTPClient replaces the breaker-guarded default client.
	HTTPClient HTTPDoer

	Timeout  time.Duration
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// Client implements routing.DirectionsProvider against ORS.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates an ORS client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = cfg.Timeout
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		cfg.HTTPClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
		now:        time.Now,
	}
}

// Name returns ProviderName.
func (c *Client) Name() string {
	return ProviderName
}

// LegDirections returns the primary driving route for one leg.
func (c *Client) LegDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.Path, error) {
	if req.Origin.Validate() != nil {
		return nil, fail("INVALID_ORIGIN", "invalid origin coordinates", routing.ErrInvalidCoordinates)
	}
	if req.Destination.Validate() != nil {
		return nil, fail("INVALID_DESTINATION", "invalid destination coordinates", routing.ErrInvalidCoordinates)
	}

	body, err := json.Marshal(legBody(req.Origin, req.Destination))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+directionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	start := c.now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fail("TIMEOUT", "routing provider timed out", routing.ErrTimeout)
		}
		return nil, fail("REQUEST_FAILED", "failed to reach routing provider", errors.Join(routing.ErrProviderUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail("REQUEST_FAILED", "failed to read routing provider response", errors.Join(routing.ErrProviderUnavailable, err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, raw)
	}

	var reply directionsReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fail("DECODE", fmt.Sprintf("decoding response: %v", err), routing.ErrMalformedResponse)
	}
	path, err := c.primaryPath(&reply)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("points", len(path.Points)).
		Int("distance_m", path.DistanceMeters).
		Dur("elapsed", c.now().Sub(start)).
		Msg("leg directions received")
	return path, nil
}

// primaryPath converts the first route of a reply.
func (c *Client) primaryPath(reply *directionsReply) (*routing.Path, error) {
	if len(reply.Routes) == 0 {
		return nil, fail("NO_ROUTE", "routing provider returned no routes", routing.ErrNoRouteFound)
	}
	route := reply.Routes[0]

	decoded, err := polyline.Decode(route.Geometry)
	if err != nil || len(decoded) == 0 {
		return nil, fail("DECODE", "route geometry is empty or not a valid polyline", routing.ErrMalformedResponse)
	}
	points := make([]routing.Coordinate, len(decoded))
	for i, p := range decoded {
		points[i] = routing.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}

	bounds := routing.BoundsOf(points)
	if b := route.BBox; len(b) >= 4 {
		bounds = routing.BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
	}

	return &routing.Path{
		Points:          points,
		DistanceMeters:  int(route.Summary.Distance),
		DurationSeconds: int(route.Summary.Duration),
		Bounds:          bounds,
		Provider:        ProviderName,
		FetchedAt:       c.now(),
	}, nil
}

// statusError maps a non-200 ORS reply to a routing error. The ORS error code
// in the body wins over the HTTP status where it is more specific.
func statusError(status int, body []byte) error {
	var reply errorReply
	_ = json.Unmarshal(body, &reply)

	switch code := reply.Error.Code; {
	case status == http.StatusTooManyRequests:
		return fail("RATE_LIMIT", "API rate limit exceeded, please try again later", routing.ErrRateLimitExceeded)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fail("FORBIDDEN", "API access denied, check the ORS API key", routing.ErrRemote)
	case status == http.StatusNotFound, code == codeRouteNotFound, code == codePointNotRoutable:
		return fail("NO_ROUTE", "no route found between the given points", routing.ErrNoRouteFound)
	case status >= http.StatusInternalServerError:
		return fail(fmt.Sprintf("SERVER_%d", status), "routing provider is temporarily unavailable", routing.ErrProviderUnavailable)
	case code == codeInvalidParameter:
		return fail("BAD_REQUEST", reply.Error.Message, routing.ErrRemote)
	}

	msg := reply.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("routing provider returned status %d", status)
	}
	return fail(fmt.Sprintf("HTTP_%d", status), msg, routing.ErrRemote)
}

func fail(code, msg string, err error) *routing.Error {
	return &routing.Error{Provider: ProviderName, Code: code, Message: msg, Err: err}
}
