// Package googlemaps implements leg directions on top of the Google Maps
// Directions API.
package googlemaps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/routesafe/routesafe/internal/provider/resilience"
	"github.com/routesafe/routesafe/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "googlemaps"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("googlemaps: api key is required")

// directionsAPI is the subset of *maps.Client used by the provider.
type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// Config holds configuration for the Google Maps provider.
type Config struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL overrides the Maps API endpoint (optional).
	BaseURL string

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Provider fetches driving directions for a single leg.
type Provider struct {
	api    directionsAPI
	logger zerolog.Logger
	now    func() time.Time
}

// NewProvider creates a Google Maps provider. Requests go through a resilient
// transport with retries disabled.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	clientCfg := resilience.DefaultClientConfig(ProviderName)
	clientCfg.Timeout = timeout
	clientCfg.Registry = cfg.Registry
	clientCfg.Logger = cfg.Logger
	transport := resilience.NewClient(clientCfg).RoundTripper()

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(&http.Client{Transport: transport, Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}

	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return newProvider(client, cfg.Logger), nil
}

func newProvider(api directionsAPI, logger zerolog.Logger) *Provider {
	return &Provider{
		api:    api,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// LegDirections requests a single driving route between the leg endpoints and
// returns its overview geometry.
func (p *Provider) LegDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.Path, error) {
	dr := &maps.DirectionsRequest{
		Origin:       latLng(req.Origin),
		Destination:  latLng(req.Destination),
		Mode:         maps.TravelModeDriving,
		Alternatives: false,
	}

	p.logger.Debug().
		Str("origin", dr.Origin).
		Str("destination", dr.Destination).
		Msg("requesting directions from google maps")

	routes, _, err := p.api.Directions(ctx, dr)
	if err != nil {
		return nil, mapError(err)
	}
	if len(routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      routing.ErrNoRouteFound,
		}
	}

	return p.toPath(&routes[0])
}

func (p *Provider) toPath(route *maps.Route) (*routing.Path, error) {
	decoded, err := route.OverviewPolyline.Decode()
	if err != nil || len(decoded) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "DECODE",
			Message:  "route overview polyline is empty or invalid",
			Err:      routing.ErrMalformedResponse,
		}
	}

	points := make([]routing.Coordinate, len(decoded))
	for i, ll := range decoded {
		points[i] = routing.Coordinate{Lat: ll.Lat, Lon: ll.Lng}
	}

	path := &routing.Path{
		Points:    points,
		Provider:  ProviderName,
		FetchedAt: p.now(),
	}

	for _, leg := range route.Legs {
		if leg == nil {
			continue
		}
		path.DistanceMeters += leg.Distance.Meters
		path.DurationSeconds += int(leg.Duration / time.Second)
	}

	ne, sw := route.Bounds.NorthEast, route.Bounds.SouthWest
	if ne != (maps.LatLng{}) || sw != (maps.LatLng{}) {
		path.Bounds = routing.BoundingBox{
			MinLon: sw.Lng,
			MinLat: sw.Lat,
			MaxLon: ne.Lng,
			MaxLat: ne.Lat,
		}
	} else {
		path.Bounds = routing.BoundsOf(points)
	}

	p.logger.Debug().
		Int("point_count", len(points)).
		Int("distance_m", path.DistanceMeters).
		Msg("received directions from google maps")

	return path, nil
}

// mapError converts Maps client errors to domain errors. The client reports
// API status codes as "maps: STATUS - message".
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "TIMEOUT",
			Message:  "routing provider timed out",
			Err:      routing.ErrTimeout,
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "DECODE",
			Message:  err.Error(),
			Err:      routing.ErrMalformedResponse,
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "ZERO_RESULTS"), strings.Contains(msg, "NOT_FOUND"):
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      routing.ErrNoRouteFound,
		}
	case strings.Contains(msg, "OVER_QUERY_LIMIT"), strings.Contains(msg, "OVER_DAILY_LIMIT"):
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case strings.Contains(msg, "UNKNOWN_ERROR"):
		return &routing.Error{
			Provider: ProviderName,
			Code:     "UNKNOWN_ERROR",
			Message:  msg,
			Err:      routing.ErrProviderUnavailable,
		}
	case strings.HasPrefix(msg, "maps: "):
		return &routing.Error{
			Provider: ProviderName,
			Code:     statusCode(msg),
			Message:  msg,
			Err:      routing.ErrRemote,
		}
	default:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      errors.Join(routing.ErrProviderUnavailable, err),
		}
	}
}

// statusCode extracts STATUS from "maps: STATUS - message".
func statusCode(msg string) string {
	rest := strings.TrimPrefix(msg, "maps: ")
	if i := strings.Index(rest, " "); i > 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "REMOTE"
	}
	return rest
}

func latLng(c routing.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}
