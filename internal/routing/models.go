// Package routing provides the coordinate and leg model shared by the route
// assembly pipeline, and the interfaces of the external routing services.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the provider could not be reached, answered with a
	// server error, or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrTimeout indicates the provider did not answer before the request deadline.
	ErrTimeout = errors.New("routing provider timed out")
	// ErrMalformedResponse indicates the provider response could not be decoded.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrRemote indicates the provider answered with its own error payload.
	ErrRemote = errors.New("provider reported an error")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// WaypointSource returns the ordered safety waypoints for an origin and destination.
type WaypointSource interface {
	FetchWaypoints(ctx context.Context, origin, destination Coordinate) ([]Coordinate, error)
}

// DirectionsProvider computes a single driving route for one leg.
type DirectionsProvider interface {
	// LegDirections retrieves the route between the request's two points.
	LegDirections(ctx context.Context, req DirectionsRequest) (*Path, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// TravelMode is the mode of transport requested from a directions provider.
type TravelMode string

// ModeDriving requests an automobile route.
const ModeDriving TravelMode = "driving"

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate is within valid ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// Point converts the coordinate to an orb point ([lon, lat]).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Leg is one consecutive pair of waypoints.
type Leg struct {
	Index int
	Start Coordinate
	End   Coordinate
}

// DeriveLegs pairs consecutive waypoints into legs. Sequences shorter than two
// waypoints yield no legs.
func DeriveLegs(waypoints []Coordinate) []Leg {
	if len(waypoints) < 2 {
		return nil
	}

	legs := make([]Leg, 0, len(waypoints)-1)
	for i := 0; i < len(waypoints)-1; i++ {
		legs = append(legs, Leg{
			Index: i,
			Start: waypoints[i],
			End:   waypoints[i+1],
		})
	}
	return legs
}

// DirectionsRequest is the request for a single leg's directions.
type DirectionsRequest struct {
	Origin       Coordinate
	Destination  Coordinate
	Mode         TravelMode
	Alternatives bool
}

// Path is the driving geometry returned for one leg.
type Path struct {
	Points          []Coordinate
	Bounds          BoundingBox
	DistanceMeters  int
	DurationSeconds int
	Provider        string
	FetchedAt       time.Time
}

// BoundingBox represents a geographic bounding box.
type BoundingBox struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// IsZero reports whether the box is unset.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// BoundsOf computes the bounding box of the given points.
func BoundsOf(points []Coordinate) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}

	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, p.Point())
	}
	bound := ls.Bound()

	return BoundingBox{
		MinLon: bound.Min.Lon(),
		MinLat: bound.Min.Lat(),
		MaxLon: bound.Max.Lon(),
		MaxLat: bound.Max.Lat(),
	}
}

// LegResult is the outcome of fetching directions for one leg. Exactly one of
// Path and Err is set.
type LegResult struct {
	LegIndex int
	Path     *Path
	Err      error
}

// OK reports whether the leg resolved to a path.
func (r LegResult) OK() bool {
	return r.Err == nil && r.Path != nil
}

// Error provides detailed error information from a routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) ||
		errors.Is(e.Err, ErrRateLimitExceeded) ||
		errors.Is(e.Err, ErrTimeout)
}

// LegError records that directions for a single leg could not be fetched.
type LegError struct {
	LegIndex int
	Err      error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("leg %d: %v", e.LegIndex, e.Err)
}

func (e *LegError) Unwrap() error {
	return e.Err
}

// ErrorCode returns a stable short code for an error produced by this package.
func ErrorCode(err error) string {
	var rErr *Error
	if errors.As(err, &rErr) && rErr.Code != "" {
		return rErr.Code
	}

	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, ErrNoRouteFound):
		return "NO_ROUTE"
	case errors.Is(err, ErrRateLimitExceeded):
		return "RATE_LIMIT"
	case errors.Is(err, ErrMalformedResponse):
		return "DECODE"
	case errors.Is(err, ErrRemote):
		return "REMOTE"
	case errors.Is(err, ErrInvalidCoordinates):
		return "INVALID_COORDINATES"
	default:
		return "UNAVAILABLE"
	}
}
