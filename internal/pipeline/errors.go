package pipeline

import (
	"context"
	"errors"

	"github.com/routesafe/routesafe/internal/routing"
)

// ErrorKind classifies a routing failure.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindDecode  ErrorKind = "decode"
	KindRemote  ErrorKind = "remote"
)

// RoutingError reports that the safety waypoint request failed. It is fatal to
// the run: no leg requests are issued.
type RoutingError struct {
	Err error
}

func (e *RoutingError) Error() string {
	return "safety routing failed: " + e.Err.Error()
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Kind classifies the underlying failure.
func (e *RoutingError) Kind() ErrorKind {
	switch {
	case errors.Is(e.Err, routing.ErrTimeout), errors.Is(e.Err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(e.Err, routing.ErrMalformedResponse):
		return KindDecode
	case errors.Is(e.Err, routing.ErrRemote),
		errors.Is(e.Err, routing.ErrRateLimitExceeded),
		errors.Is(e.Err, routing.ErrNoRouteFound),
		errors.Is(e.Err, routing.ErrInvalidCoordinates):
		return KindRemote
	default:
		return KindNetwork
	}
}
