// Package resilience wraps calls to the upstream routing services with circuit
// breakers and tracks their health. Calls are never retried.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/routesafe/routesafe/internal/provider/resilience"

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs, metrics and the registry.
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32

	// Interval clears the counts periodically while closed. Zero never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// ReadyToTrip decides when to open. Nil uses DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called after the transition has been logged and counted.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)

	Logger zerolog.Logger
}

// DefaultCircuitBreakerConfig returns the configuration used for routing providers.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens the breaker after five consecutive failures, or
// once at least ten requests have been seen and half of them failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= 5 {
		return true
	}
	if counts.Requests < 10 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// IsCallerCancellation reports whether err comes from the caller abandoning
// the call, e.g. a discarded run. Such calls say nothing about provider health
// and are left out of breaker and registry accounting.
func IsCallerCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a circuit breaker that logs and counts its state
// transitions.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultReadyToTrip
	}

	transitions, err := otel.Meter(instrumentationName).Int64Counter(
		"routing.circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create circuit transition counter")
	}

	logger := cfg.Logger
	onStateChange := cfg.OnStateChange

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: readyToTrip,
		IsExcluded:  IsCallerCancellation,
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")

			if transitions != nil {
				transitions.Add(context.Background(), 1, metric.WithAttributes(
					attribute.String("provider", name),
					attribute.String("state", to.String()),
				))
			}
			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	})
}
