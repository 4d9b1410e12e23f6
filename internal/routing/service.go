package routing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/routesafe/routesafe/internal/routing"

// DefaultLegTimeout bounds a single leg's directions request.
const DefaultLegTimeout = 15 * time.Second

// LegFetcherConfig holds configuration for the leg direction fetcher.
type LegFetcherConfig struct {
	// Provider is the directions provider queried for every leg.
	Provider DirectionsProvider

	// Logger for fetcher operations.
	Logger zerolog.Logger

	// Timeout is the per-leg request timeout (default: 15 seconds).
	Timeout time.Duration
}

// LegFetcher fetches driving directions for individual legs. It holds no
// per-leg state and is safe for concurrent use.
type LegFetcher struct {
	provider DirectionsProvider
	logger   zerolog.Logger
	timeout  time.Duration
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// NewLegFetcher creates a new leg direction fetcher.
func NewLegFetcher(cfg LegFetcherConfig) *LegFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultLegTimeout
	}

	duration, err := otel.Meter(instrumentationName).Float64Histogram(
		"routing.leg.duration",
		metric.WithDescription("Duration of leg directions requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create leg duration histogram")
	}

	return &LegFetcher{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		timeout:  timeout,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
	}
}

// ProviderName returns the name of the underlying provider.
func (f *LegFetcher) ProviderName() string {
	return f.provider.Name()
}

// Fetch requests a single, non-alternate driving route for the leg. Failures are
// reported through the result rather than returned.
func (f *LegFetcher) Fetch(ctx context.Context, leg Leg) LegResult {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ctx, span := f.tracer.Start(ctx, "routing.leg_directions",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("leg.index", leg.Index),
			attribute.String("provider.name", f.provider.Name()),
		),
	)
	defer span.End()

	start := time.Now()
	path, err := f.provider.LegDirections(ctx, DirectionsRequest{
		Origin:       leg.Start,
		Destination:  leg.End,
		Mode:         ModeDriving,
		Alternatives: false,
	})
	elapsed := time.Since(start)

	if err == nil && (path == nil || len(path.Points) == 0) {
		err = &Error{
			Provider: f.provider.Name(),
			Code:     "NO_ROUTE",
			Message:  "provider returned no geometry",
			Err:      ErrNoRouteFound,
		}
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = &Error{
			Provider: f.provider.Name(),
			Code:     "TIMEOUT",
			Message:  "directions request timed out",
			Err:      ErrTimeout,
		}
	}

	f.record(ctx, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))

		f.logger.Warn().Err(err).
			Int("leg_index", leg.Index).
			Float64("start_lat", leg.Start.Lat).
			Float64("start_lon", leg.Start.Lon).
			Float64("end_lat", leg.End.Lat).
			Float64("end_lon", leg.End.Lon).
			Str("provider", f.provider.Name()).
			Dur("duration", elapsed).
			Msg("leg directions failed")

		return LegResult{
			LegIndex: leg.Index,
			Err:      &LegError{LegIndex: leg.Index, Err: err},
		}
	}

	if path.Bounds.IsZero() {
		path.Bounds = BoundsOf(path.Points)
	}

	span.SetAttributes(attribute.Int("path.points", len(path.Points)))

	f.logger.Debug().
		Int("leg_index", leg.Index).
		Int("points", len(path.Points)).
		Str("provider", f.provider.Name()).
		Dur("duration", elapsed).
		Msg("leg directions resolved")

	return LegResult{LegIndex: leg.Index, Path: path}
}

func (f *LegFetcher) record(ctx context.Context, elapsed time.Duration, err error) {
	if f.duration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider.name", f.provider.Name()),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true), attribute.String("error.code", ErrorCode(err)))
	}

	// The request context may already be done; metrics use a detached context.
	f.duration.Record(context.WithoutCancel(ctx), elapsed.Seconds(), metric.WithAttributes(attrs...))
}
