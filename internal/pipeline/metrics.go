package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/routesafe/routesafe/internal/routing"
)

const instrumentationName = "github.com/routesafe/routesafe/internal/pipeline"

// metrics holds the pipeline instruments. A nil instrument is skipped.
type metrics struct {
	runTotal    metric.Int64Counter
	runDuration metric.Float64Histogram
	legTotal    metric.Int64Counter
	runsActive  metric.Int64UpDownCounter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(instrumentationName)

	runTotal, err := meter.Int64Counter(
		"pipeline.run.total",
		metric.WithDescription("Route assembly runs by terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"pipeline.run.duration",
		metric.WithDescription("Time from run start to terminal state in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	legTotal, err := meter.Int64Counter(
		"pipeline.leg.total",
		metric.WithDescription("Resolved legs by outcome"),
		metric.WithUnit("{leg}"),
	)
	if err != nil {
		return nil, err
	}

	runsActive, err := meter.Int64UpDownCounter(
		"pipeline.runs_active",
		metric.WithDescription("Runs waiting on network results"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		runTotal:    runTotal,
		runDuration: runDuration,
		legTotal:    legTotal,
		runsActive:  runsActive,
	}, nil
}

func (m *metrics) runStarted() {
	if m == nil {
		return
	}
	m.runsActive.Add(context.Background(), 1)
}

func (m *metrics) runEnded(s *Summary) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.runsActive.Add(ctx, -1)

	if s == nil {
		m.runTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", StateCancelled.String())))
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", s.Status.String()))
	m.runTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, s.Duration().Seconds(), attrs)
}

func (m *metrics) legResolved(r routing.LegResult) {
	if m == nil {
		return
	}

	outcome := "ok"
	attrs := []attribute.KeyValue{}
	if !r.OK() {
		outcome = "error"
		attrs = append(attrs, attribute.String("error.code", routing.ErrorCode(r.Err)))
	}
	attrs = append(attrs, attribute.String("outcome", outcome))

	m.legTotal.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
