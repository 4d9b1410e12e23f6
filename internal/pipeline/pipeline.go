// Package pipeline assembles a multi-leg driving route from safety waypoints.
//
// A Pipeline owns at most one active run. Starting a run asks the safety
// routing service for waypoints, derives one leg per consecutive waypoint pair,
// fetches directions for every leg concurrently and delivers each result to the
// Sink as it arrives. Once every leg has resolved the run moves to exactly one
// terminal state and the Sink is told once. Starting again, or cancelling,
// discards the active run; nothing it produces afterwards reaches the Sink.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/routesafe/routesafe/internal/routing"
)

// LegFetcher resolves a single leg. Failures are reported in the result.
type LegFetcher interface {
	Fetch(ctx context.Context, leg routing.Leg) routing.LegResult
}

// Config holds the collaborators of a Pipeline.
type Config struct {
	// Waypoints is the safety routing service client (required).
	Waypoints routing.WaypointSource

	// Legs fetches directions for a leg (required).
	Legs LegFetcher

	// Sink receives leg results and terminal summaries (optional).
	Sink Sink

	// LegConcurrency caps in-flight leg requests per run. Zero means no cap.
	LegConcurrency int

	Logger zerolog.Logger
}

// Pipeline runs route assemblies one at a time.
type Pipeline struct {
	waypoints      routing.WaypointSource
	legs           LegFetcher
	sink           Sink
	legConcurrency int
	logger         zerolog.Logger
	tracer         trace.Tracer
	metrics        *metrics
	now            func() time.Time

	mu     sync.Mutex
	active *Run
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}

	m, err := newMetrics()
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create pipeline metrics")
	}

	return &Pipeline{
		waypoints:      cfg.Waypoints,
		legs:           cfg.Legs,
		sink:           sink,
		legConcurrency: cfg.LegConcurrency,
		logger:         cfg.Logger,
		tracer:         otel.Tracer(instrumentationName),
		metrics:        m,
		now:            time.Now,
	}
}

// Run is a read-only handle on one route assembly.
type Run struct {
	id          string
	origin      routing.Coordinate
	destination routing.Coordinate
	startedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	span   trace.Span
	sem    chan struct{}
	done   chan struct{}

	// Guarded by mu, the owning Pipeline's lock.
	mu        *sync.Mutex
	state     State
	waypoints []routing.Coordinate
	legs      []routing.Leg
	results   map[int]routing.LegResult
	pending   map[int]struct{}
	summary   *Summary
}

// ID returns the run identifier passed to the Sink.
func (r *Run) ID() string {
	return r.id
}

// State returns the run's current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed when the run reaches a terminal state or is discarded.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Summary returns the terminal summary. The second value is false until the
// run is terminal, and stays false for a discarded run.
func (r *Run) Summary() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return Summary{}, false
	}
	return *r.summary, true
}

// Start discards the active run, if any, and begins assembling a route from
// origin to destination. Invalid coordinates are rejected before anything else
// happens, leaving the active run untouched.
//
// Cancelling ctx discards the run the same way Cancel does.
func (p *Pipeline) Start(ctx context.Context, origin, destination routing.Coordinate) (*Run, error) {
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if err := destination.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	id := uuid.NewString()
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", id),
			attribute.Float64("origin.lat", origin.Lat),
			attribute.Float64("origin.lon", origin.Lon),
			attribute.Float64("destination.lat", destination.Lat),
			attribute.Float64("destination.lon", destination.Lon),
		),
	)

	// Parent cancellation is routed through discard, not the run context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	run := &Run{
		id:          id,
		origin:      origin,
		destination: destination,
		startedAt:   p.now(),
		ctx:         runCtx,
		cancel:      cancel,
		span:        span,
		done:        make(chan struct{}),
		mu:          &p.mu,
		state:       StateAwaitingWaypoints,
	}
	if p.legConcurrency > 0 {
		run.sem = make(chan struct{}, p.legConcurrency)
	}

	p.mu.Lock()
	if p.active != nil {
		p.discardLocked(p.active, "superseded")
	}
	p.active = run
	p.metrics.runStarted()
	run.stop = context.AfterFunc(ctx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.active == run && run.state.InFlight() {
			p.discardLocked(run, "context done")
			p.active = nil
		}
	})
	p.mu.Unlock()

	p.logger.Info().
		Str("run_id", id).
		Float64("origin_lat", origin.Lat).
		Float64("origin_lon", origin.Lon).
		Float64("dest_lat", destination.Lat).
		Float64("dest_lon", destination.Lon).
		Msg("route run started")

	go p.fetchWaypoints(run)

	return run, nil
}

// Cancel discards the active run and returns the pipeline to idle. Results that
// arrive for the discarded run are dropped.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return
	}
	p.discardLocked(p.active, "cancelled")
	p.active = nil
}

// State returns the state of the active run, or StateIdle when there is none.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return StateIdle
	}
	return p.active.state
}

// Active returns the handle of the active run, or nil.
func (p *Pipeline) Active() *Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pipeline) fetchWaypoints(run *Run) {
	waypoints, err := p.waypoints.FetchWaypoints(run.ctx, run.origin, run.destination)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != run || run.state != StateAwaitingWaypoints {
		p.logger.Debug().Str("run_id", run.id).Msg("dropping waypoints for discarded run")
		return
	}

	if err != nil {
		p.finishLocked(run, StateTotalFailure, &RoutingError{Err: err})
		return
	}

	run.waypoints = waypoints
	run.legs = routing.DeriveLegs(waypoints)
	run.span.SetAttributes(
		attribute.Int("waypoint.count", len(waypoints)),
		attribute.Int("leg.count", len(run.legs)),
	)

	if ws, ok := p.sink.(WaypointSink); ok {
		ws.WaypointsResolved(run.id, waypoints, len(run.legs))
	}

	if len(run.legs) == 0 {
		p.finishLocked(run, StateComplete, nil)
		return
	}

	run.state = StateAwaitingLegs
	run.results = make(map[int]routing.LegResult, len(run.legs))
	run.pending = make(map[int]struct{}, len(run.legs))
	for _, leg := range run.legs {
		run.pending[leg.Index] = struct{}{}
	}

	for _, leg := range run.legs {
		go p.fetchLeg(run, leg)
	}
}

func (p *Pipeline) fetchLeg(run *Run, leg routing.Leg) {
	if run.sem != nil {
		select {
		case run.sem <- struct{}{}:
			defer func() { <-run.sem }()
		case <-run.ctx.Done():
			return
		}
	}

	result := p.legs.Fetch(run.ctx, leg)
	result.LegIndex = leg.Index
	p.deliver(run, result)
}

// deliver records a leg result and forwards it to the sink. The last pending
// result drives the terminal transition in the same critical section.
func (p *Pipeline) deliver(run *Run, result routing.LegResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != run || run.state != StateAwaitingLegs {
		p.logger.Debug().
			Str("run_id", run.id).
			Int("leg_index", result.LegIndex).
			Msg("dropping leg result for discarded run")
		return
	}
	if _, ok := run.pending[result.LegIndex]; !ok {
		p.logger.Warn().
			Str("run_id", run.id).
			Int("leg_index", result.LegIndex).
			Msg("dropping duplicate leg result")
		return
	}

	run.results[result.LegIndex] = result
	delete(run.pending, result.LegIndex)

	p.metrics.legResolved(result)
	p.sink.LegResolved(run.id, result)

	if len(run.pending) > 0 {
		return
	}

	failed := 0
	for _, r := range run.results {
		if !r.OK() {
			failed++
		}
	}

	switch {
	case failed == 0:
		p.finishLocked(run, StateComplete, nil)
	case failed == len(run.legs):
		p.finishLocked(run, StateTotalFailure, nil)
	default:
		p.finishLocked(run, StatePartialFailure, nil)
	}
}

// finishLocked moves run to a terminal state and notifies the sink. Callers hold
// p.mu and have checked that run is active and in flight.
func (p *Pipeline) finishLocked(run *Run, status State, err error) {
	run.state = status

	summary := Summary{
		RunID:       run.id,
		Status:      status,
		Origin:      run.origin,
		Destination: run.destination,
		Waypoints:   run.waypoints,
		LegCount:    len(run.legs),
		Err:         err,
		StartedAt:   run.startedAt,
		FinishedAt:  p.now(),
	}

	summary.Results = make([]routing.LegResult, 0, len(run.results))
	for _, leg := range run.legs {
		r := run.results[leg.Index]
		summary.Results = append(summary.Results, r)
		if !r.OK() {
			summary.FailedLegIndices = append(summary.FailedLegIndices, leg.Index)
		}
	}
	sort.Ints(summary.FailedLegIndices)

	run.summary = &summary
	run.cancel()
	if run.stop != nil {
		run.stop()
	}

	p.metrics.runEnded(&summary)

	if err != nil {
		run.span.RecordError(err)
	}
	if status != StateComplete {
		run.span.SetStatus(codes.Error, status.String())
	}
	run.span.SetAttributes(attribute.String("run.status", status.String()))
	run.span.End()

	p.sink.RunFinished(summary)
	close(run.done)
}

// discardLocked detaches an in-flight run. Terminal runs keep their state.
func (p *Pipeline) discardLocked(run *Run, reason string) {
	if !run.state.InFlight() {
		return
	}

	run.state = StateCancelled
	run.cancel()
	if run.stop != nil {
		run.stop()
	}

	p.metrics.runEnded(nil)

	run.span.SetAttributes(attribute.String("run.status", StateCancelled.String()))
	run.span.End()
	close(run.done)

	p.logger.Info().
		Str("run_id", run.id).
		Str("reason", reason).
		Msg("route run discarded")
}
