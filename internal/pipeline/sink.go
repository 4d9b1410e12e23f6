package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/routing"
)

// Sink receives pipeline output. Calls for a Pipeline are serialised and made
// with the pipeline lock held, so implementations must not call back into the
// same Pipeline synchronously.
type Sink interface {
	// LegResolved is called once per leg, in arrival order.
	LegResolved(runID string, result routing.LegResult)

	// RunFinished is called exactly once per run that reaches a terminal state.
	RunFinished(summary Summary)
}

// WaypointSink is an optional Sink extension notified when the waypoint
// sequence for a run is known, before any leg result.
type WaypointSink interface {
	WaypointsResolved(runID string, waypoints []routing.Coordinate, legCount int)
}

// MultiSink fans every notification out to its members in order.
type MultiSink []Sink

// NewMultiSink returns a MultiSink of the non-nil sinks.
func NewMultiSink(sinks ...Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiSink) LegResolved(runID string, result routing.LegResult) {
	for _, s := range m {
		s.LegResolved(runID, result)
	}
}

func (m MultiSink) RunFinished(summary Summary) {
	for _, s := range m {
		s.RunFinished(summary)
	}
}

func (m MultiSink) WaypointsResolved(runID string, waypoints []routing.Coordinate, legCount int) {
	for _, s := range m {
		if ws, ok := s.(WaypointSink); ok {
			ws.WaypointsResolved(runID, waypoints, legCount)
		}
	}
}

type nopSink struct{}

func (nopSink) LegResolved(string, routing.LegResult) {}
func (nopSink) RunFinished(Summary)                   {}

// LogSink writes pipeline output to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) WaypointsResolved(runID string, waypoints []routing.Coordinate, legCount int) {
	s.Logger.Debug().
		Str("run_id", runID).
		Int("waypoint_count", len(waypoints)).
		Int("leg_count", legCount).
		Msg("waypoints resolved")
}

func (s LogSink) LegResolved(runID string, result routing.LegResult) {
	if result.OK() {
		s.Logger.Debug().
			Str("run_id", runID).
			Int("leg_index", result.LegIndex).
			Int("points", len(result.Path.Points)).
			Msg("leg resolved")
		return
	}

	s.Logger.Warn().
		Str("run_id", runID).
		Int("leg_index", result.LegIndex).
		Str("error_code", routing.ErrorCode(result.Err)).
		Err(result.Err).
		Msg("leg failed")
}

func (s LogSink) RunFinished(summary Summary) {
	event := s.Logger.Info()
	if summary.Status != StateComplete {
		event = s.Logger.Warn()
	}
	if summary.Err != nil {
		event = event.Err(summary.Err)
	}

	event.
		Str("run_id", summary.RunID).
		Str("status", summary.Status.String()).
		Int("leg_count", summary.LegCount).
		Ints("failed_legs", summary.FailedLegIndices).
		Dur("duration", summary.Duration()).
		Msg("route run finished")
}
