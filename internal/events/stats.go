package events

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// RunStats aggregates consumed run events.
type RunStats struct {
	mu         sync.Mutex
	byStatus   map[string]int
	legErrors  map[string]int
	routeKinds map[string]int
	totalLegs  int
	elapsedMs  int64
	runs       int
	logger     zerolog.Logger
}

// StatsSnapshot is a point-in-time copy of RunStats.
type StatsSnapshot struct {
	Runs            int            `json:"runs"`
	ByStatus        map[string]int `json:"byStatus"`
	LegErrorCodes   map[string]int `json:"legErrorCodes"`
	RoutingFailures map[string]int `json:"routingFailures"`
	MeanLegs        float64        `json:"meanLegs"`
	MeanElapsedMs   float64        `json:"meanElapsedMs"`
}

// NewRunStats creates an empty aggregator.
func NewRunStats(logger zerolog.Logger) *RunStats {
	return &RunStats{
		byStatus:   map[string]int{},
		legErrors:  map[string]int{},
		routeKinds: map[string]int{},
		logger:     logger,
	}
}

// Handle records an event. It satisfies Handler.
func (s *RunStats) Handle(_ context.Context, event RunFinishedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.byStatus[event.Status]++
	s.totalLegs += event.LegCount
	s.elapsedMs += event.ElapsedMs
	for _, le := range event.LegErrors {
		s.legErrors[le.Code]++
	}
	if event.ErrorKind != "" {
		s.routeKinds[event.ErrorKind]++
	}

	s.logger.Debug().
		Str("run_id", event.RunID).
		Str("status", event.Status).
		Int("leg_count", event.LegCount).
		Msg("recorded run event")

	return nil
}

// Snapshot returns the current aggregate.
func (s *RunStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Runs:            s.runs,
		ByStatus:        copyCounts(s.byStatus),
		LegErrorCodes:   copyCounts(s.legErrors),
		RoutingFailures: copyCounts(s.routeKinds),
	}
	if s.runs > 0 {
		snap.MeanLegs = float64(s.totalLegs) / float64(s.runs)
		snap.MeanElapsedMs = float64(s.elapsedMs) / float64(s.runs)
	}
	return snap
}

// Log writes the snapshot at info level.
func (s *RunStats) Log() {
	snap := s.Snapshot()

	statuses := make([]string, 0, len(snap.ByStatus))
	for status := range snap.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	dict := zerolog.Dict()
	for _, status := range statuses {
		dict = dict.Int(status, snap.ByStatus[status])
	}

	s.logger.Info().
		Int("runs", snap.Runs).
		Dict("by_status", dict).
		Float64("mean_legs", snap.MeanLegs).
		Float64("mean_elapsed_ms", snap.MeanElapsedMs).
		Msg("run statistics")
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
