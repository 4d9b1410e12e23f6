package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/routing"
	"github.com/routesafe/routesafe/pkg/polyline"
)

type streamEvent struct {
	name string
	data interface{}
}

// streamSink converts pipeline notifications to stream events. The pipeline
// calls it under its lock, so it only queues; the request goroutine writes.
type streamSink struct {
	origin      routing.Coordinate
	destination routing.Coordinate
	logger      zerolog.Logger

	mu       sync.Mutex
	queue    []streamEvent
	finished bool
	notify   chan struct{}
}

func newStreamSink(origin, destination routing.Coordinate, logger zerolog.Logger) *streamSink {
	return &streamSink{
		origin:      origin,
		destination: destination,
		logger:      logger,
		notify:      make(chan struct{}, 1),
	}
}

func (s *streamSink) push(ev streamEvent, final bool) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.finished = final
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// drain returns the queued events and whether the terminal event is among them.
func (s *streamSink) drain() ([]streamEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.queue
	s.queue = nil
	return events, s.finished
}

func (s *streamSink) runEvent(runID string, state pipeline.State) models.RunEvent {
	return models.RunEvent{
		RunID:       runID,
		Status:      state.String(),
		Origin:      models.PointFrom(s.origin),
		Destination: models.PointFrom(s.destination),
	}
}

func (s *streamSink) WaypointsResolved(runID string, waypoints []routing.Coordinate, legCount int) {
	ev := s.runEvent(runID, pipeline.StateAwaitingLegs)
	ev.Waypoints = make([]models.Point, len(waypoints))
	for i, wp := range waypoints {
		ev.Waypoints[i] = models.PointFrom(wp)
	}
	ev.LegCount = &legCount
	s.push(streamEvent{name: models.EventRun, data: ev}, false)
}

func (s *streamSink) LegResolved(runID string, result routing.LegResult) {
	s.push(streamEvent{name: models.EventLeg, data: legEvent(runID, result)}, false)
}

func (s *streamSink) RunFinished(summary pipeline.Summary) {
	ev, err := doneEvent(summary)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", summary.RunID).Msg("failed to render route geometry")
	}
	s.push(streamEvent{name: models.EventDone, data: ev}, true)
}

func legEvent(runID string, result routing.LegResult) models.LegEvent {
	ev := models.LegEvent{RunID: runID, LegIndex: result.LegIndex}
	if !result.OK() {
		ev.Status = models.LegStatusFailed
		ev.ErrorCode = routing.ErrorCode(result.Err)
		if result.Err != nil {
			ev.Error = result.Err.Error()
		}
		return ev
	}

	path := result.Path
	points := make([]polyline.Coordinate, len(path.Points))
	for i, p := range path.Points {
		points[i] = polyline.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}
	bounds := path.Bounds
	if bounds.IsZero() {
		bounds = routing.BoundsOf(path.Points)
	}

	ev.Status = models.LegStatusOK
	ev.Polyline = polyline.Encode(points)
	ev.Bounds = &bounds
	ev.DistanceMeters = path.DistanceMeters
	ev.DurationSeconds = path.DurationSeconds
	ev.Provider = path.Provider
	return ev
}

func doneEvent(summary pipeline.Summary) (models.DoneEvent, error) {
	route := summary.Route()

	ev := models.DoneEvent{
		RunID:            summary.RunID,
		Status:           summary.Status.String(),
		LegCount:         summary.LegCount,
		FailedLegIndices: summary.FailedLegIndices,
		DistanceMeters:   route.DistanceMeters,
		DurationSeconds:  route.DurationSeconds,
		ElapsedMs:        summary.Duration().Milliseconds(),
	}
	if ev.FailedLegIndices == nil {
		ev.FailedLegIndices = []int{}
	}
	if !route.Bounds.IsZero() {
		ev.Bounds = &route.Bounds
	}

	if summary.Err != nil {
		ev.Error = summary.Err.Error()
		ev.ErrorCode = routing.ErrorCode(summary.Err)
		var rErr *pipeline.RoutingError
		if errors.As(summary.Err, &rErr) {
			ev.ErrorKind = string(rErr.Kind())
		}
		return ev, nil
	}

	geometry, err := routeFeatureCollection(summary)
	if err != nil {
		return ev, err
	}
	ev.Route = geometry
	return ev, nil
}

// writeEvent writes one Server-Sent Event.
func writeEvent(w io.Writer, name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

// writeComment writes an SSE comment line, used as a keep-alive.
func writeComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
