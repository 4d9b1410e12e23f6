// Package events publishes and consumes route run notifications over Pub/Sub.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/routing"
)

// TypeRunFinished is the event type of a terminal run summary.
const TypeRunFinished = "route.run.finished"

// RunFinishedEvent is the wire form of a terminal run summary.
type RunFinishedEvent struct {
	Type             string             `json:"type"`
	RunID            string             `json:"runId"`
	Status           string             `json:"status"`
	Origin           routing.Coordinate `json:"origin"`
	Destination      routing.Coordinate `json:"destination"`
	WaypointCount    int                `json:"waypointCount"`
	LegCount         int                `json:"legCount"`
	FailedLegIndices []int              `json:"failedLegIndices"`
	LegErrors        []LegErrorInfo     `json:"legErrors,omitempty"`
	ErrorKind        string             `json:"errorKind,omitempty"`
	ErrorCode        string             `json:"errorCode,omitempty"`
	DistanceMeters   int                `json:"distanceMeters"`
	DurationSeconds  int                `json:"durationSeconds"`
	StartedAt        time.Time          `json:"startedAt"`
	FinishedAt       time.Time          `json:"finishedAt"`
	ElapsedMs        int64              `json:"elapsedMs"`
}

// LegErrorInfo identifies a failed leg and its error code.
type LegErrorInfo struct {
	LegIndex int    `json:"legIndex"`
	Code     string `json:"code"`
}

// NewRunFinishedEvent converts a terminal summary to its wire form.
func NewRunFinishedEvent(s pipeline.Summary) RunFinishedEvent {
	route := s.Route()

	event := RunFinishedEvent{
		Type:             TypeRunFinished,
		RunID:            s.RunID,
		Status:           s.Status.String(),
		Origin:           s.Origin,
		Destination:      s.Destination,
		WaypointCount:    len(s.Waypoints),
		LegCount:         s.LegCount,
		FailedLegIndices: s.FailedLegIndices,
		DistanceMeters:   route.DistanceMeters,
		DurationSeconds:  route.DurationSeconds,
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
		ElapsedMs:        s.Duration().Milliseconds(),
	}
	if event.FailedLegIndices == nil {
		event.FailedLegIndices = []int{}
	}

	for _, r := range s.Results {
		if !r.OK() {
			event.LegErrors = append(event.LegErrors, LegErrorInfo{
				LegIndex: r.LegIndex,
				Code:     routing.ErrorCode(r.Err),
			})
		}
	}

	var rErr *pipeline.RoutingError
	if errors.As(s.Err, &rErr) {
		event.ErrorKind = string(rErr.Kind())
		event.ErrorCode = routing.ErrorCode(rErr.Err)
	}

	return event
}

// DecodeRunFinished parses a message payload.
func DecodeRunFinished(data []byte) (RunFinishedEvent, error) {
	var event RunFinishedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("decoding run event: %w", err)
	}
	if event.Type != TypeRunFinished {
		return event, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
	return event, nil
}

// ErrUnknownEventType is returned for payloads of another event type.
var ErrUnknownEventType = errors.New("unknown event type")
