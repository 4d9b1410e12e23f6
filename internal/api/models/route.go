package models

import (
	"encoding/json"

	"github.com/routesafe/routesafe/internal/routing"
)

// AssembleRequest is the body of POST /v1/routes:assemble.
type AssembleRequest struct {
	Origin      *Point `json:"origin"`
	Destination *Point `json:"destination"`
}

// Validate reports missing or out-of-range fields.
func (r AssembleRequest) Validate() []FieldError {
	var errs []FieldError
	errs = appendPointErrors(errs, "origin", r.Origin)
	errs = appendPointErrors(errs, "destination", r.Destination)
	return errs
}

func appendPointErrors(errs []FieldError, field string, p *Point) []FieldError {
	if p == nil {
		return append(errs, FieldError{Field: field, Message: "is required", Code: "REQUIRED"})
	}
	if p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, FieldError{Field: field + ".lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	if p.Lon < -180 || p.Lon > 180 {
		errs = append(errs, FieldError{Field: field + ".lon", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	return errs
}

// Stream event names for the assemble endpoint.
const (
	EventRun  = "run"
	EventLeg  = "leg"
	EventDone = "done"
)

// RunEvent announces a run and, once known, its waypoints.
type RunEvent struct {
	RunID       string  `json:"runId"`
	Status      string  `json:"status"`
	Origin      Point   `json:"origin"`
	Destination Point   `json:"destination"`
	Waypoints   []Point `json:"waypoints,omitempty"`
	LegCount    *int    `json:"legCount,omitempty"`
}

// Leg outcomes.
const (
	LegStatusOK     = "ok"
	LegStatusFailed = "failed"
)

// LegEvent carries one resolved leg.
type LegEvent struct {
	RunID           string               `json:"runId"`
	LegIndex        int                  `json:"legIndex"`
	Status          string               `json:"status"`
	Polyline        string               `json:"polyline,omitempty"`
	Bounds          *routing.BoundingBox `json:"bounds,omitempty"`
	DistanceMeters  int                  `json:"distanceMeters,omitempty"`
	DurationSeconds int                  `json:"durationSeconds,omitempty"`
	Provider        string               `json:"provider,omitempty"`
	ErrorCode       string               `json:"errorCode,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// DoneEvent is the terminal event of a stream.
type DoneEvent struct {
	RunID            string               `json:"runId"`
	Status           string               `json:"status"`
	LegCount         int                  `json:"legCount"`
	FailedLegIndices []int                `json:"failedLegIndices"`
	ErrorKind        string               `json:"errorKind,omitempty"`
	ErrorCode        string               `json:"errorCode,omitempty"`
	Error            string               `json:"error,omitempty"`
	DistanceMeters   int                  `json:"distanceMeters"`
	DurationSeconds  int                  `json:"durationSeconds"`
	Bounds           *routing.BoundingBox `json:"bounds,omitempty"`
	ElapsedMs        int64                `json:"elapsedMs"`

	// Route is a GeoJSON FeatureCollection of the resolved legs.
	Route json.RawMessage `json:"route,omitempty"`
}
