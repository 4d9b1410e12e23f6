package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/routesafe/routesafe/internal/routing"
)

func okResult(i int, points ...routing.Coordinate) routing.LegResult {
	return routing.LegResult{
		LegIndex: i,
		Path:     &routing.Path{Points: points, DistanceMeters: 100 * (i + 1), DurationSeconds: 10},
	}
}

func failedResult(i int, err error) routing.LegResult {
	return routing.LegResult{LegIndex: i, Err: &routing.LegError{LegIndex: i, Err: err}}
}

func TestSummary_Route(t *testing.T) {
	a := routing.Coordinate{Lat: 1, Lon: 1}
	b := routing.Coordinate{Lat: 2, Lon: 2}
	c := routing.Coordinate{Lat: 3, Lon: 3}
	d := routing.Coordinate{Lat: 4, Lon: 4}

	summary := Summary{
		Results: []routing.LegResult{
			okResult(0, a, b),
			failedResult(1, routing.ErrTimeout),
			okResult(2, c, d),
		},
	}

	route := summary.Route()
	assert.Equal(t, []routing.Coordinate{a, b, c, d}, route.Points)
	assert.Equal(t, [][]routing.Coordinate{{a, b}, {c, d}}, route.Segments)
	assert.Equal(t, []int{1}, route.Gaps)
	assert.Equal(t, 400, route.DistanceMeters)
	assert.Equal(t, 20, route.DurationSeconds)
	assert.Equal(t, routing.BoundingBox{MinLon: 1, MinLat: 1, MaxLon: 4, MaxLat: 4}, route.Bounds)
}

func TestSummary_RouteSegments(t *testing.T) {
	a := routing.Coordinate{Lat: 1, Lon: 1}
	b := routing.Coordinate{Lat: 2, Lon: 2}
	c := routing.Coordinate{Lat: 3, Lon: 3}
	d := routing.Coordinate{Lat: 4, Lon: 4}
	e := routing.Coordinate{Lat: 5, Lon: 5}

	tests := []struct {
		name     string
		results  []routing.LegResult
		segments [][]routing.Coordinate
	}{
		{
			name:     "contiguous legs share one segment",
			results:  []routing.LegResult{okResult(0, a, b), okResult(1, b, c)},
			segments: [][]routing.Coordinate{{a, b, c}},
		},
		{
			name: "leading gap",
			results: []routing.LegResult{
				failedResult(0, routing.ErrTimeout),
				okResult(1, b, c),
				okResult(2, c, d),
			},
			segments: [][]routing.Coordinate{{b, c, d}},
		},
		{
			name: "gap never joins across the missing leg",
			results: []routing.LegResult{
				okResult(0, a, b),
				failedResult(1, routing.ErrTimeout),
				failedResult(2, routing.ErrTimeout),
				okResult(3, d, e),
			},
			segments: [][]routing.Coordinate{{a, b}, {d, e}},
		},
		{
			name:    "all failed",
			results: []routing.LegResult{failedResult(0, routing.ErrTimeout)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := Summary{Results: tt.results}.Route()
			assert.Equal(t, tt.segments, route.Segments)
		})
	}
}

func TestSummary_RouteEmpty(t *testing.T) {
	route := Summary{}.Route()
	assert.Empty(t, route.Points)
	assert.Empty(t, route.Segments)
	assert.Empty(t, route.Gaps)
	assert.True(t, route.Bounds.IsZero())
}

func TestRoutingError_Kind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{err: &routing.Error{Code: "TIMEOUT", Err: routing.ErrTimeout}, want: KindTimeout},
		{err: context.DeadlineExceeded, want: KindTimeout},
		{err: &routing.Error{Code: "DECODE", Err: routing.ErrMalformedResponse}, want: KindDecode},
		{err: &routing.Error{Code: "NO_SAFE_PATH", Err: routing.ErrRemote}, want: KindRemote},
		{err: &routing.Error{Code: "RATE_LIMIT", Err: routing.ErrRateLimitExceeded}, want: KindRemote},
		{err: &routing.Error{Code: "SERVER_502", Err: routing.ErrProviderUnavailable}, want: KindNetwork},
		{err: errors.New("connection reset"), want: KindNetwork},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			err := &RoutingError{Err: tt.err}
			assert.Equal(t, tt.want, err.Kind())
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, strings.HasPrefix(err.Error(), "safety routing failed: "))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "partial_failure", StatePartialFailure.String())
	assert.Equal(t, "unknown", State(99).String())

	text, err := StateTotalFailure.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "total_failure", string(text))

	assert.True(t, StateComplete.Terminal())
	assert.False(t, StateCancelled.Terminal())
	assert.True(t, StateAwaitingLegs.InFlight())
	assert.False(t, StateIdle.InFlight())
}

func TestMultiSink(t *testing.T) {
	first := newRecordingSink()
	second := newRecordingSink()
	sink := NewMultiSink(first, nil, second, LogSink{Logger: zerolog.Nop()})
	assert.Len(t, sink, 3)

	sink.WaypointsResolved("run-1", []routing.Coordinate{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}, 1)
	sink.LegResolved("run-1", okResult(0, routing.Coordinate{Lat: 1, Lon: 1}))
	sink.RunFinished(Summary{RunID: "run-1", Status: StateComplete})

	for _, s := range []*recordingSink{first, second} {
		assert.Equal(t, 1, s.waypoints["run-1"])
		assert.Len(t, s.legEvents(), 1)
		assert.Len(t, s.summaries(), 1)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: zerolog.New(&buf)}

	sink.LegResolved("run-1", failedResult(2, routing.ErrNoRouteFound))
	sink.RunFinished(Summary{
		RunID:            "run-1",
		Status:           StatePartialFailure,
		LegCount:         3,
		FailedLegIndices: []int{2},
	})

	out := buf.String()
	assert.Contains(t, out, `"leg_index":2`)
	assert.Contains(t, out, `"error_code":"NO_ROUTE"`)
	assert.Contains(t, out, `"status":"partial_failure"`)
	assert.Contains(t, out, `"failed_legs":[2]`)
}
