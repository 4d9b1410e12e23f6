package pipeline

import (
	"time"

	"github.com/routesafe/routesafe/internal/routing"
)

// Summary is the terminal notification for a run.
type Summary struct {
	RunID       string
	Status      State
	Origin      routing.Coordinate
	Destination routing.Coordinate
	Waypoints   []routing.Coordinate

	// LegCount is the number of legs derived from the waypoints.
	LegCount int

	// Results holds one entry per leg, in leg order.
	Results []routing.LegResult

	// FailedLegIndices lists the failed legs in ascending order.
	FailedLegIndices []int

	// Err is set when the waypoint request failed. It is a *RoutingError.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time from Start to the terminal transition.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// AssembledRoute is the displayable path built from the successful legs.
type AssembledRoute struct {
	// Points is the concatenated geometry in leg order. A shared endpoint between
	// adjacent legs appears once. When Gaps is non-empty Points jumps across the
	// missing legs; draw Segments instead.
	Points []routing.Coordinate

	// Segments splits Points at the gaps. Each segment is a contiguous run of
	// successful legs.
	Segments [][]routing.Coordinate

	// Gaps lists leg indices with no geometry.
	Gaps []int

	Bounds          routing.BoundingBox
	DistanceMeters  int
	DurationSeconds int
}

// Route assembles the successful leg paths in leg order.
func (s Summary) Route() AssembledRoute {
	var route AssembledRoute
	broken := true

	for _, r := range s.Results {
		if !r.OK() {
			route.Gaps = append(route.Gaps, r.LegIndex)
			broken = true
			continue
		}

		points := r.Path.Points
		if n := len(route.Points); n > 0 && len(points) > 0 && route.Points[n-1] == points[0] {
			points = points[1:]
		}
		route.Points = append(route.Points, points...)

		if broken {
			route.Segments = append(route.Segments, append([]routing.Coordinate(nil), r.Path.Points...))
			broken = false
		} else {
			last := len(route.Segments) - 1
			route.Segments[last] = append(route.Segments[last], points...)
		}
		route.DistanceMeters += r.Path.DistanceMeters
		route.DurationSeconds += r.Path.DurationSeconds
	}

	route.Bounds = routing.BoundsOf(route.Points)
	return route
}
