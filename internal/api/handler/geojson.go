package handler

import (
	geojson "github.com/paulmach/go.geojson"

	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/routing"
)

// routeFeatureCollection renders a finished run for map clients: one
// LineString per leg in leg order, then one Point per waypoint. Legs without
// geometry are drawn as a straight segment between their waypoints and marked
// failed.
func routeFeatureCollection(summary pipeline.Summary) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	legs := routing.DeriveLegs(summary.Waypoints)

	for _, result := range summary.Results {
		var f *geojson.Feature
		if result.OK() {
			f = geojson.NewLineStringFeature(lonLats(result.Path.Points))
			f.SetProperty("status", models.LegStatusOK)
			f.SetProperty("distanceMeters", result.Path.DistanceMeters)
			f.SetProperty("durationSeconds", result.Path.DurationSeconds)
			f.SetProperty("provider", result.Path.Provider)
		} else {
			if result.LegIndex < 0 || result.LegIndex >= len(legs) {
				continue
			}
			leg := legs[result.LegIndex]
			f = geojson.NewLineStringFeature(lonLats([]routing.Coordinate{leg.Start, leg.End}))
			f.SetProperty("status", models.LegStatusFailed)
			f.SetProperty("errorCode", routing.ErrorCode(result.Err))
		}
		f.SetProperty("kind", "leg")
		f.SetProperty("legIndex", result.LegIndex)
		fc.AddFeature(f)
	}

	for i, wp := range summary.Waypoints {
		f := geojson.NewPointFeature([]float64{wp.Lon, wp.Lat})
		f.SetProperty("kind", "waypoint")
		f.SetProperty("waypointIndex", i)
		fc.AddFeature(f)
	}

	extent := append(append([]routing.Coordinate{}, summary.Waypoints...), summary.Route().Points...)
	if bounds := routing.BoundsOf(extent); !bounds.IsZero() {
		fc.BoundingBox = []float64{bounds.MinLon, bounds.MinLat, bounds.MaxLon, bounds.MaxLat}
	}

	return fc.MarshalJSON()
}

func lonLats(points []routing.Coordinate) [][]float64 {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lon, p.Lat}
	}
	return coords
}
