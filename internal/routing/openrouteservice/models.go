package openrouteservice

import "github.com/routesafe/routesafe/internal/routing"

// directionsBody is the POST body for /v2/directions/{profile}. Coordinates
// are [lon, lat] pairs.
type directionsBody struct {
	Coordinates  [][2]float64 `json:"coordinates"`
	Instructions bool         `json:"instructions"`
	Geometry     bool         `json:"geometry"`
	Units        string       `json:"units"`
}

func legBody(origin, destination routing.Coordinate) directionsBody {
	return directionsBody{
		Coordinates: [][2]float64{
			{origin.Lon, origin.Lat},
			{destination.Lon, destination.Lat},
		},
		Geometry: true,
		Units:    "m",
	}
}

type directionsReply struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
		BBox     []float64 `json:"bbox,omitempty"`
		Geometry string    `json:"geometry"`
	} `json:"routes"`
}

// errorReply is the ORS error body. Gateway errors carry a bare string in
// "error", which leaves Code zero.
type errorReply struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS internal error codes.
const (
	codeInvalidParameter = 2003
	codeRouteNotFound    = 2009
	codePointNotRoutable = 2010
)
