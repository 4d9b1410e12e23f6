package safety

// waypointsRequest is the safety routing service request body.
type waypointsRequest struct {
	Origin      point `json:"origin"`
	Destination point `json:"destination"`
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// waypointsResponse is the success body: an ordered array of [lat, lon] pairs.
type waypointsResponse struct {
	Waypoints [][]float64 `json:"waypoints"`
	Error     *errorBody  `json:"error,omitempty"`
}

// errorResponse is the service's own error payload.
type errorResponse struct {
	Error *errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
