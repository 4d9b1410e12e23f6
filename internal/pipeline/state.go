package pipeline

// State is the lifecycle state of a route assembly run.
type State int

const (
	// StateIdle means the pipeline has no active run.
	StateIdle State = iota
	// StateAwaitingWaypoints means the safety waypoint request is in flight.
	StateAwaitingWaypoints
	// StateAwaitingLegs means one or more leg direction requests are in flight.
	StateAwaitingLegs
	// StateComplete means every leg resolved with a path.
	StateComplete
	// StatePartialFailure means some, but not all, legs failed.
	StatePartialFailure
	// StateTotalFailure means the waypoint request failed or every leg failed.
	StateTotalFailure
	// StateCancelled is reported by the handle of a run that was discarded before
	// reaching a terminal state. It is never sent to a Sink.
	StateCancelled
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateAwaitingWaypoints: "awaiting_waypoints",
	StateAwaitingLegs:      "awaiting_legs",
	StateComplete:          "complete",
	StatePartialFailure:    "partial_failure",
	StateTotalFailure:      "total_failure",
	StateCancelled:         "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the state is one of the three terminal outcomes.
func (s State) Terminal() bool {
	return s == StateComplete || s == StatePartialFailure || s == StateTotalFailure
}

// InFlight reports whether the run is still waiting on network results.
func (s State) InFlight() bool {
	return s == StateAwaitingWaypoints || s == StateAwaitingLegs
}
