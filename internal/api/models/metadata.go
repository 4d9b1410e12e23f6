package models

// Enums lists the values clients can receive in stream events.
type Enums struct {
	RunStatuses []string `json:"runStatuses"`
	LegStatuses []string `json:"legStatuses"`
	ErrorKinds  []string `json:"errorKinds"`
	ErrorCodes  []string `json:"errorCodes"`
	Providers   []string `json:"providers"`
}
