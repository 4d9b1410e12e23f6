package models

import (
	"encoding/json"
	"net/http"
)

const problemBase = "https://api.routesafe.dev/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation           = problemBase + "validation-error"
	ProblemTypeUnauthorized         = problemBase + "unauthorized"
	ProblemTypeNotFound             = problemBase + "not-found"
	ProblemTypeUnsupportedMediaType = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests      = problemBase + "too-many-requests"
	ProblemTypeTLSRequired          = problemBase + "tls-required"
	ProblemTypeInternal             = problemBase + "internal-error"
	ProblemTypeUnavailable          = problemBase + "service-unavailable"
)

var problemTitles = map[string]string{
	ProblemTypeValidation:           "Validation error",
	ProblemTypeUnauthorized:         "Unauthorized",
	ProblemTypeNotFound:             "Not found",
	ProblemTypeUnsupportedMediaType: "Unsupported media type",
	ProblemTypeTooManyRequests:      "Too many requests",
	ProblemTypeTLSRequired:          "TLS required",
	ProblemTypeInternal:             "Internal server error",
	ProblemTypeUnavailable:          "Service unavailable",
}

// Problem is an RFC 7807 error document. Errors raised before a stream starts
// use it; once an assembly stream is open, failures travel in the done event.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one request field, e.g. "origin.lat".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewProblem creates a problem of a known type. The title comes from the type.
func NewProblem(problemType string, status int, traceID, detail string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   problemTitles[problemType],
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// Write sends the problem as application/problem+json.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 validation problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := NewProblem(ProblemTypeValidation, http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnauthorized, http.StatusUnauthorized, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, http.StatusNotFound, traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnsupportedMediaType, http.StatusUnsupportedMediaType, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, http.StatusTooManyRequests, traceID, detail)
}

// NewTLSRequired creates a 403 problem for plain-HTTP requests.
func NewTLSRequired(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTLSRequired, http.StatusForbidden, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, http.StatusInternalServerError, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnavailable, http.StatusServiceUnavailable, traceID, detail)
}
