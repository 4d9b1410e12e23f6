package handler

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/api/response"
	"github.com/routesafe/routesafe/internal/provider/resilience"
)

// StreamCounter reports how many assembly streams are open.
type StreamCounter interface {
	ActiveStreams() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	providers *resilience.Registry
	streams   StreamCounter
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. providers and streams may be nil.
func NewOpsHandler(version, buildTime string, providers *resilience.Registry, streams StreamCounter) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		providers: providers,
		streams:   streams,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is not ready while any
// upstream circuit is open, since no run could complete.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	var open []string
	if h.providers != nil {
		open = h.providers.OpenCircuits()
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	status := http.StatusOK
	if len(open) > 0 {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"openCircuits": open}
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider circuit status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}
	if h.streams != nil {
		status.ActiveStreams = h.streams.ActiveStreams()
	}

	for _, p := range h.providerHealth() {
		ps := providerStatus(p)
		switch {
		case ps.Status == models.HealthStatusFail:
			status.Status = models.HealthStatusFail
		case ps.Status == models.HealthStatusDegraded && status.Status == models.HealthStatusOK:
			status.Status = models.HealthStatusDegraded
		}
		status.Providers = append(status.Providers, ps)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) providerHealth() []*resilience.ProviderHealth {
	if h.providers == nil {
		return nil
	}
	return h.providers.All()
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            p.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        p.CircuitState.String(),
		Requests:            p.Counts.Requests,
		ConsecutiveFailures: p.Counts.ConsecutiveFailures,
	}
	switch p.CircuitState {
	case gobreaker.StateOpen:
		ps.Status = models.HealthStatusFail
	case gobreaker.StateHalfOpen:
		ps.Status = models.HealthStatusDegraded
	}
	if p.LastSuccessAt != nil {
		ts := models.Timestamp(*p.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if p.LastFailureAt != nil {
		ts := models.Timestamp(*p.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if p.LastError != "" {
		msg := p.LastError
		ps.Message = &msg
	}
	return ps
}
