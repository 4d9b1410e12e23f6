// Package handler provides HTTP handlers for the RouteSafe API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/api/middleware"
	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/api/response"
	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/routing"
)

const (
	// DefaultHeartbeat is the keep-alive interval for open streams.
	DefaultHeartbeat = 15 * time.Second

	maxRequestBody = 1 << 16
)

// RouteHandlerConfig holds the collaborators for route assembly.
type RouteHandlerConfig struct {
	Waypoints      routing.WaypointSource
	Legs           pipeline.LegFetcher
	LegConcurrency int

	// Sink receives every run in addition to the client stream, e.g. the
	// run publisher and the log sink. Optional.
	Sink pipeline.Sink

	// Heartbeat overrides DefaultHeartbeat.
	Heartbeat time.Duration

	Logger zerolog.Logger
}

// RouteHandler streams route assemblies to clients.
type RouteHandler struct {
	cfg    RouteHandlerConfig
	active atomic.Int64
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(cfg RouteHandlerConfig) *RouteHandler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	return &RouteHandler{cfg: cfg}
}

// ActiveStreams returns the number of assemblies currently streaming.
func (h *RouteHandler) ActiveStreams() int {
	return int(h.active.Load())
}

// Assemble handles POST /v1/routes:assemble. The response is a
// text/event-stream of run, leg and done events. Closing the connection
// cancels the run.
func (h *RouteHandler) Assemble(w http.ResponseWriter, r *http.Request) {
	var input models.AssembleRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if fieldErrs := input.Validate(); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "origin and destination must be valid coordinates", fieldErrs)
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		response.InternalError(w, r, "streaming is not supported by this connection")
		return
	}

	origin := input.Origin.Coordinate()
	destination := input.Destination.Coordinate()
	logger := h.cfg.Logger.With().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Logger()

	stream := newStreamSink(origin, destination, logger)
	p := pipeline.New(pipeline.Config{
		Waypoints:      h.cfg.Waypoints,
		Legs:           h.cfg.Legs,
		Sink:           pipeline.NewMultiSink(stream, h.cfg.Sink),
		LegConcurrency: h.cfg.LegConcurrency,
		Logger:         logger,
	})

	// The request context ends when the client disconnects, which discards the run.
	run, err := p.Start(r.Context(), origin, destination)
	if err != nil {
		if errors.Is(err, routing.ErrInvalidCoordinates) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		response.InternalError(w, r, "failed to start route assembly")
		return
	}

	h.active.Add(1)
	defer h.active.Add(-1)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("X-Run-Id", run.ID())
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, models.EventRun, stream.runEvent(run.ID(), pipeline.StateAwaitingWaypoints)); err != nil {
		p.Cancel()
		return
	}
	flush(w)

	h.pump(w, r, p, run, stream, logger)
}

// pump writes queued events until the terminal event is sent or the client
// goes away.
func (h *RouteHandler) pump(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline, run *pipeline.Run, stream *streamSink, logger zerolog.Logger) {
	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info().Str("run_id", run.ID()).Msg("client disconnected, run discarded")
			return

		case <-heartbeat.C:
			if err := writeComment(w, "keep-alive"); err != nil {
				p.Cancel()
				return
			}
			flush(w)

		case <-stream.notify:
			events, finished := stream.drain()
			for _, ev := range events {
				if err := writeEvent(w, ev.name, ev.data); err != nil {
					logger.Warn().Err(err).Str("run_id", run.ID()).Msg("failed to write stream event")
					p.Cancel()
					return
				}
			}
			flush(w)
			if finished {
				return
			}
		}
	}
}
