package handler

import (
	"net/http"

	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/api/response"
	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/routing/googlemaps"
	"github.com/routesafe/routesafe/internal/routing/openrouteservice"
	"github.com/routesafe/routesafe/internal/routing/safety"
)

// errorCodes are the stable codes a leg or run error can carry.
var errorCodes = []string{
	"TIMEOUT",
	"UNAVAILABLE",
	"DECODE",
	"REMOTE",
	"NO_ROUTE",
	"NO_SAFE_PATH",
	"OUT_OF_AREA",
	"RATE_LIMIT",
	"FORBIDDEN",
	"BAD_REQUEST",
	"REQUEST_DENIED",
	"REQUEST_FAILED",
	"INVALID_COORDINATES",
	"INVALID_ORIGIN",
	"INVALID_DESTINATION",
	"UNKNOWN_ERROR",
}

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	enums models.Enums
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler() *MetadataHandler {
	runStatuses := make([]string, 0, 6)
	for _, s := range []pipeline.State{
		pipeline.StateAwaitingWaypoints,
		pipeline.StateAwaitingLegs,
		pipeline.StateComplete,
		pipeline.StatePartialFailure,
		pipeline.StateTotalFailure,
	} {
		runStatuses = append(runStatuses, s.String())
	}

	return &MetadataHandler{
		enums: models.Enums{
			RunStatuses: runStatuses,
			LegStatuses: []string{models.LegStatusOK, models.LegStatusFailed},
			ErrorKinds: []string{
				string(pipeline.KindNetwork),
				string(pipeline.KindTimeout),
				string(pipeline.KindDecode),
				string(pipeline.KindRemote),
			},
			ErrorCodes: errorCodes,
			Providers: []string{
				safety.ProviderName,
				openrouteservice.ProviderName,
				googlemaps.ProviderName,
			},
		},
	}
}

// GetEnums handles GET /v1/metadata/enums - values clients can see in stream events.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.enums)
}
