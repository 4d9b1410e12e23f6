package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/routing"
)

func TestAssembleRequest_Validate(t *testing.T) {
	stanford := &models.Point{Lat: 37.4275, Lon: -122.1697}

	tests := []struct {
		name       string
		req        models.AssembleRequest
		wantFields []string
	}{
		{name: "valid", req: models.AssembleRequest{Origin: stanford, Destination: &models.Point{Lat: 37.7749, Lon: -122.4194}}},
		{name: "missing both", req: models.AssembleRequest{}, wantFields: []string{"origin", "destination"}},
		{
			name:       "out of range",
			req:        models.AssembleRequest{Origin: &models.Point{Lat: 91, Lon: -181}, Destination: stanford},
			wantFields: []string{"origin.lat", "origin.lon"},
		},
		{
			name:       "boundaries are valid",
			req:        models.AssembleRequest{Origin: &models.Point{Lat: -90, Lon: 180}, Destination: &models.Point{Lat: 90, Lon: -180}},
			wantFields: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fields []string
			for _, e := range tt.req.Validate() {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestPoint_Coordinate(t *testing.T) {
	c := routing.Coordinate{Lat: 37.8719, Lon: -122.2585}
	assert.Equal(t, c, models.PointFrom(c).Coordinate())
}

func TestTimestamp_JSON(t *testing.T) {
	ts := models.Timestamp(time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("PDT", -7*3600)))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T17:00:00Z"`, string(data))

	var decoded models.Timestamp
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, ts.Time().Equal(decoded.Time()))

	assert.Error(t, json.Unmarshal([]byte(`12`), &decoded))
	assert.NoError(t, json.Unmarshal([]byte(`null`), &decoded))
}

func TestDoneEvent_FailedLegIndicesAlwaysPresent(t *testing.T) {
	data, err := json.Marshal(models.DoneEvent{RunID: "run_1", Status: "complete", FailedLegIndices: []int{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failedLegIndices":[]`)
	assert.NotContains(t, string(data), `"route"`)
}
