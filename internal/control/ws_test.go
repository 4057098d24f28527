package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/inverter"
)

func TestStatusSnapshot_MarshalsBatteryAndOutage(t *testing.T) {
	store := NewStatusStore()
	store.Publish(context.Background(),
		core.DecisionOutput{AllowDischarge: true, ChargeRateW: 1200},
		core.BatteryState{SOC: 64, CapacityWh: 10000},
		inverter.OutageStatus{Initialized: true, ConsecutiveFailures: 2},
	)

	snapshot, ok := store.Snapshot()
	require.True(t, ok)

	raw, err := snapshot.marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ALLOW_DISCHARGE", decoded["mode"])

	battery, ok := decoded["battery"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 64, battery["SOC"], 1e-9)

	outage, ok := decoded["outage"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 2, outage["ConsecutiveFailures"], 1e-9)
}

func TestWSHub_RegistersStatusRoute(t *testing.T) {
	mux := http.NewServeMux()
	hub := NewWSHub(mux, NewStatusStore())
	assert.NotNil(t, hub)

	_, pattern := mux.Handler(httptest.NewRequest(http.MethodGet, "/ws/status", nil))
	assert.Equal(t, "/ws/status", pattern)
}
