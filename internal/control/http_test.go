package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/inverter"
)

func TestNewHTTPServer_DisabledWhenPortNotPositive(t *testing.T) {
	assert.Nil(t, NewHTTPServer(NewStatusStore(), newTestSurface(), 0))
	assert.Nil(t, NewHTTPServer(NewStatusStore(), newTestSurface(), -1))
}

func TestHTTPServer_HealthBeforeFirstPublish(t *testing.T) {
	hs := NewHTTPServer(NewStatusStore(), newTestSurface(), 8099)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, 503, w.Code)
}

func TestHTTPServer_StatusAfterPublish(t *testing.T) {
	store := NewStatusStore()
	store.Publish(context.Background(), core.DecisionOutput{AllowDischarge: true}, core.BatteryState{SOC: 72}, inverter.OutageStatus{})

	hs := NewHTTPServer(store, newTestSurface(), 8100)
	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var snapshot StatusSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.InDelta(t, 72, snapshot.Battery.SOC, 1e-9)
}

func TestHTTPServer_SetModeHandler(t *testing.T) {
	surface := newTestSurface()
	hs := NewHTTPServer(NewStatusStore(), surface, 8101)

	body, _ := json.Marshal(setModeRequest{Mode: int(core.ModeForceCharge), ChargeRateW: 1800})
	req := httptest.NewRequest("POST", "/control/mode", bytes.NewReader(body))
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)
	require.Equal(t, 204, w.Code)

	override, ok := surface.TakeOverride()
	require.True(t, ok)
	assert.Equal(t, core.ModeForceCharge, override.Mode)
	assert.Equal(t, 1800, override.ChargeRateW)
}

func TestHTTPServer_SetModeHandler_RejectsInvalidMode(t *testing.T) {
	surface := newTestSurface()
	hs := NewHTTPServer(NewStatusStore(), surface, 8102)

	body, _ := json.Marshal(setModeRequest{Mode: 999})
	req := httptest.NewRequest("POST", "/control/mode", bytes.NewReader(body))
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, 400, w.Code)
}

func TestHTTPServer_SetDischargeBlockedHandler(t *testing.T) {
	surface := newTestSurface()
	hs := NewHTTPServer(NewStatusStore(), surface, 8103)

	body, _ := json.Marshal(setBoolRequest{Value: true})
	req := httptest.NewRequest("POST", "/control/discharge_blocked", bytes.NewReader(body))
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)
	require.Equal(t, 204, w.Code)
	assert.True(t, surface.Parameters.Get().DischargeBlocked)
}
