package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muexxl/batcontrol-go/internal/core"
)

func newTestSurface() *Surface {
	return NewSurface(core.NewParameterStore(core.Parameters{
		AlwaysAllowDischargeLimit: 0.9,
		MaxChargingFromGridLimit:  0.8,
		ChargeRateMultiplier:      1.1,
	}))
}

func TestSurface_SetMode_OneShotConsumedOnce(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.SetMode(context.Background(), core.ModeForceCharge, 2000, 0))

	override, ok := s.TakeOverride()
	require.True(t, ok)
	assert.Equal(t, core.ModeForceCharge, override.Mode)
	assert.Equal(t, 2000, override.ChargeRateW)

	_, ok = s.TakeOverride()
	assert.False(t, ok, "override should be consumed after the first TakeOverride")
}

func TestSurface_SetMode_RejectsUnknownMode(t *testing.T) {
	s := newTestSurface()
	err := s.SetMode(context.Background(), core.ControlMode(999), 0, 0)
	var invalid *core.InvalidOverrideError
	assert.ErrorAs(t, err, &invalid)
}

func TestSurface_SetMode_RejectsNegativeRates(t *testing.T) {
	s := newTestSurface()
	err := s.SetMode(context.Background(), core.ModeForceCharge, -1, 0)
	assert.Error(t, err)
}

func TestSurface_SetDischargeBlocked_IsSticky(t *testing.T) {
	s := newTestSurface()

	require.NoError(t, s.SetDischargeBlocked(context.Background(), true))
	assert.True(t, s.Parameters.Get().DischargeBlocked)

	// Sticky parameters persist across TakeOverride calls, unlike the
	// one-shot mode override.
	_, ok := s.TakeOverride()
	assert.False(t, ok)
	assert.True(t, s.Parameters.Get().DischargeBlocked)
}

func TestSurface_SetLimitPVChargeRate_RejectsNegative(t *testing.T) {
	s := newTestSurface()
	err := s.SetLimitPVChargeRate(context.Background(), -100)
	assert.Error(t, err)
}

func TestSurface_SetAlwaysAllowDischargeLimit_RejectsOutOfRange(t *testing.T) {
	s := newTestSurface()
	assert.Error(t, s.SetAlwaysAllowDischargeLimit(context.Background(), 1.5))
	assert.NoError(t, s.SetAlwaysAllowDischargeLimit(context.Background(), 0.95))
	assert.InDelta(t, 0.95, s.Parameters.Get().AlwaysAllowDischargeLimit, 1e-9)
}
