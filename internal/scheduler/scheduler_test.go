package scheduler

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/decision"
)

type fakeTariff struct{ prices core.Forecast }

func (f fakeTariff) GetPrices(ctx context.Context, now time.Time) (core.Forecast, error) {
	return f.prices, nil
}

type fakeSolar struct{ production core.Forecast }

func (f fakeSolar) GetForecast(ctx context.Context, now time.Time, hours int) (core.Forecast, error) {
	return f.production, nil
}

type fakeConsumption struct{ consumption core.Forecast }

func (f fakeConsumption) GetForecast(ctx context.Context, now time.Time, hours int) (core.Forecast, error) {
	return f.consumption, nil
}

type fakeInverterDriver struct {
	soc          float64
	capacityWh   float64
	storedWh     float64
	freeWh       float64
	appliedMode  string
	chargeRateW  int
	limitRateW   int
}

func (f *fakeInverterDriver) GetSOC(ctx context.Context) (float64, error) { return f.soc, nil }
func (f *fakeInverterDriver) GetStoredEnergyWh(ctx context.Context) (float64, error) {
	return f.storedWh, nil
}
func (f *fakeInverterDriver) GetStoredUsableEnergyWh(ctx context.Context) (float64, error) {
	return f.storedWh, nil
}
func (f *fakeInverterDriver) GetCapacityWh(ctx context.Context) (float64, error) {
	return f.capacityWh, nil
}
func (f *fakeInverterDriver) GetFreeCapacityWh(ctx context.Context) (float64, error) {
	return f.freeWh, nil
}
func (f *fakeInverterDriver) GetMaxCapacityWh(ctx context.Context) (float64, error) {
	return f.capacityWh, nil
}
func (f *fakeInverterDriver) SetModeForceCharge(ctx context.Context, rateW int) error {
	f.appliedMode = "FORCE_CHARGE"
	f.chargeRateW = rateW
	return nil
}
func (f *fakeInverterDriver) SetModeAvoidDischarge(ctx context.Context) error {
	f.appliedMode = "AVOID_DISCHARGE"
	return nil
}
func (f *fakeInverterDriver) SetModeAllowDischarge(ctx context.Context) error {
	f.appliedMode = "ALLOW_DISCHARGE"
	return nil
}
func (f *fakeInverterDriver) SetModeLimitBatteryCharge(ctx context.Context, limitW int) error {
	f.appliedMode = "LIMIT_PV_CHARGE"
	f.limitRateW = limitW
	return nil
}

func newTestContext() *core.Context {
	cfg := core.DefaultConfig()
	cfg.InverterModbusAddress = "127.0.0.1:502"
	return core.NewContext(cfg, log.Default())
}

func TestScheduler_Tick_HighSOCAllowsDischarge(t *testing.T) {
	appCtx := newTestContext()
	appCtx.Parameters = core.NewParameterStore(core.Parameters{
		AlwaysAllowDischargeLimit: 0.9,
		MaxChargingFromGridLimit:  0.8,
		ChargeRateMultiplier:      1.1,
		MinPriceDifference:        0.05,
		MinPriceDifferenceRel:     0.2,
	})

	inv := &fakeInverterDriver{soc: 95, capacityWh: 10000, storedWh: 9500, freeWh: 500}
	sched := New(appCtx,
		fakeTariff{prices: core.Forecast{0: 0.30, 1: 0.25}},
		fakeSolar{production: core.Forecast{0: 0, 1: 0}},
		fakeConsumption{consumption: core.Forecast{0: 500, 1: 500}},
		inv,
		decision.NewEngine(),
		nil,
	)

	require.NoError(t, sched.Tick(context.Background()))
	assert.Equal(t, "ALLOW_DISCHARGE", inv.appliedMode)
}

func TestScheduler_NetConsumption_SubtractsProduction(t *testing.T) {
	appCtx := newTestContext()
	sched := New(appCtx, fakeTariff{}, fakeSolar{}, fakeConsumption{}, &fakeInverterDriver{}, decision.NewEngine(), nil)

	sched.mu.Lock()
	sched.latestConsumption = core.Forecast{0: 1000, 1: 800}
	sched.latestProduction = core.Forecast{0: 300, 1: 0}
	sched.mu.Unlock()

	net := sched.netConsumption()
	assert.InDelta(t, 700, net[0], 1e-9)
	assert.InDelta(t, 800, net[1], 1e-9)
}

func TestScheduler_LimitPVChargeOverrideTakesPrecedence(t *testing.T) {
	appCtx := newTestContext()
	appCtx.Parameters = core.NewParameterStore(core.Parameters{
		AlwaysAllowDischargeLimit: 0.9,
		MaxChargingFromGridLimit:  0.8,
		ChargeRateMultiplier:      1.1,
		MinPriceDifference:        0.05,
		MinPriceDifferenceRel:     0.2,
		LimitPVChargeRateW:        1500,
	})

	inv := &fakeInverterDriver{soc: 95, capacityWh: 10000, storedWh: 9500, freeWh: 500}
	sched := New(appCtx,
		fakeTariff{prices: core.Forecast{0: 0.30}},
		fakeSolar{production: core.Forecast{0: 0}},
		fakeConsumption{consumption: core.Forecast{0: 500}},
		inv,
		decision.NewEngine(),
		nil,
	)

	require.NoError(t, sched.Tick(context.Background()))
	assert.Equal(t, "LIMIT_PV_CHARGE", inv.appliedMode)
	assert.Equal(t, 1500, inv.limitRateW)
}

type fakeOverrideSource struct {
	override ModeOverride
	ok       bool
}

func (f *fakeOverrideSource) TakeOverride() (ModeOverride, bool) {
	ok := f.ok
	f.ok = false // one-shot: consumed on first read
	return f.override, ok
}

func TestScheduler_OneShotModeOverrideBypassesEngine(t *testing.T) {
	appCtx := newTestContext()
	appCtx.Parameters = core.NewParameterStore(core.Parameters{
		AlwaysAllowDischargeLimit: 0.9,
		MaxChargingFromGridLimit:  0.8,
		ChargeRateMultiplier:      1.1,
		MinPriceDifference:        0.05,
		MinPriceDifferenceRel:     0.2,
	})

	// Low SOC, rising prices: the engine alone would pick AVOID_DISCHARGE or
	// FORCE_CHARGE, never ALLOW_DISCHARGE.
	inv := &fakeInverterDriver{soc: 20, capacityWh: 10000, storedWh: 2000, freeWh: 8000}
	sched := New(appCtx,
		fakeTariff{prices: core.Forecast{0: 0.10, 1: 0.50}},
		fakeSolar{production: core.Forecast{0: 0, 1: 0}},
		fakeConsumption{consumption: core.Forecast{0: 500, 1: 500}},
		inv,
		decision.NewEngine(),
		nil,
	)

	overrides := &fakeOverrideSource{override: ModeOverride{Mode: core.ModeAllowDischarge}, ok: true}
	sched.SetOverrideSource(overrides)

	require.NoError(t, sched.Tick(context.Background()))
	assert.Equal(t, "ALLOW_DISCHARGE", inv.appliedMode)

	// Second tick: override already consumed, automatic evaluation resumes.
	require.NoError(t, sched.Tick(context.Background()))
	assert.NotEqual(t, "ALLOW_DISCHARGE", inv.appliedMode)
}
