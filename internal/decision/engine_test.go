package decision

import (
	"testing"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/stretchr/testify/assert"
)

func baseParams() core.Parameters {
	return core.Parameters{
		AlwaysAllowDischargeLimit: 0.9,
		MaxChargingFromGridLimit:  0.8,
		ChargeRateMultiplier:      1.1,
		MinChargeEnergyWh:         0,
		MinPriceDifference:        0.05,
		MinPriceDifferenceRel:     0.2,
	}
}

func at(minute int) time.Time {
	return time.Date(2026, 1, 15, 10, minute, 0, 0, time.UTC)
}

// Scenario A: high SOC always allows discharge regardless of price shape.
func TestEvaluate_ScenarioA_HighSOCAllowsDischarge(t *testing.T) {
	input := core.DecisionInput{
		Timestamp:      at(0),
		Prices:         core.Forecast{0: 0.30, 1: 0.25, 2: 0.20},
		NetConsumption: core.Forecast{0: 500, 1: 600, 2: 700},
		Battery: core.BatteryState{
			SOC:                  95,
			StoredUsableEnergyWh: 9000,
			FreeCapacityWh:       500,
		},
	}

	out := NewEngine().Evaluate(input, baseParams())

	assert.True(t, out.AllowDischarge)
	assert.Equal(t, core.ModeAllowDischarge, out.Mode())
}

// Scenario B: falling prices, nothing to reserve for, discharge allowed.
func TestEvaluate_ScenarioB_FallingPricesAllowsDischarge(t *testing.T) {
	input := core.DecisionInput{
		Timestamp:      at(0),
		Prices:         core.Forecast{0: 0.30, 1: 0.25, 2: 0.20},
		NetConsumption: core.Forecast{0: 500, 1: 500, 2: 500},
		Battery: core.BatteryState{
			SOC:                  20,
			StoredUsableEnergyWh: 1500,
			FreeCapacityWh:       8000,
		},
	}

	out := NewEngine().Evaluate(input, baseParams())

	assert.True(t, out.AllowDischarge)
	assert.Equal(t, core.ModeAllowDischarge, out.Mode())
}

// Scenario C: future price spike, but existing stock covers the reservation.
func TestEvaluate_ScenarioC_ReservationSatisfiedByStock(t *testing.T) {
	input := core.DecisionInput{
		Timestamp:      at(0),
		Prices:         core.Forecast{0: 0.20, 1: 0.25, 2: 0.30},
		NetConsumption: core.Forecast{0: 500, 1: 500, 2: 1000},
		Battery: core.BatteryState{
			SOC:                  15,
			StoredUsableEnergyWh: 1000,
			FreeCapacityWh:       8500,
		},
	}

	out := NewEngine().Evaluate(input, baseParams())

	assert.False(t, out.AllowDischarge)
	assert.False(t, out.ChargeFromGrid)
	assert.Equal(t, core.ModeAvoidDischarge, out.Mode())
	assert.InDelta(t, 0, out.RequiredRechargeEnergyWh, 1e-9)
}

// Scenario D: same as C but with too little stock, forces a grid charge.
func TestEvaluate_ScenarioD_ForcesGridCharge(t *testing.T) {
	input := core.DecisionInput{
		Timestamp:      at(0),
		Prices:         core.Forecast{0: 0.20, 1: 0.25, 2: 0.30},
		NetConsumption: core.Forecast{0: 500, 1: 500, 2: 1000},
		Battery: core.BatteryState{
			SOC:                  15,
			StoredUsableEnergyWh: 100,
			FreeCapacityWh:       8500,
		},
	}

	out := NewEngine().Evaluate(input, baseParams())

	assert.False(t, out.AllowDischarge)
	assert.True(t, out.ChargeFromGrid)
	assert.Equal(t, core.ModeForceCharge, out.Mode())
	assert.InDelta(t, 900, out.RequiredRechargeEnergyWh, 1e-9)
	assert.Equal(t, 990, out.ChargeRateW)
}

// Scenario E: discharge externally blocked overrides what would otherwise be
// an ALLOW_DISCHARGE decision (as in Scenario B).
func TestEvaluate_ScenarioE_DischargeBlockedOverride(t *testing.T) {
	params := baseParams()
	params.DischargeBlocked = true

	input := core.DecisionInput{
		Timestamp:      at(0),
		Prices:         core.Forecast{0: 0.30, 1: 0.25, 2: 0.20},
		NetConsumption: core.Forecast{0: 500, 1: 500, 2: 500},
		Battery: core.BatteryState{
			SOC:                  20,
			StoredUsableEnergyWh: 1500,
			FreeCapacityWh:       8000,
		},
	}

	out := NewEngine().Evaluate(input, params)

	assert.False(t, out.AllowDischarge)
	assert.Equal(t, core.ModeAvoidDischarge, out.Mode())
}

// Property 1: LIMIT_PV_CHARGE is never emitted by automatic evaluation.
func TestEvaluate_NeverEmitsLimitPVChargeAutomatically(t *testing.T) {
	scenarios := []core.DecisionInput{
		{
			Timestamp:      at(0),
			Prices:         core.Forecast{0: 0.30, 1: 0.25, 2: 0.20},
			NetConsumption: core.Forecast{0: 500, 1: 600, 2: 700},
			Battery:        core.BatteryState{SOC: 95, StoredUsableEnergyWh: 9000, FreeCapacityWh: 500},
		},
		{
			Timestamp:      at(0),
			Prices:         core.Forecast{0: 0.20, 1: 0.25, 2: 0.30},
			NetConsumption: core.Forecast{0: 500, 1: 500, 2: 1000},
			Battery:        core.BatteryState{SOC: 15, StoredUsableEnergyWh: 100, FreeCapacityWh: 8500},
		},
	}
	for _, in := range scenarios {
		out := NewEngine().Evaluate(in, baseParams())
		assert.NotEqual(t, core.ModeLimitPVCharge, out.Mode())
	}
}

// Property 3: a FORCE_CHARGE decision only happens below the grid-charge SOC gate.
func TestEvaluate_ForceChargeRequiresSOCBelowGateLimit(t *testing.T) {
	params := baseParams()
	input := core.DecisionInput{
		Timestamp:      at(0),
		Prices:         core.Forecast{0: 0.20, 1: 0.25, 2: 0.30},
		NetConsumption: core.Forecast{0: 500, 1: 500, 2: 1000},
		Battery: core.BatteryState{
			SOC:                  85, // above MaxChargingFromGridLimit*100 = 80
			StoredUsableEnergyWh: 100,
			FreeCapacityWh:       8500,
		},
	}

	out := NewEngine().Evaluate(input, params)

	assert.False(t, out.ChargeFromGrid)
	assert.Equal(t, core.ModeAvoidDischarge, out.Mode())
}

// Recharge energy is clamped to free battery capacity.
func TestEvaluate_RechargeEnergyClampedToFreeCapacity(t *testing.T) {
	input := core.DecisionInput{
		Timestamp:      at(0),
		Prices:         core.Forecast{0: 0.20, 1: 0.25, 2: 0.30},
		NetConsumption: core.Forecast{0: 500, 1: 500, 2: 1000},
		Battery: core.BatteryState{
			SOC:                  15,
			StoredUsableEnergyWh: 100,
			FreeCapacityWh:       300, // less than the 900 Wh that would otherwise be required
		},
	}

	out := NewEngine().Evaluate(input, baseParams())

	assert.InDelta(t, 300, out.RequiredRechargeEnergyWh, 1e-9)
}

// Intra-interval scaling: charge rate uses the remaining fraction of the hour.
func TestEvaluate_RemainingTimeScalesChargeRate(t *testing.T) {
	input := core.DecisionInput{
		Timestamp:      at(45), // 15 minutes left in the hour
		Prices:         core.Forecast{0: 0.20, 1: 0.25, 2: 0.30},
		NetConsumption: core.Forecast{0: 500, 1: 500, 2: 1000},
		Battery: core.BatteryState{
			SOC:                  15,
			StoredUsableEnergyWh: 100,
			FreeCapacityWh:       8500,
		},
	}

	out := NewEngine().Evaluate(input, baseParams())

	// required recharge 900 Wh must be delivered in 0.25h remaining: 3600 W raw,
	// times the 1.1 multiplier.
	assert.Equal(t, 3960, out.ChargeRateW)
}

// Production hours ahead of a higher-price hour reduce the reservation,
// demonstrating the descending (latest-hour-first) walk used by the
// reservation check.
func TestIsDischargeAllowed_ProductionOffsetsReservation(t *testing.T) {
	params := baseParams()
	input := core.DecisionInput{
		Timestamp: at(0),
		Prices:    core.Forecast{0: 0.20, 1: 0.25, 2: 0.30},
		// hour 1 produces a 400 Wh surplus that can offset hour 2's consumption
		NetConsumption: core.Forecast{0: 500, 1: -400, 2: 1000},
		Battery: core.BatteryState{
			SOC:                  15,
			StoredUsableEnergyWh: 650, // > (1000-400)=600 reserved, but < 1000
			FreeCapacityWh:       8500,
		},
	}

	allowed, reserved, _ := NewEngine().isDischargeAllowed(input, params)

	assert.InDelta(t, 600, reserved, 1e-9)
	assert.True(t, allowed)
}

// Intra-interval scaling: hour 0 of NetConsumption is scaled by the fraction
// of the current hour still ahead of us before the engine reserves or
// recharges against it, so a partially-elapsed hour 0 production surplus
// only offsets what's actually left of it.
func TestEvaluate_ScalesCurrentIntervalBeforeReserving(t *testing.T) {
	params := baseParams()
	input := core.DecisionInput{
		Timestamp: at(30), // half the hour already elapsed
		Prices:    core.Forecast{0: 0.20, 1: 0.30},
		// full-hour production would be 400 Wh, but only half of it is still
		// ahead of us at minute 30
		NetConsumption: core.Forecast{0: -400, 1: 1000},
		Battery: core.BatteryState{
			SOC:                  15,
			StoredUsableEnergyWh: 9000,
			FreeCapacityWh:       8500,
		},
	}

	out := NewEngine().Evaluate(input, params)

	// 1000 - (400 * 0.5) = 800 reserved, not 600
	assert.InDelta(t, 800, out.ReservedEnergyWh, 1e-9)
}
