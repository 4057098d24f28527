// Package core holds the data model and shared execution context for batcontrol:
// the types every other package exchanges, the JSON configuration, and the
// explicit context object that replaces the original implementation's
// singletons.
package core

import "time"

// ControlMode is the operating mode batcontrol can request from the inverter.
type ControlMode int

// Control modes, numerically matching the historical Fronius/batcontrol
// convention so downstream MQTT/HTTP consumers don't need translation.
const (
	ModeForceCharge    ControlMode = -1
	ModeAvoidDischarge ControlMode = 0
	ModeAllowDischarge ControlMode = 10
	ModeLimitPVCharge  ControlMode = 8
)

func (m ControlMode) String() string {
	switch m {
	case ModeForceCharge:
		return "FORCE_CHARGE"
	case ModeAvoidDischarge:
		return "AVOID_DISCHARGE"
	case ModeAllowDischarge:
		return "ALLOW_DISCHARGE"
	case ModeLimitPVCharge:
		return "LIMIT_PV_CHARGE"
	default:
		return "UNKNOWN"
	}
}

// Forecast maps an hour offset (0 = current hour) to a value. Production
// values are Wh energy for the hour; tariff values are price per kWh.
// A sparse map (not a slice) because providers may return a short horizon.
type Forecast map[int]float64

// MaxHour returns the highest hour offset present in the forecast, or -1 if
// the forecast is empty.
func (f Forecast) MaxHour() int {
	max := -1
	for h := range f {
		if h > max {
			max = h
		}
	}
	return max
}

// BatteryState is a snapshot of the inverter/battery at evaluation time.
type BatteryState struct {
	SOC                 float64 // percent, 0-100
	StoredEnergyWh      float64
	StoredUsableEnergyWh float64
	CapacityWh          float64
	FreeCapacityWh      float64
	MaxCapacityWh       float64
}

// Parameters are the live, mutable control parameters, equivalent to the
// original implementation's CommonLogic/Config singleton fields. They are
// always accessed through a core.ParameterStore, never as package globals.
type Parameters struct {
	AlwaysAllowDischargeLimit float64 // fraction 0-1 of capacity
	MaxChargingFromGridLimit  float64 // fraction 0-1 of capacity
	ChargeRateMultiplier      float64
	MinChargeEnergyWh         float64
	MinPriceDifference        float64 // absolute, currency/kWh
	MinPriceDifferenceRel     float64 // relative, fraction of current price
	ProductionOffsetWh        float64
	DischargeBlocked          bool
	LimitPVChargeRateW        int
	SoftenPriceDifference     bool
	SoftenPriceDifferenceFactor float64
}

// Validate enforces the cross-entity invariant from the data model:
// max_charging_from_grid_limit must stay strictly below
// always_allow_discharge_limit. If violated, the grid-charge limit is lowered
// by one percentage point and the caller is told a repair happened.
func (p *Parameters) Validate() (repaired bool) {
	if p.MaxChargingFromGridLimit >= p.AlwaysAllowDischargeLimit {
		p.MaxChargingFromGridLimit = p.AlwaysAllowDischargeLimit - 0.01
		if p.MaxChargingFromGridLimit < 0 {
			p.MaxChargingFromGridLimit = 0
		}
		repaired = true
	}
	return repaired
}

// DecisionInput is everything the decision engine needs for one evaluation.
type DecisionInput struct {
	Timestamp       time.Time
	NetConsumption  Forecast // positive = consumption, negative = production surplus, by hour offset
	Prices          Forecast // currency per kWh, by hour offset
	Battery         BatteryState
}

// DecisionOutput is the inverter control settings the engine computed.
type DecisionOutput struct {
	AllowDischarge  bool
	ChargeFromGrid  bool
	ChargeRateW     int
	LimitChargeRateW int

	// Diagnostics mirrored from the calculation, useful for status/logging.
	ReservedEnergyWh        float64
	RequiredRechargeEnergyWh float64
	MinDynamicPriceDifference float64
}

// Mode derives the ControlMode a DecisionOutput corresponds to. Automatic
// evaluation never produces ModeLimitPVCharge; that mode is override-only.
func (d DecisionOutput) Mode() ControlMode {
	switch {
	case d.AllowDischarge:
		return ModeAllowDischarge
	case d.ChargeFromGrid:
		return ModeForceCharge
	default:
		return ModeAvoidDischarge
	}
}
