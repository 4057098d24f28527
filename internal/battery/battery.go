// Package battery holds battery-state math that is common across control
// strategies: always-allow-discharge thresholds and the charge-rate
// multiplier/floor. It has no strategy-specific logic and no shared mutable
// state; every function takes its parameters explicitly.
package battery

import (
	"math"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// MinChargeRateW is the minimum charge rate to avoid the inverter's control
// loop oscillating between charging and self-discharge.
const MinChargeRateW = 500

// IsDischargeAlwaysAllowedSOC reports whether the battery's state of charge
// (0-100) is at or above the always-allow-discharge threshold.
func IsDischargeAlwaysAllowedSOC(soc float64, p core.Parameters) bool {
	return soc/100 >= p.AlwaysAllowDischargeLimit
}

// IsDischargeAlwaysAllowedCapacity reports whether stored energy (Wh) is at
// or above the always-allow-discharge threshold of max capacity.
func IsDischargeAlwaysAllowedCapacity(storedWh, maxCapacityWh float64, p core.Parameters) bool {
	return storedWh >= maxCapacityWh*p.AlwaysAllowDischargeLimit
}

// IsChargingAboveMinimum reports whether the requested recharge energy is
// large enough to be worth a grid-charge command at all, rather than
// chattering the inverter into FORCE_CHARGE over a handful of watt-hours.
func IsChargingAboveMinimum(neededEnergyWh float64, p core.Parameters) bool {
	return neededEnergyWh > p.MinChargeEnergyWh
}

// CalculateChargeRate applies the configured multiplier to a raw charge
// rate (W), then floors it at MinChargeRateW and rounds to the nearest watt.
func CalculateChargeRate(chargeRateW float64, p core.Parameters) int {
	adjusted := chargeRateW * p.ChargeRateMultiplier
	if adjusted < MinChargeRateW {
		adjusted = MinChargeRateW
	}
	return int(math.Round(adjusted))
}
