// Package decision implements the deterministic rule-based control engine:
// given a battery state, a consumption/production forecast and a price
// forecast, it decides whether discharge is allowed and, if not, whether and
// how hard to force-charge from the grid. It makes no economic-optimality
// claim; see internal/advisory for a non-authoritative profit-optimal
// comparison.
package decision

import (
	"math"
	"sort"

	"github.com/muexxl/batcontrol-go/internal/battery"
	"github.com/muexxl/batcontrol-go/internal/core"
)

// currentIntervalFraction is the elapsed fraction of the current hour, e.g.
// 0.75 at minute 45.
func currentIntervalFraction(minute int) float64 {
	return float64(minute) / 60.0
}

// Engine evaluates DecisionInput against the current Parameters.
type Engine struct {
	// RoundPriceDigits controls rounding of the dynamic price difference.
	RoundPriceDigits int
}

// NewEngine returns an Engine with the default rounding used throughout the
// rest of the system (4 decimal digits).
func NewEngine() *Engine {
	return &Engine{RoundPriceDigits: 4}
}

// Evaluate computes the control decision for one tick.
func (e *Engine) Evaluate(input core.DecisionInput, params core.Parameters) core.DecisionOutput {
	input.NetConsumption = scaleCurrentInterval(input.NetConsumption, input.Timestamp.Minute())

	out := core.DecisionOutput{}

	allowed := false
	var reserved, minDynPriceDiff float64
	if !params.DischargeBlocked {
		allowed, reserved, minDynPriceDiff = e.isDischargeAllowed(input, params)
	} else {
		minDynPriceDiff = e.minDynamicPriceDifference(input.Prices[0], params)
	}
	out.ReservedEnergyWh = reserved
	out.MinDynamicPriceDifference = minDynPriceDiff

	if allowed {
		out.AllowDischarge = true
		return out
	}

	out.AllowDischarge = false

	chargingLimitPercent := params.MaxChargingFromGridLimit * 100
	requiredRechargeEnergy := e.requiredRechargeEnergy(input, params, minDynPriceDiff)
	out.RequiredRechargeEnergyWh = requiredRechargeEnergy

	isChargingPossible := input.Battery.SOC < chargingLimitPercent

	if isChargingPossible && battery.IsChargingAboveMinimum(requiredRechargeEnergy, params) {
		remainingTime := float64(60-input.Timestamp.Minute()) / 60.0
		rawChargeRate := requiredRechargeEnergy / remainingTime
		out.ChargeFromGrid = true
		out.ChargeRateW = battery.CalculateChargeRate(rawChargeRate, params)
	}

	return out
}

// isDischargeAllowed mirrors is_discharge_allowed: checks the always-allow
// SOC threshold, then walks the evaluation window latest-hour-first,
// reserving battery energy for upcoming higher-price hours that cannot be
// covered by forecast solar surplus.
func (e *Engine) isDischargeAllowed(input core.DecisionInput, params core.Parameters) (allowed bool, reserved, minDynPriceDiff float64) {
	if battery.IsDischargeAlwaysAllowedSOC(input.Battery.SOC, params) {
		return true, 0, 0
	}

	prices := input.Prices
	netConsumption := input.NetConsumption
	currentPrice := prices[0]

	minDynPriceDiff = e.minDynamicPriceDifference(currentPrice, params)

	maxHour := netConsumption.MaxHour() + 1
	for h := 1; h < maxHour; h++ {
		futurePrice := prices[h]
		if futurePrice <= currentPrice-minDynPriceDiff {
			maxHour = h
			break
		}
	}

	consumption, production := splitConsumptionProduction(netConsumption, maxHour)

	var higherPriceHours []int
	for h := 0; h < maxHour; h++ {
		if prices[h] > currentPrice {
			higherPriceHours = append(higherPriceHours, h)
		}
	}
	// latest hour first
	sort.Sort(sort.Reverse(sort.IntSlice(higherPriceHours)))

	reservedStorage := 0.0
	for _, hour := range higherPriceHours {
		if consumption[hour] == 0 {
			continue
		}
		requiredEnergy := consumption[hour]

		for h := hour - 1; h >= 0; h-- {
			if production[h] == 0 {
				continue
			}
			if production[h] >= requiredEnergy {
				production[h] -= requiredEnergy
				requiredEnergy = 0
				break
			}
			requiredEnergy -= production[h]
			production[h] = 0
		}
		reservedStorage += requiredEnergy
	}

	return input.Battery.StoredUsableEnergyWh > reservedStorage, reservedStorage, minDynPriceDiff
}

// requiredRechargeEnergy mirrors get_required_required_recharge_energy: finds
// the high-price hours nearest-first up to the point the price drops back to
// or below the current price, sums the consumption in those hours not
// already covered by earlier forecast solar surplus, and clamps the result
// by stored usable energy and free battery capacity.
//
// required_recharge_energy is always recomputed from requiredEnergy and
// storedUsableEnergy at the point of use below; no intermediate variable is
// reused or shadowed across the free-capacity clamp.
func (e *Engine) requiredRechargeEnergy(input core.DecisionInput, params core.Parameters, minDynPriceDiff float64) float64 {
	prices := input.Prices
	maxHour := input.NetConsumption.MaxHour() + 1
	currentPrice := prices[0]

	consumption, production := splitConsumptionProduction(input.NetConsumption, maxHour)

	for h := 1; h < maxHour; h++ {
		futurePrice := prices[h]
		var foundLowerPrice bool
		if params.SoftenPriceDifference {
			modifiedPrice := currentPrice - params.MinPriceDifference/params.SoftenPriceDifferenceFactor
			foundLowerPrice = futurePrice <= modifiedPrice
		} else {
			foundLowerPrice = futurePrice <= currentPrice
		}
		if foundLowerPrice {
			maxHour = h
			break
		}
	}

	var highPriceHours []int
	for h := 0; h < maxHour; h++ {
		if prices[h] > currentPrice+minDynPriceDiff {
			highPriceHours = append(highPriceHours, h)
		}
	}
	sort.Ints(highPriceHours) // nearest hour first

	requiredEnergy := 0.0
	for _, hour := range highPriceHours {
		energyToShift := consumption[hour]

		for h := 1; h < hour; h++ {
			if production[h] == 0 {
				continue
			}
			if production[h] >= energyToShift {
				production[h] -= energyToShift
				energyToShift = 0
				break
			}
			energyToShift -= production[h]
			production[h] = 0
		}
		requiredEnergy += energyToShift
	}

	rechargeEnergy := 0.0
	if requiredEnergy > 0 {
		rechargeEnergy = requiredEnergy - input.Battery.StoredUsableEnergyWh
	}
	if rechargeEnergy <= 0 {
		rechargeEnergy = 0
	}
	if freeCapacity := input.Battery.FreeCapacityWh; rechargeEnergy > freeCapacity {
		rechargeEnergy = freeCapacity
	}

	return rechargeEnergy
}

// minDynamicPriceDifference is the per-tick price-difference band: at least
// MinPriceDifference absolute, or MinPriceDifferenceRel times the current
// price, whichever is larger.
func (e *Engine) minDynamicPriceDifference(price float64, params core.Parameters) float64 {
	diff := math.Max(params.MinPriceDifference, params.MinPriceDifferenceRel*math.Abs(price))
	scale := math.Pow(10, float64(e.RoundPriceDigits))
	return math.Round(diff*scale) / scale
}

// scaleCurrentInterval scales hour 0 of forecast by the fraction of the
// current hour still remaining, since only that much of hour 0's consumption
// is still ahead of us. Returns a copy; the input forecast (which callers may
// reuse after Evaluate returns) is never mutated.
func scaleCurrentInterval(forecast core.Forecast, minute int) core.Forecast {
	if _, ok := forecast[0]; !ok {
		return forecast
	}
	scaled := make(core.Forecast, len(forecast))
	for h, v := range forecast {
		scaled[h] = v
	}
	scaled[0] *= 1 - currentIntervalFraction(minute)
	return scaled
}

// splitConsumptionProduction separates a signed net-consumption forecast
// (positive = consumption, negative = production surplus) into two
// non-negative forecasts over hours [0, maxHour).
func splitConsumptionProduction(netConsumption core.Forecast, maxHour int) (consumption, production map[int]float64) {
	consumption = make(map[int]float64, maxHour)
	production = make(map[int]float64, maxHour)
	for h := 0; h < maxHour; h++ {
		v := netConsumption[h]
		if v > 0 {
			consumption[h] = v
		}
		if v < 0 {
			production[h] = -v
		}
	}
	return consumption, production
}
