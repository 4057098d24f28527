// Package advisory computes a perfect-foresight, profit-optimal battery
// schedule over the current forecast horizon and logs it alongside the
// decision engine's rule-based choice for the same tick. It never drives the
// inverter; it is a side readout for operators comparing the running
// heuristic against "what would have been optimal in hindsight".
package advisory

import (
	"math"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// SystemConfig is the physical battery/grid envelope the optimizer reasons
// about, derived from the live battery state by SystemConfigFromState.
type SystemConfig struct {
	CapacityWh       float64
	MaxChargeW       float64
	MaxDischargeW    float64
	MinSOC           float64 // fraction 0-1
	MaxSOC           float64 // fraction 0-1
	RoundTripEff     float64 // 0-1
	DegradationCost  float64 // currency per Wh cycled
	MaxGridImportW   float64
	MaxGridExportW   float64
}

// HourlyPlan is the forecast input for one hour of the horizon.
type HourlyPlan struct {
	Hour           int
	Price          float64 // currency/kWh
	NetConsumption float64 // Wh for the hour, positive = draw, negative = surplus
}

// Decision is the optimizer's recommended action for one hour.
type Decision struct {
	Hour          int
	ChargeW       float64
	DischargeW    float64
	GridImportW   float64
	GridExportW   float64
	SOC           float64 // fraction 0-1, after this hour
	Profit        float64 // currency, this hour only
}

// Optimizer finds the profit-maximizing SOC trajectory over a forecast
// horizon via the same discretized forward/backward dynamic program the
// teacher's MPC controller used for miner-load scheduling, now applied to
// charge/discharge/grid decisions instead of miner on/off decisions.
type Optimizer struct {
	config     SystemConfig
	socSteps   int
	currentSOC float64
}

// NewOptimizer builds an Optimizer for the given physical envelope, starting
// from currentSOC (fraction 0-1).
func NewOptimizer(config SystemConfig, currentSOC float64) *Optimizer {
	return &Optimizer{config: config, socSteps: 200, currentSOC: currentSOC}
}

// Advise runs the DP optimizer over plan and returns the optimal decision
// for every hour, given perfect knowledge of plan's prices and consumption.
func (o *Optimizer) Advise(plan []HourlyPlan) []Decision {
	if len(plan) == 0 {
		return nil
	}

	socStep := (o.config.MaxSOC - o.config.MinSOC) / float64(o.socSteps)

	type dpState struct {
		profit   float64
		decision Decision
		prevSOC  int
	}

	dp := make([][]dpState, len(plan)+1)
	for i := range dp {
		dp[i] = make([]dpState, o.socSteps+1)
		for j := range dp[i] {
			dp[i][j].profit = math.Inf(-1)
		}
	}

	startIdx := o.socToIndex(o.currentSOC, socStep)
	dp[0][clampIndex(startIdx, o.socSteps)].profit = 0

	for t, hour := range plan {
		for socIdx := 0; socIdx <= o.socSteps; socIdx++ {
			if math.IsInf(dp[t][socIdx].profit, -1) {
				continue
			}
			currentSOC := o.indexToSOC(socIdx, socStep)

			for _, dec := range o.feasibleDecisions(currentSOC, hour) {
				newSOC := o.nextSOC(currentSOC, dec.ChargeW, dec.DischargeW)
				newIdx := o.socToIndex(newSOC, socStep)
				if newIdx < 0 || newIdx > o.socSteps {
					continue
				}

				profit := o.profit(dec, hour)
				total := dp[t][socIdx].profit + profit

				if total > dp[t+1][newIdx].profit {
					dec.SOC = newSOC
					dec.Profit = profit
					dp[t+1][newIdx].profit = total
					dp[t+1][newIdx].decision = dec
					dp[t+1][newIdx].prevSOC = socIdx
				}
			}
		}
	}

	bestFinalIdx, bestFinalProfit := 0, math.Inf(-1)
	for socIdx := 0; socIdx <= o.socSteps; socIdx++ {
		if dp[len(plan)][socIdx].profit > bestFinalProfit {
			bestFinalProfit = dp[len(plan)][socIdx].profit
			bestFinalIdx = socIdx
		}
	}

	path := make([]Decision, len(plan))
	idx := bestFinalIdx
	for t := len(plan) - 1; t >= 0; t-- {
		path[t] = dp[t+1][idx].decision
		idx = dp[t+1][idx].prevSOC
	}
	return path
}

func (o *Optimizer) feasibleDecisions(soc float64, hour HourlyPlan) []Decision {
	type action struct{ chargeW, dischargeW float64 }
	actions := []action{{0, 0}}

	const steps = 5
	for i := 1; i <= steps; i++ {
		chargeW := float64(i) * o.config.MaxChargeW / steps
		if o.canCharge(soc, chargeW) {
			actions = append(actions, action{chargeW: chargeW})
		}
	}
	for i := 1; i <= steps; i++ {
		dischargeW := float64(i) * o.config.MaxDischargeW / steps
		if o.canDischarge(soc, dischargeW) {
			actions = append(actions, action{dischargeW: dischargeW})
		}
	}

	decisions := make([]Decision, 0, len(actions))
	for _, a := range actions {
		dec := Decision{Hour: hour.Hour, ChargeW: a.chargeW, DischargeW: a.dischargeW}

		netSupply := a.dischargeW * o.config.RoundTripEff
		netDemand := hour.NetConsumption + a.chargeW/o.config.RoundTripEff
		balance := netSupply - netDemand

		if balance > 0 {
			dec.GridExportW = math.Min(balance, o.config.MaxGridExportW)
		} else {
			dec.GridImportW = math.Min(-balance, o.config.MaxGridImportW)
		}

		if o.isFeasible(dec) {
			decisions = append(decisions, dec)
		}
	}
	return decisions
}

func (o *Optimizer) profit(dec Decision, hour HourlyPlan) float64 {
	pricePerWh := hour.Price / 1000
	revenue := dec.GridExportW * pricePerWh
	cost := dec.GridImportW * pricePerWh
	throughput := dec.ChargeW + dec.DischargeW
	degradation := throughput * o.config.DegradationCost
	return revenue - cost - degradation
}

func (o *Optimizer) canCharge(soc, chargeW float64) bool {
	newSOC := soc + chargeW/o.config.CapacityWh
	return newSOC <= o.config.MaxSOC
}

func (o *Optimizer) canDischarge(soc, dischargeW float64) bool {
	newSOC := soc - dischargeW/o.config.CapacityWh
	return newSOC >= o.config.MinSOC
}

func (o *Optimizer) nextSOC(currentSOC, chargeW, dischargeW float64) float64 {
	chargeEnergy := chargeW * o.config.RoundTripEff
	socChange := (chargeEnergy - dischargeW) / o.config.CapacityWh
	newSOC := currentSOC + socChange
	return math.Max(o.config.MinSOC, math.Min(o.config.MaxSOC, newSOC))
}

func (o *Optimizer) socToIndex(soc, socStep float64) int {
	return int(math.Round((soc - o.config.MinSOC) / socStep))
}

func (o *Optimizer) indexToSOC(index int, socStep float64) float64 {
	return o.config.MinSOC + float64(index)*socStep
}

func (o *Optimizer) isFeasible(dec Decision) bool {
	switch {
	case dec.ChargeW > o.config.MaxChargeW:
		return false
	case dec.DischargeW > o.config.MaxDischargeW:
		return false
	case dec.GridImportW > o.config.MaxGridImportW:
		return false
	case dec.GridExportW > o.config.MaxGridExportW:
		return false
	default:
		return true
	}
}

func clampIndex(idx, max int) int {
	if idx < 0 {
		return 0
	}
	if idx > max {
		return max
	}
	return idx
}

// SystemConfigFromState derives a SystemConfig from the live battery state
// (params is not used), so the advisory optimizer reasons about the same
// physical envelope the real inverter reports, not a separately configured
// one that could drift out of sync.
func SystemConfigFromState(battery core.BatteryState, params core.Parameters) SystemConfig {
	return SystemConfig{
		CapacityWh:      battery.MaxCapacityWh,
		MaxChargeW:      battery.FreeCapacityWh, // headroom achievable within one hour
		MaxDischargeW:   battery.StoredUsableEnergyWh,
		MinSOC:          0,
		MaxSOC:          1,
		RoundTripEff:    0.95,
		DegradationCost: 0,
		MaxGridImportW:  math.Max(battery.MaxCapacityWh, 1),
		MaxGridExportW:  math.Max(battery.MaxCapacityWh, 1),
	}
}

// Comparison pairs the advisory's recommendation for the current hour
// against the decision engine's own output, for operator-facing logging.
type Comparison struct {
	AdvisedChargeW    float64
	AdvisedDischargeW float64
	AdvisedProfit     float64
	EngineAllowedDischarge bool
	EngineChargeFromGrid   bool
	EngineChargeRateW      int
}

// Compare builds a Comparison from the optimizer's first-hour decision and
// the engine's actual output for the same tick. It never feeds back into
// engineOutput or the inverter — purely a log-line input.
func Compare(advised []Decision, engineOutput core.DecisionOutput) Comparison {
	var first Decision
	if len(advised) > 0 {
		first = advised[0]
	}
	return Comparison{
		AdvisedChargeW:         first.ChargeW,
		AdvisedDischargeW:      first.DischargeW,
		AdvisedProfit:          first.Profit,
		EngineAllowedDischarge: engineOutput.AllowDischarge,
		EngineChargeFromGrid:   engineOutput.ChargeFromGrid,
		EngineChargeRateW:      engineOutput.ChargeRateW,
	}
}

// BuildPlan composes a tariff/netConsumption forecast pair into the
// optimizer's per-hour input, covering every hour both forecasts share.
func BuildPlan(prices, netConsumption core.Forecast) []HourlyPlan {
	maxHour := prices.MaxHour()
	if nc := netConsumption.MaxHour(); nc > maxHour {
		maxHour = nc
	}

	plan := make([]HourlyPlan, 0, maxHour+1)
	for h := 0; h <= maxHour; h++ {
		price, hasPrice := prices[h]
		consumption, hasConsumption := netConsumption[h]
		if !hasPrice || !hasConsumption {
			continue
		}
		plan = append(plan, HourlyPlan{Hour: h, Price: price, NetConsumption: consumption})
	}
	return plan
}
