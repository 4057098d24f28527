// Package control implements the external control surface: typed setters
// external systems use to override or tune the running decision loop, and
// the transports (HTTP, WebSocket, MQTT) that expose them.
package control

import (
	"context"
	"sync"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/scheduler"
)

// ModeOverride is a one-shot request to bypass the decision engine for
// exactly one tick, set through Surface.SetMode. It is consumed by the
// scheduler via TakeOverride; the loop returns to automatic evaluation on
// the next tick, per spec.md §4.5.3.
type ModeOverride = scheduler.ModeOverride

// Surface is the typed setter surface of spec.md §6, backed by the live
// core.ParameterStore for the sticky parameters and a small internal slot
// for the one-shot mode override. Every command transport (http.go, mqtt.go)
// is a thin adapter calling into this same set of methods, so validation
// lives in exactly one place regardless of which wire protocol a deployment
// chooses.
type Surface struct {
	Parameters *core.ParameterStore

	mu       sync.Mutex
	override *ModeOverride
}

// NewSurface wires a Surface to the live parameter store.
func NewSurface(params *core.ParameterStore) *Surface {
	return &Surface{Parameters: params}
}

// SetMode requests mode for exactly the next scheduler tick, bypassing the
// decision engine. chargeRateW is meaningful only for FORCE_CHARGE;
// limitChargeRateW only for LIMIT_PV_CHARGE.
func (s *Surface) SetMode(ctx context.Context, mode core.ControlMode, chargeRateW, limitChargeRateW int) error {
	switch mode {
	case core.ModeForceCharge, core.ModeAvoidDischarge, core.ModeAllowDischarge, core.ModeLimitPVCharge:
	default:
		return &core.InvalidOverrideError{Msg: "unknown mode value"}
	}
	if chargeRateW < 0 {
		return &core.InvalidOverrideError{Msg: "charge_rate_w must be >= 0"}
	}
	if limitChargeRateW < 0 {
		return &core.InvalidOverrideError{Msg: "limit_pv_charge_rate_w must be >= 0"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = &ModeOverride{Mode: mode, ChargeRateW: chargeRateW, LimitChargeRateW: limitChargeRateW}
	return nil
}

// TakeOverride returns and clears the pending one-shot mode override, if
// any. Called once per tick by the scheduler.
func (s *Surface) TakeOverride() (ModeOverride, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override == nil {
		return ModeOverride{}, false
	}
	o := *s.override
	s.override = nil
	return o, true
}

// SetChargeRate sets the raw charge rate of the pending one-shot override.
// With no override pending it does nothing, and a later SetMode replaces the
// pending override, rate included; batcontrol itself only ever derives
// charge rate from the decision engine, this is purely an override input.
func (s *Surface) SetChargeRate(ctx context.Context, wattsW int) error {
	if wattsW < 0 {
		return &core.InvalidOverrideError{Msg: "charge_rate_w must be >= 0"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override != nil {
		s.override.ChargeRateW = wattsW
	}
	return nil
}

func (s *Surface) SetAlwaysAllowDischargeLimit(ctx context.Context, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return &core.InvalidOverrideError{Msg: "always_allow_discharge_limit must be between 0 and 1"}
	}
	s.Parameters.Update(func(p *core.Parameters) { p.AlwaysAllowDischargeLimit = fraction })
	return nil
}

func (s *Surface) SetMaxChargingFromGridLimit(ctx context.Context, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return &core.InvalidOverrideError{Msg: "max_charging_from_grid_limit must be between 0 and 1"}
	}
	s.Parameters.Update(func(p *core.Parameters) { p.MaxChargingFromGridLimit = fraction })
	return nil
}

func (s *Surface) SetMinPriceDifference(ctx context.Context, value float64) error {
	if value < 0 {
		return &core.InvalidOverrideError{Msg: "min_price_difference must be >= 0"}
	}
	s.Parameters.Update(func(p *core.Parameters) { p.MinPriceDifference = value })
	return nil
}

func (s *Surface) SetMinPriceDifferenceRel(ctx context.Context, value float64) error {
	if value < 0 {
		return &core.InvalidOverrideError{Msg: "min_price_difference_rel must be >= 0"}
	}
	s.Parameters.Update(func(p *core.Parameters) { p.MinPriceDifferenceRel = value })
	return nil
}

func (s *Surface) SetProductionOffset(ctx context.Context, value float64) error {
	if value < 0 || value > 2 {
		return &core.InvalidOverrideError{Msg: "production_offset must be between 0 and 2"}
	}
	s.Parameters.Update(func(p *core.Parameters) { p.ProductionOffsetWh = value })
	return nil
}

func (s *Surface) SetDischargeBlocked(ctx context.Context, blocked bool) error {
	s.Parameters.Update(func(p *core.Parameters) { p.DischargeBlocked = blocked })
	return nil
}

func (s *Surface) SetLimitPVChargeRate(ctx context.Context, wattsW int) error {
	if wattsW < 0 {
		return &core.InvalidOverrideError{Msg: "limit_pv_charge_rate_w must be >= 0"}
	}
	s.Parameters.Update(func(p *core.Parameters) { p.LimitPVChargeRateW = wattsW })
	return nil
}
