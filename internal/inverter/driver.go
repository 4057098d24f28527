// Package inverter implements the C4 inverter facade: a Driver interface per
// vendor protocol, a Modbus driver for Sigenergy-style inverters, a resilient
// wrapper that degrades gracefully through connectivity outages, and a
// snapshot store that persists a mode/charge-rate record to disk (it is not
// written back to the inverter).
package inverter

import "context"

// Driver is the contract every inverter protocol implementation satisfies,
// replacing the original implementation's InverterInterface abstract base
// class + per-vendor subclass chain.
type Driver interface {
	GetSOC(ctx context.Context) (float64, error)
	GetStoredEnergyWh(ctx context.Context) (float64, error)
	GetStoredUsableEnergyWh(ctx context.Context) (float64, error)
	GetCapacityWh(ctx context.Context) (float64, error)
	GetFreeCapacityWh(ctx context.Context) (float64, error)
	GetMaxCapacityWh(ctx context.Context) (float64, error)

	SetModeForceCharge(ctx context.Context, chargeRateW int) error
	SetModeAvoidDischarge(ctx context.Context) error
	SetModeAllowDischarge(ctx context.Context) error
	SetModeLimitBatteryCharge(ctx context.Context, limitChargeRateW int) error
}
