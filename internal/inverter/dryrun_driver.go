package inverter

import (
	"context"
	"log"
)

// DryRunDriver wraps a Driver and logs every mode-setting call instead of
// executing it, mirroring the teacher's config.DryRun handling in
// executeMPCDecision/runDataIntegration (simulate the action, log what would
// have happened, touch nothing). Reads pass straight through so the rest of
// the pipeline — forecasts, the decision engine, status reporting — still
// sees the real battery.
type DryRunDriver struct {
	Driver
	logger *log.Logger
}

// NewDryRunDriver wraps driver so its write methods are logged, not executed.
func NewDryRunDriver(driver Driver, logger *log.Logger) *DryRunDriver {
	if logger == nil {
		logger = log.Default()
	}
	return &DryRunDriver{Driver: driver, logger: logger}
}

func (d *DryRunDriver) SetModeForceCharge(ctx context.Context, chargeRateW int) error {
	d.logger.Printf("dry-run: would SetModeForceCharge(%d W)", chargeRateW)
	return nil
}

func (d *DryRunDriver) SetModeAvoidDischarge(ctx context.Context) error {
	d.logger.Printf("dry-run: would SetModeAvoidDischarge()")
	return nil
}

func (d *DryRunDriver) SetModeAllowDischarge(ctx context.Context) error {
	d.logger.Printf("dry-run: would SetModeAllowDischarge()")
	return nil
}

func (d *DryRunDriver) SetModeLimitBatteryCharge(ctx context.Context, limitChargeRateW int) error {
	d.logger.Printf("dry-run: would SetModeLimitBatteryCharge(%d W)", limitChargeRateW)
	return nil
}

var _ Driver = (*DryRunDriver)(nil)
