package inverter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// countingDriver wraps fakeDriver and counts real write calls, so tests can
// assert DryRunDriver never forwards them.
type countingDriver struct {
	fakeDriver
	forceChargeCalls int
}

func (d *countingDriver) SetModeForceCharge(ctx context.Context, rateW int) error {
	d.forceChargeCalls++
	return d.fakeDriver.SetModeForceCharge(ctx, rateW)
}

func TestDryRunDriver_WritesAreLoggedNotExecuted(t *testing.T) {
	inner := &countingDriver{fakeDriver: fakeDriver{socValue: 42}}
	dryRun := NewDryRunDriver(inner, nil)

	assert.NoError(t, dryRun.SetModeForceCharge(context.Background(), 500))
	assert.NoError(t, dryRun.SetModeAvoidDischarge(context.Background()))
	assert.NoError(t, dryRun.SetModeAllowDischarge(context.Background()))
	assert.NoError(t, dryRun.SetModeLimitBatteryCharge(context.Background(), 200))

	assert.Equal(t, 0, inner.forceChargeCalls, "dry-run driver must never forward writes to the real driver")
}

func TestDryRunDriver_ReadsPassThrough(t *testing.T) {
	inner := &countingDriver{fakeDriver: fakeDriver{socValue: 77}}
	dryRun := NewDryRunDriver(inner, nil)

	soc, err := dryRun.GetSOC(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 77.0, soc)
}

var _ Driver = (*DryRunDriver)(nil)
