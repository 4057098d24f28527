package inverter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// errBackoffNoCache is the underlying cause wrapped into an
// InverterCommError/OutageError when a call is skipped during the backoff
// window and no cached value is available to fall back to.
var errBackoffNoCache = errors.New("inverter call skipped during retry backoff, no cached value available")

// cachedValues holds the last known-good reading of every gauge the facade
// serves from cache during an outage.
type cachedValues struct {
	soc                  float64
	storedEnergyWh       float64
	storedUsableEnergyWh float64
	capacityWh           float64
	freeCapacityWh       float64
	maxCapacityWh        float64

	hasSOC, hasStoredEnergy, hasStoredUsableEnergy bool
	hasCapacity, hasFreeCapacity, hasMaxCapacity    bool

	lastUpdate time.Time
}

// ResilientFacade wraps a Driver and degrades gracefully through
// connectivity outages: reads fall back to the last cached value (or a
// default, for SOC only) while the underlying driver is failing, skip the
// real call entirely during a short post-failure backoff window, and only
// raise OutageError once the driver has been unreachable longer than
// outageTolerance. Writes are never cached and always mark the facade
// initialized on success, mirroring the original implementation's
// resilient wrapper.
type ResilientFacade struct {
	driver Driver

	outageTolerance time.Duration
	retryBackoff    time.Duration

	mu                     sync.Mutex
	cache                  cachedValues
	initializationComplete bool
	lastSuccessTime        *time.Time
	lastFailureTime        *time.Time
	consecutiveFailures    int
	nowFunc                func() time.Time
}

// NewResilientFacade wires a ResilientFacade around driver using the
// outage-tolerance and retry-backoff durations from configuration.
func NewResilientFacade(driver Driver, outageTolerance, retryBackoff time.Duration) *ResilientFacade {
	return &ResilientFacade{
		driver:          driver,
		outageTolerance: outageTolerance,
		retryBackoff:    retryBackoff,
		nowFunc:         time.Now,
	}
}

func (f *ResilientFacade) now() time.Time {
	if f.nowFunc != nil {
		return f.nowFunc()
	}
	return time.Now()
}

// isInBackoffPeriod reports whether a real driver call should be skipped
// because the last failure happened too recently. Must be called with mu
// held.
func (f *ResilientFacade) isInBackoffPeriod() bool {
	if f.lastFailureTime == nil {
		return false
	}
	return f.now().Sub(*f.lastFailureTime) < f.retryBackoff
}

// handleFailure records a failed driver call and decides whether the error
// should be raised to the caller. Before initialization, every failure is
// raised immediately (there is nothing to fall back to). After
// initialization, the outage window is measured from the last successful
// call; once that window exceeds outageTolerance, an OutageError is
// returned instead of the original error. Must be called with mu held.
func (f *ResilientFacade) handleFailure(operation string, err error) error {
	now := f.now()
	f.lastFailureTime = &now
	f.consecutiveFailures++

	if !f.initializationComplete {
		return &core.InverterCommError{Operation: operation, Cause: err}
	}

	if f.lastSuccessTime != nil {
		outageDuration := now.Sub(*f.lastSuccessTime)
		if outageDuration >= f.outageTolerance {
			return &core.OutageError{Operation: operation, OutageDuration: outageDuration.Seconds()}
		}
	}
	return &core.InverterCommError{Operation: operation, Cause: err}
}

// handleSuccess records the success time and, if markInitialized is set,
// marks the facade as having completed at least one successful call. Must
// be called with mu held.
func (f *ResilientFacade) handleSuccess(markInitialized bool) {
	now := f.now()
	f.lastSuccessTime = &now
	f.lastFailureTime = nil
	f.consecutiveFailures = 0
	if markInitialized {
		f.initializationComplete = true
	}
}

// getCachedOrDefault returns the cached value if present, else defaultValue
// if hasDefault is true, else returns ok=false so the caller can propagate
// the original failure.
func getCachedOrDefault(value float64, has bool, defaultValue float64, hasDefault bool) (float64, bool) {
	if has {
		return value, true
	}
	if hasDefault {
		return defaultValue, true
	}
	return 0, false
}

// readWithResilience implements the shared skip-backoff / call / cache /
// fallback flow for every read gauge. fetch performs the real driver call;
// getCache/setCache access the field in f.cache for this particular gauge.
func (f *ResilientFacade) readWithResilience(
	ctx context.Context,
	operation string,
	fetch func(context.Context) (float64, error),
	getCache func(cachedValues) (float64, bool),
	setCache func(*cachedValues, float64),
	defaultValue float64,
	hasDefault bool,
) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isInBackoffPeriod() {
		cached, ok := getCache(f.cache)
		if v, ok2 := getCachedOrDefault(cached, ok, defaultValue, hasDefault); ok2 {
			return v, nil
		}
		return 0, f.handleFailure(operation, errBackoffNoCache)
	}

	value, err := fetch(ctx)
	if err != nil {
		cached, ok := getCache(f.cache)
		fallback, fallbackOK := getCachedOrDefault(cached, ok, defaultValue, hasDefault)
		wrapped := f.handleFailure(operation, err)
		var outage *core.OutageError
		if fallbackOK && f.initializationComplete && !errors.As(wrapped, &outage) {
			return fallback, nil
		}
		return 0, wrapped
	}

	setCache(&f.cache, value)
	f.cache.lastUpdate = f.now()
	f.handleSuccess(true)
	return value, nil
}

func (f *ResilientFacade) GetSOC(ctx context.Context) (float64, error) {
	return f.readWithResilience(ctx, "GetSOC", f.driver.GetSOC,
		func(c cachedValues) (float64, bool) { return c.soc, c.hasSOC },
		func(c *cachedValues, v float64) { c.soc, c.hasSOC = v, true },
		50.0, true,
	)
}

func (f *ResilientFacade) GetStoredEnergyWh(ctx context.Context) (float64, error) {
	return f.readWithResilience(ctx, "GetStoredEnergyWh", f.driver.GetStoredEnergyWh,
		func(c cachedValues) (float64, bool) { return c.storedEnergyWh, c.hasStoredEnergy },
		func(c *cachedValues, v float64) { c.storedEnergyWh, c.hasStoredEnergy = v, true },
		0, false,
	)
}

func (f *ResilientFacade) GetStoredUsableEnergyWh(ctx context.Context) (float64, error) {
	return f.readWithResilience(ctx, "GetStoredUsableEnergyWh", f.driver.GetStoredUsableEnergyWh,
		func(c cachedValues) (float64, bool) { return c.storedUsableEnergyWh, c.hasStoredUsableEnergy },
		func(c *cachedValues, v float64) { c.storedUsableEnergyWh, c.hasStoredUsableEnergy = v, true },
		0, false,
	)
}

func (f *ResilientFacade) GetCapacityWh(ctx context.Context) (float64, error) {
	return f.readWithResilience(ctx, "GetCapacityWh", f.driver.GetCapacityWh,
		func(c cachedValues) (float64, bool) { return c.capacityWh, c.hasCapacity },
		func(c *cachedValues, v float64) { c.capacityWh, c.hasCapacity = v, true },
		0, false,
	)
}

func (f *ResilientFacade) GetFreeCapacityWh(ctx context.Context) (float64, error) {
	return f.readWithResilience(ctx, "GetFreeCapacityWh", f.driver.GetFreeCapacityWh,
		func(c cachedValues) (float64, bool) { return c.freeCapacityWh, c.hasFreeCapacity },
		func(c *cachedValues, v float64) { c.freeCapacityWh, c.hasFreeCapacity = v, true },
		0, false,
	)
}

func (f *ResilientFacade) GetMaxCapacityWh(ctx context.Context) (float64, error) {
	return f.readWithResilience(ctx, "GetMaxCapacityWh", f.driver.GetMaxCapacityWh,
		func(c cachedValues) (float64, bool) { return c.maxCapacityWh, c.hasMaxCapacity },
		func(c *cachedValues, v float64) { c.maxCapacityWh, c.hasMaxCapacity = v, true },
		0, false,
	)
}

// writeWithResilience implements the shared flow for mode-setting calls:
// writes are never cached, skip the real call during backoff (raising
// immediately since there is no cached value for a command), and always
// mark the facade initialized on success.
func (f *ResilientFacade) writeWithResilience(operation string, call func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isInBackoffPeriod() {
		return f.handleFailure(operation, errBackoffNoCache)
	}

	if err := call(); err != nil {
		return f.handleFailure(operation, err)
	}
	f.handleSuccess(true)
	return nil
}

func (f *ResilientFacade) SetModeForceCharge(ctx context.Context, chargeRateW int) error {
	return f.writeWithResilience("SetModeForceCharge", func() error {
		return f.driver.SetModeForceCharge(ctx, chargeRateW)
	})
}

func (f *ResilientFacade) SetModeAvoidDischarge(ctx context.Context) error {
	return f.writeWithResilience("SetModeAvoidDischarge", func() error {
		return f.driver.SetModeAvoidDischarge(ctx)
	})
}

func (f *ResilientFacade) SetModeAllowDischarge(ctx context.Context) error {
	return f.writeWithResilience("SetModeAllowDischarge", func() error {
		return f.driver.SetModeAllowDischarge(ctx)
	})
}

func (f *ResilientFacade) SetModeLimitBatteryCharge(ctx context.Context, limitChargeRateW int) error {
	return f.writeWithResilience("SetModeLimitBatteryCharge", func() error {
		return f.driver.SetModeLimitBatteryCharge(ctx, limitChargeRateW)
	})
}

// OutageStatus is a diagnostic snapshot of the facade's health, mirroring
// the original implementation's outage-status dict.
type OutageStatus struct {
	Initialized         bool
	InOutage            bool
	ConsecutiveFailures int
	OutageDurationSec   float64
	LastUpdate          time.Time
}

// GetOutageStatus reports the facade's current health for diagnostics and
// publication, never itself touching the driver.
func (f *ResilientFacade) GetOutageStatus() OutageStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := OutageStatus{
		Initialized:         f.initializationComplete,
		ConsecutiveFailures: f.consecutiveFailures,
		LastUpdate:          f.cache.lastUpdate,
	}
	if f.lastFailureTime != nil && f.lastSuccessTime != nil {
		status.InOutage = true
		status.OutageDurationSec = f.now().Sub(*f.lastSuccessTime).Seconds()
	}
	return status
}

var _ Driver = (*ResilientFacade)(nil)
