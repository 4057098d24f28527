package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muexxl/batcontrol-go/internal/consumption"
	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/decision"
	"github.com/muexxl/batcontrol-go/internal/inverter"
	"github.com/muexxl/batcontrol-go/internal/solar"
	"github.com/muexxl/batcontrol-go/internal/tariff"
)

// forecastHorizonHours is how far ahead solar and consumption forecasts are
// requested; solar.MinHorizonHours is the floor a cloud-API forecast must
// clear to stay usable, and aligning consumption to the same horizon keeps
// NetConsumption's per-hour subtraction well-defined across the full window.
const forecastHorizonHours = solar.MinHorizonHours

// Publisher receives the outcome of each evaluated tick, decoupled from any
// particular transport (control.StatusStore and control.RecordingPublisher
// implement it; the HTTP/WS/MQTT transports read the StatusStore).
type Publisher interface {
	Publish(ctx context.Context, output core.DecisionOutput, battery core.BatteryState, outage inverter.OutageStatus)
}

// ModeOverride is a one-shot request to bypass the decision engine for
// exactly one tick, matching internal/control.ModeOverride's shape without
// importing that package (control imports scheduler's Publisher, not the
// other way around).
type ModeOverride struct {
	Mode             core.ControlMode
	ChargeRateW      int
	LimitChargeRateW int
}

// OverrideSource supplies at most one pending ModeOverride per call,
// consuming it so the loop returns to automatic evaluation on the next
// tick. Implemented by *control.Surface.
type OverrideSource interface {
	TakeOverride() (ModeOverride, bool)
}

// noopPublisher is used when no control surface is configured.
type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, output core.DecisionOutput, battery core.BatteryState, outage inverter.OutageStatus) {
}

// Scheduler owns the tick pipeline: refreshing forecast providers on their
// own cadence, then on the main evaluation cadence reading the inverter,
// evaluating the decision engine, writing the decision back, and publishing
// status. Ported from the teacher's goroutine+ticker+stopChan scheduler,
// generalized from miner-discovery/price-check tasks to batcontrol's
// provider-refresh/evaluate tasks.
type Scheduler struct {
	appCtx *core.Context

	tariff      tariff.Provider
	solar       solar.Provider
	consumption consumption.Provider
	inverter    inverter.Driver
	engine      *decision.Engine
	publisher   Publisher
	overrides   OverrideSource

	mu                sync.RWMutex
	latestPrices      core.Forecast
	latestProduction  core.Forecast
	latestConsumption core.Forecast

	running  bool
	stopChan chan struct{}
}

// New wires a Scheduler from its providers, inverter facade, and decision
// engine. publisher may be nil, in which case ticks evaluate and act but
// publish nothing.
func New(appCtx *core.Context, tariffProvider tariff.Provider, solarProvider solar.Provider, consumptionProvider consumption.Provider, inv inverter.Driver, engine *decision.Engine, publisher Publisher) *Scheduler {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Scheduler{
		appCtx:      appCtx,
		tariff:      tariffProvider,
		solar:       solarProvider,
		consumption: consumptionProvider,
		inverter:    inv,
		engine:      engine,
		publisher:   publisher,
		stopChan:    make(chan struct{}),
	}
}

// SetOverrideSource wires a control surface's one-shot mode overrides into
// the tick loop. May be called before or after Start.
func (s *Scheduler) SetOverrideSource(overrides OverrideSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = overrides
}

// Start launches the provider-refresh and evaluation periodic tasks and
// blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	// Prime the caches synchronously so the first evaluation tick doesn't
	// run against an empty forecast.
	s.refreshExternal(ctx)
	s.refreshLocal(ctx)

	now := time.Now()
	config := s.appCtx.Config

	tasks := []PeriodicTask{
		{
			Name:         "RefreshExternalProviders",
			InitialDelay: getInitialDelay(now, config.ExternalRefreshInterval),
			Interval:     config.ExternalRefreshInterval,
			RunFunc:      s.refreshExternal,
		},
		{
			Name:         "RefreshLocalProviders",
			InitialDelay: getInitialDelay(now, config.LocalRefreshInterval),
			Interval:     config.LocalRefreshInterval,
			RunFunc:      s.refreshLocal,
		},
		{
			Name:         "Evaluate",
			InitialDelay: getInitialDelay(now, config.EvaluationInterval) + time.Second,
			Interval:     config.EvaluationInterval,
			RunFunc: func(ctx context.Context) {
				if err := s.Tick(ctx); err != nil {
					s.appCtx.Logger.Printf("tick failed: %v", err)
				}
			},
		},
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			task.run(ctx, s.stopChan, s.appCtx.Logger)
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Stop signals every running periodic task to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

func (s *Scheduler) refreshExternal(ctx context.Context) {
	now := time.Now()

	prices, err := s.tariff.GetPrices(ctx, now)
	if err != nil {
		s.appCtx.Logger.Printf("tariff refresh failed: %v", err)
	} else {
		s.mu.Lock()
		s.latestPrices = prices
		s.mu.Unlock()
	}

	production, err := s.solar.GetForecast(ctx, now, forecastHorizonHours)
	if err != nil {
		s.appCtx.Logger.Printf("solar refresh failed: %v", err)
	} else {
		s.mu.Lock()
		s.latestProduction = production
		s.mu.Unlock()
	}
}

func (s *Scheduler) refreshLocal(ctx context.Context) {
	now := time.Now()
	consumed, err := s.consumption.GetForecast(ctx, now, forecastHorizonHours)
	if err != nil {
		s.appCtx.Logger.Printf("consumption refresh failed: %v", err)
		return
	}
	s.mu.Lock()
	s.latestConsumption = consumed
	s.mu.Unlock()
}

// netConsumption subtracts the cached production forecast from the cached
// consumption forecast, hour by hour, yielding the decision engine's signed
// NetConsumption input (positive = net draw, negative = net surplus).
func (s *Scheduler) netConsumption() core.Forecast {
	s.mu.RLock()
	defer s.mu.RUnlock()

	net := make(core.Forecast, len(s.latestConsumption))
	for h, consumed := range s.latestConsumption {
		produced := s.latestProduction[h]
		net[h] = consumed - produced
	}
	return net
}

func (s *Scheduler) prices() core.Forecast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestPrices
}

func (s *Scheduler) takeOverride() (ModeOverride, bool) {
	s.mu.RLock()
	overrides := s.overrides
	s.mu.RUnlock()
	if overrides == nil {
		return ModeOverride{}, false
	}
	return overrides.TakeOverride()
}

// Tick runs one full evaluation cycle: read the inverter, evaluate the
// decision engine against the cached forecasts, write the decision back to
// the inverter, and publish the outcome. Ordering is strict — the inverter
// is never written to before being read in the same cycle.
func (s *Scheduler) Tick(ctx context.Context) error {
	battery, err := s.readBattery(ctx)
	if err != nil {
		return fmt.Errorf("reading battery state: %w", err)
	}

	var output core.DecisionOutput
	mode := core.ModeAvoidDischarge

	if override, ok := s.takeOverride(); ok {
		// A successful mode override bypasses the decision engine entirely
		// for this tick only; the next tick evaluates automatically again.
		mode = override.Mode
		output.ChargeRateW = override.ChargeRateW
		output.LimitChargeRateW = override.LimitChargeRateW
		output.AllowDischarge = mode == core.ModeAllowDischarge
		output.ChargeFromGrid = mode == core.ModeForceCharge
	} else {
		input := core.DecisionInput{
			Timestamp:      time.Now(),
			NetConsumption: s.netConsumption(),
			Prices:         s.prices(),
			Battery:        battery,
		}

		params := s.appCtx.Parameters.Get()
		output = s.engine.Evaluate(input, params)
		mode = output.Mode()

		if params.LimitPVChargeRateW > 0 {
			// Control-surface override: LIMIT_PV_CHARGE is never emitted by
			// the engine itself (it has no concept of it), only requested
			// externally.
			mode = core.ModeLimitPVCharge
			output.LimitChargeRateW = params.LimitPVChargeRateW
		}
	}

	if err := s.applyMode(ctx, mode, output); err != nil {
		return fmt.Errorf("applying decision: %w", err)
	}

	var outage inverter.OutageStatus
	if facade, ok := s.inverter.(*inverter.ResilientFacade); ok {
		outage = facade.GetOutageStatus()
	}
	s.publisher.Publish(ctx, output, battery, outage)
	return nil
}

func (s *Scheduler) readBattery(ctx context.Context) (core.BatteryState, error) {
	soc, err := s.inverter.GetSOC(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	stored, err := s.inverter.GetStoredEnergyWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	storedUsable, err := s.inverter.GetStoredUsableEnergyWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	capacity, err := s.inverter.GetCapacityWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	free, err := s.inverter.GetFreeCapacityWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	maxCapacity, err := s.inverter.GetMaxCapacityWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}

	return core.BatteryState{
		SOC:                  soc,
		StoredEnergyWh:       stored,
		StoredUsableEnergyWh: storedUsable,
		CapacityWh:           capacity,
		FreeCapacityWh:       free,
		MaxCapacityWh:        maxCapacity,
	}, nil
}

func (s *Scheduler) applyMode(ctx context.Context, mode core.ControlMode, output core.DecisionOutput) error {
	switch mode {
	case core.ModeForceCharge:
		return s.inverter.SetModeForceCharge(ctx, output.ChargeRateW)
	case core.ModeAvoidDischarge:
		return s.inverter.SetModeAvoidDischarge(ctx)
	case core.ModeAllowDischarge:
		return s.inverter.SetModeAllowDischarge(ctx)
	case core.ModeLimitPVCharge:
		return s.inverter.SetModeLimitBatteryCharge(ctx, output.LimitChargeRateW)
	default:
		return fmt.Errorf("unknown control mode %v", mode)
	}
}
