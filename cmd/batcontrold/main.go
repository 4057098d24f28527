// Command batcontrold runs the battery control daemon: it loads configuration,
// wires the configured tariff/solar/consumption providers and inverter driver,
// and runs the scheduler until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/muexxl/batcontrol-go/internal/advisory"
	"github.com/muexxl/batcontrol-go/internal/consumption"
	"github.com/muexxl/batcontrol-go/internal/control"
	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/decision"
	"github.com/muexxl/batcontrol-go/internal/forecastalign"
	"github.com/muexxl/batcontrol-go/internal/interval"
	"github.com/muexxl/batcontrol-go/internal/inverter"
	"github.com/muexxl/batcontrol-go/internal/providercache"
	"github.com/muexxl/batcontrol-go/internal/scheduler"
	"github.com/muexxl/batcontrol-go/internal/solar"
	"github.com/muexxl/batcontrol-go/internal/tariff"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		info       = flag.Bool("info", false, "Show live plant/battery information and exit")
		help       = flag.Bool("help", false, "Show help message")
		whatif     = flag.Bool("whatif", false, "Run one tick's advisory optimizer and print it against the engine's own decision")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	// An optional .env alongside the config file supplies secrets (tariff
	// tokens, MQTT credentials) that operators don't want committed to
	// config.json; it's fine if none exists.
	_ = godotenv.Load()

	config, err := core.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		fmt.Printf("Error loading timezone %q: %v\n", config.Timezone, err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[BATCONTROL] ", log.LstdFlags)

	if *info {
		if err := showPlantInfo(config); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	inverterDriver, err := inverter.NewModbusDriver(config.InverterModbusAddress, byte(config.InverterSlaveID), config.InverterTimeout)
	if err != nil {
		logger.Fatalf("connecting to inverter: %v", err)
	}
	defer inverterDriver.Close()

	var driver inverter.Driver = inverterDriver
	if config.DryRun {
		driver = inverter.NewDryRunDriver(inverterDriver, logger)
		logger.Printf("running in dry-run mode: inverter writes are logged, not executed")
	}

	resilient := inverter.NewResilientFacade(
		driver,
		time.Duration(config.OutageToleranceSeconds*float64(time.Second)),
		time.Duration(config.RetryBackoffSeconds*float64(time.Second)),
	)

	snapshots := inverter.NewSnapshotStore(config.SnapshotPath)
	if prior, ok, err := snapshots.Load(context.Background()); err != nil {
		logger.Printf("reading inverter snapshot: %v", err)
	} else if ok {
		logger.Printf("last run left the inverter in mode %s at %s", prior.Mode, prior.CapturedAt.Format(time.RFC3339))
	}

	if *whatif {
		runWhatIf(config, resilient, logger)
		return
	}

	appCtx := core.NewContext(config, logger)

	tariffProvider, err := newTariffProvider(config, loc)
	if err != nil {
		logger.Fatalf("configuring tariff provider: %v", err)
	}
	solarProvider, err := newSolarProvider(config, inverterDriver)
	if err != nil {
		logger.Fatalf("configuring solar provider: %v", err)
	}
	consumptionProvider, err := newConsumptionProvider(config, loc)
	if err != nil {
		logger.Fatalf("configuring consumption provider: %v", err)
	}

	status := control.NewStatusStore()
	surface := control.NewSurface(appCtx.Parameters)

	var publisher scheduler.Publisher = status
	var history *control.HistoryStore
	if config.PostgresConnString != "" {
		history, err = control.NewHistoryStore(config.PostgresConnString)
		if err != nil {
			logger.Fatalf("opening history store: %v", err)
		}
		defer history.Close()
		publisher = control.NewRecordingPublisher(status, history, func(err error) {
			logger.Printf("history write failed: %v", err)
		})
	}

	httpServer := control.NewHTTPServer(status, surface, config.HealthCheckPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if mux := httpServer.Mux(); mux != nil {
		if err := httpServer.Start(); err != nil {
			logger.Fatalf("starting control http server: %v", err)
		}
		hub := control.NewWSHub(mux, status)
		go hub.Run(ctx)
		logger.Printf("control http server listening on :%d", config.HealthCheckPort)
	}

	if config.MQTTBrokerURL != "" {
		mqttSurface := control.NewMQTTControlSurface(surface, status, logger)
		if err := mqttSurface.Connect(ctx, config.MQTTBrokerURL, "batcontrold"); err != nil {
			logger.Fatalf("connecting to mqtt broker: %v", err)
		}
		defer mqttSurface.Disconnect()
		logger.Printf("mqtt control surface connected to %s", config.MQTTBrokerURL)
	}

	sched := scheduler.New(appCtx, tariffProvider, solarProvider, consumptionProvider, resilient, decision.NewEngine(), publisher)
	sched.SetOverrideSource(surface)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := sched.Start(ctx); err != nil {
			logger.Printf("scheduler error: %v", err)
		}
	}()

	logger.Printf("batcontrold started, evaluation interval %s. Press Ctrl+C to stop...", config.EvaluationInterval)

	<-sigChan
	logger.Printf("shutdown signal received, stopping scheduler...")
	sched.Stop()
	cancel()

	if last, ok := status.Snapshot(); ok {
		snap := inverter.Snapshot{CapturedAt: last.Timestamp, Mode: last.Mode, ChargeRateW: last.Output.ChargeRateW}
		if err := snapshots.Save(context.Background(), snap); err != nil {
			logger.Printf("saving inverter snapshot: %v", err)
		}
	}

	if httpServer.Mux() != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Printf("control http server shutdown error: %v", err)
		}
	}

	logger.Printf("batcontrold stopped")
}

// newTariffProvider builds the configured tariff.Provider, sharing one
// FetchClient/Aligner pair across whichever kind needs them.
func newTariffProvider(config *core.Config, loc *time.Location) (tariff.Provider, error) {
	client := providercache.NewFetchClient(config.TariffAPITimeout)
	aligner := forecastalign.NewAligner(interval.Res60Min)

	switch config.TariffProviderKind {
	case "hourly_market":
		provider := tariff.NewHourlyMarketProvider("entsoe", client, aligner, config.ExternalRefreshInterval)
		provider.URLFormat = config.TariffURLFormat
		provider.Decode = tariff.DecodeENTSOEPrices
		provider.Location = loc
		provider.Markup = config.TariffMarkup
		provider.FeesKWh = config.TariffFeesPerKWh
		provider.VAT = config.TariffVAT
		return provider, nil

	case "subscription":
		provider := tariff.NewSubscriptionProvider("subscription", client, aligner, config.ExternalRefreshInterval)
		provider.URL = config.TariffURLFormat
		provider.BearerToken = config.TariffSecurityToken
		return provider, nil

	case "local_http":
		return &tariff.LocalHTTPProvider{
			HTTP:       client.HTTP,
			Aligner:    aligner,
			ProviderID: "local_http",
			URL:        config.TariffURLFormat,
		}, nil

	case "time_of_day":
		zones := make([]tariff.TimeOfDayZone, 0, len(config.TariffZones))
		for _, z := range config.TariffZones {
			zones = append(zones, tariff.TimeOfDayZone{StartHour: z.StartHour, EndHour: z.EndHour, PriceKWh: z.PriceKWh})
		}
		return &tariff.TimeOfDayProvider{Zones: zones, Location: loc, Horizon: config.TariffHorizonHours}, nil

	default:
		return nil, fmt.Errorf("unknown tariff_provider_kind %q", config.TariffProviderKind)
	}
}

// newSolarProvider builds the configured solar.Provider. local_sensor reads
// the live inverter's PV power directly, so it needs the raw modbus driver
// rather than the resilient facade (which only exposes battery gauges).
//
// The aligner resolution must match the tariff and consumption providers'
// (Res60Min): the decision engine and scheduler.netConsumption both index
// forecasts by hour, so a solar forecast on a finer grid would get
// subtracted against the wrong offsets entirely.
func newSolarProvider(config *core.Config, sensor solar.LocalSensorReader) (solar.Provider, error) {
	aligner := forecastalign.NewAligner(interval.Res60Min)

	switch config.SolarProviderKind {
	case "cloud_api":
		var altitude *int
		weather := solar.NewMeteoWeatherSource(config.WeatherUserAgent, config.Installations[0].Latitude, config.Installations[0].Longitude, altitude)
		return &solar.CloudAPIProvider{
			Weather:       weather,
			Installations: config.Installations,
			Aligner:       aligner,
			ProviderID:    "cloud_api",
		}, nil

	case "local_sensor":
		return &solar.LocalSensorProvider{
			Reader:     sensor,
			ProviderID: "local_sensor",
			Aligner:    aligner,
		}, nil

	default:
		return nil, fmt.Errorf("unknown solar_provider_kind %q", config.SolarProviderKind)
	}
}

// newConsumptionProvider builds the configured consumption.Provider. A CSV
// load profile is used when configured; otherwise an empty profile falls
// back to its zero fallback value for every hour.
func newConsumptionProvider(config *core.Config, loc *time.Location) (consumption.Provider, error) {
	if config.ConsumptionLoadProfileCSV != "" {
		return consumption.LoadProfileFromCSV(config.ConsumptionLoadProfileCSV, loc)
	}
	return consumption.NewLoadProfileProvider(loc, nil), nil
}

// runWhatIf runs the advisory optimizer once against a live snapshot and
// prints it alongside the decision engine's own output for the same tick,
// without ever writing to the inverter.
func runWhatIf(config *core.Config, inv *inverter.ResilientFacade, logger *log.Logger) {
	ctx := context.Background()

	battery, err := readBatteryOnce(ctx, inv)
	if err != nil {
		logger.Fatalf("reading battery state: %v", err)
	}

	loc, _ := time.LoadLocation(config.Timezone)
	tariffProvider, err := newTariffProvider(config, loc)
	if err != nil {
		logger.Fatalf("configuring tariff provider: %v", err)
	}
	consumptionProvider, err := newConsumptionProvider(config, loc)
	if err != nil {
		logger.Fatalf("configuring consumption provider: %v", err)
	}

	now := time.Now()
	prices, err := tariffProvider.GetPrices(ctx, now)
	if err != nil {
		logger.Fatalf("fetching prices: %v", err)
	}
	netConsumption, err := consumptionProvider.GetForecast(ctx, now, solar.MinHorizonHours)
	if err != nil {
		logger.Fatalf("fetching consumption forecast: %v", err)
	}

	params := core.DefaultConfig().Parameters()
	engineOutput := decision.NewEngine().Evaluate(core.DecisionInput{
		Timestamp:      now,
		NetConsumption: netConsumption,
		Prices:         prices,
		Battery:        battery,
	}, params)

	plan := advisory.BuildPlan(prices, netConsumption)
	systemConfig := advisory.SystemConfigFromState(battery, params)
	advised := advisory.NewOptimizer(systemConfig, battery.SOC/100).Advise(plan)
	comparison := advisory.Compare(advised, engineOutput)

	fmt.Println("========================================")
	fmt.Println("WHAT-IF: advisory optimizer vs decision engine")
	fmt.Println("========================================")
	fmt.Printf("Battery SOC:            %.1f%%\n", battery.SOC)
	fmt.Printf("Engine allow discharge: %v\n", comparison.EngineAllowedDischarge)
	fmt.Printf("Engine charge from grid:%v (%d W)\n", comparison.EngineChargeFromGrid, comparison.EngineChargeRateW)
	fmt.Printf("Advised charge:         %.0f W\n", comparison.AdvisedChargeW)
	fmt.Printf("Advised discharge:      %.0f W\n", comparison.AdvisedDischargeW)
	fmt.Printf("Advised hour profit:    %.4f\n", comparison.AdvisedProfit)
	fmt.Println("========================================")
}

func readBatteryOnce(ctx context.Context, inv *inverter.ResilientFacade) (core.BatteryState, error) {
	soc, err := inv.GetSOC(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	stored, err := inv.GetStoredEnergyWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	storedUsable, err := inv.GetStoredUsableEnergyWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	capacity, err := inv.GetCapacityWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	free, err := inv.GetFreeCapacityWh(ctx)
	if err != nil {
		return core.BatteryState{}, err
	}
	maxCapacity, err := inv.GetMaxCapacityWh(ctx)
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

func showPlantInfo(config *core.Config) error {
	driver, err := inverter.NewModbusDriver(config.InverterModbusAddress, byte(config.InverterSlaveID), config.InverterTimeout)
	if err != nil {
		return err
	}
	defer driver.Close()

	ctx := context.Background()
	soc, err := driver.GetSOC(ctx)
	if err != nil {
		return err
	}
	capacity, err := driver.GetCapacityWh(ctx)
	if err != nil {
		return err
	}
	production, _, err := driver.ReadProduction(ctx)
	if err != nil {
		return err
	}

	fmt.Println("========================================")
	fmt.Println("PLANT INFORMATION")
	fmt.Println("========================================")
	fmt.Printf("Battery SOC:        %.1f%%\n", soc)
	fmt.Printf("Rated capacity:     %.0f Wh\n", capacity)
	fmt.Printf("PV power:           %.2f kW\n", production)
	fmt.Println("========================================")
	return nil
}

func showHelp() {
	fmt.Println("batcontrold - home battery charge/discharge optimization daemon")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Evaluates electricity price, solar production and household consumption")
	fmt.Println("  forecasts on a fixed cadence and drives a Sigenergy battery inverter over")
	fmt.Println("  Modbus to minimize grid cost, subject to a configurable safety margin.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  batcontrold [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  batcontrold")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  batcontrold -config=/etc/batcontrol/config.json")
	fmt.Println()
	fmt.Println("  # Show live plant information and exit")
	fmt.Println("  batcontrold -info")
	fmt.Println()
	fmt.Println("  # Compare the advisory optimizer against the engine for one tick")
	fmt.Println("  batcontrold -whatif")
}
