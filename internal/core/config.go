package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// TariffZone is one wall-clock price band for the time_of_day tariff
// provider. Hours are 0-23; a zone wraps midnight when EndHour <= StartHour.
type TariffZone struct {
	StartHour int     `json:"start_hour"`
	EndHour   int     `json:"end_hour"`
	PriceKWh  float64 `json:"price_kwh"`
}

// PVInstallation describes one physical solar array contributing to the
// cloud-API solar forecast (multiple arrays are summed).
type PVInstallation struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Declination float64 `json:"declination"` // degrees from horizontal
	Azimuth     float64 `json:"azimuth"`     // degrees, 0 = south
	KWp         float64 `json:"kwp"`         // installed peak power
}

// Config is the top-level batcontrol configuration, loaded from JSON.
type Config struct {
	// Scheduler settings
	EvaluationInterval time.Duration `json:"evaluation_interval"` // main tick cadence
	ExternalRefreshInterval time.Duration `json:"external_refresh_interval"` // external provider refresh cadence
	LocalRefreshInterval    time.Duration `json:"local_refresh_interval"`    // local-sensor provider refresh cadence
	DryRun             bool          `json:"dry_run"`
	Timezone           string        `json:"timezone"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Battery/inverter parameters (see core.Parameters for the live,
	// mutable copy derived from these at startup)
	AlwaysAllowDischargeLimit float64 `json:"always_allow_discharge_limit"` // fraction 0-1
	MaxChargingFromGridLimit  float64 `json:"max_charging_from_grid_limit"` // fraction 0-1
	ChargeRateMultiplier      float64 `json:"charge_rate_multiplier"`
	MinChargeEnergyWh         float64 `json:"min_charge_energy_wh"`
	MinPriceDifference        float64 `json:"min_price_difference"`
	MinPriceDifferenceRel     float64 `json:"min_price_difference_rel"`

	// Inverter connection
	InverterModbusAddress string        `json:"inverter_modbus_address"` // host:port
	InverterSlaveID       int           `json:"inverter_slave_id"`
	InverterTimeout       time.Duration `json:"inverter_timeout"`
	OutageToleranceSeconds float64      `json:"outage_tolerance_seconds"`
	RetryBackoffSeconds    float64      `json:"retry_backoff_seconds"`
	SnapshotPath           string        `json:"snapshot_path"`

	// Tariff provider
	TariffProviderKind string        `json:"tariff_provider_kind"` // hourly_market | subscription | local_http | time_of_day
	TariffAPITimeout   time.Duration `json:"tariff_api_timeout"`
	TariffURLFormat    string        `json:"tariff_url_format"`
	TariffSecurityToken string       `json:"tariff_security_token"`
	TariffMarkup       float64       `json:"tariff_markup"`       // fraction
	TariffFeesPerKWh   float64       `json:"tariff_fees_per_kwh"`
	TariffVAT          float64       `json:"tariff_vat"` // fraction
	TariffZones        []TariffZone  `json:"tariff_zones"` // time_of_day provider only
	TariffHorizonHours int           `json:"tariff_horizon_hours"` // time_of_day provider only

	// Solar provider
	SolarProviderKind string           `json:"solar_provider_kind"` // cloud_api | local_sensor
	Installations     []PVInstallation `json:"installations"`
	WeatherUserAgent  string           `json:"weather_user_agent"`

	// Consumption provider
	ConsumptionHistoryPeriods int    `json:"consumption_history_periods"` // 1-10
	ConsumptionLoadProfileCSV string `json:"consumption_load_profile_csv"` // empty = flat zero fallback

	// Control surface
	HealthCheckPort int    `json:"health_check_port"` // 0 = disabled
	MQTTBrokerURL   string `json:"mqtt_broker_url"`   // empty = disabled

	// Persistence
	PostgresConnString string `json:"postgres_conn_string"` // empty = disabled
}

// DefaultConfig returns sane defaults, mirroring the original implementation's
// values where it specified them.
func DefaultConfig() *Config {
	return &Config{
		EvaluationInterval:      3 * time.Minute,
		ExternalRefreshInterval: 30 * time.Minute,
		LocalRefreshInterval:    15 * time.Minute,
		DryRun:                  false,
		Timezone:                "UTC",
		LogLevel:                "info",
		LogFormat:               "text",

		AlwaysAllowDischargeLimit: 0.9,
		MaxChargingFromGridLimit:  0.8,
		ChargeRateMultiplier:      1.1,
		MinChargeEnergyWh:         100,
		MinPriceDifference:        0.05,
		MinPriceDifferenceRel:     0.1,

		InverterSlaveID:        1,
		InverterTimeout:        5 * time.Second,
		OutageToleranceSeconds: 24 * 60,
		RetryBackoffSeconds:    60,
		SnapshotPath:           "inverter_snapshot.json",

		TariffProviderKind: "hourly_market",
		TariffAPITimeout:   30 * time.Second,
		TariffVAT:          0.21,

		SolarProviderKind: "cloud_api",
		WeatherUserAgent:  "batcontrol/1.0 (contact@example.com)",

		ConsumptionHistoryPeriods: 5,

		HealthCheckPort: 0,
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("opening config file %q", filename), Cause: err}
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, &ConfigError{Msg: "decoding config JSON", Cause: err}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return &ConfigError{Msg: fmt.Sprintf("creating config file %q", filename), Cause: err}
	}
	defer file.Close()
	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer.
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return &ConfigError{Msg: "encoding config JSON", Cause: err}
	}
	return nil
}

// Validate checks the configuration for missing or out-of-range fields.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return &ConfigError{Msg: fmt.Sprintf(format, args...)}
	}

	if c.EvaluationInterval <= 0 {
		return fail("evaluation_interval must be greater than 0, got %s", c.EvaluationInterval)
	}
	if c.ExternalRefreshInterval <= 0 {
		return fail("external_refresh_interval must be greater than 0, got %s", c.ExternalRefreshInterval)
	}
	if c.LocalRefreshInterval <= 0 {
		return fail("local_refresh_interval must be greater than 0, got %s", c.LocalRefreshInterval)
	}
	if c.AlwaysAllowDischargeLimit < 0 || c.AlwaysAllowDischargeLimit > 1 {
		return fail("always_allow_discharge_limit must be between 0 and 1, got %f", c.AlwaysAllowDischargeLimit)
	}
	if c.MaxChargingFromGridLimit < 0 || c.MaxChargingFromGridLimit > 1 {
		return fail("max_charging_from_grid_limit must be between 0 and 1, got %f", c.MaxChargingFromGridLimit)
	}
	if c.MaxChargingFromGridLimit >= c.AlwaysAllowDischargeLimit {
		return fail(
			"max_charging_from_grid_limit (%f) must be strictly less than always_allow_discharge_limit (%f)",
			c.MaxChargingFromGridLimit, c.AlwaysAllowDischargeLimit,
		)
	}
	if c.ChargeRateMultiplier <= 0 {
		return fail("charge_rate_multiplier must be greater than 0, got %f", c.ChargeRateMultiplier)
	}
	if c.InverterModbusAddress == "" {
		return fail("inverter_modbus_address cannot be empty")
	}
	if c.InverterTimeout <= 0 {
		return fail("inverter_timeout must be greater than 0, got %s", c.InverterTimeout)
	}
	if c.OutageToleranceSeconds <= 0 {
		return fail("outage_tolerance_seconds must be greater than 0, got %f", c.OutageToleranceSeconds)
	}
	if c.RetryBackoffSeconds <= 0 {
		return fail("retry_backoff_seconds must be greater than 0, got %f", c.RetryBackoffSeconds)
	}

	switch c.TariffProviderKind {
	case "hourly_market", "subscription", "local_http", "time_of_day":
	default:
		return fail("unknown tariff_provider_kind: %q", c.TariffProviderKind)
	}
	if c.TariffAPITimeout <= 0 {
		return fail("tariff_api_timeout must be greater than 0, got %s", c.TariffAPITimeout)
	}

	switch c.SolarProviderKind {
	case "cloud_api", "local_sensor":
	default:
		return fail("unknown solar_provider_kind: %q", c.SolarProviderKind)
	}
	if c.SolarProviderKind == "cloud_api" && len(c.Installations) == 0 {
		return fail("at least one PV installation is required for solar_provider_kind=cloud_api")
	}
	for i, inst := range c.Installations {
		if inst.Latitude < -90 || inst.Latitude > 90 {
			return fail("installations[%d].latitude must be between -90 and 90, got %f", i, inst.Latitude)
		}
		if inst.Longitude < -180 || inst.Longitude > 180 {
			return fail("installations[%d].longitude must be between -180 and 180, got %f", i, inst.Longitude)
		}
		if inst.KWp <= 0 {
			return fail("installations[%d].kwp must be greater than 0, got %f", i, inst.KWp)
		}
	}

	if c.ConsumptionHistoryPeriods < 1 || c.ConsumptionHistoryPeriods > 10 {
		return fail("consumption_history_periods must be between 1 and 10, got %d", c.ConsumptionHistoryPeriods)
	}
	if c.HealthCheckPort < 0 || c.HealthCheckPort > 65535 {
		return fail("health_check_port must be between 0 and 65535, got %d", c.HealthCheckPort)
	}

	return nil
}

// Parameters constructs a Parameters value from the static config, to be
// handed to a ParameterStore at startup.
func (c *Config) Parameters() Parameters {
	return Parameters{
		AlwaysAllowDischargeLimit: c.AlwaysAllowDischargeLimit,
		MaxChargingFromGridLimit:  c.MaxChargingFromGridLimit,
		ChargeRateMultiplier:      c.ChargeRateMultiplier,
		MinChargeEnergyWh:         c.MinChargeEnergyWh,
		MinPriceDifference:        c.MinPriceDifference,
		MinPriceDifferenceRel:     c.MinPriceDifferenceRel,
	}
}

// durationAlias is Config without its JSON methods, so MarshalJSON and
// UnmarshalJSON can embed it without recursing into themselves.
type durationAlias Config

// MarshalJSON implements custom JSON marshaling so durations serialize as
// human-readable strings ("3m0s") instead of raw nanoseconds.
func (c *Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		*durationAlias
		EvaluationInterval      string `json:"evaluation_interval"`
		ExternalRefreshInterval string `json:"external_refresh_interval"`
		LocalRefreshInterval    string `json:"local_refresh_interval"`
		InverterTimeout         string `json:"inverter_timeout"`
		TariffAPITimeout        string `json:"tariff_api_timeout"`
	}{
		durationAlias:           (*durationAlias)(c),
		EvaluationInterval:      c.EvaluationInterval.String(),
		ExternalRefreshInterval: c.ExternalRefreshInterval.String(),
		LocalRefreshInterval:    c.LocalRefreshInterval.String(),
		InverterTimeout:         c.InverterTimeout.String(),
		TariffAPITimeout:        c.TariffAPITimeout.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to parse duration
// strings back into time.Duration.
func (c *Config) UnmarshalJSON(data []byte) error {
	aux := &struct {
		*durationAlias
		EvaluationInterval      string `json:"evaluation_interval"`
		ExternalRefreshInterval string `json:"external_refresh_interval"`
		LocalRefreshInterval    string `json:"local_refresh_interval"`
		InverterTimeout         string `json:"inverter_timeout"`
		TariffAPITimeout        string `json:"tariff_api_timeout"`
	}{
		durationAlias: (*durationAlias)(c),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	parse := func(field string, s string, dst *time.Duration) error {
		if s == "" {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
		*dst = d
		return nil
	}

	if err := parse("evaluation_interval", aux.EvaluationInterval, &c.EvaluationInterval); err != nil {
		return err
	}
	if err := parse("external_refresh_interval", aux.ExternalRefreshInterval, &c.ExternalRefreshInterval); err != nil {
		return err
	}
	if err := parse("local_refresh_interval", aux.LocalRefreshInterval, &c.LocalRefreshInterval); err != nil {
		return err
	}
	if err := parse("inverter_timeout", aux.InverterTimeout, &c.InverterTimeout); err != nil {
		return err
	}
	if err := parse("tariff_api_timeout", aux.TariffAPITimeout, &c.TariffAPITimeout); err != nil {
		return err
	}

	return nil
}

// String returns an indented JSON representation, for debug logging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
