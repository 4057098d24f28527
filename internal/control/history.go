package control

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/inverter"
	"github.com/muexxl/batcontrol-go/internal/scheduler"
)

// HistoryStore persists every published tick outcome to Postgres, adapted
// from the teacher's MPC-decision persistence (same upsert-on-timestamp
// shape, repointed at DecisionOutput/BatteryState/OutageStatus instead of
// per-hour MPC path rows). Optional: batcontrold only opens one when a
// connection string is configured.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens a Postgres connection using connString. Schema
// creation is the operator's responsibility (see historySchema below).
func NewHistoryStore(connString string) (*HistoryStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// historySchema is the DDL an operator runs once before pointing batcontrold
// at a fresh database. Kept here as documentation, not executed automatically
// — schema migration is out of scope for the control surface itself.
const historySchema = `
CREATE TABLE IF NOT EXISTS tick_history (
	timestamp TIMESTAMPTZ PRIMARY KEY,
	mode TEXT NOT NULL,
	allow_discharge BOOLEAN NOT NULL,
	charge_from_grid BOOLEAN NOT NULL,
	charge_rate_w INTEGER NOT NULL,
	limit_charge_rate_w INTEGER NOT NULL,
	soc DOUBLE PRECISION NOT NULL,
	stored_energy_wh DOUBLE PRECISION NOT NULL,
	capacity_wh DOUBLE PRECISION NOT NULL,
	in_outage BOOLEAN NOT NULL,
	consecutive_failures INTEGER NOT NULL
)`

// Record upserts one tick's outcome, keyed by timestamp, mirroring the
// teacher's ON CONFLICT (timestamp) DO UPDATE pattern.
func (h *HistoryStore) Record(ctx context.Context, timestamp time.Time, output core.DecisionOutput, battery core.BatteryState, outage inverter.OutageStatus) error {
	if h == nil || h.db == nil {
		return fmt.Errorf("history store not configured")
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO tick_history (
			timestamp, mode, allow_discharge, charge_from_grid, charge_rate_w,
			limit_charge_rate_w, soc, stored_energy_wh, capacity_wh, in_outage,
			consecutive_failures
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (timestamp) DO UPDATE SET
			mode = EXCLUDED.mode,
			allow_discharge = EXCLUDED.allow_discharge,
			charge_from_grid = EXCLUDED.charge_from_grid,
			charge_rate_w = EXCLUDED.charge_rate_w,
			limit_charge_rate_w = EXCLUDED.limit_charge_rate_w,
			soc = EXCLUDED.soc,
			stored_energy_wh = EXCLUDED.stored_energy_wh,
			capacity_wh = EXCLUDED.capacity_wh,
			in_outage = EXCLUDED.in_outage,
			consecutive_failures = EXCLUDED.consecutive_failures
	`,
		timestamp,
		output.Mode().String(),
		output.AllowDischarge,
		output.ChargeFromGrid,
		output.ChargeRateW,
		output.LimitChargeRateW,
		battery.SOC,
		battery.StoredEnergyWh,
		battery.CapacityWh,
		outage.InOutage,
		outage.ConsecutiveFailures,
	)
	if err != nil {
		return fmt.Errorf("recording tick history: %w", err)
	}
	return nil
}

// Since returns every recorded tick at or after from, ordered oldest first.
func (h *HistoryStore) Since(ctx context.Context, from time.Time) ([]StatusSnapshot, error) {
	if h == nil || h.db == nil {
		return nil, fmt.Errorf("history store not configured")
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT timestamp, mode, allow_discharge, charge_from_grid, charge_rate_w,
		       limit_charge_rate_w, soc, stored_energy_wh, capacity_wh, in_outage,
		       consecutive_failures
		FROM tick_history
		WHERE timestamp >= $1
		ORDER BY timestamp ASC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("querying tick history: %w", err)
	}
	defer rows.Close()

	var snapshots []StatusSnapshot
	for rows.Next() {
		var s StatusSnapshot
		if err := rows.Scan(
			&s.Timestamp,
			&s.Mode,
			&s.Output.AllowDischarge,
			&s.Output.ChargeFromGrid,
			&s.Output.ChargeRateW,
			&s.Output.LimitChargeRateW,
			&s.Battery.SOC,
			&s.Battery.StoredEnergyWh,
			&s.Battery.CapacityWh,
			&s.Outage.InOutage,
			&s.Outage.ConsecutiveFailures,
		); err != nil {
			return nil, fmt.Errorf("scanning tick history row: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tick history: %w", err)
	}
	return snapshots, nil
}

// Close releases the underlying database connection.
func (h *HistoryStore) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// RecordingPublisher wraps a Publisher, mirroring every published tick into
// a HistoryStore in addition to the wrapped publisher's own behavior.
// Publish forwards to the inner publisher first, then writes the tick to
// history synchronously; a failed write is passed to onError and does not
// affect the inner publisher.
type RecordingPublisher struct {
	inner   scheduler.Publisher
	history *HistoryStore
	onError func(error)
}

// NewRecordingPublisher wraps inner so every tick is also persisted to
// history. onError, if non-nil, receives history write failures; it must not
// block.
func NewRecordingPublisher(inner scheduler.Publisher, history *HistoryStore, onError func(error)) *RecordingPublisher {
	return &RecordingPublisher{inner: inner, history: history, onError: onError}
}

func (r *RecordingPublisher) Publish(ctx context.Context, output core.DecisionOutput, battery core.BatteryState, outage inverter.OutageStatus) {
	r.inner.Publish(ctx, output, battery, outage)
	if err := r.history.Record(ctx, time.Now(), output, battery, outage); err != nil && r.onError != nil {
		r.onError(err)
	}
}
