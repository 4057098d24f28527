package inverter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Snapshot records an inverter operating mode and charge rate. batcontrold
// saves the last published mode at shutdown and logs the saved snapshot at
// startup; nothing writes a snapshot back to the inverter.
type Snapshot struct {
	CapturedAt time.Time `json:"captured_at"`
	Mode       string    `json:"mode"`
	ChargeRateW int       `json:"charge_rate_w,omitempty"`
}

// SnapshotStore persists a single Snapshot to a JSON file on disk.
type SnapshotStore struct {
	Path string
}

// NewSnapshotStore returns a store backed by path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{Path: path}
}

// Save writes snap to disk, overwriting any previous snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", s.Path, err)
	}
	return nil
}

// Load reads the last saved snapshot. It returns ok=false, not an error, if
// no snapshot file exists yet (the first run on a fresh install).
func (s *SnapshotStore) Load(ctx context.Context) (snap Snapshot, ok bool, err error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot: read %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot: unmarshal %s: %w", s.Path, err)
	}
	return snap, true, nil
}
