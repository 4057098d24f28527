package control

import (
	"context"
	"sync"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/inverter"
)

// StatusSnapshot is the latest published tick outcome, served by the HTTP
// and WebSocket transports and mirrored to MQTT.
type StatusSnapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Mode      string                 `json:"mode"`
	Output    core.DecisionOutput    `json:"decision"`
	Battery   core.BatteryState      `json:"battery"`
	Outage    inverter.OutageStatus  `json:"outage"`
}

// StatusStore caches the most recent tick outcome behind a mutex and
// implements scheduler.Publisher, so it can be handed to scheduler.New
// without internal/scheduler importing internal/control.
type StatusStore struct {
	mu     sync.RWMutex
	latest StatusSnapshot
	ready  bool
}

// NewStatusStore returns an empty store; Snapshot returns ok=false until
// the first Publish call.
func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

func (s *StatusStore) Publish(ctx context.Context, output core.DecisionOutput, battery core.BatteryState, outage inverter.OutageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = StatusSnapshot{
		Timestamp: time.Now(),
		Mode:      output.Mode().String(),
		Output:    output,
		Battery:   battery,
		Outage:    outage,
	}
	s.ready = true
}

// Snapshot returns the latest published status. ok is false if no tick has
// been published yet.
func (s *StatusStore) Snapshot() (StatusSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ready
}
