package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsPollInterval  = 2 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHub pushes every new StatusSnapshot to connected WebSocket clients,
// polling the status store rather than subscribing to it directly so it
// stays decoupled from the scheduler's publish cadence.
type WSHub struct {
	status *StatusStore

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWSHub registers /ws/status on mux and returns a hub. Call Run in its
// own goroutine to start broadcasting.
func NewWSHub(mux *http.ServeMux, status *StatusStore) *WSHub {
	hub := &WSHub{
		status:  status,
		clients: make(map[*websocket.Conn]struct{}),
	}
	mux.HandleFunc("/ws/status", hub.handleConnect)
	return hub
}

func (hub *WSHub) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	hub.mu.Lock()
	hub.clients[conn] = struct{}{}
	hub.mu.Unlock()

	if snapshot, ok := hub.status.Snapshot(); ok {
		hub.sendTo(conn, snapshot)
	}

	// Drain and discard anything the client sends; we only use this
	// connection to detect close/error so we can evict it below.
	go func() {
		defer hub.evict(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (hub *WSHub) evict(conn *websocket.Conn) {
	hub.mu.Lock()
	delete(hub.clients, conn)
	hub.mu.Unlock()
	conn.Close()
}

func (hub *WSHub) sendTo(conn *websocket.Conn, snapshot StatusSnapshot) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snapshot); err != nil {
		hub.evict(conn)
	}
}

// broadcast pushes snapshot to every currently connected client.
func (hub *WSHub) broadcast(snapshot StatusSnapshot) {
	hub.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(hub.clients))
	for conn := range hub.clients {
		conns = append(conns, conn)
	}
	hub.mu.Unlock()

	for _, conn := range conns {
		hub.sendTo(conn, snapshot)
	}
}

// Run polls the status store for new snapshots and broadcasts them until ctx
// is cancelled. A poll loop (rather than a channel off StatusStore.Publish)
// keeps WSHub from needing to be wired into the scheduler's publish path
// directly — any Publisher can feed the same StatusStore.
func (hub *WSHub) Run(ctx context.Context) {
	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	var lastSeen time.Time
	for {
		select {
		case <-ctx.Done():
			hub.closeAll()
			return
		case <-ticker.C:
			snapshot, ok := hub.status.Snapshot()
			if !ok || !snapshot.Timestamp.After(lastSeen) {
				continue
			}
			lastSeen = snapshot.Timestamp
			hub.broadcast(snapshot)
		}
	}
}

func (hub *WSHub) closeAll() {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for conn := range hub.clients {
		conn.Close()
		delete(hub.clients, conn)
	}
}

// marshal is used by tests to confirm the wire shape without standing up a
// real socket.
func (s StatusSnapshot) marshal() ([]byte, error) {
	return json.Marshal(s)
}
