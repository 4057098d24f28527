package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// HTTPServer exposes the status store for monitoring and the typed setter
// surface for overrides, grounded on the teacher's health-check server
// (routes, timeouts, response shape) but repointed at batcontrol's
// DecisionOutput/battery/outage status instead of miner/MPC status.
type HTTPServer struct {
	status  *StatusStore
	surface *Surface
	server  *http.Server
	mux     *http.ServeMux
	port    int
}

// NewHTTPServer builds a server bound to port. If port <= 0 the health
// server is considered disabled and Start/Stop are no-ops.
func NewHTTPServer(status *StatusStore, surface *Surface, port int) *HTTPServer {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	hs := &HTTPServer{
		status:  status,
		surface: surface,
		port:    port,
		mux:     mux,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readinessHandler)
	mux.HandleFunc("/status", hs.statusHandler)
	mux.HandleFunc("/control/mode", hs.setModeHandler)
	mux.HandleFunc("/control/discharge_blocked", hs.setDischargeBlockedHandler)
	mux.HandleFunc("/control/limit_pv_charge_rate", hs.setLimitPVChargeRateHandler)

	return hs
}

// Mux returns the server's route multiplexer so additional handlers (the
// websocket status stream) can be registered onto the same listener. Returns
// nil if hs is nil (disabled).
func (hs *HTTPServer) Mux() *http.ServeMux {
	if hs == nil {
		return nil
	}
	return hs.mux
}

func (hs *HTTPServer) Start() error {
	if hs == nil {
		return nil
	}
	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("control http server error: %v\n", err)
		}
	}()
	return nil
}

func (hs *HTTPServer) Stop(ctx context.Context) error {
	if hs == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

func (hs *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	_, ready := hs.status.Snapshot()
	status := "healthy"
	code := http.StatusOK
	if !ready {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (hs *HTTPServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	_, ready := hs.status.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{"ready": ready})
}

func (hs *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, ready := hs.status.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"ready": false})
		return
	}
	json.NewEncoder(w).Encode(snapshot)
}

type setModeRequest struct {
	Mode             int `json:"mode"`
	ChargeRateW      int `json:"charge_rate_w"`
	LimitChargeRateW int `json:"limit_pv_charge_rate_w"`
}

func (hs *HTTPServer) setModeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := hs.surface.SetMode(r.Context(), core.ControlMode(req.Mode), req.ChargeRateW, req.LimitChargeRateW); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setBoolRequest struct {
	Value bool `json:"value"`
}

func (hs *HTTPServer) setDischargeBlockedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setBoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := hs.surface.SetDischargeBlocked(r.Context(), req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setIntRequest struct {
	Value int `json:"value"`
}

func (hs *HTTPServer) setLimitPVChargeRateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setIntRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := hs.surface.SetLimitPVChargeRate(r.Context(), req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
