package workers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"pncp_loader/models"
)

// HealthState tracks the last known run. It is constructed once, handed
// to the orchestrator as its observer, and read by the health endpoints
// through the same instance.
type HealthState struct {
	mu              sync.Mutex
	startedAt       time.Time
	running         bool
	lastExecutionID int64
	lastStatus      models.ExecutionStatus
	lastStartAt     *time.Time
	lastEndAt       *time.Time
}

func NewHealthState() *HealthState {
	return &HealthState{startedAt: time.Now()}
}

func (h *HealthState) RecordStart(executionID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	h.running = true
	h.lastExecutionID = executionID
	h.lastStartAt = &now
	h.lastEndAt = nil
}

func (h *HealthState) RecordEnd(status models.ExecutionStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	h.running = false
	h.lastStatus = status
	h.lastEndAt = &now
}

// Snapshot is the health endpoints' view of the state.
type Snapshot struct {
	UptimeSeconds   int64      `json:"uptime_seconds"`
	Running         bool       `json:"running"`
	LastExecutionID int64      `json:"last_execution_id,omitempty"`
	LastStatus      string     `json:"last_status,omitempty"`
	LastStartAt     *time.Time `json:"last_start_at,omitempty"`
	LastEndAt       *time.Time `json:"last_end_at,omitempty"`
}

func (h *HealthState) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		UptimeSeconds:   int64(time.Since(h.startedAt).Seconds()),
		Running:         h.running,
		LastExecutionID: h.lastExecutionID,
		LastStatus:      string(h.lastStatus),
		LastStartAt:     h.lastStartAt,
		LastEndAt:       h.lastEndAt,
	}
}

// Degraded reports whether the last finished run ended in error.
func (h *HealthState) Degraded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.running && h.lastStatus == models.ExecutionError
}

// HealthServer exposes liveness and readiness for daemon mode.
type HealthServer struct {
	state *HealthState
	srv   *http.Server
}

func NewHealthServer(addr string, state *HealthState) *HealthServer {
	h := &HealthServer{state: state}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", h.handleLive)
	mux.HandleFunc("/health/ready", h.handleReady)

	h.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return h
}

// Start runs the server until Shutdown.
func (h *HealthServer) Start() {
	go func() {
		log.Printf("Health: listening on %s", h.srv.Addr)
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Health: server error: %v", err)
		}
	}()
}

func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func (h *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, http.StatusOK)
}

func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if h.state.Degraded() {
		status = http.StatusServiceUnavailable
	}
	h.writeSnapshot(w, status)
}

func (h *HealthServer) writeSnapshot(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(h.state.Snapshot())
}
