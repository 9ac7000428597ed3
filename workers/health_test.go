package workers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pncp_loader/models"
)

func TestHealthState_Lifecycle(t *testing.T) {
	state := NewHealthState()

	snap := state.Snapshot()
	if snap.Running || snap.LastExecutionID != 0 {
		t.Fatalf("fresh state must be idle, got %+v", snap)
	}
	if state.Degraded() {
		t.Fatalf("fresh state must not be degraded")
	}

	state.RecordStart(42)
	snap = state.Snapshot()
	if !snap.Running || snap.LastExecutionID != 42 {
		t.Fatalf("expected running execution 42, got %+v", snap)
	}
	if snap.LastStartAt == nil || snap.LastEndAt != nil {
		t.Fatalf("expected start stamp only, got %+v", snap)
	}

	state.RecordEnd(models.ExecutionSuccess)
	snap = state.Snapshot()
	if snap.Running || snap.LastStatus != string(models.ExecutionSuccess) {
		t.Fatalf("expected finished sucesso, got %+v", snap)
	}
	if snap.LastEndAt == nil {
		t.Fatalf("expected end stamp, got %+v", snap)
	}
	if state.Degraded() {
		t.Fatalf("sucesso must not degrade")
	}
}

func TestHealthState_DegradedOnlyAfterError(t *testing.T) {
	state := NewHealthState()

	state.RecordStart(1)
	state.RecordEnd(models.ExecutionError)
	if !state.Degraded() {
		t.Fatalf("expected degraded after erro")
	}

	// A run in flight clears degradation until it finishes.
	state.RecordStart(2)
	if state.Degraded() {
		t.Fatalf("running state must not be degraded")
	}

	state.RecordEnd(models.ExecutionPartial)
	if state.Degraded() {
		t.Fatalf("parcial must not degrade")
	}
}

func TestHealthServer_ReadyReflectsDegradation(t *testing.T) {
	state := NewHealthState()
	hs := NewHealthServer(":0", state)

	check := func(path string, want int) Snapshot {
		t.Helper()
		rec := httptest.NewRecorder()
		hs.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, rec.Code)
		}
		var snap Snapshot
		if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
			t.Fatalf("%s: decode body: %v", path, err)
		}
		return snap
	}

	check("/health/live", http.StatusOK)
	check("/health/ready", http.StatusOK)

	state.RecordStart(7)
	state.RecordEnd(models.ExecutionError)

	check("/health/live", http.StatusOK)
	snap := check("/health/ready", http.StatusServiceUnavailable)
	if snap.LastExecutionID != 7 || snap.LastStatus != string(models.ExecutionError) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
