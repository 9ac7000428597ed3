package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pncp_loader/models"
)

func captureEvents(t *testing.T) (*Client, chan event) {
	t.Helper()
	events := make(chan event, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/import" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var ev event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		events <- ev
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL), events
}

func waitEvent(t *testing.T, events chan event) event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("no event delivered")
		return event{}
	}
}

func TestRunStarted_PostsEvent(t *testing.T) {
	client, events := captureEvents(t)

	client.RunStarted(&models.Execution{
		ID:      12,
		Mode:    models.ModeIncremental,
		Trigger: models.TriggerScheduler,
		Status:  models.ExecutionInProgress,
	})

	ev := waitEvent(t, events)
	if ev.Type != "execution_started" {
		t.Fatalf("unexpected event type %q", ev.Type)
	}
	if ev.ExecutionID != 12 || ev.Mode != "incremental" || ev.Trigger != "scheduler" {
		t.Fatalf("unexpected event payload %+v", ev)
	}
	if ev.EventID == "" || ev.OccurredAt.IsZero() {
		t.Fatalf("event missing identity or timestamp: %+v", ev)
	}
}

func TestRunFinished_ErrorStatusFlipsType(t *testing.T) {
	client, events := captureEvents(t)

	msg := "contracts feed down"
	client.RunFinished(&models.Execution{
		ID:           13,
		Mode:         models.ModeDaily,
		Trigger:      models.TriggerCLI,
		Status:       models.ExecutionError,
		ErrorMessage: &msg,
	})

	ev := waitEvent(t, events)
	if ev.Type != "execution_failed" {
		t.Fatalf("unexpected event type %q", ev.Type)
	}
	if ev.Error == nil || *ev.Error != msg {
		t.Fatalf("error message not carried: %v", ev.Error)
	}
}

func TestSend_DeliveryFailureIsSwallowed(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.Client(), srv.URL)
	client.RunFinished(&models.Execution{ID: 14, Status: models.ExecutionSuccess})

	select {
	case <-hits:
	case <-time.After(5 * time.Second):
		t.Fatalf("sink never hit")
	}

	// A dead sink must be just as harmless.
	dead := NewClient(&http.Client{Timeout: time.Second}, "http://127.0.0.1:1")
	dead.RunStarted(&models.Execution{ID: 15})
}
