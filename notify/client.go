package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"pncp_loader/models"
)

// Client posts run lifecycle events to an external sink. Delivery is
// fire-and-forget: a slow or dead sink never delays or fails a run.
type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: baseURL}
}

type event struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	ExecutionID int64     `json:"execution_id"`
	Mode        string    `json:"mode"`
	Trigger     string    `json:"trigger"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (c *Client) RunStarted(e *models.Execution) {
	c.send(event{
		Type:        "execution_started",
		ExecutionID: e.ID,
		Mode:        string(e.Mode),
		Trigger:     string(e.Trigger),
		Status:      string(e.Status),
	})
}

func (c *Client) RunFinished(e *models.Execution) {
	typ := "execution_finished"
	if e.Status == models.ExecutionError {
		typ = "execution_failed"
	}
	c.send(event{
		Type:        typ,
		ExecutionID: e.ID,
		Mode:        string(e.Mode),
		Trigger:     string(e.Trigger),
		Status:      string(e.Status),
		Error:       e.ErrorMessage,
	})
}

func (c *Client) send(ev event) {
	ev.EventID = uuid.NewString()
	ev.OccurredAt = time.Now()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		body, err := json.Marshal(ev)
		if err != nil {
			log.Printf("Notify: marshal %s: %v", ev.Type, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events/import", bytes.NewReader(body))
		if err != nil {
			log.Printf("Notify: build %s request: %v", ev.Type, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			log.Printf("Notify: deliver %s: %v", ev.Type, err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Printf("Notify: %s rejected with status %d", ev.Type, resp.StatusCode)
		}
	}()
}
