package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// webhookPayload is the wire shape POSTed to the configured endpoint. The
// order fields are top-level so receivers can route on orderId or maker
// without parsing a free-form message.
type webhookPayload struct {
	Level      string `json:"level"`
	OrderID    string `json:"orderId"`
	Maker      string `json:"maker"`
	Status     string `json:"status"`
	Summary    string `json:"summary"`
	OccurredAt string `json:"occurredAt"`
	SentAt     string `json:"sentAt"`
}

// WebhookNotifier POSTs order alerts to an HTTP endpoint as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier targeting url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Level:      string(alert.Level),
		OrderID:    alert.OrderID,
		Maker:      alert.Maker,
		Status:     string(alert.Status),
		Summary:    alert.Summary,
		OccurredAt: alert.At.UTC().Format(time.RFC3339Nano),
		SentAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[webhook] sent alert to %s: order=%s status=%s", w.url, alert.OrderID, alert.Status)
	return nil
}
