package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockswap-backend/internal/model"
)

func TestWebhookSendCarriesOrderFields(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	occurred := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:   AlertInfo,
		OrderID: "order-42",
		Maker:   "So11111111111111111111111111111111111111112",
		Status:  model.StatusExecuted,
		Summary: "Order filled on-chain.",
		At:      occurred,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.OrderID != "order-42" {
		t.Errorf("orderId = %q", got.OrderID)
	}
	if got.Maker != "So11111111111111111111111111111111111111112" {
		t.Errorf("maker = %q", got.Maker)
	}
	if got.Status != string(model.StatusExecuted) {
		t.Errorf("status = %q", got.Status)
	}
	if got.Level != "INFO" {
		t.Errorf("level = %q", got.Level)
	}
	if got.OccurredAt != occurred.Format(time.RFC3339Nano) {
		t.Errorf("occurredAt = %q", got.OccurredAt)
	}
	if got.SentAt == "" {
		t.Error("sentAt missing")
	}
}

func TestWebhookSendNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{OrderID: "order-1"}); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestStatusHeadline(t *testing.T) {
	cases := []struct {
		status model.OrderStatus
		want   string
	}{
		{model.StatusExecuted, "Order executed"},
		{model.StatusCancelled, "Order cancelled"},
		{model.StatusExpired, "Order monitoring expired"},
		{model.StatusStopped, "Order monitoring stopped"},
		{model.StatusMonitoring, "Order update"},
	}
	for _, tc := range cases {
		if got := statusHeadline(tc.status); got != tc.want {
			t.Errorf("statusHeadline(%s) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got := escapeMarkdownV2("filled at 1.25 (target)")
	want := `filled at 1\.25 \(target\)`
	if got != want {
		t.Errorf("escape = %q, want %q", got, want)
	}
}
