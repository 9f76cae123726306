// Package notification pushes terminal order outcomes to external channels
// (Telegram, webhooks) alongside the WebSocket delivery path.
package notification

import (
	"context"
	"log"
	"time"

	"stockswap-backend/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert describes one order reaching a terminal status. Every backend
// receives the same fields and renders them in its own format.
type Alert struct {
	Level   AlertLevel        `json:"level"`
	OrderID string            `json:"orderId"`
	Maker   string            `json:"maker"`
	Status  model.OrderStatus `json:"status"`
	Summary string            `json:"summary"`
	At      time.Time         `json:"occurredAt"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] order=%s maker=%s status=%s %s",
		alert.Level, alert.OrderID, alert.Maker, alert.Status, alert.Summary)
	return nil
}
