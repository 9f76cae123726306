package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the execution monitor from concrete
// implementations (provider HTTP client, SQLite journal). Each
// implementation satisfies one or more of these interfaces.

// ProviderStatus is the order state as reported by the external provider.
type ProviderStatus string

const (
	ProviderPending   ProviderStatus = "pending"
	ProviderActive    ProviderStatus = "active"
	ProviderExecuted  ProviderStatus = "executed"
	ProviderCancelled ProviderStatus = "cancelled"
)

// StatusReport is the provider's answer to a trigger-order status query.
type StatusReport struct {
	Status      ProviderStatus `json:"status"`
	ExecutedAt  *time.Time     `json:"executed_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
}

// Quote is a swap quote for a token pair and input amount.
type Quote struct {
	InAmount       uint64  `json:"in_amount"`
	OutAmount      uint64  `json:"out_amount"`
	PriceImpactPct float64 `json:"price_impact_pct"`
}

// Price returns the implied market price (output units per input unit).
func (q Quote) Price() float64 {
	if q.InAmount == 0 {
		return 0
	}
	return float64(q.OutAmount) / float64(q.InAmount)
}

// StatusProvider queries the external matching engine for order state.
type StatusProvider interface {
	GetTriggerOrderStatus(ctx context.Context, orderID string) (StatusReport, error)
}

// QuoteProvider fetches swap quotes for market-trigger evaluation.
type QuoteProvider interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (Quote, error)
}

// OrderJournal persists monitored orders across restarts. Save is called on
// every state transition; LoadActive backs startup recovery.
type OrderJournal interface {
	Save(ctx context.Context, order *MonitoredOrder) error
	LoadActive(ctx context.Context) ([]*MonitoredOrder, error)

	// DeleteTerminalBefore removes terminal orders whose terminal timestamp
	// is older than the cutoff. Returns the number of rows removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// EventPublisher pushes monitor events to an external fabric (Redis pub/sub)
// for sibling services.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}
