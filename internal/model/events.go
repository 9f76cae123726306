package model

import "time"

// EventType identifies a monitor lifecycle event.
type EventType string

const (
	EventOrderExecuted     EventType = "order-executed"
	EventOrderCancelled    EventType = "order-cancelled"
	EventOrderExpired      EventType = "order-expired"
	EventMonitoringStopped EventType = "monitoring-stopped"
	EventStatusUpdate      EventType = "order-status-update"
	EventStatusCheckError  EventType = "status-check-error"
	EventConditionCheck    EventType = "market-condition-check"
	EventConditionMet      EventType = "execution-condition-met"
)

// Event is a state-change notification emitted by the execution monitor.
// Order is a snapshot taken after the mutation that produced the event.
type Event struct {
	Type       EventType       `json:"type"`
	OrderID    string          `json:"order_id"`
	Maker      string          `json:"maker"`
	Order      *MonitoredOrder `json:"order,omitempty"`
	Condition  *ConditionCheck `json:"condition,omitempty"`
	Error      string          `json:"error,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ConditionCheck carries the result of one market-trigger evaluation.
type ConditionCheck struct {
	MarketPrice   float64 `json:"market_price"`
	TargetPrice   float64 `json:"target_price"`
	ShouldExecute bool    `json:"should_execute"`
}

// PriceUpdate is an externally-sourced price tick for a token pair.
type PriceUpdate struct {
	InputMint  string    `json:"input_mint"`
	OutputMint string    `json:"output_mint"`
	Price      float64   `json:"price"`
	TS         time.Time `json:"ts"`
}

// Key returns the pair room key the update routes to.
func (p PriceUpdate) Key() string {
	return PairKey(p.InputMint, p.OutputMint)
}
