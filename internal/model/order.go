package model

import "time"

// OrderStatus is the lifecycle state of a monitored trigger order.
// Monitoring is the only non-terminal state; the other four are terminal
// and an order never leaves them.
type OrderStatus string

const (
	StatusMonitoring OrderStatus = "monitoring"
	StatusExecuted   OrderStatus = "executed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusExpired    OrderStatus = "expired"
	StatusStopped    OrderStatus = "stopped"
)

// Terminal reports whether the status is one the order never leaves.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusExecuted, StatusCancelled, StatusExpired, StatusStopped:
		return true
	}
	return false
}

// OrderType is the trade direction of a trigger order.
type OrderType string

const (
	OrderBuy  OrderType = "buy"
	OrderSell OrderType = "sell"
)

// MonitoredOrder is a trigger order under active status polling.
// Only the execution monitor mutates it (single writer per order).
type MonitoredOrder struct {
	OrderID    string    `json:"order_id"`
	Maker      string    `json:"maker"` // owning wallet address
	InputMint  string    `json:"input_mint"`
	OutputMint string    `json:"output_mint"`
	OrderType  OrderType `json:"order_type"`

	// Order economics. Exact-amount orders carry making/taking amounts in
	// base units; target-price orders carry TargetPrice > 0.
	MakingAmount uint64  `json:"making_amount,omitempty"`
	TakingAmount uint64  `json:"taking_amount,omitempty"`
	TargetPrice  float64 `json:"target_price,omitempty"`

	Status OrderStatus `json:"status"`

	CreatedAt     time.Time  `json:"created_at"`
	LastCheckedAt time.Time  `json:"last_checked_at"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`

	ExecutionAttempts int `json:"execution_attempts"`

	// Market condition currently satisfied but not yet confirmed executed
	// upstream. Advisory only — settlement belongs to the provider.
	PendingExecution      bool       `json:"pending_execution"`
	ExecutionConditionMet *time.Time `json:"execution_condition_met_at,omitempty"`

	// Most recent poll failure. Non-fatal; cleared on the next success.
	LastError string `json:"last_error,omitempty"`
}

// TerminalAt returns the timestamp at which the order entered its terminal
// status, or the zero time if the order is still monitoring.
func (o *MonitoredOrder) TerminalAt() time.Time {
	switch o.Status {
	case StatusExecuted:
		if o.ExecutedAt != nil {
			return *o.ExecutedAt
		}
	case StatusCancelled:
		if o.CancelledAt != nil {
			return *o.CancelledAt
		}
	case StatusStopped, StatusExpired:
		if o.StoppedAt != nil {
			return *o.StoppedAt
		}
	}
	return time.Time{}
}

// Clone returns a copy safe to hand to other components.
func (o *MonitoredOrder) Clone() *MonitoredOrder {
	cp := *o
	return &cp
}

// PairKey returns the canonical routing key for the order's token pair.
func (o *MonitoredOrder) PairKey() string {
	return PairKey(o.InputMint, o.OutputMint)
}

// PairKey builds the routing key for an ordered (input, output) mint pair.
func PairKey(inputMint, outputMint string) string {
	return inputMint + ":" + outputMint
}
