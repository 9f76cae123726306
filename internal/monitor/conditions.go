package monitor

import (
	"context"
	"log"

	"stockswap-backend/internal/model"
)

// checkExecutionConditions evaluates the market trigger for a target-price
// order. It fetches a small-notional quote, derives the implied market
// price, and compares it against the order's target: a buy triggers when
// the market is at or below target, a sell when at or above.
//
// This is advisory only. The monitor flags pendingExecution and emits
// events; settlement stays with the provider or explicit client action.
func (m *Monitor) checkExecutionConditions(orderID string) {
	m.mu.Lock()
	e, ok := m.orders[orderID]
	if !ok || e.order.Status != model.StatusMonitoring || e.order.TargetPrice <= 0 {
		m.mu.Unlock()
		return
	}
	inputMint := e.order.InputMint
	outputMint := e.order.OutputMint
	orderType := e.order.OrderType
	target := e.order.TargetPrice
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	quote, err := m.quotes.GetQuote(ctx, inputMint, outputMint, m.cfg.ProbeNotional, m.cfg.SlippageBps)
	if err != nil {
		m.recordCheckError(orderID, err)
		return
	}

	market := quote.Price()
	var should bool
	switch orderType {
	case model.OrderBuy:
		should = market <= target
	case model.OrderSell:
		should = market >= target
	}

	m.mu.Lock()
	e, ok = m.orders[orderID]
	if !ok || e.order.Status != model.StatusMonitoring {
		m.mu.Unlock()
		return
	}
	o := e.order
	newlyMet := should && !o.PendingExecution
	o.PendingExecution = should
	if newlyMet {
		ts := m.now()
		o.ExecutionConditionMet = &ts
	}
	snap := o.Clone()
	m.mu.Unlock()

	check := &model.ConditionCheck{
		MarketPrice:   market,
		TargetPrice:   target,
		ShouldExecute: should,
	}
	m.emit(model.Event{
		Type:      model.EventConditionCheck,
		OrderID:   snap.OrderID,
		Maker:     snap.Maker,
		Order:     snap,
		Condition: check,
	})
	if newlyMet {
		log.Printf("[monitor] execution condition met for order %s (market=%.6f target=%.6f)", orderID, market, target)
		m.persist(snap)
		m.emit(model.Event{
			Type:      model.EventConditionMet,
			OrderID:   snap.OrderID,
			Maker:     snap.Maker,
			Order:     snap,
			Condition: check,
		})
	}
}
