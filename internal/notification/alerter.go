package notification

import (
	"context"
	"log"
	"time"

	"stockswap-backend/internal/model"
)

const sendTimeout = 10 * time.Second

// Alerter turns terminal order events into alerts and fans them out to the
// configured notifier backends. Delivery failures are logged, never retried;
// the WebSocket path remains the source of truth for clients.
type Alerter struct {
	notifiers []Notifier
}

// NewAlerter creates an alerter over the given backends.
func NewAlerter(notifiers ...Notifier) *Alerter {
	return &Alerter{notifiers: notifiers}
}

// Run consumes monitor events until ctx is cancelled or the channel closes.
func (a *Alerter) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if alert, ok := a.alertFor(ev); ok {
				a.deliver(ctx, alert)
			}
		}
	}
}

// alertFor maps an event to an alert. Only terminal outcomes reach external
// channels; routine status updates would drown them.
func (a *Alerter) alertFor(ev model.Event) (Alert, bool) {
	alert := Alert{
		OrderID: ev.OrderID,
		Maker:   ev.Maker,
		At:      ev.OccurredAt,
	}
	switch ev.Type {
	case model.EventOrderExecuted:
		alert.Level = AlertInfo
		alert.Status = model.StatusExecuted
		alert.Summary = "Order filled on-chain."
	case model.EventOrderCancelled:
		alert.Level = AlertInfo
		alert.Status = model.StatusCancelled
		alert.Summary = "Order was cancelled on-chain."
	case model.EventOrderExpired:
		alert.Level = AlertWarning
		alert.Status = model.StatusExpired
		alert.Summary = "Order exhausted its monitoring window without resolution."
	default:
		return Alert{}, false
	}
	return alert, true
}

func (a *Alerter) deliver(ctx context.Context, alert Alert) {
	for _, n := range a.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		if err := n.Send(sendCtx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
		}
		cancel()
	}
}
