package monitor

import (
	"log"
	"sync"

	"stockswap-backend/internal/model"
)

// EventBus broadcasts monitor events to N subscriber channels. If a
// subscriber channel is full, the event is dropped for that consumer to
// prevent a slow consumer from blocking a poll cycle.
type EventBus struct {
	mu      sync.RWMutex
	outputs []chan model.Event
	bufSize int
	closed  bool

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// NewEventBus creates an EventBus with the given buffer size for
// subscriber channels.
func NewEventBus(outputBufferSize int) *EventBus {
	return &EventBus{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new subscriber channel.
func (b *EventBus) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, b.bufSize)
	b.mu.Lock()
	b.outputs = append(b.outputs, ch)
	b.mu.Unlock()
	return ch
}

// Publish fans an event out to all subscribers without blocking.
func (b *EventBus) Publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for i, ch := range b.outputs {
		select {
		case ch <- ev:
		default:
			if b.OnDrop != nil {
				b.OnDrop(i)
			} else {
				log.Printf("[bus] subscriber %d full, dropping %s for order %s", i, ev.Type, ev.OrderID)
			}
		}
	}
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.outputs {
		close(ch)
	}
}

// ChannelStat reports (length, capacity) for a subscriber channel.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns the current fill of every subscriber channel.
func (b *EventBus) ChannelStats() []ChannelStat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := make([]ChannelStat, len(b.outputs))
	for i, ch := range b.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
