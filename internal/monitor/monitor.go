// Package monitor tracks asynchronously-executing trigger orders against an
// external matching engine. It owns the set of in-flight orders, polls the
// provider on a fixed cadence, evaluates market-trigger conditions for
// target-price orders, and emits typed lifecycle events.
//
// The monitor is an explicitly constructed instance — it owns its order map
// and timer handles, and is shut down by the process on termination signals.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"stockswap-backend/internal/model"
)

const (
	defaultPollInterval  = 10 * time.Second
	defaultMaxAttempts   = 360 // 1h of coverage at the 10s default
	defaultProbeNotional = 1_000_000
	defaultSlippageBps   = 50

	checkTimeout = 8 * time.Second
)

// Config tunes the execution monitor.
type Config struct {
	PollInterval  time.Duration // per-order poll cadence
	MaxAttempts   int           // polls before an order expires
	ProbeNotional uint64        // input amount for trigger price probes
	SlippageBps   int           // slippage for price probe quotes
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.ProbeNotional == 0 {
		c.ProbeNotional = defaultProbeNotional
	}
	if c.SlippageBps <= 0 {
		c.SlippageBps = defaultSlippageBps
	}
}

// OrderData carries the economics of an order being registered.
type OrderData struct {
	InputMint    string          `json:"input_mint"`
	OutputMint   string          `json:"output_mint"`
	OrderType    model.OrderType `json:"order_type"`
	MakingAmount uint64          `json:"making_amount,omitempty"`
	TakingAmount uint64          `json:"taking_amount,omitempty"`
	TargetPrice  float64         `json:"target_price,omitempty"`
}

// entry pairs an order record with its recurring poll cancellation handle.
// cancel is nil once the order has left active monitoring.
type entry struct {
	order  *model.MonitoredOrder
	cancel CancelFunc
}

// Monitor polls trigger orders and emits lifecycle events.
type Monitor struct {
	cfg      Config
	provider model.StatusProvider
	quotes   model.QuoteProvider
	sched    Scheduler
	journal  model.OrderJournal // nil disables persistence
	bus      *EventBus
	now      func() time.Time

	mu     sync.Mutex
	orders map[string]*entry
}

// New creates a Monitor. journal may be nil to disable persistence.
func New(cfg Config, provider model.StatusProvider, quotes model.QuoteProvider, sched Scheduler, journal model.OrderJournal) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:      cfg,
		provider: provider,
		quotes:   quotes,
		sched:    sched,
		journal:  journal,
		bus:      NewEventBus(256),
		now:      time.Now,
		orders:   make(map[string]*entry),
	}
}

// Events returns the monitor's event bus for subscribing consumers.
func (m *Monitor) Events() *EventBus { return m.bus }

// Subscribe returns a new channel receiving every emitted event.
func (m *Monitor) Subscribe() <-chan model.Event { return m.bus.Subscribe() }

// StartMonitoring registers an order and begins polling it. Idempotent: a
// live timer for the same orderId is cancelled and replaced. One check runs
// synchronously before returning.
func (m *Monitor) StartMonitoring(orderID, maker string, data OrderData) *model.MonitoredOrder {
	m.mu.Lock()
	if prev, ok := m.orders[orderID]; ok && prev.cancel != nil {
		prev.cancel()
		prev.cancel = nil
	}

	o := &model.MonitoredOrder{
		OrderID:      orderID,
		Maker:        maker,
		InputMint:    data.InputMint,
		OutputMint:   data.OutputMint,
		OrderType:    data.OrderType,
		MakingAmount: data.MakingAmount,
		TakingAmount: data.TakingAmount,
		TargetPrice:  data.TargetPrice,
		Status:       model.StatusMonitoring,
		CreatedAt:    m.now(),
	}
	e := &entry{order: o}
	m.orders[orderID] = e
	e.cancel = m.sched.Schedule(m.cfg.PollInterval, func() {
		m.checkOrderStatus(orderID)
	})
	snap := o.Clone()
	m.mu.Unlock()

	log.Printf("[monitor] started monitoring order %s (maker=%s type=%s)", orderID, maker, data.OrderType)
	m.persist(snap)
	m.checkOrderStatus(orderID)

	return m.getClone(orderID)
}

// StopMonitoring cancels the order's timer and marks it stopped. Returns
// false without error when the order is unknown or already terminal.
func (m *Monitor) StopMonitoring(orderID string) bool {
	m.mu.Lock()
	e, ok := m.orders[orderID]
	if !ok || e.order.Status != model.StatusMonitoring {
		m.mu.Unlock()
		return false
	}
	cancel := e.cancel
	e.cancel = nil

	ts := m.now()
	e.order.Status = model.StatusStopped
	e.order.StoppedAt = &ts
	snap := e.order.Clone()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("[monitor] stopped monitoring order %s", orderID)
	m.persist(snap)
	m.emit(model.Event{
		Type:    model.EventMonitoringStopped,
		OrderID: snap.OrderID,
		Maker:   snap.Maker,
		Order:   snap,
	})
	return true
}

// checkOrderStatus runs one poll cycle for an order. Invoked by the
// recurring timer and once synchronously from StartMonitoring.
func (m *Monitor) checkOrderStatus(orderID string) {
	m.mu.Lock()
	e, ok := m.orders[orderID]
	if !ok || e.order.Status != model.StatusMonitoring {
		m.mu.Unlock()
		return
	}

	o := e.order
	o.ExecutionAttempts++
	o.LastCheckedAt = m.now()

	if o.ExecutionAttempts >= m.cfg.MaxAttempts {
		ts := m.now()
		o.Status = model.StatusExpired
		o.StoppedAt = &ts
		cancel := e.cancel
		e.cancel = nil
		snap := o.Clone()
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		log.Printf("[monitor] order %s expired after %d attempts", orderID, snap.ExecutionAttempts)
		m.persist(snap)
		m.emit(model.Event{
			Type:    model.EventOrderExpired,
			OrderID: snap.OrderID,
			Maker:   snap.Maker,
			Order:   snap,
		})
		return
	}

	targetPrice := o.TargetPrice
	m.mu.Unlock()

	ctx, cancelCtx := context.WithTimeout(context.Background(), checkTimeout)
	defer cancelCtx()

	report, err := m.provider.GetTriggerOrderStatus(ctx, orderID)
	if err != nil {
		m.recordCheckError(orderID, err)
		return
	}

	switch report.Status {
	case model.ProviderExecuted:
		m.finish(orderID, model.StatusExecuted, report.ExecutedAt, model.EventOrderExecuted)

	case model.ProviderCancelled:
		m.finish(orderID, model.StatusCancelled, report.CancelledAt, model.EventOrderCancelled)

	default: // pending or active — keep monitoring
		m.mu.Lock()
		e, ok := m.orders[orderID]
		if !ok || e.order.Status != model.StatusMonitoring {
			m.mu.Unlock()
			return
		}
		e.order.LastError = ""
		snap := e.order.Clone()
		m.mu.Unlock()

		m.emit(model.Event{
			Type:    model.EventStatusUpdate,
			OrderID: snap.OrderID,
			Maker:   snap.Maker,
			Order:   snap,
		})
		if targetPrice > 0 {
			m.checkExecutionConditions(orderID)
		}
	}
}

// finish moves an order into a terminal state, stops its timer, persists, and
// emits the terminal event. A no-op when the order was stopped concurrently.
func (m *Monitor) finish(orderID string, to model.OrderStatus, at *time.Time, evType model.EventType) {
	m.mu.Lock()
	e, ok := m.orders[orderID]
	if !ok || e.order.Status != model.StatusMonitoring {
		m.mu.Unlock()
		return
	}

	ts := m.now()
	if at != nil {
		ts = *at
	}
	o := e.order
	o.Status = to
	switch to {
	case model.StatusExecuted:
		o.ExecutedAt = &ts
	case model.StatusCancelled:
		o.CancelledAt = &ts
	default:
		o.StoppedAt = &ts
	}
	cancel := e.cancel
	e.cancel = nil
	snap := o.Clone()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("[monitor] order %s %s", orderID, to)
	m.persist(snap)
	m.emit(model.Event{
		Type:    evType,
		OrderID: snap.OrderID,
		Maker:   snap.Maker,
		Order:   snap,
	})
}

// recordCheckError notes a transient provider failure. The order stays in
// monitoring; the next scheduled poll is the retry.
func (m *Monitor) recordCheckError(orderID string, err error) {
	m.mu.Lock()
	e, ok := m.orders[orderID]
	if !ok || e.order.Status != model.StatusMonitoring {
		m.mu.Unlock()
		return
	}
	e.order.LastError = err.Error()
	snap := e.order.Clone()
	m.mu.Unlock()

	log.Printf("[monitor] status check failed for order %s: %v", orderID, err)
	m.emit(model.Event{
		Type:    model.EventStatusCheckError,
		OrderID: snap.OrderID,
		Maker:   snap.Maker,
		Order:   snap,
		Error:   err.Error(),
	})
}

// CleanupOldOrders removes terminal orders whose terminal timestamp is older
// than the cutoff. Safe to call concurrently with polling: it only touches
// orders that are terminal and timer-free. Returns the count removed from
// the in-memory set.
func (m *Monitor) CleanupOldOrders(olderThanDays int) int {
	if olderThanDays <= 0 {
		olderThanDays = 7
	}
	cutoff := m.now().AddDate(0, 0, -olderThanDays)

	m.mu.Lock()
	removed := 0
	for id, e := range m.orders {
		if !e.order.Status.Terminal() {
			continue
		}
		at := e.order.TerminalAt()
		if !at.IsZero() && at.Before(cutoff) {
			delete(m.orders, id)
			removed++
		}
	}
	m.mu.Unlock()

	if m.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if n, err := m.journal.DeleteTerminalBefore(ctx, cutoff); err != nil {
			log.Printf("[monitor] journal cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("[monitor] journal cleanup removed %d rows", n)
		}
	}

	if removed > 0 {
		log.Printf("[monitor] cleanup removed %d terminal orders older than %dd", removed, olderThanDays)
	}
	return removed
}

// GetOrder returns a copy of the order record, if known.
func (m *Monitor) GetOrder(orderID string) (*model.MonitoredOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orders[orderID]
	if !ok {
		return nil, false
	}
	return e.order.Clone(), true
}

// GetActiveOrders returns copies of every order still in monitoring.
func (m *Monitor) GetActiveOrders() []*model.MonitoredOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.MonitoredOrder, 0)
	for _, e := range m.orders {
		if e.order.Status == model.StatusMonitoring {
			out = append(out, e.order.Clone())
		}
	}
	return out
}

// ActiveOrdersByMaker returns copies of the wallet's orders still in monitoring.
func (m *Monitor) ActiveOrdersByMaker(maker string) []*model.MonitoredOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.MonitoredOrder, 0)
	for _, e := range m.orders {
		if e.order.Status == model.StatusMonitoring && e.order.Maker == maker {
			out = append(out, e.order.Clone())
		}
	}
	return out
}

// Statistics summarizes the monitored order set.
type Statistics struct {
	TotalOrders       int                       `json:"total_orders"`
	ByStatus          map[model.OrderStatus]int `json:"by_status"`
	ActiveTimers      int                       `json:"active_timers"`
	AvgMonitorSeconds float64                   `json:"avg_monitor_seconds"` // executed orders only
}

// GetStatistics returns per-status counts and the average wall-clock
// monitoring duration over executed orders.
func (m *Monitor) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Statistics{ByStatus: make(map[model.OrderStatus]int)}
	var execSum time.Duration
	var execN int
	for _, e := range m.orders {
		st.TotalOrders++
		st.ByStatus[e.order.Status]++
		if e.cancel != nil {
			st.ActiveTimers++
		}
		if e.order.Status == model.StatusExecuted && e.order.ExecutedAt != nil {
			execSum += e.order.ExecutedAt.Sub(e.order.CreatedAt)
			execN++
		}
	}
	if execN > 0 {
		st.AvgMonitorSeconds = execSum.Seconds() / float64(execN)
	}
	return st
}

// Recover reloads non-terminal orders from the journal and resumes their
// poll timers. Returns the number of orders resumed.
func (m *Monitor) Recover(ctx context.Context) (int, error) {
	if m.journal == nil {
		return 0, nil
	}
	orders, err := m.journal.LoadActive(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	resumed := 0
	for _, o := range orders {
		if _, exists := m.orders[o.OrderID]; exists {
			continue
		}
		id := o.OrderID
		e := &entry{order: o}
		m.orders[id] = e
		e.cancel = m.sched.Schedule(m.cfg.PollInterval, func() {
			m.checkOrderStatus(id)
		})
		resumed++
	}
	m.mu.Unlock()

	if resumed > 0 {
		log.Printf("[monitor] resumed %d orders from journal", resumed)
	}
	return resumed, nil
}

// Shutdown cancels every outstanding timer, clears all state, and closes
// the event bus. Intended for process-level graceful termination.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	cancels := make([]CancelFunc, 0, len(m.orders))
	for _, e := range m.orders {
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
			e.cancel = nil
		}
	}
	m.orders = make(map[string]*entry)
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.bus.Close()
	log.Printf("[monitor] shut down (%d timers cancelled)", len(cancels))
}

func (m *Monitor) getClone(orderID string) *model.MonitoredOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.orders[orderID]; ok {
		return e.order.Clone()
	}
	return nil
}

func (m *Monitor) persist(o *model.MonitoredOrder) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	if err := m.journal.Save(ctx, o); err != nil {
		log.Printf("[monitor] journal save failed for order %s: %v", o.OrderID, err)
	}
}

func (m *Monitor) emit(ev model.Event) {
	ev.OccurredAt = m.now()
	m.bus.Publish(ev)
}
