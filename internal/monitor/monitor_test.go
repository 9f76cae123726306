package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stockswap-backend/internal/model"
)

// fakeStatusProvider scripts provider status responses per call.
type fakeStatusProvider struct {
	mu    sync.Mutex
	fn    func(orderID string) (model.StatusReport, error)
	calls int
}

func (f *fakeStatusProvider) GetTriggerOrderStatus(ctx context.Context, orderID string) (model.StatusReport, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return model.StatusReport{Status: model.ProviderPending}, nil
	}
	return fn(orderID)
}

func (f *fakeStatusProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeQuoteProvider returns a fixed implied market price.
type fakeQuoteProvider struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (f *fakeQuoteProvider) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Quote{}, f.err
	}
	return model.Quote{
		InAmount:  amount,
		OutAmount: uint64(f.price * float64(amount)),
	}, nil
}

func newTestMonitor(cfg Config, sp *fakeStatusProvider, qp *fakeQuoteProvider) (*Monitor, *ManualScheduler) {
	sched := NewManualScheduler()
	if sp == nil {
		sp = &fakeStatusProvider{}
	}
	if qp == nil {
		qp = &fakeQuoteProvider{price: 1}
	}
	return New(cfg, sp, qp, sched, nil), sched
}

// drain collects every event currently buffered on the channel.
func drain(ch <-chan model.Event) []model.Event {
	var out []model.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countType(events []model.Event, t model.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

const (
	testMaker = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	mintA     = "So11111111111111111111111111111111111111112"
	mintB     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestStartMonitoring_ImmediateCheck(t *testing.T) {
	sp := &fakeStatusProvider{}
	m, sched := newTestMonitor(Config{}, sp, nil)
	events := m.Subscribe()

	o := m.StartMonitoring("ord-1", testMaker, OrderData{
		InputMint:  mintA,
		OutputMint: mintB,
		OrderType:  model.OrderBuy,
	})

	if o == nil {
		t.Fatal("expected order record")
	}
	if o.Status != model.StatusMonitoring {
		t.Errorf("status: got %s, want monitoring", o.Status)
	}
	if o.ExecutionAttempts != 1 {
		t.Errorf("attempts after immediate check: got %d, want 1", o.ExecutionAttempts)
	}
	if sp.callCount() != 1 {
		t.Errorf("provider calls: got %d, want 1", sp.callCount())
	}
	if sched.JobCount() != 1 {
		t.Errorf("jobs: got %d, want 1", sched.JobCount())
	}

	evs := drain(events)
	if countType(evs, model.EventStatusUpdate) != 1 {
		t.Errorf("expected one status-update event, got %v", evs)
	}
}

func TestStartMonitoring_IdempotentReplacement(t *testing.T) {
	sp := &fakeStatusProvider{}
	m, sched := newTestMonitor(Config{}, sp, nil)

	m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderBuy})
	m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderBuy})

	if sched.JobCount() != 1 {
		t.Fatalf("jobs after double start: got %d, want 1", sched.JobCount())
	}

	// One tick must produce exactly one additional poll.
	before := sp.callCount()
	sched.Tick()
	if got := sp.callCount() - before; got != 1 {
		t.Errorf("polls per tick: got %d, want 1", got)
	}

	// Replacement registered a fresh record: its immediate check plus one tick.
	o, _ := m.GetOrder("ord-1")
	if o.ExecutionAttempts != 2 {
		t.Errorf("attempts: got %d, want 2", o.ExecutionAttempts)
	}
}

func TestMaxAttempts_Expiry(t *testing.T) {
	sp := &fakeStatusProvider{}
	m, sched := newTestMonitor(Config{MaxAttempts: 3}, sp, nil)
	events := m.Subscribe()

	m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderSell})
	sched.Tick() // attempt 2
	sched.Tick() // attempt 3 — expiry

	o, ok := m.GetOrder("ord-1")
	if !ok {
		t.Fatal("order missing")
	}
	if o.Status != model.StatusExpired {
		t.Fatalf("status: got %s, want expired", o.Status)
	}
	if o.StoppedAt == nil {
		t.Error("expected terminal timestamp on expiry")
	}
	if sched.JobCount() != 0 {
		t.Errorf("jobs after expiry: got %d, want 0", sched.JobCount())
	}

	// Further ticks must not poll.
	calls := sp.callCount()
	sched.Tick()
	sched.Tick()
	if sp.callCount() != calls {
		t.Errorf("polls after expiry: got %d extra", sp.callCount()-calls)
	}

	evs := drain(events)
	if countType(evs, model.EventOrderExpired) != 1 {
		t.Errorf("expected exactly one order-expired event, got %d", countType(evs, model.EventOrderExpired))
	}
}

func TestTerminalTransitions(t *testing.T) {
	execAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		report     model.StatusReport
		wantStatus model.OrderStatus
		wantEvent  model.EventType
	}{
		{
			name:       "executed",
			report:     model.StatusReport{Status: model.ProviderExecuted, ExecutedAt: &execAt},
			wantStatus: model.StatusExecuted,
			wantEvent:  model.EventOrderExecuted,
		},
		{
			name:       "cancelled",
			report:     model.StatusReport{Status: model.ProviderCancelled},
			wantStatus: model.StatusCancelled,
			wantEvent:  model.EventOrderCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeStatusProvider{fn: func(string) (model.StatusReport, error) {
				return tt.report, nil
			}}
			m, sched := newTestMonitor(Config{}, sp, nil)
			events := m.Subscribe()

			m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderBuy})

			o, _ := m.GetOrder("ord-1")
			if o.Status != tt.wantStatus {
				t.Fatalf("status: got %s, want %s", o.Status, tt.wantStatus)
			}
			if o.TerminalAt().IsZero() {
				t.Error("expected terminal timestamp")
			}
			if tt.name == "executed" && !o.ExecutedAt.Equal(execAt) {
				t.Errorf("executed_at: got %v, want provider's %v", o.ExecutedAt, execAt)
			}
			if sched.JobCount() != 0 {
				t.Errorf("jobs after terminal: got %d, want 0", sched.JobCount())
			}
			evs := drain(events)
			if countType(evs, tt.wantEvent) != 1 {
				t.Errorf("expected one %s event, got %v", tt.wantEvent, evs)
			}
		})
	}
}

func TestProviderFailure_StaysMonitoring(t *testing.T) {
	sp := &fakeStatusProvider{fn: func(string) (model.StatusReport, error) {
		return model.StatusReport{}, errors.New("connection refused")
	}}
	m, sched := newTestMonitor(Config{MaxAttempts: 100}, sp, nil)
	events := m.Subscribe()

	m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderBuy})
	for i := 0; i < 10; i++ {
		sched.Tick()
	}

	o, _ := m.GetOrder("ord-1")
	if o.Status != model.StatusMonitoring {
		t.Fatalf("status after repeated failures: got %s, want monitoring", o.Status)
	}
	if o.LastError == "" {
		t.Error("expected last_error to be recorded")
	}
	if o.ExecutionAttempts != 11 {
		t.Errorf("attempts: got %d, want 11", o.ExecutionAttempts)
	}

	evs := drain(events)
	if countType(evs, model.EventStatusCheckError) != 11 {
		t.Errorf("status-check-error events: got %d, want 11", countType(evs, model.EventStatusCheckError))
	}
	for _, terminal := range []model.EventType{model.EventOrderExecuted, model.EventOrderCancelled, model.EventOrderExpired} {
		if countType(evs, terminal) != 0 {
			t.Errorf("unexpected %s event from failures alone", terminal)
		}
	}
}

func TestStopMonitoring(t *testing.T) {
	sp := &fakeStatusProvider{}
	m, sched := newTestMonitor(Config{}, sp, nil)
	events := m.Subscribe()

	m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderBuy})

	if !m.StopMonitoring("ord-1") {
		t.Fatal("expected stop to succeed")
	}
	o, _ := m.GetOrder("ord-1")
	if o.Status != model.StatusStopped {
		t.Errorf("status: got %s, want stopped", o.Status)
	}
	if o.StoppedAt == nil {
		t.Error("expected stopped_at timestamp")
	}
	if sched.JobCount() != 0 {
		t.Errorf("jobs after stop: got %d, want 0", sched.JobCount())
	}
	if countType(drain(events), model.EventMonitoringStopped) != 1 {
		t.Error("expected one monitoring-stopped event")
	}

	// Stopping again, or stopping an unknown order, is a quiet no-op.
	if m.StopMonitoring("ord-1") {
		t.Error("second stop should be a no-op")
	}
	if m.StopMonitoring("never-registered") {
		t.Error("stop of unknown order should be a no-op")
	}
}

func TestConditionEvaluation(t *testing.T) {
	tests := []struct {
		name        string
		orderType   model.OrderType
		targetPrice float64
		marketPrice float64
		wantMet     bool
	}{
		{"buy_below_target_triggers", model.OrderBuy, 100, 95, true},
		{"buy_at_target_triggers", model.OrderBuy, 100, 100, true},
		{"buy_above_target_waits", model.OrderBuy, 100, 105, false},
		{"sell_above_target_triggers", model.OrderSell, 100, 105, true},
		{"sell_below_target_waits", model.OrderSell, 100, 95, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qp := &fakeQuoteProvider{price: tt.marketPrice}
			m, _ := newTestMonitor(Config{}, nil, qp)
			events := m.Subscribe()

			m.StartMonitoring("ord-1", testMaker, OrderData{
				InputMint:   mintA,
				OutputMint:  mintB,
				OrderType:   tt.orderType,
				TargetPrice: tt.targetPrice,
			})

			o, _ := m.GetOrder("ord-1")
			if o.PendingExecution != tt.wantMet {
				t.Errorf("pending_execution: got %v, want %v", o.PendingExecution, tt.wantMet)
			}
			if tt.wantMet && o.ExecutionConditionMet == nil {
				t.Error("expected execution_condition_met_at to be set")
			}

			evs := drain(events)
			checks := countType(evs, model.EventConditionCheck)
			if checks != 1 {
				t.Fatalf("market-condition-check events: got %d, want 1", checks)
			}
			for _, ev := range evs {
				if ev.Type == model.EventConditionCheck {
					if ev.Condition == nil {
						t.Fatal("condition check event missing payload")
					}
					if ev.Condition.ShouldExecute != tt.wantMet {
						t.Errorf("should_execute: got %v, want %v", ev.Condition.ShouldExecute, tt.wantMet)
					}
					if ev.Condition.MarketPrice != tt.marketPrice {
						t.Errorf("market_price: got %v, want %v", ev.Condition.MarketPrice, tt.marketPrice)
					}
				}
			}
			wantMetEvents := 0
			if tt.wantMet {
				wantMetEvents = 1
			}
			if got := countType(evs, model.EventConditionMet); got != wantMetEvents {
				t.Errorf("execution-condition-met events: got %d, want %d", got, wantMetEvents)
			}
		})
	}
}

func TestConditionMet_EmittedOnceWhileHolding(t *testing.T) {
	qp := &fakeQuoteProvider{price: 95}
	m, sched := newTestMonitor(Config{}, nil, qp)
	events := m.Subscribe()

	m.StartMonitoring("ord-1", testMaker, OrderData{
		InputMint:   mintA,
		OutputMint:  mintB,
		OrderType:   model.OrderBuy,
		TargetPrice: 100,
	})
	sched.Tick()
	sched.Tick()

	evs := drain(events)
	if got := countType(evs, model.EventConditionMet); got != 1 {
		t.Errorf("execution-condition-met while condition holds: got %d, want 1", got)
	}
	if got := countType(evs, model.EventConditionCheck); got != 3 {
		t.Errorf("market-condition-check events: got %d, want 3", got)
	}
}

func TestCleanupOldOrders(t *testing.T) {
	m, _ := newTestMonitor(Config{}, nil, nil)

	now := time.Now()
	mk := func(id string, status model.OrderStatus, terminalAgo time.Duration) {
		ts := now.Add(-terminalAgo)
		o := &model.MonitoredOrder{OrderID: id, Status: status}
		switch status {
		case model.StatusExecuted:
			o.ExecutedAt = &ts
		case model.StatusCancelled:
			o.CancelledAt = &ts
		case model.StatusStopped, model.StatusExpired:
			o.StoppedAt = &ts
		}
		m.mu.Lock()
		m.orders[id] = &entry{order: o}
		m.mu.Unlock()
	}

	mk("exec-8d", model.StatusExecuted, 8*24*time.Hour)
	mk("exec-6d", model.StatusExecuted, 6*24*time.Hour)
	mk("stop-9d", model.StatusStopped, 9*24*time.Hour)
	mk("cancel-10d", model.StatusCancelled, 10*24*time.Hour)
	mk("active", model.StatusMonitoring, 0)

	removed := m.CleanupOldOrders(7)
	if removed != 3 {
		t.Fatalf("removed: got %d, want 3", removed)
	}

	if _, ok := m.GetOrder("exec-8d"); ok {
		t.Error("exec-8d should be purged")
	}
	if _, ok := m.GetOrder("exec-6d"); !ok {
		t.Error("exec-6d (inside retention) should be retained")
	}
	if _, ok := m.GetOrder("active"); !ok {
		t.Error("active order must never be purged")
	}
}

func TestGetStatistics(t *testing.T) {
	sp := &fakeStatusProvider{fn: func(string) (model.StatusReport, error) {
		return model.StatusReport{Status: model.ProviderExecuted}, nil
	}}
	m, _ := newTestMonitor(Config{}, sp, nil)

	m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderBuy})

	sp.mu.Lock()
	sp.fn = nil // back to pending
	sp.mu.Unlock()
	m.StartMonitoring("ord-2", testMaker, OrderData{OrderType: model.OrderSell})

	st := m.GetStatistics()
	if st.TotalOrders != 2 {
		t.Errorf("total: got %d, want 2", st.TotalOrders)
	}
	if st.ByStatus[model.StatusExecuted] != 1 || st.ByStatus[model.StatusMonitoring] != 1 {
		t.Errorf("by_status: got %v", st.ByStatus)
	}
	if st.ActiveTimers != 1 {
		t.Errorf("active timers: got %d, want 1", st.ActiveTimers)
	}
	if st.AvgMonitorSeconds < 0 {
		t.Errorf("avg monitor seconds must be non-negative, got %f", st.AvgMonitorSeconds)
	}
}

func TestShutdown(t *testing.T) {
	sp := &fakeStatusProvider{}
	m, sched := newTestMonitor(Config{}, sp, nil)
	events := m.Subscribe()

	m.StartMonitoring("ord-1", testMaker, OrderData{OrderType: model.OrderBuy})
	m.StartMonitoring("ord-2", testMaker, OrderData{OrderType: model.OrderSell})

	m.Shutdown()

	if sched.JobCount() != 0 {
		t.Errorf("jobs after shutdown: got %d, want 0", sched.JobCount())
	}
	if len(m.GetActiveOrders()) != 0 {
		t.Error("expected empty order set after shutdown")
	}

	// Bus is closed: the subscriber channel drains then closes.
	for range events {
	}
}
