package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stockswap-backend/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSaveAndLoadActive(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	active := &model.MonitoredOrder{
		OrderID:           "ord-1",
		Maker:             "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		InputMint:         "So11111111111111111111111111111111111111112",
		OutputMint:        "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		OrderType:         model.OrderBuy,
		TargetPrice:       101.5,
		Status:            model.StatusMonitoring,
		CreatedAt:         created,
		ExecutionAttempts: 4,
		PendingExecution:  true,
		LastError:         "timeout",
	}
	if err := j.Save(ctx, active); err != nil {
		t.Fatalf("save active: %v", err)
	}

	execAt := created.Add(time.Hour)
	done := &model.MonitoredOrder{
		OrderID:    "ord-2",
		Maker:      active.Maker,
		OrderType:  model.OrderSell,
		Status:     model.StatusExecuted,
		CreatedAt:  created,
		ExecutedAt: &execAt,
	}
	if err := j.Save(ctx, done); err != nil {
		t.Fatalf("save terminal: %v", err)
	}

	orders, err := j.LoadActive(ctx)
	if err != nil {
		t.Fatalf("load active: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("active orders: got %d, want 1", len(orders))
	}

	got := orders[0]
	if got.OrderID != "ord-1" {
		t.Errorf("order_id: got %s", got.OrderID)
	}
	if got.TargetPrice != 101.5 {
		t.Errorf("target_price: got %f", got.TargetPrice)
	}
	if got.ExecutionAttempts != 4 {
		t.Errorf("attempts: got %d", got.ExecutionAttempts)
	}
	if !got.PendingExecution {
		t.Error("pending_execution not restored")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at: got %v, want %v", got.CreatedAt, created)
	}
	if got.LastError != "timeout" {
		t.Errorf("last_error: got %q", got.LastError)
	}
}

func TestSaveIsUpsert(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	o := &model.MonitoredOrder{
		OrderID:   "ord-1",
		Maker:     "maker",
		OrderType: model.OrderBuy,
		Status:    model.StatusMonitoring,
		CreatedAt: time.Now(),
	}
	if err := j.Save(ctx, o); err != nil {
		t.Fatal(err)
	}

	ts := time.Now()
	o.Status = model.StatusStopped
	o.StoppedAt = &ts
	if err := j.Save(ctx, o); err != nil {
		t.Fatal(err)
	}

	orders, err := j.LoadActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Errorf("stopped order still reported active: %v", orders)
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	save := func(id string, status model.OrderStatus, terminalAgo time.Duration) {
		o := &model.MonitoredOrder{
			OrderID:   id,
			Maker:     "maker",
			OrderType: model.OrderBuy,
			Status:    status,
			CreatedAt: now.Add(-terminalAgo - time.Hour),
		}
		if status.Terminal() {
			ts := now.Add(-terminalAgo)
			switch status {
			case model.StatusExecuted:
				o.ExecutedAt = &ts
			case model.StatusCancelled:
				o.CancelledAt = &ts
			default:
				o.StoppedAt = &ts
			}
		}
		if err := j.Save(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	save("old-executed", model.StatusExecuted, 8*24*time.Hour)
	save("recent-executed", model.StatusExecuted, 6*24*time.Hour)
	save("old-stopped", model.StatusStopped, 9*24*time.Hour)
	save("still-active", model.StatusMonitoring, 0)

	n, err := j.DeleteTerminalBefore(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("removed: got %d, want 2", n)
	}

	orders, err := j.LoadActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].OrderID != "still-active" {
		t.Errorf("active after cleanup: %v", orders)
	}
}
