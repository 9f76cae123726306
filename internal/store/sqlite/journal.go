// Package sqlite persists monitored orders so a restart can resume polling
// where the previous process left off.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"stockswap-backend/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Journal is a single-writer SQLite store of monitored order records.
type Journal struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens (or creates) the journal database with WAL mode and schema.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer: the monitor is the only mutator
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened order journal at %s", dbPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id           TEXT PRIMARY KEY,
			maker              TEXT NOT NULL,
			input_mint         TEXT NOT NULL DEFAULT '',
			output_mint        TEXT NOT NULL DEFAULT '',
			order_type         TEXT NOT NULL,
			making_amount      INTEGER NOT NULL DEFAULT 0,
			taking_amount      INTEGER NOT NULL DEFAULT 0,
			target_price       REAL    NOT NULL DEFAULT 0,
			status             TEXT NOT NULL,
			created_at         INTEGER NOT NULL,
			last_checked_at    INTEGER NOT NULL DEFAULT 0,
			executed_at        INTEGER NOT NULL DEFAULT 0,
			cancelled_at       INTEGER NOT NULL DEFAULT 0,
			stopped_at         INTEGER NOT NULL DEFAULT 0,
			execution_attempts INTEGER NOT NULL DEFAULT 0,
			pending_execution  INTEGER NOT NULL DEFAULT 0,
			condition_met_at   INTEGER NOT NULL DEFAULT 0,
			last_error         TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
		CREATE INDEX IF NOT EXISTS idx_orders_maker  ON orders(maker);
	`)
	return err
}

// Save upserts an order record. Called on every state transition.
func (j *Journal) Save(ctx context.Context, o *model.MonitoredOrder) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (
			order_id, maker, input_mint, output_mint, order_type,
			making_amount, taking_amount, target_price, status,
			created_at, last_checked_at, executed_at, cancelled_at, stopped_at,
			execution_attempts, pending_execution, condition_met_at, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.Maker, o.InputMint, o.OutputMint, string(o.OrderType),
		int64(o.MakingAmount), int64(o.TakingAmount), o.TargetPrice, string(o.Status),
		o.CreatedAt.UnixNano(), nanosOrZero(timePtr(o.LastCheckedAt)),
		nanosOrZero(o.ExecutedAt), nanosOrZero(o.CancelledAt), nanosOrZero(o.StoppedAt),
		o.ExecutionAttempts, boolToInt(o.PendingExecution),
		nanosOrZero(o.ExecutionConditionMet), o.LastError,
	)
	if err != nil {
		return fmt.Errorf("sqlite save order %s: %w", o.OrderID, err)
	}
	return nil
}

// LoadActive returns every order still in monitoring status, for startup
// recovery.
func (j *Journal) LoadActive(ctx context.Context) ([]*model.MonitoredOrder, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_id, maker, input_mint, output_mint, order_type,
		       making_amount, taking_amount, target_price, status,
		       created_at, last_checked_at, executed_at, cancelled_at, stopped_at,
		       execution_attempts, pending_execution, condition_met_at, last_error
		FROM orders WHERE status = ?
		ORDER BY created_at ASC`, string(model.StatusMonitoring))
	if err != nil {
		return nil, fmt.Errorf("sqlite query active orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.MonitoredOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// DeleteTerminalBefore removes terminal orders whose terminal timestamp is
// older than the cutoff. Returns the number of rows removed.
func (j *Journal) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := j.db.ExecContext(ctx, `
		DELETE FROM orders
		WHERE status != ?
		  AND MAX(executed_at, cancelled_at, stopped_at) > 0
		  AND MAX(executed_at, cancelled_at, stopped_at) < ?`,
		string(model.StatusMonitoring), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

func scanOrder(rows *sql.Rows) (*model.MonitoredOrder, error) {
	var (
		o                                  model.MonitoredOrder
		orderType, status                  string
		makingAmt, takingAmt               int64
		createdNs, checkedNs               int64
		executedNs, cancelledNs, stoppedNs int64
		pending                            int
		conditionNs                        int64
	)
	if err := rows.Scan(
		&o.OrderID, &o.Maker, &o.InputMint, &o.OutputMint, &orderType,
		&makingAmt, &takingAmt, &o.TargetPrice, &status,
		&createdNs, &checkedNs, &executedNs, &cancelledNs, &stoppedNs,
		&o.ExecutionAttempts, &pending, &conditionNs, &o.LastError,
	); err != nil {
		return nil, fmt.Errorf("sqlite scan order: %w", err)
	}

	o.OrderType = model.OrderType(orderType)
	o.Status = model.OrderStatus(status)
	o.MakingAmount = uint64(makingAmt)
	o.TakingAmount = uint64(takingAmt)
	o.CreatedAt = time.Unix(0, createdNs).UTC()
	if checkedNs > 0 {
		o.LastCheckedAt = time.Unix(0, checkedNs).UTC()
	}
	o.ExecutedAt = timeFromNanos(executedNs)
	o.CancelledAt = timeFromNanos(cancelledNs)
	o.StoppedAt = timeFromNanos(stoppedNs)
	o.PendingExecution = pending != 0
	o.ExecutionConditionMet = timeFromNanos(conditionNs)
	return &o, nil
}

func nanosOrZero(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeFromNanos(ns int64) *time.Time {
	if ns == 0 {
		return nil
	}
	t := time.Unix(0, ns).UTC()
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
