// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and provides
// order ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type ctxKey string

const orderIDKey ctxKey = "order_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithOrderID stores an order ID in the context for downstream propagation.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, orderIDKey, orderID)
}

// OrderID extracts the order ID from context. Returns "" if not set.
func OrderID(ctx context.Context) string {
	if v, ok := ctx.Value(orderIDKey).(string); ok {
		return v
	}
	return ""
}

// CheckID creates a poll-cycle identifier from an order ID and timestamp.
// Format: "{orderId}-{unixNano}" — lightweight, no UUID dependency.
func CheckID(orderID string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", orderID, ts.UnixNano())
}

// LogWithOrder returns slog attributes including the order ID from context.
// Usage: slog.Info("msg", logger.LogWithOrder(ctx)...)
func LogWithOrder(ctx context.Context) []any {
	oid := OrderID(ctx)
	if oid == "" {
		return nil
	}
	return []any{slog.String("order_id", oid)}
}
