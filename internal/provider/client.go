// Package provider is the HTTP client for the external quote/trigger
// provider (a Jupiter-style aggregator API). It implements the monitor's
// StatusProvider and QuoteProvider ports.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stockswap-backend/internal/model"
)

const (
	defaultTimeout      = 10 * time.Second
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// Config configures the provider client.
type Config struct {
	BaseURL string        // e.g. "https://lite-api.jup.ag"
	Timeout time.Duration // per-request timeout
}

// Client calls the provider's quote and trigger-order endpoints. All calls
// run through a circuit breaker so a dead provider fails fast instead of
// tying up every poll goroutine in connect timeouts.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *CircuitBreaker

	// ObserveLatency, when set, receives the duration of every provider
	// round trip (including failures).
	ObserveLatency func(d time.Duration)
}

// New creates a provider client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout),
	}
}

// Breaker exposes the circuit breaker for state-change metrics wiring.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// quoteResponse is the provider's quote wire format. Amounts arrive as
// decimal strings of base units.
type quoteResponse struct {
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// GetQuote fetches a swap quote for the pair and amount.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (model.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	var resp quoteResponse
	if err := c.getJSON(ctx, "/swap/v1/quote?"+q.Encode(), &resp); err != nil {
		return model.Quote{}, err
	}

	inAmt, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote: bad inAmount %q: %w", resp.InAmount, err)
	}
	outAmt, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote: bad outAmount %q: %w", resp.OutAmount, err)
	}
	impact, _ := strconv.ParseFloat(resp.PriceImpactPct, 64)

	return model.Quote{
		InAmount:       inAmt,
		OutAmount:      outAmt,
		PriceImpactPct: impact,
	}, nil
}

// statusResponse is the provider's trigger-order status wire format.
type statusResponse struct {
	Status      string     `json:"status"`
	ExecutedAt  *time.Time `json:"executedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// GetTriggerOrderStatus queries the current state of a trigger order.
func (c *Client) GetTriggerOrderStatus(ctx context.Context, orderID string) (model.StatusReport, error) {
	var resp statusResponse
	path := "/trigger/v1/orders/" + url.PathEscape(orderID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return model.StatusReport{}, err
	}

	report := model.StatusReport{
		ExecutedAt:  resp.ExecutedAt,
		CancelledAt: resp.CancelledAt,
	}
	switch resp.Status {
	case "executed", "Completed":
		report.Status = model.ProviderExecuted
	case "cancelled", "Cancelled":
		report.Status = model.ProviderCancelled
	case "active", "Open":
		report.Status = model.ProviderActive
	default:
		report.Status = model.ProviderPending
	}
	return report, nil
}

// getJSON performs a GET through the circuit breaker and decodes the body.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c.ObserveLatency != nil {
		start := time.Now()
		defer func() { c.ObserveLatency(time.Since(start)) }()
	}
	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("provider: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("provider: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("provider: %s returned %d: %s", path, resp.StatusCode, body)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("provider: decode %s: %w", path, err)
		}
		return nil
	})
}
