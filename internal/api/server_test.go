package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"stockswap-backend/internal/model"
	"stockswap-backend/internal/monitor"
)

const testMaker = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type activeProvider struct{}

func (activeProvider) GetTriggerOrderStatus(ctx context.Context, orderID string) (model.StatusReport, error) {
	return model.StatusReport{Status: model.ProviderActive}, nil
}

type flatQuoteProvider struct{}

func (flatQuoteProvider) GetQuote(ctx context.Context, in, out string, amount uint64, slippageBps int) (model.Quote, error) {
	return model.Quote{InAmount: amount, OutAmount: amount}, nil
}

func newTestServer(t *testing.T, totpSecret string) (*Server, *monitor.Monitor) {
	t.Helper()
	mon := monitor.New(monitor.Config{}, activeProvider{}, flatQuoteProvider{}, monitor.NewManualScheduler(), nil)
	t.Cleanup(mon.Shutdown)
	return NewServer(mon, nil, totpSecret), mon
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestStartAndStopMonitoring(t *testing.T) {
	s, mon := newTestServer(t, "")

	rec := doJSON(t, s, "POST", "/api/v1/orders/order-1/monitor", startMonitoringRequest{
		Maker:     testMaker,
		OrderData: monitor.OrderData{OrderType: model.OrderBuy, TargetPrice: 10},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body.String())
	}

	var started model.MonitoredOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.OrderID != "order-1" || started.Status != model.StatusMonitoring {
		t.Errorf("started order: %+v", started)
	}
	if _, ok := mon.GetOrder("order-1"); !ok {
		t.Fatal("monitor does not know the order")
	}

	rec = doJSON(t, s, "DELETE", "/api/v1/orders/order-1/monitor", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status %d body %s", rec.Code, rec.Body.String())
	}
	var stopped model.MonitoredOrder
	json.Unmarshal(rec.Body.Bytes(), &stopped)
	if stopped.Status != model.StatusStopped {
		t.Errorf("stopped order status = %s", stopped.Status)
	}

	// Stopping again conflicts.
	rec = doJSON(t, s, "DELETE", "/api/v1/orders/order-1/monitor", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("repeat stop: status %d, want 409", rec.Code)
	}
}

func TestStartMonitoringRejectsBadMaker(t *testing.T) {
	s, mon := newTestServer(t, "")

	rec := doJSON(t, s, "POST", "/api/v1/orders/order-1/monitor", startMonitoringRequest{
		Maker: "definitely-not-base58!",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	if _, ok := mon.GetOrder("order-1"); ok {
		t.Error("order registered despite invalid maker")
	}
}

func TestGetAndListOrders(t *testing.T) {
	s, mon := newTestServer(t, "")
	mon.StartMonitoring("order-1", testMaker, monitor.OrderData{})
	mon.StartMonitoring("order-2", testMaker, monitor.OrderData{})

	rec := doJSON(t, s, "GET", "/api/v1/orders/order-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/api/v1/orders/order-missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing order: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/api/v1/orders?wallet="+testMaker, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var orders []model.MonitoredOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("list returned %d orders, want 2", len(orders))
	}

	rec = doJSON(t, s, "GET", "/api/v1/orders?wallet=garbage", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad wallet filter: status %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, mon := newTestServer(t, "")
	mon.StartMonitoring("order-1", testMaker, monitor.OrderData{})

	rec := doJSON(t, s, "GET", "/api/v1/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	var payload struct {
		Monitor monitor.Statistics `json:"monitor"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if payload.Monitor.TotalOrders != 1 {
		t.Errorf("TotalOrders = %d, want 1", payload.Monitor.TotalOrders)
	}
}

func TestCleanupRetentionBounds(t *testing.T) {
	s, _ := newTestServer(t, "")

	cases := []struct {
		requested int
		want      int
	}{
		{0, DefaultRetentionDays},
		{-3, DefaultRetentionDays},
		{30, 30},
		{500, MaxRetentionDays},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("days=%d", tc.requested), func(t *testing.T) {
			rec := doJSON(t, s, "POST", "/api/v1/cleanup", cleanupRequest{RetentionDays: tc.requested}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("cleanup: status %d", rec.Code)
			}
			var resp struct {
				RetentionDays int `json:"retentionDays"`
			}
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.RetentionDays != tc.want {
				t.Errorf("effective retention = %d, want %d", resp.RetentionDays, tc.want)
			}
		})
	}
}

func TestCleanupTOTPGuard(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	s, _ := newTestServer(t, secret)

	rec := doJSON(t, s, "POST", "/api/v1/cleanup", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no code: status %d, want 401", rec.Code)
	}

	rec = doJSON(t, s, "POST", "/api/v1/cleanup", nil, map[string]string{"X-TOTP-Code": "000000"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad code: status %d, want 401", rec.Code)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	rec = doJSON(t, s, "POST", "/api/v1/cleanup", nil, map[string]string{"X-TOTP-Code": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid code: status %d body %s", rec.Code, rec.Body.String())
	}
}
