package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the execution monitor.
type Metrics struct {
	OrdersMonitored prometheus.Gauge       // orders currently in active monitoring
	StatusChecks    prometheus.Counter     // provider status polls performed
	ProviderErrors  prometheus.Counter     // failed provider calls
	EventsTotal     *prometheus.CounterVec // labels: type

	// Gateway metrics
	WSClients        prometheus.Gauge
	RelayedMessages  prometheus.Counter
	PriceTicksRouted prometheus.Counter
	FanoutDropsTotal prometheus.Counter

	// Provider latency + circuit breaker
	CheckDuration        prometheus.Histogram
	ProviderBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	ProviderBreakerTrips prometheus.Counter

	// Delivery observability
	DeliveryLatency prometheus.Histogram // event emit to WS enqueue
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		OrdersMonitored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execmon_orders_monitored",
			Help: "Orders currently under active monitoring",
		}),
		StatusChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execmon_status_checks_total",
			Help: "Provider status polls performed",
		}),
		ProviderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execmon_provider_errors_total",
			Help: "Provider calls that returned an error",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execmon_events_total",
			Help: "Monitor events emitted (by event type)",
		}, []string{"type"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execmon_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		RelayedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execmon_relayed_messages_total",
			Help: "Event messages delivered to WebSocket clients",
		}),
		PriceTicksRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execmon_price_ticks_routed_total",
			Help: "Price updates routed into pair rooms",
		}),
		FanoutDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execmon_fanout_drops_total",
			Help: "Messages dropped because a client send buffer was full",
		}),

		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execmon_check_duration_seconds",
			Help:    "Provider status check latency",
			Buckets: prometheus.DefBuckets,
		}),
		ProviderBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execmon_provider_circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		ProviderBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execmon_provider_circuit_breaker_trips_total",
			Help: "Times the provider circuit breaker tripped open",
		}),

		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execmon_delivery_latency_seconds",
			Help:    "Latency from monitor event emission to WS delivery",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}

	prometheus.MustRegister(
		m.OrdersMonitored,
		m.StatusChecks,
		m.ProviderErrors,
		m.EventsTotal,
		m.WSClients,
		m.RelayedMessages,
		m.PriceTicksRouted,
		m.FanoutDropsTotal,
		m.CheckDuration,
		m.ProviderBreakerState,
		m.ProviderBreakerTrips,
		m.DeliveryLatency,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`
	ProviderOK     bool `json:"provider_ok"`

	ActiveOrders int       `json:"active_orders"`
	WSClients    int       `json:"ws_clients"`
	LastEventAt  time.Time `json:"last_event_at"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		ProviderOK: true,
		StartedAt:  time.Now(),
	}
}

func (h *HealthStatus) SetProviderOK(v bool) {
	h.mu.Lock()
	h.ProviderOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetActiveOrders(n int) {
	h.mu.Lock()
	h.ActiveOrders = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetWSClients(n int) {
	h.mu.Lock()
	h.WSClients = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventAt(t time.Time) {
	h.mu.Lock()
	h.LastEventAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK || !h.ProviderOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	lastEvent := ""
	eventAge := ""
	if !h.LastEventAt.IsZero() {
		lastEvent = h.LastEventAt.Format(time.RFC3339)
		eventAge = time.Since(h.LastEventAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		ProviderOK      bool    `json:"provider_ok"`
		ActiveOrders    int     `json:"active_orders"`
		WSClients       int     `json:"ws_clients"`
		LastEventAt     string  `json:"last_event_at"`
		EventAge        string  `json:"event_age"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		ProviderOK:      h.ProviderOK,
		ActiveOrders:    h.ActiveOrders,
		WSClients:       h.WSClients,
		LastEventAt:     lastEvent,
		EventAge:        eventAge,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
