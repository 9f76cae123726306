// monitord is the execution monitoring daemon: it polls the trigger-order
// provider for every tracked order, evaluates market conditions against
// target prices, journals state transitions to SQLite, and distributes
// lifecycle events to WebSocket clients, Redis subscribers, and alert
// channels.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockswap-backend/config"
	"stockswap-backend/internal/api"
	"stockswap-backend/internal/gateway"
	"stockswap-backend/internal/logger"
	"stockswap-backend/internal/metrics"
	"stockswap-backend/internal/model"
	"stockswap-backend/internal/monitor"
	"stockswap-backend/internal/notification"
	"stockswap-backend/internal/provider"
	redisstore "stockswap-backend/internal/store/redis"
	sqlitestore "stockswap-backend/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("monitord", slog.LevelInfo)
	log.Println("[monitord] starting...")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite order journal ----
	os.MkdirAll("data", 0o755)
	journal, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[monitord] sqlite init failed: %v", err)
	}
	defer journal.Close()

	// ---- Redis event publisher (also backs the price feed) ----
	publisher, err := redisstore.New(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[monitord] redis init failed: %v", err)
	}
	defer publisher.Close()

	health.StartLivenessChecker(ctx, publisher.Client(), journal.DB(), 15*time.Second)

	// ---- Provider client with breaker metrics ----
	prov := provider.New(provider.Config{
		BaseURL: cfg.ProviderBaseURL,
		Timeout: cfg.ProviderTimeout,
	})
	prov.ObserveLatency = func(d time.Duration) {
		prom.CheckDuration.Observe(d.Seconds())
	}
	prov.Breaker().OnStateChange = func(from, to provider.State) {
		log.Printf("[monitord] provider breaker %s -> %s", from, to)
		prom.ProviderBreakerState.Set(float64(to))
		if to == provider.StateOpen {
			prom.ProviderBreakerTrips.Inc()
		}
		health.SetProviderOK(to != provider.StateOpen)
	}

	// ---- Execution monitor ----
	mon := monitor.New(monitor.Config{
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
	}, prov, prov, monitor.NewTickerScheduler(), journal)

	// ---- WebSocket hub + event fan-out ----
	hub := gateway.NewHub(mon)
	hub.OnEventDelivered = func(n int, age time.Duration) {
		prom.RelayedMessages.Add(float64(n))
		prom.DeliveryLatency.Observe(age.Seconds())
	}
	hub.OnPriceDelivered = func(n int) { prom.PriceTicksRouted.Add(float64(n)) }
	hub.OnSendDrop = func() { prom.FanoutDropsTotal.Inc() }
	go hub.RunEventRelay(ctx, mon.Subscribe())
	go publisher.Run(ctx, mon.Subscribe())
	go consumeForMetrics(ctx, mon, hub, prom, health)

	// ---- Price feed: Redis ticks into pair rooms ----
	feed := gateway.NewPriceFeed(hub, publisher.Client(), cfg.PriceChannelPrefix)
	go feed.Run(ctx)

	// ---- Alert channels ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	alerter := notification.NewAlerter(notifiers...)
	go alerter.Run(ctx, mon.Subscribe())

	// ---- Resume journaled orders ----
	if n, err := mon.Recover(ctx); err != nil {
		log.Printf("[monitord] recovery failed: %v", err)
	} else if n > 0 {
		log.Printf("[monitord] resumed monitoring %d orders from journal", n)
	}

	// ---- Daily retention sweep ----
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := mon.CleanupOldOrders(cfg.RetentionDays)
				log.Printf("[monitord] retention sweep removed %d orders", removed)
			}
		}
	}()

	// ---- REST + WebSocket server ----
	apiSrv := api.NewServer(mon, hub, cfg.AdminTOTPSecret)
	go func() {
		if err := apiSrv.Start(cfg.ListenAddr); err != nil {
			log.Printf("[monitord] api server error: %v", err)
			sigCh <- syscall.SIGTERM
		}
	}()

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[monitord] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	apiSrv.Stop(shutdownCtx)
	mon.Shutdown()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[monitord] bye")
}

// consumeForMetrics keeps Prometheus and the health endpoint in sync with
// monitor and gateway activity.
func consumeForMetrics(ctx context.Context, mon *monitor.Monitor, hub *gateway.Hub, prom *metrics.Metrics, health *metrics.HealthStatus) {
	events := mon.Subscribe()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			prom.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
			if ev.Type == model.EventStatusUpdate || ev.Type == model.EventStatusCheckError {
				prom.StatusChecks.Inc()
			}
			if ev.Type == model.EventStatusCheckError {
				prom.ProviderErrors.Inc()
			}
			health.SetLastEventAt(ev.OccurredAt)
		case <-ticker.C:
			stats := mon.GetStatistics()
			prom.OrdersMonitored.Set(float64(stats.ByStatus[model.StatusMonitoring]))
			prom.WSClients.Set(float64(hub.ClientCount()))
			health.SetActiveOrders(stats.ActiveTimers)
			health.SetWSClients(hub.ClientCount())
		}
	}
}
