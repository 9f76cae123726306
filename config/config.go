package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Listen addresses
	ListenAddr  string // REST + WebSocket
	MetricsAddr string // /metrics + /healthz

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// Quote/trigger provider (Jupiter-style REST API)
	ProviderBaseURL string
	ProviderTimeout time.Duration

	// Monitoring
	PollInterval  time.Duration // per-order poll cadence
	MaxAttempts   int           // polls before an order expires
	RetentionDays int           // terminal order retention for cleanup sweeps

	// Price feed
	PriceChannelPrefix string // Redis pub/sub prefix for inbound price ticks

	// Admin
	AdminTOTPSecret string // empty disables the TOTP guard on cleanup

	// Notifications (all optional)
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9091"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/orders.db"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://lite-api.jup.ag"),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Second),

		PollInterval:  getDuration("POLL_INTERVAL", 10*time.Second),
		MaxAttempts:   getInt("MAX_ATTEMPTS", 360), // 1h of coverage at the 10s default
		RetentionDays: getInt("RETENTION_DAYS", 7),

		PriceChannelPrefix: getEnv("PRICE_CHANNEL_PREFIX", "price"),

		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return d
}
