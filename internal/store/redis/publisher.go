// Package redis publishes monitor events to Redis pub/sub so sibling
// services (analytics, alerting) can consume the lifecycle stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"stockswap-backend/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes monitor events to per-order pub/sub channels.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks and the
// price-feed subscriber.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// channelFor returns the pub/sub channel an event is published on.
func channelFor(ev model.Event) string {
	return "pub:order:" + ev.OrderID
}

// PublishEvent marshals and publishes one monitor event.
func (p *Publisher) PublishEvent(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis publish marshal: %w", err)
	}
	if err := p.client.Publish(ctx, channelFor(ev), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channelFor(ev), err)
	}
	return nil
}

// Run consumes events from the bus subscription and publishes each one.
// Publish failures are logged and skipped; the stream must keep moving.
// Blocks until ctx is cancelled or events is closed.
func (p *Publisher) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.PublishEvent(ctx, ev); err != nil {
				log.Printf("[redis] event publish failed: %v", err)
			}
		}
	}
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
