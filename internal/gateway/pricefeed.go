package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"stockswap-backend/internal/model"
)

// PriceFeed subscribes to per-pair price channels on Redis and routes each
// tick into the Hub's pair rooms. Channel layout is
// "<prefix>:<inputMint>:<outputMint>" with a JSON payload.
type PriceFeed struct {
	hub    *Hub
	rdb    *goredis.Client
	prefix string
}

// pricePayload is the wire form published by the price source.
type pricePayload struct {
	Price float64 `json:"price"`
	TS    int64   `json:"ts,omitempty"` // unix millis; zero means "now"
}

// NewPriceFeed creates a feed routing ticks from rdb into hub.
func NewPriceFeed(hub *Hub, rdb *goredis.Client, prefix string) *PriceFeed {
	if prefix == "" {
		prefix = "price"
	}
	return &PriceFeed{hub: hub, rdb: rdb, prefix: prefix}
}

// Run subscribes to the wildcard price pattern and routes messages until ctx
// is cancelled.
func (f *PriceFeed) Run(ctx context.Context) {
	pubsub := f.rdb.PSubscribe(ctx, f.prefix+":*")
	defer pubsub.Close()

	log.Printf("[gateway] price feed subscribed pattern=%s:*", f.prefix)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			f.route(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (f *PriceFeed) route(channel string, payload []byte) {
	update, err := f.parse(channel, payload)
	if err != nil {
		log.Printf("[gateway] dropping malformed price tick channel=%s: %v", channel, err)
		return
	}
	f.hub.BroadcastPrice(update)
}

func (f *PriceFeed) parse(channel string, payload []byte) (model.PriceUpdate, error) {
	rest, ok := strings.CutPrefix(channel, f.prefix+":")
	if !ok {
		return model.PriceUpdate{}, errBadChannel(channel)
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.PriceUpdate{}, errBadChannel(channel)
	}

	var body pricePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return model.PriceUpdate{}, err
	}

	ts := time.Now().UTC()
	if body.TS > 0 {
		ts = time.UnixMilli(body.TS).UTC()
	}
	return model.PriceUpdate{
		InputMint:  parts[0],
		OutputMint: parts[1],
		Price:      body.Price,
		TS:         ts,
	}, nil
}

type errBadChannel string

func (e errBadChannel) Error() string { return "unexpected channel format: " + string(e) }
