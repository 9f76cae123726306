// pricesim publishes synthetic price ticks to the Redis channels the
// gateway's price feed consumes. It walks each configured pair's price with
// small random steps around a base value — enough to exercise pair rooms,
// trigger evaluation, and frontend charts without a live market.
//
// Usage:
//
//	pricesim -pairs "So111...112:EPjF...t1v=150.0,mintA:mintB=1.25" -interval 1s
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"stockswap-backend/config"
)

type simPair struct {
	inputMint  string
	outputMint string
	price      float64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	pairsFlag := flag.String("pairs", "", "comma-separated inputMint:outputMint=basePrice entries")
	interval := flag.Duration("interval", time.Second, "tick publish interval")
	drift := flag.Float64("drift", 0.002, "max fractional price step per tick")
	flag.Parse()

	cfg := config.Load()

	pairs, err := parsePairs(*pairsFlag)
	if err != nil {
		log.Fatalf("[pricesim] %v", err)
	}
	if len(pairs) == 0 {
		log.Fatal("[pricesim] no pairs configured, pass -pairs")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[pricesim] redis ping failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log.Printf("[pricesim] publishing %d pairs every %s (prefix=%s)", len(pairs), *interval, cfg.PriceChannelPrefix)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[pricesim] bye")
			return
		case <-ticker.C:
			for i := range pairs {
				p := &pairs[i]
				// Symmetric random walk, clamped away from zero
				step := (rand.Float64()*2 - 1) * *drift
				p.price *= 1 + step
				if p.price <= 0 {
					p.price = 0.000001
				}

				payload, _ := json.Marshal(map[string]interface{}{
					"price": p.price,
					"ts":    time.Now().UnixMilli(),
				})
				channel := cfg.PriceChannelPrefix + ":" + p.inputMint + ":" + p.outputMint
				if err := rdb.Publish(ctx, channel, payload).Err(); err != nil {
					log.Printf("[pricesim] publish failed channel=%s: %v", channel, err)
				}
			}
		}
	}
}

// parsePairs parses "in:out=price,in2:out2=price2" into simPair entries.
func parsePairs(s string) ([]simPair, error) {
	var pairs []simPair
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		spec, priceStr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, errBadEntry(entry)
		}
		in, out, ok := strings.Cut(spec, ":")
		if !ok || in == "" || out == "" {
			return nil, errBadEntry(entry)
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price <= 0 {
			return nil, errBadEntry(entry)
		}
		pairs = append(pairs, simPair{inputMint: in, outputMint: out, price: price})
	}
	return pairs, nil
}

type errBadEntry string

func (e errBadEntry) Error() string {
	return "bad pair entry " + strconv.Quote(string(e)) + ", want inputMint:outputMint=price"
}
