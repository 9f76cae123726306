package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"stockswap-backend/internal/model"
	"stockswap-backend/internal/monitor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the WebSocket connection set and routes monitor events and price
// ticks to the right subset of clients. Routing rules:
//   - order lifecycle events go to the union of that order's subscribers and
//     every connection of the maker's wallet
//   - price updates go to the members of the pair's room
//
// The Registry decides membership; the Hub only delivers.
type Hub struct {
	Registry *Registry
	Monitor  *monitor.Monitor
	Latency  *LatencyTracker

	// Instrumentation hooks, set once before traffic starts. Nil-safe.
	OnEventDelivered func(n int, age time.Duration)
	OnPriceDelivered func(n int)
	OnSendDrop       func()

	mu      sync.RWMutex
	clients map[string]*Client
	connSeq uint64
}

// NewHub creates a Hub backed by the given monitor.
func NewHub(mon *monitor.Monitor) *Hub {
	return &Hub{
		Registry: NewRegistry(),
		Monitor:  mon,
		Latency:  NewLatencyTracker(10000),
		clients:  make(map[string]*Client),
	}
}

// HandleWS upgrades an HTTP request to WebSocket and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}

	id := fmt.Sprintf("conn-%d-%d", time.Now().UnixMilli(), atomic.AddUint64(&h.connSeq, 1))
	client := &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	h.Registry.AddConnection(id)

	log.Printf("[gateway] ws client connected conn=%s remote=%s", id, r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

// RemoveClient purges a client from the hub and every registry mapping.
// Safe to call more than once for the same client.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()

	h.Registry.RemoveConnection(c.id)
	close(c.send)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats combines registry counts with the number of orders the monitor is
// actively polling.
func (h *Hub) Stats() Stats {
	st := h.Registry.GetStats()
	if h.Monitor != nil {
		st.MonitoredOrders = h.Monitor.GetStatistics().ByStatus[model.StatusMonitoring]
	}
	return st
}

// RunEventRelay consumes monitor events and fans each one out to its
// audience. Blocks until ctx is cancelled or the channel closes.
func (h *Hub) RunEventRelay(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.RelayEvent(ev)
		}
	}
}

// RelayEvent delivers one monitor event to the union of the order's explicit
// subscribers and the maker wallet's connections.
func (h *Hub) RelayEvent(ev model.Event) {
	audience := make(map[string]bool)
	for _, connID := range h.Registry.OrderSubscribers(ev.OrderID) {
		audience[connID] = true
	}
	if ev.Maker != "" {
		for _, connID := range h.Registry.WalletConnections(ev.Maker) {
			audience[connID] = true
		}
	}
	if len(audience) == 0 {
		return
	}

	msg := eventMessage(ev)
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[gateway] event marshal error: %v", err)
		return
	}
	n := h.sendToConnections(audience, data)

	if !ev.OccurredAt.IsZero() && n > 0 {
		age := time.Since(ev.OccurredAt)
		h.Latency.Record(float64(age.Microseconds()) / 1000.0)
		if h.OnEventDelivered != nil {
			h.OnEventDelivered(n, age)
		}
	}
}

// BroadcastPrice delivers one price update to its pair room.
func (h *Hub) BroadcastPrice(p model.PriceUpdate) int {
	members := h.Registry.PairMembers(p.Key())
	if len(members) == 0 {
		return 0
	}

	msg := newServerMessage(MsgPriceUpdate)
	msg.Price = &p
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[gateway] price marshal error: %v", err)
		return 0
	}

	audience := make(map[string]bool, len(members))
	for _, connID := range members {
		audience[connID] = true
	}
	n := h.sendToConnections(audience, data)
	if h.OnPriceDelivered != nil && n > 0 {
		h.OnPriceDelivered(n)
	}
	return n
}

// BroadcastToWallet delivers a message to every connection of a wallet.
func (h *Hub) BroadcastToWallet(wallet string, msg serverMessage) int {
	conns := h.Registry.WalletConnections(wallet)
	if len(conns) == 0 {
		return 0
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[gateway] marshal error: %v", err)
		return 0
	}
	audience := make(map[string]bool, len(conns))
	for _, connID := range conns {
		audience[connID] = true
	}
	return h.sendToConnections(audience, data)
}

// sendToConnections queues data on each live connection in the audience,
// dropping per-connection when its send buffer is full. Returns how many
// connections accepted the message.
//
// The read lock is held across the sends: RemoveClient closes c.send only
// after taking the write lock, so every send here completes before any
// close. Sends are non-blocking, so the lock is never held for long.
func (h *Hub) sendToConnections(audience map[string]bool, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for connID := range audience {
		c, ok := h.clients[connID]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
			sent++
		default:
			log.Printf("[gateway] send buffer full, dropping message conn=%s", c.id)
			if h.OnSendDrop != nil {
				h.OnSendDrop()
			}
		}
	}
	return sent
}

// client returns the live client for a connection id, if any.
func (h *Hub) client(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}
