package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"stockswap-backend/internal/monitor"
	"stockswap-backend/internal/solana"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

// Client represents a single WebSocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// ID returns the connection id assigned at upgrade time.
func (c *Client) ID() string { return c.id }

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: use NextWriter to batch queued messages
			// into a single WebSocket frame with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client disconnected conn=%s", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			SendError(c, "invalid message: "+err.Error())
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound message to its handler. A malformed message
// produces an error reply; it never tears down the connection.
func (c *Client) dispatch(msg clientMessage) {
	switch msg.Type {
	case MsgIdentify:
		c.handleIdentify(msg)
	case MsgWalletConnect:
		c.handleWalletConnect(msg)
	case MsgWalletDisconnect:
		c.handleWalletDisconnect(msg)
	case MsgSubscribeOrder:
		c.handleSubscribeOrder(msg)
	case MsgUnsubscribeOrder:
		c.handleUnsubscribeOrder(msg)
	case MsgOrderCreated:
		c.handleOrderCreated(msg)
	case MsgSubscribePrices:
		c.handleSubscribePrices(msg)
	case MsgUnsubscribePrices:
		c.handleUnsubscribePrices(msg)
	case MsgPing:
		reply := newServerMessage(MsgPong)
		reply.Ping = msg.Ping
		reply.ServerTime = time.Now().UnixMilli()
		SendJSON(c, reply)
	default:
		SendError(c, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *Client) handleIdentify(msg clientMessage) {
	if msg.WalletAddress != "" && !solana.ValidAddress(msg.WalletAddress) {
		SendError(c, "invalid wallet address")
		return
	}
	c.hub.Registry.Identify(c.id, msg.ClientType, msg.Version, msg.WalletAddress)

	reply := newServerMessage(MsgIdentified)
	reply.ConnectionID = c.id
	SendJSON(c, reply)
}

// handleWalletConnect binds the connection to a wallet and pushes the
// wallet's currently monitored orders so a reconnecting client catches up
// without polling.
func (c *Client) handleWalletConnect(msg clientMessage) {
	if !solana.ValidAddress(msg.WalletAddress) {
		SendError(c, "invalid wallet address")
		return
	}
	c.hub.Registry.SetWallet(c.id, msg.WalletAddress)
	log.Printf("[gateway] wallet connected conn=%s wallet=%s", c.id, msg.WalletAddress)

	reply := newServerMessage(MsgWalletConnected)
	reply.WalletAddress = msg.WalletAddress
	SendJSON(c, reply)

	if c.hub.Monitor != nil {
		active := c.hub.Monitor.ActiveOrdersByMaker(msg.WalletAddress)
		snapshot := newServerMessage(MsgActiveOrders)
		snapshot.WalletAddress = msg.WalletAddress
		snapshot.Orders = active
		SendJSON(c, snapshot)
	}
}

func (c *Client) handleWalletDisconnect(msg clientMessage) {
	wallet := msg.WalletAddress
	if wallet == "" {
		if info, ok := c.hub.Registry.Connection(c.id); ok {
			wallet = info.WalletAddress
		}
	}
	if wallet != "" {
		c.hub.Registry.ClearWallet(c.id, wallet)
	}

	// Ack even when no wallet was bound; disconnect is idempotent.
	reply := newServerMessage(MsgWalletDisconnected)
	reply.WalletAddress = wallet
	SendJSON(c, reply)
}

func (c *Client) handleSubscribeOrder(msg clientMessage) {
	if msg.OrderID == "" {
		SendError(c, "orderId is required")
		return
	}
	c.hub.Registry.SubscribeOrder(c.id, msg.OrderID)

	reply := newServerMessage(MsgOrderSubscribed)
	reply.OrderID = msg.OrderID
	SendJSON(c, reply)

	// Push the current snapshot so the subscriber does not wait a full poll
	// cycle for its first view of the order.
	if c.hub.Monitor != nil {
		if order, ok := c.hub.Monitor.GetOrder(msg.OrderID); ok {
			status := newServerMessage(MsgOrderStatus)
			status.OrderID = msg.OrderID
			status.Order = order
			SendJSON(c, status)
		}
	}
}

func (c *Client) handleUnsubscribeOrder(msg clientMessage) {
	if msg.OrderID == "" {
		SendError(c, "orderId is required")
		return
	}
	c.hub.Registry.UnsubscribeOrder(c.id, msg.OrderID)

	reply := newServerMessage(MsgOrderUnsubscribed)
	reply.OrderID = msg.OrderID
	SendJSON(c, reply)
}

// handleOrderCreated starts monitoring a freshly placed order, subscribes
// the issuing connection to it, and notifies every connection of the maker
// wallet.
func (c *Client) handleOrderCreated(msg clientMessage) {
	if msg.OrderID == "" {
		SendError(c, "orderId is required")
		return
	}
	if !solana.ValidAddress(msg.Maker) {
		SendError(c, "invalid maker address")
		return
	}
	if c.hub.Monitor == nil {
		SendError(c, "monitoring unavailable")
		return
	}

	var data monitor.OrderData
	if msg.OrderData != nil {
		data = *msg.OrderData
	}
	order := c.hub.Monitor.StartMonitoring(msg.OrderID, msg.Maker, data)
	c.hub.Registry.SubscribeOrder(c.id, msg.OrderID)

	notice := newServerMessage(MsgOrderCreated)
	notice.OrderID = msg.OrderID
	notice.WalletAddress = msg.Maker
	notice.Order = order
	if c.hub.BroadcastToWallet(msg.Maker, notice) == 0 {
		// Maker has no bound connections; at least ack the sender.
		SendJSON(c, notice)
	}
}

func (c *Client) handleSubscribePrices(msg clientMessage) {
	if len(msg.TokenPairs) == 0 {
		SendError(c, "tokenPairs is required")
		return
	}
	if len(msg.TokenPairs) > MaxPairBatch {
		SendError(c, fmt.Sprintf("too many token pairs: %d (max %d)", len(msg.TokenPairs), MaxPairBatch))
		return
	}

	keys := make([]string, 0, len(msg.TokenPairs))
	for _, pair := range msg.TokenPairs {
		if !solana.ValidAddress(pair.InputMint) || !solana.ValidAddress(pair.OutputMint) {
			SendError(c, fmt.Sprintf("invalid token pair %s/%s", pair.InputMint, pair.OutputMint))
			return
		}
		keys = append(keys, pair.Key())
	}
	c.hub.Registry.JoinPairs(c.id, keys)

	reply := newServerMessage(MsgPriceSubscribed)
	reply.Pairs = keys
	SendJSON(c, reply)
}

func (c *Client) handleUnsubscribePrices(msg clientMessage) {
	keys := make([]string, 0, len(msg.TokenPairs))
	for _, pair := range msg.TokenPairs {
		keys = append(keys, pair.Key())
	}
	c.hub.Registry.LeavePairs(c.id, keys)

	reply := newServerMessage(MsgPriceUnsubscribed)
	reply.Pairs = keys
	SendJSON(c, reply)
}

// SendJSON marshals and queues a message on the client's send channel.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[gateway] client send buffer full, dropping message conn=%s", c.id)
	}
}

// SendError sends an error reply to the client.
func SendError(c *Client, errMsg string) {
	reply := newServerMessage(MsgError)
	reply.Error = errMsg
	SendJSON(c, reply)
}
