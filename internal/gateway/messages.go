package gateway

import (
	"time"

	"stockswap-backend/internal/model"
	"stockswap-backend/internal/monitor"
)

// MaxPairBatch caps how many token pairs a single subscribe-prices message
// may carry.
const MaxPairBatch = 100

// ── Client → server message types ──

const (
	MsgIdentify          = "identify"
	MsgWalletConnect     = "wallet-connect"
	MsgWalletDisconnect  = "wallet-disconnect"
	MsgSubscribeOrder    = "subscribe-order"
	MsgUnsubscribeOrder  = "unsubscribe-order"
	MsgOrderCreated      = "order-created"
	MsgSubscribePrices   = "subscribe-prices"
	MsgUnsubscribePrices = "unsubscribe-prices"
	MsgPing              = "ping"
)

// TokenPair identifies one tradable pair in a price subscription.
type TokenPair struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
}

// Key returns the pair room key for this pair.
func (p TokenPair) Key() string {
	return model.PairKey(p.InputMint, p.OutputMint)
}

// clientMessage is the superset of every inbound message. The Type field
// decides which of the remaining fields are meaningful.
type clientMessage struct {
	Type          string             `json:"type"`
	ClientType    string             `json:"clientType,omitempty"`
	Version       string             `json:"version,omitempty"`
	WalletAddress string             `json:"walletAddress,omitempty"`
	OrderID       string             `json:"orderId,omitempty"`
	Maker         string             `json:"maker,omitempty"`
	OrderData     *monitor.OrderData `json:"orderData,omitempty"`
	TokenPairs    []TokenPair        `json:"tokenPairs,omitempty"`
	Ping          int64              `json:"ping,omitempty"`
}

// ── Server → client message types ──

const (
	MsgIdentified         = "identified"
	MsgWalletConnected    = "wallet-connected"
	MsgWalletDisconnected = "wallet-disconnected"
	MsgOrderSubscribed    = "order-subscribed"
	MsgOrderUnsubscribed  = "order-unsubscribed"
	MsgOrderStatus        = "order-status"
	MsgActiveOrders       = "active-orders"
	MsgPriceSubscribed    = "price-subscribed"
	MsgPriceUnsubscribed  = "price-unsubscribed"
	MsgPriceUpdate        = "price-update"
	MsgPong               = "pong"
	MsgError              = "error"
)

// serverMessage is the outbound envelope. Every message carries the server
// delivery timestamp so clients can measure propagation delay.
type serverMessage struct {
	Type          string                  `json:"type"`
	TS            string                  `json:"ts"`
	ConnectionID  string                  `json:"connectionId,omitempty"`
	OrderID       string                  `json:"orderId,omitempty"`
	WalletAddress string                  `json:"walletAddress,omitempty"`
	Order         *model.MonitoredOrder   `json:"order,omitempty"`
	Orders        []*model.MonitoredOrder `json:"orders,omitempty"`
	Condition     *model.ConditionCheck   `json:"condition,omitempty"`
	Price         *model.PriceUpdate      `json:"price,omitempty"`
	Pairs         []string                `json:"pairs,omitempty"`
	Ping          int64                   `json:"ping,omitempty"`
	ServerTime    int64                   `json:"serverTime,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

func newServerMessage(msgType string) serverMessage {
	return serverMessage{
		Type: msgType,
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// eventMessage converts a monitor event into its wire form. The message type
// is the event type itself, so clients switch on one field for both acks and
// lifecycle notifications.
func eventMessage(ev model.Event) serverMessage {
	msg := newServerMessage(string(ev.Type))
	msg.OrderID = ev.OrderID
	msg.WalletAddress = ev.Maker
	msg.Order = ev.Order
	msg.Condition = ev.Condition
	msg.Error = ev.Error
	return msg
}
