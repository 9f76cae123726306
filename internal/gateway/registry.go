package gateway

import (
	"sync"
	"time"
)

// ClientInfo is the metadata recorded for one live connection.
type ClientInfo struct {
	ConnectionID  string    `json:"connection_id"`
	ClientType    string    `json:"client_type"`
	Version       string    `json:"version"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
}

// Registry is the client session bookkeeping layer backing the Hub: three
// mutually-consistent mappings (connection→metadata, wallet→connections,
// order→connections) plus price-pair rooms. It has no behavior of its own
// beyond consistent add/remove — the Hub's handlers drive it.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*ClientInfo
	wallets map[string]map[string]bool // wallet -> set of connection ids
	orders  map[string]map[string]bool // orderId -> set of connection ids
	pairs   map[string]map[string]bool // pairKey -> set of connection ids

	// Reverse indexes, so disconnect cleanup is O(own subscriptions)
	connOrders map[string]map[string]bool
	connPairs  map[string]map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[string]*ClientInfo),
		wallets:    make(map[string]map[string]bool),
		orders:     make(map[string]map[string]bool),
		pairs:      make(map[string]map[string]bool),
		connOrders: make(map[string]map[string]bool),
		connPairs:  make(map[string]map[string]bool),
	}
}

// AddConnection registers a new live connection.
func (r *Registry) AddConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &ClientInfo{
		ConnectionID: connID,
		ConnectedAt:  time.Now().UTC(),
	}
	r.connOrders[connID] = make(map[string]bool)
	r.connPairs[connID] = make(map[string]bool)
}

// Identify records client metadata for a connection.
func (r *Registry) Identify(connID, clientType, version, wallet string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.conns[connID]
	if !ok {
		return
	}
	info.ClientType = clientType
	info.Version = version
	if wallet != "" {
		r.setWalletLocked(connID, wallet)
	}
}

// SetWallet associates a connection with a wallet address. A wallet may map
// to many connections (multi-tab, multi-device).
func (r *Registry) SetWallet(connID, wallet string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setWalletLocked(connID, wallet)
}

func (r *Registry) setWalletLocked(connID, wallet string) {
	info, ok := r.conns[connID]
	if !ok {
		return
	}
	if info.WalletAddress != "" && info.WalletAddress != wallet {
		r.removeFromSet(r.wallets, info.WalletAddress, connID)
	}
	info.WalletAddress = wallet
	if r.wallets[wallet] == nil {
		r.wallets[wallet] = make(map[string]bool)
	}
	r.wallets[wallet][connID] = true
}

// ClearWallet removes a connection's wallet association.
func (r *Registry) ClearWallet(connID, wallet string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[connID]; ok && info.WalletAddress == wallet {
		info.WalletAddress = ""
	}
	r.removeFromSet(r.wallets, wallet, connID)
}

// SubscribeOrder adds a connection to an order's subscriber set.
func (r *Registry) SubscribeOrder(connID, orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	if r.orders[orderID] == nil {
		r.orders[orderID] = make(map[string]bool)
	}
	r.orders[orderID][connID] = true
	r.connOrders[connID][orderID] = true
}

// UnsubscribeOrder removes a connection from an order's subscriber set.
func (r *Registry) UnsubscribeOrder(connID, orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromSet(r.orders, orderID, connID)
	if set, ok := r.connOrders[connID]; ok {
		delete(set, orderID)
	}
}

// JoinPairs adds a connection to the given price-pair rooms.
func (r *Registry) JoinPairs(connID string, keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	for _, key := range keys {
		if r.pairs[key] == nil {
			r.pairs[key] = make(map[string]bool)
		}
		r.pairs[key][connID] = true
		r.connPairs[connID][key] = true
	}
}

// LeavePairs removes a connection from the given price-pair rooms.
func (r *Registry) LeavePairs(connID string, keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		r.removeFromSet(r.pairs, key, connID)
		if set, ok := r.connPairs[connID]; ok {
			delete(set, key)
		}
	}
}

// RemoveConnection purges a connection from every mapping. Nothing it was
// subscribed to survives; runs unconditionally on disconnect.
func (r *Registry) RemoveConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.conns[connID]; ok && info.WalletAddress != "" {
		r.removeFromSet(r.wallets, info.WalletAddress, connID)
	}
	for orderID := range r.connOrders[connID] {
		r.removeFromSet(r.orders, orderID, connID)
	}
	for key := range r.connPairs[connID] {
		r.removeFromSet(r.pairs, key, connID)
	}
	delete(r.connOrders, connID)
	delete(r.connPairs, connID)
	delete(r.conns, connID)
}

// Connection returns a copy of a connection's metadata.
func (r *Registry) Connection(connID string) (ClientInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.conns[connID]
	if !ok {
		return ClientInfo{}, false
	}
	return *info, true
}

// OrderSubscribers returns the connection ids subscribed to an order.
func (r *Registry) OrderSubscribers(orderID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return setKeys(r.orders[orderID])
}

// WalletConnections returns the connection ids associated with a wallet.
func (r *Registry) WalletConnections(wallet string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return setKeys(r.wallets[wallet])
}

// PairMembers returns the connection ids in a price-pair room.
func (r *Registry) PairMembers(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return setKeys(r.pairs[key])
}

// SubscribedPairCount returns how many pair rooms a connection is in.
func (r *Registry) SubscribedPairCount(connID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connPairs[connID])
}

// Stats is the registry's operational summary.
type Stats struct {
	Connections        int            `json:"connections"`
	ByClientType       map[string]int `json:"by_client_type"`
	DistinctWallets    int            `json:"distinct_wallets"`
	OrderSubscriptions int            `json:"order_subscriptions"`
	PairRooms          int            `json:"pair_rooms"`

	// MonitoredOrders is the count of orders currently under active
	// monitoring. The registry cannot see the monitor, so Hub.Stats fills
	// it in.
	MonitoredOrders int `json:"monitored_orders"`
}

// GetStats returns counts for operational visibility.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		Connections:  len(r.conns),
		ByClientType: make(map[string]int),
	}
	for _, info := range r.conns {
		t := info.ClientType
		if t == "" {
			t = "unknown"
		}
		st.ByClientType[t]++
	}
	for _, set := range r.wallets {
		if len(set) > 0 {
			st.DistinctWallets++
		}
	}
	for _, set := range r.orders {
		st.OrderSubscriptions += len(set)
	}
	for _, set := range r.pairs {
		if len(set) > 0 {
			st.PairRooms++
		}
	}
	return st
}

func (r *Registry) removeFromSet(m map[string]map[string]bool, key, connID string) {
	if set, ok := m[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func setKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
