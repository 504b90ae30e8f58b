package hub

import (
	"encoding/json"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/instrumentation"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/protocol"
	"github.com/Logic-Phantom/DataVille/pkg/models"
)

// volatileThreshold marks a quote as worth alerting on (|changeRate| > 5%).
const volatileThreshold = 5.0

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// QuoteSource is the read-only view of the simulator the hub needs.
// The hub never mutates quotes; it only snapshots them for payloads.
type QuoteSource interface {
	GetQuote(symbol string) (models.Quote, bool)
	AllQuotes() map[string]models.Quote
	VolatilityIndex() float64
}

// Hub routes quote updates to subscribed clients and market-wide pushes
// to everyone. Subscription state lives only as long as the connection.
type Hub struct {
	source  QuoteSource
	logger  *zap.Logger
	metrics *instrumentation.Metrics

	mu          sync.RWMutex
	clients     map[ClientInterface]bool
	subscribers map[string]map[ClientInterface]bool
	clientSubs  map[ClientInterface]map[string]bool
}

func NewHub(source QuoteSource, logger *zap.Logger, metrics *instrumentation.Metrics) *Hub {
	return &Hub{
		source:      source,
		logger:      logger,
		metrics:     metrics,
		clients:     make(map[ClientInterface]bool),
		subscribers: make(map[string]map[ClientInterface]bool),
		clientSubs:  make(map[ClientInterface]map[string]bool),
	}
}

// Register adds a client with an empty subscription set and immediately
// pushes the current market snapshot to it, so a new connection never has
// to wait for the next tick to see state.
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	h.clients[client] = true
	h.clientSubs[client] = make(map[string]bool)
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectedClients.Set(float64(total))
	h.logger.Info("Client connected", zap.String("client_id", client.ID()), zap.Int("total", total))

	h.push(client, protocol.Envelope{Type: protocol.TypeMarketSnapshot, Data: h.source.AllQuotes()})
}

// Subscribe adds symbols to the client's set. Unknown symbols are accepted;
// they simply never produce traffic until a quote appears for them.
func (h *Hub) Subscribe(client ClientInterface, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[client]
	if !ok {
		return // already unregistered
	}
	for _, sym := range symbols {
		subs[sym] = true
		if h.subscribers[sym] == nil {
			h.subscribers[sym] = make(map[ClientInterface]bool)
		}
		h.subscribers[sym][client] = true
	}

	h.logger.Debug("Client subscribed", zap.String("client_id", client.ID()), zap.Strings("symbols", symbols))
}

// Unsubscribe removes symbols from the client's set; removing a symbol the
// client never subscribed to is a no-op.
func (h *Hub) Unsubscribe(client ClientInterface, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[client]
	if !ok {
		return
	}
	for _, sym := range symbols {
		if !subs[sym] {
			continue
		}
		delete(subs, sym)
		h.dropSubscriber(sym, client)
	}

	h.logger.Debug("Client unsubscribed", zap.String("client_id", client.ID()), zap.Strings("symbols", symbols))
}

// Unregister discards the client and its subscription set. After it returns
// no future broadcast will route to the client.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	for sym := range h.clientSubs[client] {
		h.dropSubscriber(sym, client)
	}
	delete(h.clientSubs, client)
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectedClients.Set(float64(total))
	h.logger.Info("Client disconnected", zap.String("client_id", client.ID()), zap.Int("total", total))
	client.Close()
}

// BroadcastQuote pushes the current quote for symbol to its subscribers only.
// No-op when the symbol has no quote or no subscribers.
func (h *Hub) BroadcastQuote(symbol string) {
	quote, ok := h.source.GetQuote(symbol)
	if !ok {
		return
	}

	payload, err := json.Marshal(protocol.Envelope{Type: protocol.TypeQuoteUpdate, Data: quote})
	if err != nil {
		h.logger.Error("Marshal quote update", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscribers[symbol] {
		client.SendBytes(payload)
		h.metrics.MessagesSent.WithLabelValues(protocol.TypeQuoteUpdate).Inc()
	}
}

// BroadcastMarket pushes, to every connected client in order: the full quote
// table, the volatility index, and — when any quote moved more than the
// volatile threshold — the list of volatile quotes. The three pushes are
// best-effort and not atomic with respect to connections arriving mid-way.
func (h *Hub) BroadcastMarket() {
	quotes := h.source.AllQuotes()
	volatility := h.source.VolatilityIndex()

	var volatile []models.Quote
	for _, q := range quotes {
		if math.Abs(q.ChangeRate) > volatileThreshold {
			volatile = append(volatile, q)
		}
	}

	h.broadcastAll(protocol.Envelope{Type: protocol.TypeMarketSnapshot, Data: quotes})
	h.broadcastAll(protocol.Envelope{Type: protocol.TypeVolatilityIndex, Data: volatility})
	if len(volatile) > 0 {
		h.broadcastAll(protocol.Envelope{Type: protocol.TypeVolatileAlert, Data: volatile})
	}
}

// SendQuote pushes a single quote directly to one client, regardless of its
// subscriptions. Used for request_quote replies. Reports whether the symbol
// was found.
func (h *Hub) SendQuote(client ClientInterface, symbol string) bool {
	quote, ok := h.source.GetQuote(symbol)
	if !ok {
		return false
	}
	h.push(client, protocol.Envelope{Type: protocol.TypeQuoteUpdate, Data: quote})
	return true
}

func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriptionStats returns how many clients subscribe to each symbol.
// Symbols with no subscribers are absent from the result.
func (h *Hub) SubscriptionStats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[string]int)
	for sym, clients := range h.subscribers {
		if len(clients) > 0 {
			stats[sym] = len(clients)
		}
	}
	return stats
}

// dropSubscriber must be called with h.mu held.
func (h *Hub) dropSubscriber(symbol string, client ClientInterface) {
	delete(h.subscribers[symbol], client)
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

func (h *Hub) broadcastAll(env protocol.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Marshal broadcast", zap.String("type", env.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.SendBytes(payload)
		h.metrics.MessagesSent.WithLabelValues(env.Type).Inc()
	}
}

func (h *Hub) push(client ClientInterface, env protocol.Envelope) {
	client.SendJSON(env)
	h.metrics.MessagesSent.WithLabelValues(env.Type).Inc()
}
