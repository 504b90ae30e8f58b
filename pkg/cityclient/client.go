// Package cityclient is the Go client for the DataVille backend: a
// reconnecting WebSocket channel feeding an idempotent local quote store.
package cityclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/pkg/models"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// nextBackoff doubles the delay, capped at maxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Wire types mirroring the server protocol.
type wsRequest struct {
	Action  string         `json:"action"`
	Payload requestPayload `json:"payload"`
}

type requestPayload struct {
	Symbols []string `json:"symbols,omitempty"`
	Symbol  string   `json:"symbol,omitempty"`
}

type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Channel maintains one logical connection to the backend, surviving
// transport blips. Subscriptions do not survive server-side disconnects,
// so the channel replays its subscription list on every (re)connect.
type Channel struct {
	url    string
	store  *Store
	logger *zap.Logger
	dialer *websocket.Dialer

	// OnVolatileAlert, when set, receives each volatile-stocks notice.
	OnVolatileAlert func([]models.Quote)

	mu      sync.Mutex
	conn    *websocket.Conn
	symbols map[string]bool // desired subscription set, replayed on reconnect
}

func NewChannel(url string, store *Store, logger *zap.Logger) *Channel {
	return &Channel{
		url:     url,
		store:   store,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		symbols: make(map[string]bool),
	}
}

// Subscribe adds symbols to the desired set and, when connected, issues
// the subscribe request immediately.
func (c *Channel) Subscribe(symbols ...string) {
	c.mu.Lock()
	for _, s := range symbols {
		c.symbols[s] = true
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.write(conn, wsRequest{Action: "subscribe", Payload: requestPayload{Symbols: symbols}})
	}
}

// Unsubscribe removes symbols from the desired set and notifies the server
// when connected.
func (c *Channel) Unsubscribe(symbols ...string) {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.write(conn, wsRequest{Action: "unsubscribe", Payload: requestPayload{Symbols: symbols}})
	}
}

// RequestQuote asks for an immediate one-off quote push.
func (c *Channel) RequestQuote(symbol string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.write(conn, wsRequest{Action: "request_quote", Payload: requestPayload{Symbol: symbol}})
	}
}

// Run connects and keeps reconnecting with exponential backoff until ctx
// is cancelled. Status transitions on the store are driven exclusively
// from here.
func (c *Channel) Run(ctx context.Context) {
	backoff := minBackoff

	for {
		if ctx.Err() != nil {
			c.store.SetStatus(StatusDisconnected, "shutting down")
			return
		}

		c.store.SetStatus(StatusConnecting, "")
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.store.SetStatus(StatusError, "connect failed: "+err.Error())
			c.logger.Warn("Connect failed", zap.String("url", c.url), zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff
		c.store.SetStatus(StatusConnected, "")
		c.logger.Info("Connected", zap.String("url", c.url))

		c.mu.Lock()
		c.conn = conn
		resubscribe := make([]string, 0, len(c.symbols))
		for s := range c.symbols {
			resubscribe = append(resubscribe, s)
		}
		c.mu.Unlock()

		// Server-side subscription state died with the old connection;
		// replay the full list.
		if len(resubscribe) > 0 {
			c.write(conn, wsRequest{Action: "subscribe", Payload: requestPayload{Symbols: resubscribe}})
		}

		// Unblock the read loop when the context goes away.
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-stop:
			}
		}()

		c.readLoop(ctx, conn)
		close(stop)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			c.store.SetStatus(StatusDisconnected, "shutting down")
			return
		}
		c.store.SetStatus(StatusDisconnected, "connection lost")
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Read failed", zap.Error(err))
			}
			return
		}
		c.dispatch(payload)
	}
}

func (c *Channel) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.Warn("Malformed envelope", zap.Error(err))
		return
	}

	switch env.Type {
	case "quoteUpdate":
		var q models.Quote
		if err := json.Unmarshal(env.Data, &q); err == nil {
			c.store.ApplyQuote(q)
		}

	case "marketSnapshot":
		var quotes map[string]models.Quote
		if err := json.Unmarshal(env.Data, &quotes); err == nil {
			c.store.ApplySnapshot(quotes)
		}

	case "volatilityIndex":
		var v float64
		if err := json.Unmarshal(env.Data, &v); err == nil {
			c.store.SetVolatility(v)
		}

	case "volatileAlert":
		var quotes []models.Quote
		if err := json.Unmarshal(env.Data, &quotes); err == nil && c.OnVolatileAlert != nil {
			c.OnVolatileAlert(quotes)
		}

	case "error":
		c.logger.Warn("Server error", zap.String("message", env.Message))

	default:
		c.logger.Debug("Unknown envelope type", zap.String("type", env.Type))
	}
}

// write serializes concurrent writers; gorilla connections allow only one
// writer at a time.
func (c *Channel) write(conn *websocket.Conn, req wsRequest) {
	b, err := json.Marshal(req)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.logger.Warn("Write failed", zap.Error(err))
	}
}
