package gateway

import (
	"encoding/json"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/hub"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/protocol"
)

const (
	maxMessageSize = 512 * 1024
)

// ClientAdapter bridges one raw websocket connection to the hub: a read
// pump parses inbound commands, a write pump drains the buffered send
// channel so a slow client never blocks a broadcast.
type ClientAdapter struct {
	conn   net.Conn
	hub    *hub.Hub
	send   chan []byte
	logger *zap.Logger

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger) *ClientAdapter {
	return &ClientAdapter{
		conn:       conn,
		hub:        h,
		send:       make(chan []byte, 256),
		logger:     logger,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

func (c *ClientAdapter) Start() {
	go c.writePump()
	// Register before the read pump starts: an eager client's first
	// subscribe frame must find the hub entry, and an instant disconnect
	// must find something to unregister. The snapshot push only needs the
	// buffered send channel, not a running write pump.
	c.hub.Register(c)
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.conn.RemoteAddr().String() }
func (c *ClientAdapter) Close()     { close(c.send) } // Only close channel, let writePump close conn

func (c *ClientAdapter) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err == nil {
		c.SendBytes(b)
	}
}

func (c *ClientAdapter) SendBytes(b []byte) {
	defer func() {
		// A broadcast may race a disconnect; a push to a just-closed
		// channel is swallowed rather than thrown into the broadcast loop.
		_ = recover()
	}()
	select {
	case c.send <- b:
	default:
		// Drop message if buffer full (Backpressure)
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		if header.OpCode == ws.OpClose {
			break
		}
		if header.OpCode == ws.OpPong {
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		}

		if header.OpCode == ws.OpText {
			c.handleMessage(payload)
		}
	}
}

// handleMessage dispatches one inbound command. Malformed payloads produce
// an error envelope and leave the client's subscription state untouched.
func (c *ClientAdapter) handleMessage(payload []byte) {
	var req protocol.WSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.SendJSON(protocol.Envelope{Type: protocol.TypeError, Message: "Invalid JSON"})
		return
	}

	switch req.Action {
	case protocol.ActionSubscribe, protocol.ActionUnsubscribe:
		symbols := normalizeSymbols(req.Payload.Symbols)
		if len(symbols) == 0 {
			c.SendJSON(protocol.Envelope{Type: protocol.TypeError, Message: "No symbols provided"})
			return
		}
		if req.Action == protocol.ActionSubscribe {
			c.hub.Subscribe(c, symbols)
		} else {
			c.hub.Unsubscribe(c, symbols)
		}

	case protocol.ActionRequestQuote:
		symbol := strings.TrimSpace(req.Payload.Symbol)
		if symbol == "" {
			c.SendJSON(protocol.Envelope{Type: protocol.TypeError, Message: "No symbol provided"})
			return
		}
		if !c.hub.SendQuote(c, symbol) {
			c.SendJSON(protocol.Envelope{Type: protocol.TypeError, Message: "Unknown symbol: " + symbol})
		}

	default:
		c.SendJSON(protocol.Envelope{Type: protocol.TypeError, Message: "Unknown action: " + req.Action})
	}
}

func normalizeSymbols(symbols []string) []string {
	out := symbols[:0]
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
