package tests

import (
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gorilla/websocket" // Using Gorilla for the test CLIENT
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/gateway"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/hub"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/instrumentation"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/market"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/protocol"
	"github.com/Logic-Phantom/DataVille/pkg/cityclient"
	"github.com/Logic-Phantom/DataVille/pkg/models"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func startServer(t *testing.T) (*httptest.Server, *market.Simulator, *hub.Hub) {
	t.Helper()

	sim := market.NewSimulator(zap.NewNop(), realClock{},
		market.RealRand{Rand: rand.New(rand.NewSource(1))}, 0.02)
	sim.Initialize([]models.Listing{
		{Symbol: "005930", Name: "삼성전자", Market: models.MarketKOSPI},
		{Symbol: "035720", Name: "카카오", Market: models.MarketKOSPI},
	})

	metrics := instrumentation.NewMetrics(prometheus.NewRegistry())
	wsHub := hub.NewHub(sim, zap.NewNop(), metrics)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		gateway.NewClient(conn, wsHub, zap.NewNop()).Start()
	}))
	t.Cleanup(server.Close)

	return server, sim, wsHub
}

func connectWS(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http")
	wsConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %v", err)
	}
	t.Cleanup(func() { wsConn.Close() })
	return wsConn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("Malformed envelope %s: %v", msg, err)
	}
	return env
}

func TestEndToEnd_SnapshotBeforeSubscribe(t *testing.T) {
	server, _, _ := startServer(t)
	conn := connectWS(t, server.URL)

	// The very first push, before any subscribe is issued, is the snapshot.
	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeMarketSnapshot {
		t.Fatalf("Expected marketSnapshot first, got %s", env.Type)
	}

	var quotes map[string]models.Quote
	raw, _ := json.Marshal(env.Data)
	if err := json.Unmarshal(raw, &quotes); err != nil {
		t.Fatalf("Snapshot payload: %v", err)
	}
	if len(quotes) != 2 {
		t.Errorf("Expected 2 quotes in initial snapshot, got %d", len(quotes))
	}
}

func TestEndToEnd_SubscribeAndBroadcast(t *testing.T) {
	server, sim, wsHub := startServer(t)
	conn := connectWS(t, server.URL)
	readEnvelope(t, conn) // initial snapshot

	sub := `{"action":"subscribe","payload":{"symbols":["005930"]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		t.Fatalf("Write subscribe: %v", err)
	}

	// Give the read pump a moment to register the subscription.
	waitFor(t, func() bool { return wsHub.SubscriptionStats()["005930"] == 1 })

	sim.Tick()
	wsHub.BroadcastQuote("005930")

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeQuoteUpdate {
		t.Fatalf("Expected quoteUpdate, got %s", env.Type)
	}
}

func TestEndToEnd_RequestQuote(t *testing.T) {
	server, _, _ := startServer(t)
	conn := connectWS(t, server.URL)
	readEnvelope(t, conn) // initial snapshot

	req := `{"action":"request_quote","payload":{"symbol":"035720"}}`
	conn.WriteMessage(websocket.TextMessage, []byte(req))

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeQuoteUpdate {
		t.Fatalf("Expected quoteUpdate reply, got %s", env.Type)
	}
}

func TestEndToEnd_RequestQuote_Unknown(t *testing.T) {
	server, _, _ := startServer(t)
	conn := connectWS(t, server.URL)
	readEnvelope(t, conn)

	req := `{"action":"request_quote","payload":{"symbol":"999999"}}`
	conn.WriteMessage(websocket.TextMessage, []byte(req))

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeError {
		t.Fatalf("Expected error for unknown symbol, got %s", env.Type)
	}
}

func TestEndToEnd_InvalidJSON(t *testing.T) {
	server, _, wsHub := startServer(t)
	conn := connectWS(t, server.URL)
	readEnvelope(t, conn)

	conn.WriteMessage(websocket.TextMessage, []byte(`{ "action": "subsc`))

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeError {
		t.Fatalf("Expected error envelope for bad JSON, got %s", env.Type)
	}

	// Malformed input must not have touched subscription state.
	if len(wsHub.SubscriptionStats()) != 0 {
		t.Errorf("Subscription state changed by malformed payload")
	}
}

func TestEndToEnd_DisconnectCleansUp(t *testing.T) {
	server, _, wsHub := startServer(t)
	conn := connectWS(t, server.URL)
	readEnvelope(t, conn)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe","payload":{"symbols":["005930"]}}`))
	waitFor(t, func() bool { return wsHub.ConnectedCount() == 1 && wsHub.SubscriptionStats()["005930"] == 1 })

	conn.Close()

	waitFor(t, func() bool { return wsHub.ConnectedCount() == 0 })
	if _, ok := wsHub.SubscriptionStats()["005930"]; ok {
		t.Errorf("Subscriptions must be discarded on disconnect")
	}
}

func TestEndToEnd_EagerSubscribe(t *testing.T) {
	server, sim, wsHub := startServer(t)
	conn := connectWS(t, server.URL)

	// Subscribe immediately, before reading anything: the frame may reach
	// the server while the connection is still being set up, and must not
	// be dropped.
	sub := `{"action":"subscribe","payload":{"symbols":["005930"]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		t.Fatalf("Write subscribe: %v", err)
	}

	waitFor(t, func() bool { return wsHub.SubscriptionStats()["005930"] == 1 })

	readEnvelope(t, conn) // initial snapshot
	sim.Tick()
	wsHub.BroadcastQuote("005930")

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeQuoteUpdate {
		t.Fatalf("Eager subscription lost: expected quoteUpdate, got %s", env.Type)
	}
}

func TestEndToEnd_InstantDisconnectDoesNotLeak(t *testing.T) {
	server, _, wsHub := startServer(t)

	// Close straight after the handshake, without reading a single frame.
	// The hub must still end up with zero clients, not a leaked entry.
	conn := connectWS(t, server.URL)
	conn.Close()

	waitFor(t, func() bool { return wsHub.ConnectedCount() == 0 })

	// A later broadcast must not trip over a dead client.
	wsHub.BroadcastMarket()
	if wsHub.ConnectedCount() != 0 {
		t.Errorf("Connected count inflated after instant disconnect: %d", wsHub.ConnectedCount())
	}
}

// testBackend is a gateway server whose hijacked websocket connections can
// be force-closed, so the test can sever the transport mid-session.
type testBackend struct {
	hub *hub.Hub
	srv *http.Server

	mu    sync.Mutex
	conns []net.Conn
}

func newTestBackend(ln net.Listener) *testBackend {
	sim := market.NewSimulator(zap.NewNop(), realClock{},
		market.RealRand{Rand: rand.New(rand.NewSource(1))}, 0.02)
	sim.Initialize([]models.Listing{
		{Symbol: "005930", Name: "삼성전자", Market: models.MarketKOSPI},
	})
	metrics := instrumentation.NewMetrics(prometheus.NewRegistry())
	b := &testBackend{hub: hub.NewHub(sim, zap.NewNop(), metrics)}

	b.srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		gateway.NewClient(conn, b.hub, zap.NewNop()).Start()
	})}
	go b.srv.Serve(ln)
	return b
}

// stop closes the listener and every upgraded connection. Server.Close alone
// does not reach hijacked connections.
func (b *testBackend) stop() {
	b.srv.Close()
	b.mu.Lock()
	for _, c := range b.conns {
		c.Close()
	}
	b.mu.Unlock()
}

func TestEndToEnd_CityClientReconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	backend1 := newTestBackend(ln)

	store := cityclient.NewStore()
	channel := cityclient.NewChannel("ws://"+addr, store, zap.NewNop())
	channel.Subscribe("005930")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go channel.Run(ctx)

	waitForWithin(t, 5*time.Second, func() bool {
		return store.Status().Status == cityclient.StatusConnected &&
			backend1.hub.SubscriptionStats()["005930"] == 1 &&
			len(store.Quotes()) > 0
	})

	// Kill the transport out from under the client.
	backend1.stop()

	waitForWithin(t, 5*time.Second, func() bool {
		return store.Status().Status != cityclient.StatusConnected
	})
	if _, ok := store.Quote("005930"); !ok {
		t.Errorf("Quote data must survive the transport loss")
	}

	// Bring a fresh backend up on the same address. Its hub has no memory
	// of the old subscription; only a client-side replay can restore it.
	ln2, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("Re-listen: %v", err)
	}
	backend2 := newTestBackend(ln2)
	defer backend2.stop()

	waitForWithin(t, 10*time.Second, func() bool {
		return store.Status().Status == cityclient.StatusConnected &&
			backend2.hub.SubscriptionStats()["005930"] == 1
	})
}

func TestEndToEnd_CityClient(t *testing.T) {
	server, sim, wsHub := startServer(t)

	store := cityclient.NewStore()
	channel := cityclient.NewChannel("ws"+strings.TrimPrefix(server.URL, "http"), store, zap.NewNop())
	channel.Subscribe("005930")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go channel.Run(ctx)

	// Initial snapshot lands in the store without any tick.
	waitFor(t, func() bool { return len(store.Quotes()) == 2 })
	if store.Status().Status != cityclient.StatusConnected {
		t.Errorf("Expected connected status, got %+v", store.Status())
	}

	// A market broadcast delivers the hub's volatility verbatim.
	sim.Tick()
	wsHub.BroadcastMarket()
	waitFor(t, func() bool { return store.LastUpdate().After(time.Time{}) && store.Volatility() >= 0 })

	// Per-symbol routing reaches the client's subscription.
	before, _ := store.Quote("005930")
	sim.Tick()
	wsHub.BroadcastQuote("005930")
	waitFor(t, func() bool {
		q, ok := store.Quote("005930")
		return ok && q.Timestamp >= before.Timestamp
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	waitForWithin(t, 2*time.Second, cond)
}

func waitForWithin(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %v", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
