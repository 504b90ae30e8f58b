package testutils

import (
	"encoding/json"
	"sync"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/protocol"
	"github.com/Logic-Phantom/DataVille/pkg/models"
)

// MockClient simulates a connected websocket client; every push is decoded
// back into an Envelope so tests can assert on types and payloads.
type MockClient struct {
	IDVal     string
	Envelopes []protocol.Envelope
	Closed    bool
	Mu        sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	m.SendBytes(b)
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var env protocol.Envelope
	if err := json.Unmarshal(b, &env); err == nil {
		m.Envelopes = append(m.Envelopes, env)
	}
}

// Received returns the types of all envelopes pushed so far, in order.
func (m *MockClient) Received() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	types := make([]string, len(m.Envelopes))
	for i, env := range m.Envelopes {
		types[i] = env.Type
	}
	return types
}

// CountType returns how many envelopes of the given type were pushed.
func (m *MockClient) CountType(t string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, env := range m.Envelopes {
		if env.Type == t {
			n++
		}
	}
	return n
}

// MockQuoteSource simulates the market simulator
type MockQuoteSource struct {
	Quotes          map[string]models.Quote
	VolatilityValue float64
}

func NewMockQuoteSource() *MockQuoteSource {
	return &MockQuoteSource{Quotes: make(map[string]models.Quote)}
}

func (m *MockQuoteSource) GetQuote(symbol string) (models.Quote, bool) {
	q, ok := m.Quotes[symbol]
	return q, ok
}

func (m *MockQuoteSource) AllQuotes() map[string]models.Quote {
	out := make(map[string]models.Quote, len(m.Quotes))
	for sym, q := range m.Quotes {
		out[sym] = q
	}
	return out
}

func (m *MockQuoteSource) VolatilityIndex() float64 { return m.VolatilityValue }
