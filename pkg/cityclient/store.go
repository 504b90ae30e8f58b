package cityclient

import (
	"sync"
	"time"

	"github.com/Logic-Phantom/DataVille/pkg/models"
)

// Status is the channel's connection state as seen by the store.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// ConnectionStatus pairs the state with an optional human-readable message.
type ConnectionStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Store is the client-local copy of market state. Updates are idempotent
// (last-write-wins keyed by symbol) and quote data survives connection
// errors, so a UI degrades to stale-but-present instead of blank.
type Store struct {
	mu         sync.RWMutex
	quotes     map[string]models.Quote
	volatility float64
	lastUpdate time.Time
	status     ConnectionStatus
}

func NewStore() *Store {
	return &Store{
		quotes: make(map[string]models.Quote),
		status: ConnectionStatus{Status: StatusDisconnected},
	}
}

// ApplyQuote applies one inbound quote update.
func (s *Store) ApplyQuote(q models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
	s.lastUpdate = time.Now()
}

// ApplySnapshot merges a full-market snapshot into the store.
func (s *Store) ApplySnapshot(quotes map[string]models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, q := range quotes {
		s.quotes[sym] = q
	}
	s.lastUpdate = time.Now()
}

// SetVolatility stores the hub's volatility index. The hub is
// authoritative; the client never recomputes it.
func (s *Store) SetVolatility(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volatility = v
}

// SetStatus records a connection state transition. Only the channel
// lifecycle calls this.
func (s *Store) SetStatus(status Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = ConnectionStatus{Status: status, Message: message}
}

func (s *Store) Quote(symbol string) (models.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// Quotes returns a copy of the quote table.
func (s *Store) Quotes() map[string]models.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Quote, len(s.quotes))
	for sym, q := range s.quotes {
		out[sym] = q
	}
	return out
}

func (s *Store) Volatility() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volatility
}

func (s *Store) Status() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}
