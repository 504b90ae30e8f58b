package market

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/pkg/models"
)

const minPrice = 1 // KRW floor; the random walk must never drive a price to zero

// Simulator owns the authoritative in-memory quote table and advances it
// with a bounded random walk on every Tick.
type Simulator struct {
	logger     *zap.Logger
	clock      Clock
	rand       Rand
	volatility float64

	mu     sync.RWMutex
	quotes map[string]models.Quote
	order  []string // tracked symbols in listing order
}

func NewSimulator(logger *zap.Logger, clock Clock, rnd Rand, volatility float64) *Simulator {
	return &Simulator{
		logger:     logger,
		clock:      clock,
		rand:       rnd,
		volatility: volatility,
		quotes:     make(map[string]models.Quote),
	}
}

// Initialize creates a randomized baseline quote for every listing.
// Calling it again resets the table.
func (s *Simulator) Initialize(listings []models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes = make(map[string]models.Quote, len(listings))
	s.order = s.order[:0]

	for _, l := range listings {
		s.quotes[l.Symbol] = s.baseline(l)
		s.order = append(s.order, l.Symbol)
	}

	s.logger.Info("Simulator initialized", zap.Int("symbols", len(listings)))
}

// baseline samples a plausible starting quote:
// price 10,000-110,000 KRW, changeRate -10%..+10%, volume 100k-10.1M shares.
func (s *Simulator) baseline(l models.Listing) models.Quote {
	basePrice := s.rand.Float64()*100000 + 10000
	changeRate := round2((s.rand.Float64() - 0.5) * 20)
	change := math.Round(basePrice * changeRate / 100)
	volume := int64(s.rand.Intn(10000000)) + 100000
	marketCap := math.Round(basePrice * (s.rand.Float64()*1e9 + 1e8))

	return models.Quote{
		Symbol:     l.Symbol,
		Name:       l.Name,
		Price:      int64(math.Round(basePrice)),
		Change:     int64(change),
		ChangeRate: changeRate,
		Volume:     volume,
		MarketCap:  int64(marketCap),
		Timestamp:  s.clock.Now().UnixMilli(),
	}
}

// Tick applies one random-walk step to every tracked quote:
// newPrice = price * (1 + u), u uniform in [-volatility/2, +volatility/2].
// Prices are clamped at minPrice so the walk can never go non-positive,
// and volume only ever grows.
func (s *Simulator) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixMilli()
	for _, sym := range s.order {
		q := s.quotes[sym]
		prev := q.Price

		u := (s.rand.Float64() - 0.5) * s.volatility
		newPrice := int64(math.Round(float64(prev) * (1 + u)))
		if newPrice < minPrice {
			newPrice = minPrice
		}

		q.Change = newPrice - prev
		q.ChangeRate = round2(float64(q.Change) / float64(prev) * 100)
		q.Price = newPrice
		q.Volume += int64(s.rand.Intn(100000))
		q.Timestamp = now
		s.quotes[sym] = q
	}
}

// GetQuote returns the current quote for symbol, or false when untracked.
func (s *Simulator) GetQuote(symbol string) (models.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// AllQuotes returns a copy of the quote table; the snapshot does not
// alias live state and survives future ticks unchanged.
func (s *Simulator) AllQuotes() map[string]models.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Quote, len(s.quotes))
	for sym, q := range s.quotes {
		out[sym] = q
	}
	return out
}

// VolatilityIndex is the population standard deviation of |changeRate|
// across all tracked quotes, scaled by 1/10 and clamped to [0, 1].
// Zero when nothing is tracked.
func (s *Simulator) VolatilityIndex() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.quotes) == 0 {
		return 0
	}

	var sum float64
	for _, q := range s.quotes {
		sum += math.Abs(q.ChangeRate)
	}
	mean := sum / float64(len(s.quotes))

	var variance float64
	for _, q := range s.quotes {
		d := math.Abs(q.ChangeRate) - mean
		variance += d * d
	}
	variance /= float64(len(s.quotes))

	v := math.Sqrt(variance) / 10
	if v > 1 {
		v = 1
	}
	return v
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
