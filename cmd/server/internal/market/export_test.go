package market

import "github.com/Logic-Phantom/DataVille/pkg/models"

// SetQuoteForTest overwrites one tracked quote so tests can pin exact
// changeRate values.
func (s *Simulator) SetQuoteForTest(symbol string, q models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quotes[symbol]; !ok {
		s.order = append(s.order, symbol)
	}
	s.quotes[symbol] = q
}
