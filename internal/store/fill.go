package store

import (
	"sync"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// FillStore is a thread-safe in-memory store for fills,
// keyed by symbol. Fills are append-only and chronological.
type FillStore struct {
	mu    sync.RWMutex
	fills map[string][]domain.Fill // symbol → fills (chronological)
}

// NewFillStore creates an empty FillStore.
func NewFillStore() *FillStore {
	return &FillStore{
		fills: make(map[string][]domain.Fill),
	}
}

// Append adds fills to their symbols' chronological lists.
func (s *FillStore) Append(fills ...domain.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fills {
		s.fills[f.Symbol] = append(s.fills[f.Symbol], f)
	}
}

// BySymbol returns up to limit of the most recent fills for a symbol in
// chronological order. A limit <= 0 returns all of them.
func (s *FillStore) BySymbol(symbol string, limit int) []domain.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fills := s.fills[symbol]
	if limit > 0 && len(fills) > limit {
		fills = fills[len(fills)-limit:]
	}
	result := make([]domain.Fill, len(fills))
	copy(result, fills)
	return result
}

// Last returns the most recent fill for a symbol.
func (s *FillStore) Last(symbol string) (domain.Fill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fills := s.fills[symbol]
	if len(fills) == 0 {
		return domain.Fill{}, false
	}
	return fills[len(fills)-1], true
}
