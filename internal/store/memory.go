package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/options-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	quotes map[string]*model.QuoteRecord
	order  []string
	prices map[string][]model.PricePoint
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes: make(map[string]*model.QuoteRecord),
		prices: make(map[string][]model.PricePoint),
	}
}

func (s *MemoryStore) SaveQuote(_ context.Context, q *model.QuoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.quotes[q.ID]; exists {
		return fmt.Errorf("quote %s already exists", q.ID)
	}

	// Store a copy to avoid external mutation.
	s.quotes[q.ID] = cloneQuote(q)
	s.order = append(s.order, q.ID)
	return nil
}

func (s *MemoryStore) GetQuote(_ context.Context, id string) (*model.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[id]
	if !ok {
		return nil, fmt.Errorf("quote %s: %w", id, ErrNotFound)
	}
	return cloneQuote(q), nil
}

func (s *MemoryStore) ListQuotes(_ context.Context, asset string, limit int) ([]model.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.QuoteRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		q := s.quotes[s.order[i]]
		if asset != "" && q.Asset != asset {
			continue
		}
		result = append(result, *cloneQuote(q))
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) AppendPrice(_ context.Context, p *model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.prices[p.Asset], *p)
	// Keep history ordered by observation time; out-of-order inserts are rare.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	s.prices[p.Asset] = history
	return nil
}

func (s *MemoryStore) GetPriceHistory(_ context.Context, asset string, limit int) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.prices[asset]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	result := make([]model.PricePoint, len(history))
	copy(result, history)
	return result, nil
}

func cloneQuote(q *model.QuoteRecord) *model.QuoteRecord {
	c := *q
	c.Legs = append([]model.LegRecord(nil), q.Legs...)
	return &c
}
