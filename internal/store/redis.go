package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/options-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and then populate or invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) SaveQuote(ctx context.Context, q *model.QuoteRecord) error {
	if err := s.primary.SaveQuote(ctx, q); err != nil {
		return err
	}
	// Quotes never change, so the fresh record can be cached immediately.
	s.cacheQuote(ctx, q)
	return nil
}

func (s *CachedStore) AppendPrice(ctx context.Context, p *model.PricePoint) error {
	if err := s.primary.AppendPrice(ctx, p); err != nil {
		return err
	}
	// Invalidate every cached window for this asset.
	s.rdb.Del(ctx, historyKey(p.Asset))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetQuote(ctx context.Context, id string) (*model.QuoteRecord, error) {
	data, err := s.rdb.Get(ctx, quoteKey(id)).Bytes()
	if err == nil {
		var q model.QuoteRecord
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	// Cache miss: read from primary.
	q, err := s.primary.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheQuote(ctx, q)
	return q, nil
}

func (s *CachedStore) GetPriceHistory(ctx context.Context, asset string, limit int) ([]model.PricePoint, error) {
	// Windows are cached as fields of one hash per asset.
	field := strconv.Itoa(limit)
	data, err := s.rdb.HGet(ctx, historyKey(asset), field).Bytes()
	if err == nil {
		var history []model.PricePoint
		if json.Unmarshal(data, &history) == nil {
			return history, nil
		}
	}

	// Cache miss.
	history, err := s.primary.GetPriceHistory(ctx, asset, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(history); err == nil {
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, historyKey(asset), field, data)
		pipe.Expire(ctx, historyKey(asset), s.ttl)
		pipe.Exec(ctx)
	}
	return history, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListQuotes(ctx context.Context, asset string, limit int) ([]model.QuoteRecord, error) {
	return s.primary.ListQuotes(ctx, asset, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheQuote(ctx context.Context, q *model.QuoteRecord) {
	if data, err := json.Marshal(q); err == nil {
		s.rdb.Set(ctx, quoteKey(q.ID), data, s.ttl)
	}
}

func quoteKey(id string) string      { return fmt.Sprintf("quote:%s", id) }
func historyKey(asset string) string { return fmt.Sprintf("prices:%s", asset) }
