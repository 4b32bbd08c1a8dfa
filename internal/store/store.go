// Package store defines the persistence interface for the options engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/options-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Quote operations ---

	// SaveQuote persists a priced quote. Quotes are immutable once saved.
	SaveQuote(ctx context.Context, q *model.QuoteRecord) error

	// GetQuote retrieves a quote by its ID.
	GetQuote(ctx context.Context, id string) (*model.QuoteRecord, error)

	// ListQuotes returns up to limit quotes for an asset, newest first.
	// An empty asset matches every asset; limit <= 0 means no limit.
	ListQuotes(ctx context.Context, asset string, limit int) ([]model.QuoteRecord, error)

	// --- Price history ---

	// AppendPrice records one price observation.
	AppendPrice(ctx context.Context, p *model.PricePoint) error

	// GetPriceHistory returns the most recent limit observations for an
	// asset, ordered oldest to newest. limit <= 0 returns the full history.
	GetPriceHistory(ctx context.Context, asset string, limit int) ([]model.PricePoint, error)
}
