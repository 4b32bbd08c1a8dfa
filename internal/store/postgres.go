package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/model"
)

// schema creates the tables PostgresStore reads and writes. Every statement
// is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id                 TEXT PRIMARY KEY,
	asset              TEXT NOT NULL,
	legs               JSONB NOT NULL,
	spot               NUMERIC NOT NULL,
	risk_free_rate     NUMERIC NOT NULL,
	volatility         NUMERIC NOT NULL,
	net_debit          NUMERIC NOT NULL,
	net_credit         NUMERIC NOT NULL,
	initial_margin     NUMERIC NOT NULL,
	maintenance_margin NUMERIC NOT NULL,
	greeks             JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS quotes_asset_created_idx ON quotes (asset, created_at DESC);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	asset       TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS price_history_asset_observed_idx ON price_history (asset, observed_at DESC);
`

const quoteColumns = `id, asset, legs::TEXT,
		spot::TEXT, risk_free_rate::TEXT, volatility::TEXT,
		net_debit::TEXT, net_credit::TEXT, initial_margin::TEXT, maintenance_margin::TEXT,
		greeks::TEXT, created_at`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the quotes and price_history tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveQuote(ctx context.Context, q *model.QuoteRecord) error {
	legs, err := json.Marshal(q.Legs)
	if err != nil {
		return fmt.Errorf("encode legs: %w", err)
	}
	greeks, err := json.Marshal(q.Greeks)
	if err != nil {
		return fmt.Errorf("encode greeks: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO quotes (id, asset, legs, spot, risk_free_rate, volatility,
		                     net_debit, net_credit, initial_margin, maintenance_margin, greeks, created_at)
		 VALUES ($1, $2, $3::JSONB, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
		         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::JSONB, $12)`,
		q.ID, q.Asset, string(legs),
		q.Spot.String(), q.RiskFreeRate.String(), q.Volatility.String(),
		q.Quote.NetDebit.String(), q.Quote.NetCredit.String(),
		q.Quote.InitialMargin.String(), q.Quote.MaintenanceMargin.String(),
		string(greeks), q.Quote.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetQuote(ctx context.Context, id string) (*model.QuoteRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get quote %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", id, err)
	}
	return q, nil
}

func (s *PostgresStore) ListQuotes(ctx context.Context, asset string, limit int) ([]model.QuoteRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+quoteColumns+` FROM quotes
		 WHERE ($1 = '' OR asset = $1)
		 ORDER BY created_at DESC
		 LIMIT NULLIF($2, 0)`, asset, max(limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []model.QuoteRecord
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

func (s *PostgresStore) AppendPrice(ctx context.Context, p *model.PricePoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_history (asset, price, observed_at)
		 VALUES ($1, $2::NUMERIC, $3)`,
		p.Asset, p.Price.String(), p.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, asset string, limit int) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, price, observed_at FROM (
		     SELECT id, asset, price::TEXT AS price, observed_at
		     FROM price_history
		     WHERE asset = $1
		     ORDER BY observed_at DESC, id DESC
		     LIMIT NULLIF($2, 0)
		 ) recent
		 ORDER BY observed_at, id`, asset, max(limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var priceS string
		if err := rows.Scan(&p.Asset, &priceS, &p.Timestamp); err != nil {
			return nil, err
		}
		if p.Price, err = fixedpoint.Parse(priceS); err != nil {
			return nil, fmt.Errorf("price history %s: %w", asset, err)
		}
		history = append(history, p)
	}
	return history, rows.Err()
}

// scanQuote reads one quotes row selected with quoteColumns.
func scanQuote(row pgx.Row) (*model.QuoteRecord, error) {
	var q model.QuoteRecord
	var legsS, greeksS string
	var spotS, rateS, volS, debitS, creditS, imS, mmS string

	if err := row.Scan(&q.ID, &q.Asset, &legsS,
		&spotS, &rateS, &volS,
		&debitS, &creditS, &imS, &mmS,
		&greeksS, &q.Quote.Timestamp); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(legsS), &q.Legs); err != nil {
		return nil, fmt.Errorf("decode legs: %w", err)
	}
	if err := json.Unmarshal([]byte(greeksS), &q.Greeks); err != nil {
		return nil, fmt.Errorf("decode greeks: %w", err)
	}

	fields := []struct {
		dst *fixedpoint.FixedPoint
		src string
	}{
		{&q.Spot, spotS},
		{&q.RiskFreeRate, rateS},
		{&q.Volatility, volS},
		{&q.Quote.NetDebit, debitS},
		{&q.Quote.NetCredit, creditS},
		{&q.Quote.InitialMargin, imS},
		{&q.Quote.MaintenanceMargin, mmS},
	}
	for _, f := range fields {
		v, err := fixedpoint.Parse(f.src)
		if err != nil {
			return nil, fmt.Errorf("decode quote %s: %w", q.ID, err)
		}
		*f.dst = v
	}
	return &q, nil
}
