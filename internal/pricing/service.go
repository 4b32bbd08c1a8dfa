// Package pricing provides the HTTP handlers for pricing single options,
// computing Greeks, quoting multi-leg positions, and recording the price
// history used for historical volatility.
//
// All monetary values are fixedpoint values, never float64.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atmx/options-engine/internal/binomial"
	"github.com/atmx/options-engine/internal/contract"
	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/greeks"
	"github.com/atmx/options-engine/internal/limits"
	"github.com/atmx/options-engine/internal/metrics"
	"github.com/atmx/options-engine/internal/model"
	"github.com/atmx/options-engine/internal/quote"
	"github.com/atmx/options-engine/internal/store"
	"github.com/atmx/options-engine/internal/volatility"
)

var (
	errMissingAsset  = errors.New("asset is required")
	errMissingSpot   = errors.New("spot must be positive")
	errMissingType   = errors.New("option_type is required")
	errMissingSide   = errors.New("side is required")
	errMissingExpiry = errors.New("days or expiration is required")
	errAssetMismatch = errors.New("leg ticker asset does not match quote asset")
)

// Options configures a Service.
type Options struct {
	// DefaultRiskFreeRate is used when a request omits rate.
	DefaultRiskFreeRate fixedpoint.FixedPoint

	// HistoryWindow is the number of recent prices used when a request
	// omits volatility.
	HistoryWindow int

	// PeriodsPerYear annualizes historical volatility.
	PeriodsPerYear uint64

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Service handles pricing operations. The engine is stateless; the only
// shared state lives in the store and the WebSocket hub.
type Service struct {
	store   store.Store
	limiter *limits.PositionLimiter
	wsHub   *WSHub // optional WebSocket hub for quote broadcasts
	opts    Options
}

// NewService creates a new pricing service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, limiter *limits.PositionLimiter, hub *WSHub, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HistoryWindow < 2 {
		opts.HistoryWindow = 30
	}
	if opts.PeriodsPerYear == 0 {
		opts.PeriodsPerYear = binomial.DaysPerYear
	}
	return &Service{
		store:   st,
		limiter: limiter,
		wsHub:   hub,
		opts:    opts,
	}
}

// Routes registers every pricing endpoint on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/price", s.PriceOption)
	r.Post("/greeks", s.OptionGreeks)
	r.Post("/quotes", s.CreateQuote)
	r.Get("/quotes", s.ListQuotes)
	r.Get("/quotes/{quoteID}", s.GetQuote)
	r.Post("/assets/{asset}/prices", s.RecordPrice)
	r.Get("/assets/{asset}/prices", s.GetPriceHistory)
	r.Get("/assets/{asset}/volatility", s.GetVolatility)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Request/Response types ---

// OptionRequest is the JSON body for POST /price and POST /greeks.
// Either ticker or option_type+strike identifies the option; either days or
// expiration (or the ticker) fixes the time to expiry.
type OptionRequest struct {
	Ticker     string                 `json:"ticker,omitempty"` // {ASSET}-{YYYYMMDD}-{STRIKE}-{C|P}
	Asset      string                 `json:"asset,omitempty"`  // for the volatility fallback
	OptionType *model.OptionType      `json:"option_type,omitempty"`
	Spot       fixedpoint.FixedPoint  `json:"spot"`
	Strike     fixedpoint.FixedPoint  `json:"strike"`
	Rate       *fixedpoint.FixedPoint `json:"rate,omitempty"`       // nil → configured default
	Volatility *fixedpoint.FixedPoint `json:"volatility,omitempty"` // nil → historical
	Days       *uint32                `json:"days,omitempty"`
	Expiration *time.Time             `json:"expiration,omitempty"`
}

// PriceResponse is the JSON body returned from POST /price.
type PriceResponse struct {
	OptionType model.OptionType      `json:"option_type"`
	Spot       fixedpoint.FixedPoint `json:"spot"`
	Strike     fixedpoint.FixedPoint `json:"strike"`
	Rate       fixedpoint.FixedPoint `json:"rate"`
	Volatility fixedpoint.FixedPoint `json:"volatility"`
	Days       uint32                `json:"days"`
	Steps      uint64                `json:"steps"`
	Premium    fixedpoint.FixedPoint `json:"premium"`
	Intrinsic  fixedpoint.FixedPoint `json:"intrinsic"`
}

// GreeksResponse is the JSON body returned from POST /greeks.
type GreeksResponse struct {
	PriceResponse
	Greeks model.Greeks `json:"greeks"`
}

// LegRequest is one leg of a quote request.
type LegRequest struct {
	Ticker     string                `json:"ticker,omitempty"`
	OptionType *model.OptionType     `json:"option_type,omitempty"`
	Side       *model.Side           `json:"side"`
	Amount     fixedpoint.FixedPoint `json:"amount"`
	Strike     fixedpoint.FixedPoint `json:"strike,omitempty"`
	Expiration time.Time             `json:"expiration,omitempty"`
}

// QuoteRequest is the JSON body for POST /quotes.
type QuoteRequest struct {
	Asset      string                 `json:"asset"`
	Spot       fixedpoint.FixedPoint  `json:"spot"`
	Rate       *fixedpoint.FixedPoint `json:"rate,omitempty"`
	Volatility *fixedpoint.FixedPoint `json:"volatility,omitempty"`
	Legs       []LegRequest           `json:"legs"`
}

// PriceRequest is the JSON body for POST /assets/{asset}/prices.
type PriceRequest struct {
	Price     fixedpoint.FixedPoint `json:"price"`
	Timestamp *time.Time            `json:"timestamp,omitempty"` // nil → now
}

// VolatilityResponse is the JSON body returned from GET /assets/{asset}/volatility.
type VolatilityResponse struct {
	Asset          string                `json:"asset"`
	Volatility     fixedpoint.FixedPoint `json:"volatility"`
	Observations   int                   `json:"observations"`
	PeriodsPerYear uint64                `json:"periods_per_year"`
}

// --- HTTP Handlers ---

// PriceOption handles POST /api/v1/price
func (s *Service) PriceOption(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.decodeOption(w, r)
	if !ok {
		return
	}

	start := time.Now()
	in := resp.inputs()
	resp.Premium = binomial.Price(in)
	metrics.ObserveOp("price", start)

	writeJSON(w, http.StatusOK, resp)
}

// OptionGreeks handles POST /api/v1/greeks
func (s *Service) OptionGreeks(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.decodeOption(w, r)
	if !ok {
		return
	}

	start := time.Now()
	in := resp.inputs()
	resp.Premium = binomial.Price(in)
	g := greeks.Compute(in)
	metrics.ObserveOp("greeks", start)

	writeJSON(w, http.StatusOK, GreeksResponse{PriceResponse: resp, Greeks: g})
}

// CreateQuote handles POST /api/v1/quotes
// Prices every leg, attaches margin and position Greeks, persists the quote
// and broadcasts it.
func (s *Service) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	// --- Input validation ---
	asset, records, position, err := buildPosition(req)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if req.Spot.IsZero() {
		writeError(w, errMissingSpot.Error(), http.StatusBadRequest)
		return
	}

	// --- Position limit check ---
	if err := s.limiter.Check(position); err != nil {
		metrics.PositionLimitRejections.WithLabelValues(limitReason(err)).Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	rate := s.rate(req.Rate)
	vol, err := s.volatility(r, asset, req.Volatility)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	// --- Pricing ---
	now := s.opts.Now().UTC()
	start := time.Now()
	q, err := quote.PriceQuote(position, req.Spot, rate, vol, now)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	g, err := quote.PositionGreeks(ctx, position, req.Spot, rate, vol, now)
	if err != nil {
		slog.Warn("position greeks failed", "asset", asset, "err", err)
		writeError(w, "failed to compute greeks: "+err.Error(), statusFor(err))
		return
	}
	metrics.ObserveOp("quote", start)

	record := &model.QuoteRecord{
		ID:           uuid.New().String(),
		Asset:        asset,
		Legs:         records,
		Spot:         req.Spot,
		RiskFreeRate: rate,
		Volatility:   vol,
		Quote:        q,
		Greeks:       g,
	}
	if err := s.store.SaveQuote(ctx, record); err != nil {
		slog.Error("save quote failed", "quote_id", record.ID, "err", err)
		writeError(w, "failed to record quote", http.StatusInternalServerError)
		return
	}
	metrics.QuotesTotal.WithLabelValues(asset).Inc()
	metrics.QuoteLegs.Observe(float64(len(records)))

	slog.Info("quote priced",
		"quote_id", record.ID,
		"asset", asset,
		"legs", len(records),
		"spot", req.Spot.String(),
		"volatility", vol.String(),
		"net_debit", q.NetDebit.String(),
		"net_credit", q.NetCredit.String(),
		"initial_margin", q.InitialMargin.String(),
	)

	// Broadcast the quote via WebSocket.
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "quote_priced",
			Asset:         asset,
			QuoteID:       record.ID,
			NetDebit:      q.NetDebit.String(),
			NetCredit:     q.NetCredit.String(),
			InitialMargin: q.InitialMargin.String(),
			Timestamp:     now,
		})
	}

	writeJSON(w, http.StatusCreated, record)
}

// GetQuote handles GET /api/v1/quotes/{quoteID}
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "quoteID")

	q, err := s.store.GetQuote(r.Context(), quoteID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "quote not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load quote", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListQuotes handles GET /api/v1/quotes
// Returns recent quotes, optionally filtered by ?asset=<ASSET> and capped
// by ?limit=<n>.
func (s *Service) ListQuotes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset != "" {
		if asset, err = contract.ParseAsset(asset); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	quotes, err := s.store.ListQuotes(r.Context(), asset, limit)
	if err != nil {
		writeError(w, "failed to list quotes", http.StatusInternalServerError)
		return
	}
	if quotes == nil {
		quotes = []model.QuoteRecord{}
	}
	writeJSON(w, http.StatusOK, quotes)
}

// RecordPrice handles POST /api/v1/assets/{asset}/prices
func (s *Service) RecordPrice(w http.ResponseWriter, r *http.Request) {
	asset, err := contract.ParseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Price.IsZero() {
		writeError(w, volatility.ErrNonPositivePrice.Error(), http.StatusBadRequest)
		return
	}

	ts := s.opts.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	point := &model.PricePoint{Asset: asset, Price: req.Price, Timestamp: ts}

	if err := s.store.AppendPrice(r.Context(), point); err != nil {
		slog.Error("append price failed", "asset", asset, "err", err)
		writeError(w, "failed to record price", http.StatusInternalServerError)
		return
	}
	metrics.PriceObservations.WithLabelValues(asset).Inc()

	slog.Debug("price recorded", "asset", asset, "price", req.Price.String(), "timestamp", ts)
	writeJSON(w, http.StatusCreated, point)
}

// GetPriceHistory handles GET /api/v1/assets/{asset}/prices
// Returns the most recent ?limit=<n> observations, oldest first.
func (s *Service) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	asset, err := contract.ParseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", s.opts.HistoryWindow)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	history, err := s.store.GetPriceHistory(r.Context(), asset, limit)
	if err != nil {
		writeError(w, "failed to load price history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, history)
}

// GetVolatility handles GET /api/v1/assets/{asset}/volatility
// Estimates annualized volatility over the last ?window=<n> prices.
func (s *Service) GetVolatility(w http.ResponseWriter, r *http.Request) {
	asset, err := contract.ParseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	window, err := queryInt(r, "window", s.opts.HistoryWindow)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	vol, n, err := s.historicalVolatility(r, asset, window)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, VolatilityResponse{
		Asset:          asset,
		Volatility:     vol,
		Observations:   n,
		PeriodsPerYear: s.opts.PeriodsPerYear,
	})
}

// --- Helpers ---

// decodeOption parses an OptionRequest and resolves every pricing input.
// On failure it has already written the error response.
func (s *Service) decodeOption(w http.ResponseWriter, r *http.Request) (PriceResponse, bool) {
	var req OptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return PriceResponse{}, false
	}

	resp := PriceResponse{Spot: req.Spot, Strike: req.Strike}
	var asset string
	if req.Asset != "" {
		a, err := contract.ParseAsset(req.Asset)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return resp, false
		}
		asset = a
	}
	var expiry *time.Time

	if req.Ticker != "" {
		c, err := contract.ParseTicker(req.Ticker)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return resp, false
		}
		resp.OptionType = c.OptionType
		resp.Strike = c.Strike
		asset = c.Asset
		expiry = &c.Expiry
	} else {
		if req.OptionType == nil {
			writeError(w, errMissingType.Error(), http.StatusBadRequest)
			return resp, false
		}
		resp.OptionType = *req.OptionType
	}
	if req.Expiration != nil {
		expiry = req.Expiration
	}

	switch {
	case req.Days != nil:
		resp.Days = *req.Days
	case expiry != nil:
		resp.Days = model.DaysToExpiry(*expiry, s.opts.Now())
	default:
		writeError(w, errMissingExpiry.Error(), http.StatusBadRequest)
		return resp, false
	}

	resp.Rate = s.rate(req.Rate)
	vol, err := s.volatility(r, asset, req.Volatility)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return resp, false
	}
	resp.Volatility = vol
	resp.Steps = binomial.Steps(resp.Days)
	resp.Intrinsic = binomial.Intrinsic(resp.OptionType, resp.Spot, resp.Strike)
	return resp, true
}

func (p PriceResponse) inputs() binomial.Inputs {
	return binomial.Inputs{
		Spot:       p.Spot,
		Strike:     p.Strike,
		Rate:       p.Rate,
		Volatility: p.Volatility,
		Days:       p.Days,
		Type:       p.OptionType,
	}
}

// buildPosition validates the legs of a quote request and returns the
// normalized asset, the leg records to persist, and the position to price.
func buildPosition(req QuoteRequest) (string, []model.LegRecord, model.Position, error) {
	var asset string
	if req.Asset != "" {
		a, err := contract.ParseAsset(req.Asset)
		if err != nil {
			return "", nil, model.Position{}, err
		}
		asset = a
	}
	legs := make([]model.PositionLeg, 0, len(req.Legs))
	records := make([]model.LegRecord, 0, len(req.Legs))

	for i, lr := range req.Legs {
		if lr.Side == nil {
			return "", nil, model.Position{}, fmt.Errorf("leg %d: %w", i, errMissingSide)
		}

		var leg model.PositionLeg
		var err error
		if lr.Ticker != "" {
			c, perr := contract.ParseTicker(lr.Ticker)
			if perr != nil {
				return "", nil, model.Position{}, fmt.Errorf("leg %d: %w", i, perr)
			}
			if asset == "" {
				asset = c.Asset
			}
			if c.Asset != asset {
				return "", nil, model.Position{}, fmt.Errorf("leg %d: %w: %s", i, errAssetMismatch, c.Asset)
			}
			leg, err = c.Leg(*lr.Side, lr.Amount)
		} else {
			if lr.OptionType == nil {
				return "", nil, model.Position{}, fmt.Errorf("leg %d: %w", i, errMissingType)
			}
			leg, err = model.NewPositionLeg(*lr.OptionType, *lr.Side, lr.Amount, lr.Strike, lr.Expiration)
		}
		if err != nil {
			return "", nil, model.Position{}, fmt.Errorf("leg %d: %w", i, err)
		}

		rec := leg.Record()
		rec.Ticker = lr.Ticker
		if rec.Ticker == "" && asset != "" {
			rec.Ticker = contract.Ticker(asset, leg.Expiration(), leg.Strike(), leg.OptionType())
		}
		legs = append(legs, leg)
		records = append(records, rec)
	}

	if asset == "" {
		return "", nil, model.Position{}, errMissingAsset
	}
	position, err := model.NewPosition(asset, legs...)
	if err != nil {
		return "", nil, model.Position{}, err
	}
	return asset, records, position, nil
}

func (s *Service) rate(explicit *fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	if explicit != nil {
		return *explicit
	}
	return s.opts.DefaultRiskFreeRate
}

// volatility returns the explicit volatility, or the historical volatility
// of the asset when none was given.
func (s *Service) volatility(r *http.Request, asset string, explicit *fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if asset == "" {
		return fixedpoint.Zero, fmt.Errorf("volatility is required: %w", errMissingAsset)
	}
	vol, _, err := s.historicalVolatility(r, asset, s.opts.HistoryWindow)
	return vol, err
}

func (s *Service) historicalVolatility(r *http.Request, asset string, window int) (fixedpoint.FixedPoint, int, error) {
	history, err := s.store.GetPriceHistory(r.Context(), asset, window)
	if err != nil {
		return fixedpoint.Zero, 0, fmt.Errorf("load price history %s: %w", asset, err)
	}
	prices := make([]fixedpoint.FixedPoint, len(history))
	for i, p := range history {
		prices[i] = p.Price
	}

	start := time.Now()
	vol, err := volatility.Historical(prices, s.opts.PeriodsPerYear)
	if err != nil {
		return fixedpoint.Zero, len(prices), fmt.Errorf("%s: %w", asset, err)
	}
	metrics.ObserveOp("volatility", start)
	return vol, len(prices), nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, limits.ErrTooManyLegs),
		errors.Is(err, limits.ErrPerLegLimitExceeded),
		errors.Is(err, limits.ErrExpiryLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, volatility.ErrInsufficientPrices),
		errors.Is(err, volatility.ErrNonPositivePrice),
		errors.Is(err, model.ErrEmptyPosition),
		errors.Is(err, model.ErrZeroAmount),
		errors.Is(err, model.ErrInvalidOptionType),
		errors.Is(err, model.ErrInvalidSide),
		errors.Is(err, contract.ErrInvalidTicker),
		errors.Is(err, contract.ErrInvalidStrike),
		errors.Is(err, contract.ErrInvalidAsset),
		errors.Is(err, errMissingAsset),
		errors.Is(err, errMissingType),
		errors.Is(err, errMissingSide),
		errors.Is(err, errAssetMismatch):
		return http.StatusBadRequest
	case errors.Is(err, quote.ErrPricingFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func limitReason(err error) string {
	switch {
	case errors.Is(err, limits.ErrTooManyLegs):
		return "legs"
	case errors.Is(err, limits.ErrPerLegLimitExceeded):
		return "per_leg"
	default:
		return "per_expiry"
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
