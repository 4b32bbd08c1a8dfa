package pricing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/limits"
	"github.com/atmx/options-engine/internal/model"
	"github.com/atmx/options-engine/internal/pricing"
	"github.com/atmx/options-engine/internal/store"
)

func fp(s string) fixedpoint.FixedPoint {
	return fixedpoint.MustParse(s)
}

// now is the fixed clock for every test: ETH-20250831 legs are 30 days out.
var now = time.Date(2025, 8, 1, 8, 0, 0, 0, time.UTC)

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*pricing.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	limiter := limits.NewPositionLimiter(4, fp("100"), fp("150"))
	svc := pricing.NewService(ms, limiter, nil, pricing.Options{
		DefaultRiskFreeRate: fp("0.05"),
		HistoryWindow:       30,
		PeriodsPerYear:      365,
		Now:                 func() time.Time { return now },
	})

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return svc, ms, r
}

func do(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedPrices records daily closes for an asset directly in the store.
func seedPrices(t *testing.T, ms *store.MemoryStore, asset string, prices ...string) {
	t.Helper()
	for i, p := range prices {
		pt := &model.PricePoint{
			Asset:     asset,
			Price:     fp(p),
			Timestamp: now.AddDate(0, 0, i-len(prices)),
		}
		if err := ms.AppendPrice(context.Background(), pt); err != nil {
			t.Fatalf("failed to seed price: %v", err)
		}
	}
}

// --- Single option pricing ---

func TestPriceOption_ByFields(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/price",
		`{"option_type":"CALL","spot":"100","strike":"100","volatility":"0.25","days":30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp pricing.PriceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Premium.Lte(fp("2.8")) || resp.Premium.Gte(fp("3.3")) {
		t.Errorf("premium should be ≈ 3.06, got %s", resp.Premium)
	}
	if !resp.Rate.Eq(fp("0.05")) {
		t.Errorf("expected default rate 0.05, got %s", resp.Rate)
	}
	if resp.Steps != 30 {
		t.Errorf("expected 30 steps, got %d", resp.Steps)
	}
}

func TestPriceOption_ByTicker(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/price",
		`{"ticker":"ETH-20250831-2400-P","spot":"2500","volatility":"0.6","rate":"0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp pricing.PriceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Days != 30 {
		t.Errorf("expected 30 days to expiry, got %d", resp.Days)
	}
	if resp.OptionType != model.Put || !resp.Strike.Eq(fp("2400")) {
		t.Errorf("ticker not applied: %s %s", resp.OptionType, resp.Strike)
	}
	if resp.Premium.IsZero() || !resp.Intrinsic.IsZero() {
		t.Errorf("OTM put should have time value only, got premium %s intrinsic %s", resp.Premium, resp.Intrinsic)
	}
}

func TestPriceOption_Validation(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"spot":`},
		{"missing type", `{"spot":"100","strike":"100","volatility":"0.2","days":5}`},
		{"missing expiry", `{"option_type":"CALL","spot":"100","strike":"100","volatility":"0.2"}`},
		{"bad ticker", `{"ticker":"ETH-2025-2400-P","spot":"100","volatility":"0.2"}`},
		{"negative spot", `{"option_type":"PUT","spot":"-1","strike":"100","volatility":"0.2","days":5}`},
		{"no volatility without asset", `{"option_type":"PUT","spot":"100","strike":"100","days":5}`},
		{"no volatility without history", `{"ticker":"ETH-20250831-2400-P","spot":"2500"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/price", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestOptionGreeks(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/greeks",
		`{"option_type":"PUT","spot":"100","strike":"100","volatility":"0.25","days":30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp pricing.GreeksResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.Greeks.Delta.Negative {
		t.Errorf("put delta should be negative, got %s", resp.Greeks.Delta)
	}
	if resp.Greeks.Vega.Negative || resp.Greeks.Vega.IsZero() {
		t.Errorf("vega should be positive, got %s", resp.Greeks.Vega)
	}
	if resp.Premium.IsZero() {
		t.Error("greeks response should carry the premium")
	}
}

// --- Quotes ---

func TestCreateQuote_ByTicker(t *testing.T) {
	_, ms, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/quotes", `{
		"spot": "2500",
		"volatility": "0.6",
		"legs": [
			{"ticker": "ETH-20250831-2500-C", "side": "LONG", "amount": "2"},
			{"ticker": "ETH-20250831-2800-C", "side": "SHORT", "amount": "2"}
		]
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var rec model.QuoteRecord
	json.Unmarshal(w.Body.Bytes(), &rec)

	if rec.ID == "" {
		t.Error("expected non-empty quote id")
	}
	if rec.Asset != "ETH" {
		t.Errorf("expected asset derived from tickers, got %q", rec.Asset)
	}
	if rec.Quote.NetDebit.Lte(rec.Quote.NetCredit) {
		t.Errorf("bull call spread should be a net debit: debit %s credit %s", rec.Quote.NetDebit, rec.Quote.NetCredit)
	}
	if rec.Quote.InitialMargin.IsZero() {
		t.Error("short leg should require margin")
	}
	if !rec.Quote.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, rec.Quote.Timestamp)
	}

	stored, err := ms.GetQuote(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("quote should be persisted: %v", err)
	}
	if !stored.Quote.NetDebit.Eq(rec.Quote.NetDebit) {
		t.Errorf("stored debit %s != returned %s", stored.Quote.NetDebit, rec.Quote.NetDebit)
	}
}

func TestCreateQuote_ByFieldsGetsTicker(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/quotes", `{
		"asset": "btc",
		"spot": "60000",
		"rate": "0.03",
		"volatility": "0.5",
		"legs": [
			{"option_type": "PUT", "side": "SHORT", "amount": "1", "strike": "55000",
			 "expiration": "2025-09-26T08:00:00Z"}
		]
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var rec model.QuoteRecord
	json.Unmarshal(w.Body.Bytes(), &rec)

	if rec.Legs[0].Ticker != "BTC-20250926-55000-P" {
		t.Errorf("expected canonical ticker, got %q", rec.Legs[0].Ticker)
	}
	if !rec.RiskFreeRate.Eq(fp("0.03")) {
		t.Errorf("expected explicit rate, got %s", rec.RiskFreeRate)
	}
	if rec.Quote.NetCredit.IsZero() || !rec.Quote.NetDebit.IsZero() {
		t.Errorf("short put should be credit only: %+v", rec.Quote)
	}
	// IM >= 4·MM/3
	if rec.Quote.InitialMargin.MulInt(3).Lt(rec.Quote.MaintenanceMargin.MulInt(4)) {
		t.Errorf("maintenance %s too large for initial %s", rec.Quote.MaintenanceMargin, rec.Quote.InitialMargin)
	}
}

func TestCreateQuote_HistoricalVolatilityFallback(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedPrices(t, ms, "ETH", "2500", "2550", "2480", "2530", "2600", "2570")

	w := do(t, router, "POST", "/api/v1/quotes", `{
		"spot": "2570",
		"legs": [{"ticker": "ETH-20250831-2600-C", "side": "LONG", "amount": "1"}]
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var rec model.QuoteRecord
	json.Unmarshal(w.Body.Bytes(), &rec)

	if rec.Volatility.IsZero() {
		t.Error("expected volatility estimated from price history")
	}
	if rec.Quote.NetDebit.IsZero() {
		t.Error("expected a premium for the long call")
	}
}

func TestCreateQuote_Validation(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"no legs", `{"asset":"ETH","spot":"2500","volatility":"0.5","legs":[]}`, http.StatusBadRequest},
		{"zero spot", `{"spot":"0","volatility":"0.5","legs":[{"ticker":"ETH-20250831-2500-C","side":"LONG","amount":"1"}]}`, http.StatusBadRequest},
		{"missing side", `{"spot":"2500","volatility":"0.5","legs":[{"ticker":"ETH-20250831-2500-C","amount":"1"}]}`, http.StatusBadRequest},
		{"zero amount", `{"spot":"2500","volatility":"0.5","legs":[{"ticker":"ETH-20250831-2500-C","side":"LONG","amount":"0"}]}`, http.StatusBadRequest},
		{"asset mismatch", `{"asset":"BTC","spot":"2500","volatility":"0.5","legs":[{"ticker":"ETH-20250831-2500-C","side":"LONG","amount":"1"}]}`, http.StatusBadRequest},
		{"no asset", `{"spot":"2500","volatility":"0.5","legs":[{"option_type":"CALL","side":"LONG","amount":"1","strike":"2500","expiration":"2025-08-31T08:00:00Z"}]}`, http.StatusBadRequest},
		{"no history", `{"spot":"2500","legs":[{"ticker":"ETH-20250831-2500-C","side":"LONG","amount":"1"}]}`, http.StatusBadRequest},
		{"bad asset", `{"asset":"ETH/USD","spot":"2500","volatility":"0.5","legs":[{"option_type":"CALL","side":"LONG","amount":"1","strike":"2500","expiration":"2025-08-31T08:00:00Z"}]}`, http.StatusBadRequest},
		{"overflowing spot", `{"spot":"1` + strings.Repeat("0", 58) + `","volatility":"1","legs":[{"ticker":"ETH-20260801-100-C","side":"LONG","amount":"1"}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/quotes", tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateQuote_SubMicroSpot(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/quotes", `{
		"spot": "0.0000001", "volatility": "0.8",
		"legs": [
			{"ticker": "PEPE-20250831-0.0000001-C", "side": "SHORT", "amount": "1"},
			{"ticker": "PEPE-20250831-0.0000001-P", "side": "LONG", "amount": "1"}
		]
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateQuote_PositionLimits(t *testing.T) {
	_, _, router := newTestEnv(t)

	// Per-leg limit is 100 contracts.
	w := do(t, router, "POST", "/api/v1/quotes", `{
		"spot": "2500", "volatility": "0.5",
		"legs": [{"ticker": "ETH-20250831-2500-C", "side": "SHORT", "amount": "101"}]
	}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for per-leg limit, got %d: %s", w.Code, w.Body.String())
	}

	// Per-expiry limit is 150 contracts: 80 + 80 on the same date.
	w = do(t, router, "POST", "/api/v1/quotes", `{
		"spot": "2500", "volatility": "0.5",
		"legs": [
			{"ticker": "ETH-20250831-2500-C", "side": "SHORT", "amount": "80"},
			{"ticker": "ETH-20250831-2300-P", "side": "SHORT", "amount": "80"}
		]
	}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for per-expiry limit, got %d: %s", w.Code, w.Body.String())
	}

	// Split across two expiries the same size passes.
	w = do(t, router, "POST", "/api/v1/quotes", `{
		"spot": "2500", "volatility": "0.5",
		"legs": [
			{"ticker": "ETH-20250831-2500-C", "side": "SHORT", "amount": "80"},
			{"ticker": "ETH-20250926-2300-P", "side": "SHORT", "amount": "80"}
		]
	}`)
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201 across expiries, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetQuote(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/quotes", `{
		"spot": "2500", "volatility": "0.5",
		"legs": [{"ticker": "ETH-20250831-2500-P", "side": "LONG", "amount": "1"}]
	}`)
	var created model.QuoteRecord
	json.Unmarshal(w.Body.Bytes(), &created)

	w = do(t, router, "GET", "/api/v1/quotes/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got model.QuoteRecord
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != created.ID || !got.Quote.NetDebit.Eq(created.Quote.NetDebit) {
		t.Errorf("fetched quote differs: %+v", got)
	}

	w = do(t, router, "GET", "/api/v1/quotes/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListQuotes_FilterByAsset(t *testing.T) {
	_, _, router := newTestEnv(t)
	for _, ticker := range []string{"ETH-20250831-2500-C", "BTC-20250831-60000-C", "ETH-20250831-2600-C"} {
		body := fmt.Sprintf(`{"spot":"2500","volatility":"0.5","legs":[{"ticker":%q,"side":"LONG","amount":"1"}]}`, ticker)
		if w := do(t, router, "POST", "/api/v1/quotes", body); w.Code != http.StatusCreated {
			t.Fatalf("seed quote %s: %d %s", ticker, w.Code, w.Body.String())
		}
	}

	w := do(t, router, "GET", "/api/v1/quotes?asset=eth", "")
	var quotes []model.QuoteRecord
	json.Unmarshal(w.Body.Bytes(), &quotes)
	if len(quotes) != 2 {
		t.Errorf("expected 2 ETH quotes, got %d", len(quotes))
	}

	w = do(t, router, "GET", "/api/v1/quotes?limit=x", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

// --- Price history & volatility ---

func TestRecordPrice(t *testing.T) {
	_, ms, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/assets/eth/prices", `{"price":"2512.25"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	history, _ := ms.GetPriceHistory(context.Background(), "ETH", 0)
	if len(history) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(history))
	}
	if !history[0].Price.Eq(fp("2512.25")) || !history[0].Timestamp.Equal(now) {
		t.Errorf("unexpected observation %+v", history[0])
	}

	w = do(t, router, "POST", "/api/v1/assets/ETH/prices", `{"price":"0"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero price, got %d", w.Code)
	}
}

func TestGetPriceHistory_Window(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedPrices(t, ms, "ETH", "1", "2", "3", "4", "5")

	w := do(t, router, "GET", "/api/v1/assets/ETH/prices?limit=3", "")
	var history []model.PricePoint
	json.Unmarshal(w.Body.Bytes(), &history)

	if len(history) != 3 || !history[0].Price.Eq(fp("3")) || !history[2].Price.Eq(fp("5")) {
		t.Errorf("expected the last three prices oldest first, got %+v", history)
	}
}

func TestGetVolatility(t *testing.T) {
	_, ms, router := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/assets/ETH/volatility", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 with no history, got %d: %s", w.Code, w.Body.String())
	}

	seedPrices(t, ms, "ETH", "100", "110", "100", "110", "100")

	w = do(t, router, "GET", "/api/v1/assets/ETH/volatility", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp pricing.VolatilityResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Observations != 5 {
		t.Errorf("expected 5 observations, got %d", resp.Observations)
	}
	if resp.Volatility.Lt(fp("2.0")) || resp.Volatility.Gt(fp("2.2")) {
		t.Errorf("expected ≈ 2.10, got %s", resp.Volatility)
	}
}

func TestInvalidAssetRejected(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"record price", "POST", "/api/v1/assets/ETH_USD/prices", `{"price":"1"}`},
		{"price history", "GET", "/api/v1/assets/1INCH/prices", ""},
		{"volatility", "GET", "/api/v1/assets/ABCDEFGHIJKLMNOPQ/volatility", ""},
		{"list quotes", "GET", "/api/v1/quotes?asset=eth%2Dusd", ""},
		{"price", "POST", "/api/v1/price", `{"asset":"e th","option_type":"CALL","spot":"100","strike":"100","days":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}
