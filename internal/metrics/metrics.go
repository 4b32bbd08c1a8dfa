// Package metrics provides Prometheus instrumentation for the options engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PricingOpsTotal counts engine evaluations, partitioned by operation
	// (price, greeks, quote, volatility).
	PricingOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_pricing_operations_total",
		Help: "Total number of pricing engine evaluations",
	}, []string{"operation"})

	// PricingLatency tracks engine evaluation time by operation.
	PricingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_pricing_latency_seconds",
		Help:    "Pricing engine latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// QuotesTotal counts persisted quotes per underlying asset.
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_quotes_total",
		Help: "Total number of position quotes issued",
	}, []string{"asset"})

	// QuoteLegs tracks the number of legs per quoted position.
	QuoteLegs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atmx_quote_legs",
		Help:    "Number of legs per quoted position",
		Buckets: []float64{1, 2, 3, 4, 6, 8},
	})

	// PriceObservations counts recorded price history points per asset.
	PriceObservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_price_observations_total",
		Help: "Total price observations recorded",
	}, []string{"asset"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// PositionLimitRejections counts quotes rejected by the position limiter.
	PositionLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_position_limit_rejections_total",
		Help: "Quotes rejected by position limiter",
	}, []string{"reason"})

	// ThrottledRequests counts requests refused by the per-client rate limiter.
	ThrottledRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_throttled_requests_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOp records one engine evaluation that started at start.
func ObserveOp(operation string, start time.Time) {
	PricingOpsTotal.WithLabelValues(operation).Inc()
	PricingLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
