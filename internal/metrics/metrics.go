// Package metrics provides Prometheus instrumentation for the settlement engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts settled trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zarrin_trades_total",
		Help: "Total number of trades settled",
	}, []string{"side"})

	// TradeRejections counts failed settlement attempts by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zarrin_trade_rejections_total",
		Help: "Settlement attempts rejected, by reason",
	}, []string{"reason"})

	// TradeLatency is a histogram of settlement latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zarrin_trade_latency_seconds",
		Help:    "Trade settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// QuoteTicks counts quotes emitted by the price feed.
	QuoteTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zarrin_quote_ticks_total",
		Help: "Quotes emitted by the price feed",
	})

	// ActiveLocks tracks quote locks currently held.
	ActiveLocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zarrin_active_quote_locks",
		Help: "Quote locks currently active",
	})

	// TradingHalted is 1 while the global halt flag is set.
	TradingHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zarrin_trading_halted",
		Help: "1 while trading is halted, 0 otherwise",
	})

	// WebSocketClients tracks connected quote-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zarrin_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zarrin_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zarrin_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
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
