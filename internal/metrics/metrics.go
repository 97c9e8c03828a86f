// Package metrics provides Prometheus instrumentation for the
// paper-trading engine.
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
	// OrdersExecutedTotal counts executed orders, partitioned by side.
	OrdersExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockquest_orders_executed_total",
		Help: "Total number of orders executed",
	}, []string{"side"})

	// OrderLatency tracks order placement latency end to end.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockquest_order_latency_seconds",
		Help:    "Order placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ActiveSessions tracks the number of sessions currently trading.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockquest_active_sessions",
		Help: "Number of currently active challenge sessions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockquest_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockquest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockquest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// AdmissionRejections counts orders rejected by the session
	// balance/status gate or the risk limits.
	AdmissionRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockquest_admission_rejections_total",
		Help: "Orders rejected by admission or risk checks",
	})

	// TradedNotional tracks cumulative executed notional per side.
	TradedNotional = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockquest_traded_notional_total",
		Help: "Cumulative executed order notional",
	}, []string{"side"})
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

		// Use the raw path for the label; the API surface is small
		// enough that cardinality stays bounded.
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
