// Package metrics provides Prometheus instrumentation for the portfolio
// service.
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
	// TransactionsApplied counts ledger updates, partitioned by position
	// direction and transaction kind.
	TransactionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_transactions_applied_total",
		Help: "Transaction events durably recorded and applied to the ledger",
	}, []string{"position_type", "kind"})

	// TransactionsRejected counts events that aborted without mutating the
	// ledger, partitioned by error kind.
	TransactionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_transactions_rejected_total",
		Help: "Transaction events rejected before or during ledger apply",
	}, []string{"reason"})

	// ApplyLatency tracks the wall time of the record-and-apply unit of work.
	ApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portfolio_apply_latency_seconds",
		Help:    "Latency of the transactional record-and-apply path",
		Buckets: prometheus.DefBuckets,
	})

	// CacheHits counts portfolio snapshot cache hits and misses.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_cache_requests_total",
		Help: "Portfolio snapshot cache lookups",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
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
