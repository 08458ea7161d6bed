// Package metrics provides Prometheus instrumentation for the league engine.
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
	// TradesTotal counts trades recorded, partitioned by type (buy, sell, settle).
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_trades_total",
		Help: "Total number of trades recorded",
	}, []string{"type"})

	// TradeLatency tracks trade processing latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "league_trade_latency_seconds",
		Help:    "Trade processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// TradeRejections counts rejected trades by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_trade_rejections_total",
		Help: "Trades rejected before any write",
	}, []string{"reason"})

	// Settlements counts settled positions by result.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_settlements_total",
		Help: "Positions settled",
	}, []string{"result"}) // won, lost

	// JobRuns counts batch job runs by job and status.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_job_runs_total",
		Help: "Batch job runs",
	}, []string{"job", "status"})

	// JobDuration tracks batch job duration.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "league_job_duration_seconds",
		Help:    "Batch job duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"job"})

	// JobsInFlight tracks running batch jobs.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "league_jobs_in_flight",
		Help: "Batch jobs currently running",
	})

	// AchievementsAwarded counts badges by type.
	AchievementsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_achievements_awarded_total",
		Help: "Achievements awarded",
	}, []string{"type"})

	// GatewayRequests counts market-data requests by endpoint and status.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_gateway_requests_total",
		Help: "Requests to the market-data provider",
	}, []string{"endpoint", "status"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "league_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "league_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, routePattern(r)).Observe(duration)
	})
}

// routePattern labels by chi route pattern to keep cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Hijack is required for the WebSocket upgrade on /api/v1/ws.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
