package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementCommits counts terminal transitions by the channel that caused
	// them (verify, webhook, sweeper, admin, init) and their outcome.
	SettlementCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_commits_total",
			Help: "Terminal payment transitions",
		},
		[]string{"channel", "outcome"},
	)

	SettlementNoops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_noops_total",
			Help: "Settlement attempts that found the transaction already terminal",
		},
		[]string{"channel"},
	)

	WebhookRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_webhook_rejected_total",
		Help: "Webhook deliveries rejected for a bad signature",
	})

	InventoryOversold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_inventory_oversold_total",
		Help: "Order lines settled with insufficient stock",
	})

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_provider_request_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"op", "outcome"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)
)

// Middleware records request counts and latency labelled by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	})
}
