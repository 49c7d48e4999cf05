// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// CallbackAuth counts callback authentication decisions by outcome.
	CallbackAuth = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "callback_auth_total", Help: "Inbound callback authentication decisions by outcome."},
		[]string{"outcome"},
	)
	// CallbackResults counts processed callback payloads by result.
	CallbackResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "callback_results_total", Help: "Processed generation results by status."},
		[]string{"status"},
	)
	CallbackRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "callback_rate_limited_total", Help: "Callbacks rejected by the rate limiter."},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Outbound webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Outbound webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	ParamCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "param_cache_lookups_total", Help: "System parameter cache lookups by result."},
		[]string{"result"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			CallbackAuth,
			CallbackResults,
			CallbackRateLimited,
			WebhookDeliveries,
			WebhookLatency,
			ParamCacheHits,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}
