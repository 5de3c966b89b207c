package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vibz_profile",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vibz_profile",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vibz_profile",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	balanceIncrements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vibz_profile",
			Subsystem: "balance",
			Name:      "increments_total",
			Help:      "Balance increments by reason and result.",
		},
		[]string{"reason", "success"},
	)

	vibzCredited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vibz_profile",
			Subsystem: "balance",
			Name:      "vibz_credited_total",
			Help:      "Total $VIBZ credited by reason.",
		},
		[]string{"reason"},
	)

	checkoutSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vibz_profile",
			Subsystem: "checkout",
			Name:      "sessions_total",
			Help:      "Checkout session requests by result.",
		},
		[]string{"result"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vibz_profile",
			Subsystem: "checkout",
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by event type and result.",
		},
		[]string{"type", "result"},
	)

	sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vibz_profile",
			Subsystem: "auth",
			Name:      "session_events_total",
			Help:      "Session changes by type.",
		},
		[]string{"type"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		balanceIncrements,
		vibzCredited,
		checkoutSessions,
		webhookEvents,
		sessionEvents,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RequestStarted tracks an in-flight request; call the result when done.
func RequestStarted() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveRequest records a finished HTTP request. path should be the route
// pattern, not the raw URL.
func ObserveRequest(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// RecordBalanceIncrement records one increment attempt.
func RecordBalanceIncrement(reason string, amount int64, success bool) {
	balanceIncrements.WithLabelValues(reason, strconv.FormatBool(success)).Inc()
	if success {
		vibzCredited.WithLabelValues(reason).Add(float64(amount))
	}
}

// RecordCheckoutSession records the outcome of a checkout initiation.
func RecordCheckoutSession(result string) {
	checkoutSessions.WithLabelValues(result).Inc()
}

// RecordWebhookEvent records a processed payment webhook.
func RecordWebhookEvent(eventType, result string) {
	webhookEvents.WithLabelValues(eventType, result).Inc()
}

// RecordSessionEvent counts sign ins, refreshes and sign outs.
func RecordSessionEvent(eventType string) {
	sessionEvents.WithLabelValues(eventType).Inc()
}
