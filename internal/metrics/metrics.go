package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taurean",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	bookingClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taurean",
			Name:      "booking_claims_total",
			Help:      "Booking claim attempts by outcome (claimed, unavailable, error).",
		},
		[]string{"outcome"},
	)

	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taurean",
			Name:      "reconciliations_total",
			Help:      "Gateway callback reconciliations by outcome.",
		},
		[]string{"outcome"},
	)

	webhookQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taurean",
			Name:      "webhook_queue_depth",
			Help:      "Webhook events waiting in the durable queue.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingClaims, reconciliations, webhookQueueDepth)
	})
}

// IncHTTP increments the request counter for an endpoint/status pair.
func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

// IncBookingClaim increments the claim counter for an outcome label.
func IncBookingClaim(outcome string) {
	bookingClaims.WithLabelValues(outcome).Inc()
}

// IncReconciliation increments the reconciliation counter for an outcome label.
func IncReconciliation(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

// SetWebhookQueueDepth records the current queue backlog.
func SetWebhookQueueDepth(n int) {
	webhookQueueDepth.Set(float64(n))
}
