// unison-payments/pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// "service" label lets one query compare the HTTP and gRPC surfaces
	PaymentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "requests_total",
			Help:      "Total payment requests per service",
		},
		[]string{"service", "status", "method"},
	)

	PaymentRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "request_duration_seconds",
			Help:      "Payment request latency per service",
			// dense sub-second buckets
			Buckets: []float64{
				0.01, 0.02, 0.03, 0.05, 0.08, 0.12,
				0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5,
			},
		},
		[]string{"service", "status"},
	)

	PaymentEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "events_total",
			Help:      "Payment lifecycle events emitted by the coordinator",
		},
		[]string{"event_type"},
	)

	SoftFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "soft_failures_total",
			Help:      "Swallowed vault, profile and event sink failures",
		},
		[]string{"collaborator", "op"},
	)
)

func init() {
	prometheus.MustRegister(PaymentRequestsTotal, PaymentRequestDuration, PaymentEventsTotal, SoftFailuresTotal)
}

func IncRequest(service, status, method string) {
	PaymentRequestsTotal.WithLabelValues(service, status, method).Inc()
}

func ObserveDuration(service, status string, seconds float64) {
	PaymentRequestDuration.WithLabelValues(service, status).Observe(seconds)
}

func IncEvent(eventType string) {
	PaymentEventsTotal.WithLabelValues(eventType).Inc()
}

func IncSoftFailure(collaborator, op string) {
	SoftFailuresTotal.WithLabelValues(collaborator, op).Inc()
}

// StatusLabel folds an HTTP status into the SUCCESS/FAILED label used across services.
func StatusLabel(code int) string {
	if code >= 200 && code < 400 {
		return "SUCCESS"
	}
	return "FAILED"
}
