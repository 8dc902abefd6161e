package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_messages_handled_total",
			Help: "Inbound messages handled, labeled by resolution stage.",
		},
		[]string{"stage"},
	)

	ClassifierFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderdesk_classifier_failures_total",
			Help: "Intent classifier calls that failed at the transport level.",
		},
	)

	OutboundSendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderdesk_outbound_send_failures_total",
			Help: "Outbound WhatsApp sends that failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MessagesHandledTotal,
		ClassifierFailuresTotal,
		OutboundSendFailuresTotal,
	)
}
