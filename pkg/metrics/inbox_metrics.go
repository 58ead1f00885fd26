// Package metrics holds the prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_sync_total",
			Help: "Sync runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // outcome: ok, no_credential, reconnect, provider_error, error
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_sync_duration_seconds",
			Help:    "Wall time of one account sync",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"trigger"},
	)

	EmailsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_emails_ingested_total",
			Help: "Emails persisted by sync",
		},
	)

	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_messages_skipped_total",
			Help: "Messages skipped during sync",
		},
		[]string{"reason"}, // reason: existing, parse_failure, fetch_error, duplicate
	)

	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_classifications_total",
			Help: "Classifier results",
		},
		[]string{"result"}, // result: matched, no_match, ambiguous, error
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_webhook_deliveries_total",
			Help: "Push deliveries by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordSync(trigger, outcome string, d time.Duration) {
	SyncTotal.WithLabelValues(trigger, outcome).Inc()
	SyncDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

func RecordSkipped(reason string) {
	MessagesSkipped.WithLabelValues(reason).Inc()
}

func RecordClassification(result string) {
	Classifications.WithLabelValues(result).Inc()
}

func RecordWebhook(outcome string) {
	WebhookDeliveries.WithLabelValues(outcome).Inc()
}

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
