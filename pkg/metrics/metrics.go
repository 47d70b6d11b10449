package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_requests_total",
			Help: "Total number of ingestion requests by outcome (count)",
		},
		[]string{"status"},
	)

	IngestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_ms",
			Help:    "End to end ingestion duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	AttachmentUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_attachment_uploads_total",
			Help: "Total number of attachment uploads by outcome (count)",
		},
		[]string{"status"},
	)

	AttachmentUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_attachment_upload_duration_ms",
			Help:    "Blob storage upload duration per attachment in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	AttachmentBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_attachment_size_bytes",
			Help:    "Size of uploaded attachments in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	MetadataIndexFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_metadata_index_failures_total",
			Help: "Attachments uploaded to blob storage whose metadata record failed to persist (count)",
		},
	)

	IngestEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_published_total",
			Help: "Ingest events published to the broker by outcome (count)",
		},
		[]string{"status"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_requests_total",
			Help: "Requests seen by the rate limiter by outcome (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

func RegisterIngestMetrics() {
	prometheus.MustRegister(
		IngestionsTotal,
		IngestionDuration,
		AttachmentUploadsTotal,
		AttachmentUploadDuration,
		AttachmentBytes,
		MetadataIndexFailuresTotal,
	)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(IngestEventsTotal)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
}

// SetCircuitBreakerState records a breaker state transition.
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
