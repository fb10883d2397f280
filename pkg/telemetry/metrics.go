// Package telemetry exposes prometheus collectors for the capsule engine.
// Scrape them via promhttp on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpsTotal counts operations by component and outcome.
	OpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capsuled",
		Name:      "ops_total",
		Help:      "Operations by component, op and outcome.",
	}, []string{"component", "op", "outcome"})

	// BlobBytesWritten counts bytes persisted into the internal blob store.
	BlobBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "capsuled",
		Name:      "blob_bytes_written_total",
		Help:      "Bytes written to the internal blob store.",
	})

	// OutboxDepth tracks pending cross-capsule notices.
	OutboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "capsuled",
		Name:      "sharing_outbox_depth",
		Help:      "Cross-capsule notices awaiting delivery.",
	})

	// OutboxRetries counts delivery retry attempts.
	OutboxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "capsuled",
		Name:      "sharing_outbox_retries_total",
		Help:      "Cross-capsule notice delivery retries.",
	})

	// OutboxDropped counts notices abandoned after exhausting attempts.
	OutboxDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "capsuled",
		Name:      "sharing_outbox_dropped_total",
		Help:      "Cross-capsule notices dropped after max attempts.",
	})

	// CleanupNotices counts queued external-blob cleanup notices by state.
	CleanupNotices = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capsuled",
		Name:      "external_cleanup_notices_total",
		Help:      "External-blob cleanup notices by state.",
	}, []string{"state"})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "capsuled",
		Name:      "http_request_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// ObserveOp records one operation outcome ("ok" or an error kind).
func ObserveOp(component, op, outcome string) {
	OpsTotal.WithLabelValues(component, op, outcome).Inc()
}
