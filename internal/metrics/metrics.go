// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gallery",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gallery",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	ExtractDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gallery",
		Subsystem: "face",
		Name:      "extract_duration_seconds",
		Help:      "Time spent by a worker on one descriptor extraction.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
	})

	ExtractInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gallery",
		Subsystem: "face",
		Name:      "extract_in_flight",
		Help:      "Extractions currently running on a worker.",
	})

	ExtractQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gallery",
		Subsystem: "face",
		Name:      "extract_queued",
		Help:      "Extractions waiting for a free worker.",
	})

	ExtractRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gallery",
		Subsystem: "face",
		Name:      "extract_rejected_total",
		Help:      "Extractions that were not served, by reason.",
	}, []string{"reason"})

	FaceReady = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gallery",
		Subsystem: "face",
		Name:      "ready",
		Help:      "1 when the face models are ready to serve.",
	})

	MatchesReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gallery",
		Name:      "matches_returned",
		Help:      "Number of images matched per query.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	BlobCleanup = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gallery",
		Name:      "blob_cleanup_total",
		Help:      "Deferred blob deletions by outcome.",
	}, []string{"outcome"})
)
