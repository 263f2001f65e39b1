package evidence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FallbackTotal counts synthetic fallback activations by reason.
	FallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brieflab",
		Subsystem: "evidence",
		Name:      "fallback_total",
		Help:      "Number of searches answered with synthetic fallback documents.",
	}, []string{"reason"})

	// SearchDuration observes provider round-trip latency.
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brieflab",
		Subsystem: "evidence",
		Name:      "search_duration_seconds",
		Help:      "Latency of external search provider calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "outcome"})
)
