package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration observes how long each pipeline stage took.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brieflab",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of research pipeline stages.",
		Buckets:   []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage", "outcome"})

	// RunsTotal counts pipeline runs by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brieflab",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Number of research pipeline runs.",
	}, []string{"outcome"})
)
