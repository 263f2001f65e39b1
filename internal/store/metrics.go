package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AppendTotal counts append attempts.
	// Labels: backend (file, sqlite), result (success, error)
	AppendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brieflab",
			Subsystem: "store",
			Name:      "appends_total",
			Help:      "Total number of brief appends by backend and result",
		},
		[]string{"backend", "result"},
	)

	// CorruptArchived counts conversations archived after failing to decode.
	CorruptArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brieflab",
			Subsystem: "store",
			Name:      "corrupt_archived_total",
			Help:      "Total number of corrupt conversations moved aside",
		},
		[]string{"backend"},
	)

	// TempFilesSwept counts orphaned temporary files removed by the janitor.
	TempFilesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brieflab",
			Subsystem: "store",
			Name:      "temp_files_swept_total",
			Help:      "Total number of orphaned temporary files removed",
		},
	)
)

func recordAppend(backend string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	AppendTotal.WithLabelValues(backend, result).Inc()
}
