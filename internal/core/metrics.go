package core

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricDatasetsSaved = "datasets_saved_total"
	MetricRowsWritten   = "rows_written_total"
	MetricRowsDeleted   = "rows_deleted_total"
	MetricFetchSeconds  = "fetch_duration_seconds"
)

var CounterDatasetsSaved = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sheetstore",
		Name:      MetricDatasetsSaved,
		Help:      "Dataset saves by outcome (created, updated, failed).",
	},
	[]string{
		"outcome",
	},
)

var CounterRowsWritten = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sheetstore",
		Name:      MetricRowsWritten,
		Help:      "Rows inserted or updated, by replace mode.",
	},
	[]string{
		"mode",
	},
)

var CounterRowsDeleted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sheetstore",
		Name:      MetricRowsDeleted,
		Help:      "Rows removed before a replacing save.",
	},
)

var HistogramFetchSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sheetstore",
		Name:      MetricFetchSeconds,
		Help:      "Latency of dataset and row queries.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{
		"op",
	},
)

func init() {
	prometheus.MustRegister(CounterDatasetsSaved)
	prometheus.MustRegister(CounterRowsWritten)
	prometheus.MustRegister(CounterRowsDeleted)
	prometheus.MustRegister(HistogramFetchSeconds)
}
