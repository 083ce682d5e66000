package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the scan pipeline.
type Metrics struct {
	metadataChunks    prometheus.Counter
	filesScanned      prometheus.Counter
	chunksRead        prometheus.Counter
	rowsEmitted       prometheus.Counter
	selectionFailures prometheus.Counter
}

// NewMetrics registers the scan metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		metadataChunks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "deltascan_scan_metadata_chunks_total",
			Help: "Total number of scan metadata chunks visited.",
		}),
		filesScanned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "deltascan_scan_files_total",
			Help: "Total number of data files visited.",
		}),
		chunksRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "deltascan_scan_read_chunks_total",
			Help: "Total number of physical chunks read from data files.",
		}),
		rowsEmitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "deltascan_scan_rows_total",
			Help: "Total number of logical rows emitted.",
		}),
		selectionFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "deltascan_scan_selection_vector_failures_total",
			Help: "Total number of selection vectors that could not be resolved. Those files were read without row selection.",
		}),
	}
}
