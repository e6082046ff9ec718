package importer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

var (
	// filesFetched tracks feed files fetched and parsed, by chain and kind.
	filesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_files_fetched_total",
		Help: "Total feed files fetched and parsed, by chain and feed kind",
	}, []string{"chain", "kind"})

	// filesFailed tracks feed files that could not be fetched or parsed.
	filesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_files_failed_total",
		Help: "Total feed files skipped after a fetch or parse failure",
	}, []string{"chain", "kind"})

	// rowsWritten tracks committed row changes by table and operation.
	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_rows_written_total",
		Help: "Total rows created or updated by committed batches",
	}, []string{"chain", "table", "op"})

	// recordsSkipped tracks price records dropped for want of a branch.
	recordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_records_skipped_total",
		Help: "Total price records dropped because their store has no branch",
	}, []string{"chain"})

	// runDuration tracks the wall-clock duration of full import runs.
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "importer_run_duration_seconds",
		Help:    "Wall-clock duration of import runs by terminal status",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"status"})

	// runsTotal tracks finished import runs by terminal status.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_runs_total",
		Help: "Total import runs by terminal status",
	}, []string{"status"})
)

// MetricsRecorder provides methods to record importer metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordFileFetched records one successfully fetched and parsed feed file.
func (m *MetricsRecorder) RecordFileFetched(chain string, kind types.FileKind) {
	filesFetched.WithLabelValues(chain, string(kind)).Inc()
}

// RecordFileFailed records one feed file skipped after fetch or parse failure.
func (m *MetricsRecorder) RecordFileFailed(chain string, kind types.FileKind) {
	filesFailed.WithLabelValues(chain, string(kind)).Inc()
}

// RecordBatch records the row changes of one committed price batch.
func (m *MetricsRecorder) RecordBatch(chain string, res store.PriceBatchResult) {
	if res.ProductsCreated > 0 {
		rowsWritten.WithLabelValues(chain, "chain_products", "created").Add(float64(res.ProductsCreated))
	}
	if res.ProductsUpdated > 0 {
		rowsWritten.WithLabelValues(chain, "chain_products", "updated").Add(float64(res.ProductsUpdated))
	}
	if res.PricesCreated > 0 {
		rowsWritten.WithLabelValues(chain, "branch_prices", "created").Add(float64(res.PricesCreated))
	}
	if res.PricesUpdated > 0 {
		rowsWritten.WithLabelValues(chain, "branch_prices", "updated").Add(float64(res.PricesUpdated))
	}
}

// RecordBranchesSkipped records price records dropped for want of a branch.
func (m *MetricsRecorder) RecordBranchesSkipped(chain string, n int) {
	recordsSkipped.WithLabelValues(chain).Add(float64(n))
}

// RecordRun records one finished import run.
func (m *MetricsRecorder) RecordRun(status string, duration time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(duration.Seconds())
}
