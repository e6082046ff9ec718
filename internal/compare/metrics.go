package compare

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// comparisonDuration tracks the time taken to price a cart citywide.
	comparisonDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "comparator_duration_seconds",
		Help:    "Time taken to compare a cart across a city's branches",
		Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	})

	// cartSize tracks the distribution of compared cart sizes.
	cartSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "comparator_cart_items_count",
		Help:    "Number of items in comparison requests",
		Buckets: []float64{1, 5, 10, 20, 50, 100},
	})

	// comparisons counts comparison requests.
	comparisons = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comparator_comparisons_total",
		Help: "Total number of cart comparisons",
	})
)

// MetricsRecorder records comparator metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordComparison records one comparison's duration and cart size.
func (m *MetricsRecorder) RecordComparison(seconds float64, items int) {
	comparisons.Inc()
	comparisonDuration.Observe(seconds)
	cartSize.Observe(float64(items))
}
