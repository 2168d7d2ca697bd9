package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowviz/flowviz/internal/pipeline"
)

// BatchMetrics counts the batches layer-2 processors finish. Observe has the
// pipeline.BatchHook signature and is safe for concurrent use.
type BatchMetrics struct {
	sizes   prometheus.Histogram
	batches *prometheus.CounterVec
}

func NewBatchMetrics() *BatchMetrics {
	return &BatchMetrics{
		sizes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPrefix + "processed_batch_size",
			Help:    "Number of messages in each batch finished by a processor",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "processed_batches_total",
			Help: "Batches finished per processor",
		}, []string{"worker"}),
	}
}

// Observe records one finished batch.
func (m *BatchMetrics) Observe(workerID int, batch pipeline.Batch) {
	m.sizes.Observe(float64(len(batch)))
	m.batches.WithLabelValues(strconv.Itoa(workerID)).Inc()
}

func (m *BatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.sizes.Describe(ch)
	m.batches.Describe(ch)
}

func (m *BatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.sizes.Collect(ch)
	m.batches.Collect(ch)
}
