package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowviz/flowviz/internal/pipeline"
)

const MetricPrefix = "flowviz_"

var (
	workerRateDesc = prometheus.NewDesc(
		MetricPrefix+"worker_rate",
		"Latest throughput reported by a worker (messages/s for producer and layer1, batches/s for layer2)",
		[]string{"stage", "worker"},
		nil,
	)
	channelOccupancyDesc = prometheus.NewDesc(
		MetricPrefix+"channel_occupancy_percent",
		"Fill level of a bounded pipeline channel",
		[]string{"channel"},
		nil,
	)
	batchSizeDesc = prometheus.NewDesc(
		MetricPrefix+"batch_size",
		"Batch size used by combiners for new batches",
		nil,
		nil,
	)
	processingDelayDesc = prometheus.NewDesc(
		MetricPrefix+"processing_delay_seconds",
		"Simulated per-batch processing cost",
		nil,
		nil,
	)
)

// Collector exports pipeline state at scrape time.
type Collector struct {
	source Source
}

func NewCollector(source Source) *Collector {
	return &Collector{source: source}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- workerRateDesc
	ch <- channelOccupancyDesc
	ch <- batchSizeDesc
	ch <- processingDelayDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Snapshot()

	for _, stage := range pipeline.Stages {
		for id, rate := range s.Rates(stage) {
			ch <- prometheus.MustNewConstMetric(workerRateDesc, prometheus.GaugeValue, rate,
				stage.String(), strconv.Itoa(id))
		}
	}
	ch <- prometheus.MustNewConstMetric(channelOccupancyDesc, prometheus.GaugeValue,
		float64(s.IntakeOccupancy), SeriesIntake)
	ch <- prometheus.MustNewConstMetric(channelOccupancyDesc, prometheus.GaugeValue,
		float64(s.BatchOccupancy), SeriesBatches)
	ch <- prometheus.MustNewConstMetric(batchSizeDesc, prometheus.GaugeValue, float64(s.BatchSize))
	ch <- prometheus.MustNewConstMetric(processingDelayDesc, prometheus.GaugeValue,
		float64(s.ProcessingDelayMS)/1000)
}
