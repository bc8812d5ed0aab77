// Package metrics holds the Prometheus metrics of a single run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error" // the engine could not be started

	KindResult = "result"
	KindError  = "error"
)

// Metrics holds all Prometheus metrics of a run. Every run gets its own
// registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal    *prometheus.CounterVec
	JobDuration  prometheus.Histogram
	JobsInFlight prometheus.Gauge
	RecordsTotal *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "massscan_jobs_total",
			Help: "The total number of finished scan jobs",
		}, []string{"outcome"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "massscan_job_duration_seconds",
			Help:    "Wall time of a scan engine process",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "massscan_jobs_in_flight",
			Help: "The number of running scan engine processes",
		}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "massscan_records_total",
			Help: "The total number of records received from scan engines",
		}, []string{"kind"}), // result, error
	}
}

func (m *Metrics) JobStarted() {
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished(outcome string, d time.Duration) {
	m.JobsInFlight.Dec()
	m.JobsTotal.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRecords(kind string) {
	m.RecordsTotal.WithLabelValues(kind).Inc()
}

// WriteFile exports the metrics in the text format for the node exporter
// textfile collector.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
