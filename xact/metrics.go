package xact

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the worker dispatcher's and tile pyramid builder's exported
// counters/gauges (spec.md §A4 of SPEC_FULL.md's ambient stack), registered
// by NewMetrics on the prometheus.Registerer it is given.
type Metrics struct {
	JobsProcessed   *prometheus.CounterVec
	JobsFailed      *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge
	TilegenRunning  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slideagent", Subsystem: "worker", Name: "jobs_processed_total",
			Help: "Jobs completed successfully, by type.",
		}, []string{"type"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slideagent", Subsystem: "worker", Name: "jobs_failed_total",
			Help: "Jobs that failed, by type.",
		}, []string{"type"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slideagent", Subsystem: "worker", Name: "job_duration_seconds",
			Help:    "Job processing duration, by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slideagent", Subsystem: "worker", Name: "queue_depth",
			Help: "Approximate number of queued+running job rows.",
		}),
		TilegenRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slideagent", Subsystem: "worker", Name: "tilegen_running",
			Help: "Number of TILEGEN jobs currently running.",
		}),
	}
	reg.MustRegister(m.JobsProcessed, m.JobsFailed, m.JobDuration, m.QueueDepth, m.TilegenRunning)
	return m
}
