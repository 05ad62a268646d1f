package health

import "github.com/prometheus/client_golang/prometheus"

// AmbientMetrics holds the cross-cutting gauges/counters of spec.md §A4
// that don't belong to any single domain component: tunnel reconnect
// count and remote-upload attempt count. Job-type counters and the
// tile-generation pyramid-build gauge live alongside the worker
// dispatcher in xact.Metrics; on-demand tile-generation concurrency is
// exposed by tiles.Generator's PendingCount, surfaced here by whichever
// caller wires it into a CheckFunc.
type AmbientMetrics struct {
	TunnelReconnects prometheus.Counter
	UploadAttempts   *prometheus.CounterVec
}

func NewAmbientMetrics(reg prometheus.Registerer) *AmbientMetrics {
	m := &AmbientMetrics{
		TunnelReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slideagent", Subsystem: "tunnel", Name: "reconnects_total",
			Help: "Number of times the reverse tunnel connection was re-established.",
		}),
		UploadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slideagent", Subsystem: "objstore", Name: "upload_attempts_total",
			Help: "Remote object store upload attempts, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.TunnelReconnects, m.UploadAttempts)
	return m
}
