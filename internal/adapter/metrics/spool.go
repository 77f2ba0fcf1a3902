package metrics

import "github.com/prometheus/client_golang/prometheus"

type SpoolMetrics struct {
	Files   *prometheus.CounterVec
	Scans   *prometheus.CounterVec
	Written prometheus.Counter
}

func NewSpoolMetrics(reg prometheus.Registerer) *SpoolMetrics {
	m := &SpoolMetrics{
		Files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spool",
			Name:      "files_total",
			Help:      "Spool files handled, by result (consumed, deferred, abandoned).",
		}, []string{"result"}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spool",
			Name:      "scans_total",
			Help:      "Spool directory scans, by outcome (ran, skipped).",
		}, []string{"outcome"}),
		Written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spool",
			Name:      "files_written_total",
			Help:      "Envelopes written to the spool by the producer fallback.",
		}),
	}

	reg.MustRegister(m.Files, m.Scans, m.Written)
	return m
}
