package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics covers the broadcast path: registry size, broadcasts and the
// dispatch queue feeding them.
type HubMetrics struct {
	Connections       prometheus.Gauge
	Broadcasts        prometheus.Counter
	Deliveries        *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	QueueDepth        prometheus.Gauge
}

func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Number of connections in the broadcast registry.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Total number of envelopes broadcast.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Total number of per-connection deliveries, by result (sent, failed).",
		}, []string{"result"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_duration_seconds",
			Help:      "Time spent fanning one envelope out to all connections.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "queue_depth",
			Help:      "Envelopes waiting in the dispatch queue.",
		}),
	}

	reg.MustRegister(m.Connections, m.Broadcasts, m.Deliveries, m.BroadcastDuration, m.QueueDepth)
	return m
}
