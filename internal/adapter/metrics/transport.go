package metrics

import "github.com/prometheus/client_golang/prometheus"

// TransportMetrics covers both upstream transports and the broker client.
type TransportMetrics struct {
	Available        prometheus.Gauge
	Reconnects       *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	CommandErrors    *prometheus.CounterVec
	BreakerState     prometheus.Gauge
	BreakerChanges   *prometheus.CounterVec
}

func NewTransportMetrics(reg prometheus.Registerer) *TransportMetrics {
	m := &TransportMetrics{
		Available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "primary_available",
			Help:      "1 while the broker subscription is live, 0 while the spool fallback is active.",
		}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connect_attempts_total",
			Help:      "Broker connect attempts, by broker and result.",
		}, []string{"broker", "result"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "messages_received_total",
			Help:      "Envelopes accepted from upstream, by transport.",
		}, []string{"transport"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "decode_errors_total",
			Help:      "Upstream payloads discarded as undecodable, by transport.",
		}, []string{"transport"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "command_duration_seconds",
			Help:      "Broker command latency, by operation.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"operation"}),
		CommandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "command_errors_total",
			Help:      "Failed broker commands, by operation.",
		}, []string{"operation"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "publish_circuit_state",
			Help:      "Publish circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "publish_circuit_transitions_total",
			Help:      "Publish circuit breaker transitions, by target state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.Available, m.Reconnects, m.MessagesReceived, m.DecodeErrors,
		m.CommandDuration, m.CommandErrors, m.BreakerState, m.BreakerChanges,
	)
	return m
}
