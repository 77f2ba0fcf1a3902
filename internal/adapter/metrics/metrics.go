package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tournamentfeed"

// Metrics bundles every metric group the service exports.
type Metrics struct {
	HTTP      *HTTPMetrics
	Hub       *HubMetrics
	WebSocket *WebSocketMetrics
	Transport *TransportMetrics
	Spool     *SpoolMetrics
}

// New registers all metric groups on reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		HTTP:      NewHTTPMetrics(reg),
		Hub:       NewHubMetrics(reg),
		WebSocket: NewWebSocketMetrics(reg),
		Transport: NewTransportMetrics(reg),
		Spool:     NewSpoolMetrics(reg),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
