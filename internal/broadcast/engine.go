package broadcast

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/domain"
)

// Summary counts the outcome of one broadcast. It is reported, never acted on.
type Summary struct {
	Sent   int
	Failed int
}

// Engine delivers one envelope to every registered connection.
type Engine struct {
	registry *Registry
	clock    clockwork.Clock
	metrics  *metrics.HubMetrics
}

func NewEngine(registry *Registry, clock clockwork.Clock, m *metrics.HubMetrics) *Engine {
	return &Engine{registry: registry, clock: clock, metrics: m}
}

// Broadcast serializes env once and sends it to each open connection.
// Connections that are closed or fail the send are removed and closed; the
// remaining connections are unaffected. Nothing is retried.
func (e *Engine) Broadcast(ctx context.Context, env domain.Envelope) Summary {
	data, err := env.Encode()
	if err != nil {
		slog.ErrorContext(ctx, "Dropping envelope that cannot be encoded", "event", env.Event, "error", err)
		return Summary{}
	}

	start := e.clock.Now()
	var summary Summary

	e.registry.ForEach(func(conn Connection) {
		if !conn.Open() {
			summary.Failed++
			e.drop(ctx, conn, ErrClientClosed)
			return
		}
		if err := conn.Send(data); err != nil {
			summary.Failed++
			e.drop(ctx, conn, err)
			return
		}
		summary.Sent++
	})

	e.metrics.BroadcastDuration.Observe(e.clock.Since(start).Seconds())
	e.metrics.Broadcasts.Inc()
	e.metrics.Deliveries.WithLabelValues("sent").Add(float64(summary.Sent))
	e.metrics.Deliveries.WithLabelValues("failed").Add(float64(summary.Failed))

	slog.DebugContext(ctx, "Broadcast complete", "event", env.Event, "sent", summary.Sent, "failed", summary.Failed)
	return summary
}

func (e *Engine) drop(ctx context.Context, conn Connection, cause error) {
	if e.registry.Unregister(conn) {
		slog.DebugContext(ctx, "Removing client after failed send", "client_id", conn.ID(), "error", cause)
	}
	_ = conn.Close()
}
