package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/domain"
)

const defaultQueueSize = 256

type delivery struct {
	ctx context.Context
	env domain.Envelope
}

// Hub serializes deliveries from all transports onto one dispatch goroutine.
// Deliver only waits for queue space, so a transport never blocks on client
// I/O, and envelopes from one transport are broadcast in the order delivered.
type Hub struct {
	engine   *Engine
	queue    chan delivery
	metrics  *metrics.HubMetrics
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub; a queueSize <= 0 uses the default.
func NewHub(engine *Engine, m *metrics.HubMetrics, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		engine:  engine,
		queue:   make(chan delivery, queueSize),
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Deliver implements domain.EventSink.
func (h *Hub) Deliver(ctx context.Context, env domain.Envelope) error {
	select {
	case <-h.done:
		return domain.ErrHubStopped
	default:
	}

	select {
	case h.queue <- delivery{ctx: context.WithoutCancel(ctx), env: env}:
		h.metrics.QueueDepth.Set(float64(len(h.queue)))
		return nil
	case <-h.done:
		return domain.ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled. Envelopes still queued at that
// point are dropped.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			if n := len(h.queue); n > 0 {
				slog.Warn("Hub stopping with queued envelopes", "dropped", n)
			}
			return nil
		case d := <-h.queue:
			h.metrics.QueueDepth.Set(float64(len(h.queue)))
			h.dispatch(d)
		}
	}
}

func (h *Hub) dispatch(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(d.ctx, "Broadcast panic recovered", "event", d.env.Event, "panic", r)
		}
	}()
	h.engine.Broadcast(d.ctx, d.env)
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
