package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/broadcast"
	"github.com/pscheid92/tournamentfeed/internal/coordination"
)

// Shared is the state both transports and the websocket endpoint work on.
type Shared struct {
	Availability *coordination.Availability
	Processed    *coordination.FileSet
	Registry     *broadcast.Registry
}

// NewShared builds the shared state with the availability flag exported as
// a gauge.
func NewShared(m *metrics.Metrics) *Shared {
	return &Shared{
		Availability: coordination.NewAvailability(func(up bool) {
			if up {
				m.Transport.Available.Set(1)
			} else {
				m.Transport.Available.Set(0)
			}
		}),
		Processed: coordination.NewFileSet(),
		Registry:  broadcast.NewRegistry(m.Hub),
	}
}

// Runner is a long-lived component that stops when its context ends.
type Runner interface {
	Run(ctx context.Context) error
}

// Supervisor starts the hub and both transports and waits for them.
type Supervisor struct {
	shared     *Shared
	hub        Runner
	poller     Runner
	subscriber Runner
}

// NewSupervisor wires the components; subscriber may be nil when no broker
// is configured, leaving the spool as the only transport.
func NewSupervisor(shared *Shared, hub, poller, subscriber Runner) *Supervisor {
	return &Supervisor{shared: shared, hub: hub, poller: poller, subscriber: subscriber}
}

func (s *Supervisor) Shared() *Shared {
	return s.shared
}

// Run blocks until ctx is cancelled or a component returns an error.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error { return s.poller.Run(gctx) })

	if s.subscriber != nil {
		g.Go(func() error { return s.subscriber.Run(gctx) })
	} else {
		slog.Warn("No broker configured, spool directory is the only event source")
	}

	err := g.Wait()
	slog.Info("Transports stopped", "connections", s.shared.Registry.Len())
	return err
}
