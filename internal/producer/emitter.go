// Package producer publishes tournament events the way upstream services are
// expected to: on the broker when it is reachable, into the spool otherwise.
package producer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/adapter/spool"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
	"github.com/pscheid92/tournamentfeed/internal/platform/retry"
)

const (
	TransportBroker = "broker"
	TransportSpool  = "spool"
)

// Result tells where an event ended up. Path is set for spooled events.
type Result struct {
	Transport string
	Path      string
}

type Options struct {
	Channel  string
	Attempts int
	Backoff  time.Duration
	Clock    clockwork.Clock
}

type Emitter struct {
	broker  domain.Broker
	spool   *spool.Writer
	opts    Options
	metrics *metrics.SpoolMetrics
}

// NewEmitter builds an emitter. broker may be nil, in which case every event
// is spooled.
func NewEmitter(broker domain.Broker, writer *spool.Writer, opts Options, m *metrics.SpoolMetrics) *Emitter {
	if opts.Channel == "" {
		opts.Channel = domain.DefaultChannel
	}
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Emitter{broker: broker, spool: writer, opts: opts, metrics: m}
}

// Emit publishes env, falling back to the spool once the broker attempts are
// exhausted.
func (e *Emitter) Emit(ctx context.Context, env domain.Envelope) (Result, error) {
	data, err := env.Encode()
	if err != nil {
		return Result{}, apperrors.ValidationError(err.Error())
	}

	if e.broker != nil {
		err := e.publish(ctx, data)
		if err == nil {
			return Result{Transport: TransportBroker}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.WarnContext(ctx, "Broker publish failed, spooling event", "broker", e.broker.Name(), "event", env.Event, "error", err)
	}

	path, err := e.spool.Write(env)
	if err != nil {
		return Result{}, err
	}
	if e.metrics != nil {
		e.metrics.Written.Inc()
	}
	return Result{Transport: TransportSpool, Path: path}, nil
}

func (e *Emitter) publish(ctx context.Context, data []byte) error {
	policy := retry.Policy{
		MaxAttempts:    e.opts.Attempts,
		InitialBackoff: e.opts.Backoff,
		Clock:          e.opts.Clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.DebugContext(ctx, "Retrying publish", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	return retry.DoVoid(ctx, policy, classifyPublish, func() error {
		return e.broker.Publish(ctx, e.opts.Channel, data)
	})
}

func classifyPublish(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrBrokerClosed) {
		return retry.Stop
	}
	return retry.Retry
}
