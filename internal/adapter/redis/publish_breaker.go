package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
)

// PublishBreakerHook puts a circuit breaker in front of PUBLISH on the
// publish connection. Health pings bypass it so the subscriber always sees
// the real broker state, while producers fail fast into their spool fallback
// once the broker keeps rejecting writes.
type PublishBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*PublishBreakerHook)(nil)

// NewPublishBreakerHook opens after a 60% failure rate over at least 5
// publishes in 10s and probes again after delay.
func NewPublishBreakerHook(delay time.Duration, m *metrics.TransportMetrics) *PublishBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Publish circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.BreakerChanges.WithLabelValues(e.NewState.String()).Inc()
			m.BreakerState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return &PublishBreakerHook{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *PublishBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return next
}

func (h *PublishBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if cmd.Name() != "publish" {
			return next(ctx, cmd)
		}
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis publish rejected: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return err
	}
}

func (h *PublishBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

// State returns the current breaker state.
func (h *PublishBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
