package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/coordination"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	"github.com/pscheid92/tournamentfeed/internal/platform/correlation"
	"github.com/pscheid92/tournamentfeed/internal/platform/retry"
)

const defaultConnectTimeout = 5 * time.Second

// State is the subscriber's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type SubscriberConfig struct {
	Channel        string
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	HealthInterval time.Duration
	ConnectTimeout time.Duration
}

// Subscriber moves between disconnected, connecting and connected. Any error
// on either broker connection drops it back to disconnected and clears the
// availability flag; the next attempt waits for the backoff delay, which
// resets once a connection succeeds.
type Subscriber struct {
	broker       domain.Broker
	sink         domain.EventSink
	availability *coordination.Availability
	clock        clockwork.Clock
	cfg          SubscriberConfig
	metrics      *metrics.TransportMetrics

	mu     sync.Mutex
	state  State
	primed domain.Subscription
}

func NewSubscriber(broker domain.Broker, sink domain.EventSink, availability *coordination.Availability, clock clockwork.Clock, cfg SubscriberConfig, m *metrics.TransportMetrics) *Subscriber {
	if cfg.Channel == "" {
		cfg.Channel = domain.DefaultChannel
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Subscriber{
		broker:       broker,
		sink:         sink,
		availability: availability,
		clock:        clock,
		cfg:          cfg,
		metrics:      m,
	}
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// ConnectInitial makes a single connection attempt and hands the subscription
// to the following Run. It lets callers fail startup when the broker is
// required.
func (s *Subscriber) ConnectInitial(ctx context.Context) error {
	sub, err := s.connect(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}
	s.mu.Lock()
	s.primed = sub
	s.mu.Unlock()
	return nil
}

// Run keeps the subscription alive until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := retry.NewBackoff(s.cfg.BackoffMin, s.cfg.BackoffMax)

	s.mu.Lock()
	sub := s.primed
	s.primed = nil
	s.mu.Unlock()

	for {
		if sub == nil {
			var err error
			sub, err = s.connect(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				s.setState(StateDisconnected)
				s.availability.Set(ctx, false, "connect failed")
				wait := backoff.Next()
				slog.WarnContext(ctx, "Broker connect failed",
					"broker", s.broker.Name(),
					"attempt", backoff.Attempt(),
					"retry_in", wait,
					"error", err,
				)
				if !s.sleep(ctx, wait) {
					break
				}
				continue
			}
		}

		backoff.Reset()
		err := s.consume(ctx, sub)
		_ = sub.Close()
		sub = nil
		s.setState(StateDisconnected)

		if ctx.Err() != nil {
			break
		}
		s.availability.Set(ctx, false, "subscription lost")
		wait := backoff.Next()
		slog.WarnContext(ctx, "Broker subscription lost", "broker", s.broker.Name(), "retry_in", wait, "error", err)
		if !s.sleep(ctx, wait) {
			break
		}
	}

	s.setState(StateDisconnected)
	s.availability.Set(context.WithoutCancel(ctx), false, "shutdown")
	slog.Info("Broker subscriber stopped", "broker", s.broker.Name())
	return nil
}

func (s *Subscriber) connect(ctx context.Context) (domain.Subscription, error) {
	s.setState(StateConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	sub, err := s.broker.Connect(connectCtx, s.cfg.Channel)
	if err != nil {
		s.metrics.Reconnects.WithLabelValues(s.broker.Name(), "failure").Inc()
		return nil, err
	}
	s.metrics.Reconnects.WithLabelValues(s.broker.Name(), "success").Inc()

	s.setState(StateConnected)
	s.availability.Set(ctx, true, "subscribed to "+s.cfg.Channel)
	slog.InfoContext(ctx, "Broker subscription established", "broker", s.broker.Name(), "channel", s.cfg.Channel)
	return sub, nil
}

// consume relays messages until the subscription or the publish connection
// fails, or ctx ends.
func (s *Subscriber) consume(ctx context.Context, sub domain.Subscription) error {
	consumeCtx, cancel := context.WithCancelCause(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchPublisher(consumeCtx, cancel)
	}()
	defer func() {
		cancel(nil)
		wg.Wait()
	}()

	for {
		data, err := sub.Receive(consumeCtx)
		if err != nil {
			if cause := context.Cause(consumeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
				return cause
			}
			return err
		}
		s.handle(correlation.Begin(ctx, s.broker.Name()), data)
	}
}

func (s *Subscriber) handle(ctx context.Context, data []byte) {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		s.metrics.DecodeErrors.WithLabelValues(s.broker.Name()).Inc()
		slog.WarnContext(ctx, "Discarding undecodable broker message", "size", len(data), "error", err)
		return
	}
	s.metrics.MessagesReceived.WithLabelValues(s.broker.Name()).Inc()

	if err := s.sink.Deliver(ctx, env); err != nil {
		slog.WarnContext(ctx, "Envelope not delivered", "event", env.Event, "error", err)
	}
}

// watchPublisher pings the publish connection every health interval and
// cancels the consume loop with the ping error.
func (s *Subscriber) watchPublisher(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := s.clock.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			pingCtx, pingCancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
			err := s.broker.Ping(pingCtx)
			pingCancel()
			if err != nil && ctx.Err() == nil {
				cancel(fmt.Errorf("publish connection ping: %w", err))
				return
			}
		}
	}
}

func (s *Subscriber) sleep(ctx context.Context, d time.Duration) bool {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
