package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/coordination"
	"github.com/pscheid92/tournamentfeed/internal/domain"
)

type fakeSubscription struct {
	msgs   chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		msgs:   make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeSubscription) Receive(ctx context.Context) ([]byte, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case err := <-f.errs:
		return nil, err
	case <-f.closed:
		return nil, domain.ErrBrokerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSubscription) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// fakeBroker hands out the queued connect results in order; once they are
// used up every Connect fails.
type fakeBroker struct {
	mu       sync.Mutex
	results  []any
	attempts int
	pingErr  error
}

func (b *fakeBroker) queue(results ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, results...)
}

func (b *fakeBroker) Name() string { return "fake" }

func (b *fakeBroker) Connect(context.Context, string) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if len(b.results) == 0 {
		return nil, errors.New("connection refused")
	}
	next := b.results[0]
	b.results = b.results[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(domain.Subscription), nil
}

func (b *fakeBroker) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBroker) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pingErr
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) attemptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

type fakeSink struct {
	mu   sync.Mutex
	envs []domain.Envelope
}

func (s *fakeSink) Deliver(_ context.Context, env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return nil
}

func (s *fakeSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.envs))
	for i, e := range s.envs {
		out[i] = e.Event
	}
	return out
}

type subscriberFixture struct {
	broker       *fakeBroker
	sink         *fakeSink
	availability *coordination.Availability
	clock        *clockwork.FakeClock
	metrics      *metrics.TransportMetrics
	subscriber   *Subscriber
}

func newSubscriberFixture() *subscriberFixture {
	f := &subscriberFixture{
		broker:       &fakeBroker{},
		sink:         &fakeSink{},
		availability: coordination.NewAvailability(nil),
		clock:        clockwork.NewFakeClock(),
		metrics:      metrics.NewTransportMetrics(prometheus.NewRegistry()),
	}
	cfg := SubscriberConfig{
		Channel:        domain.DefaultChannel,
		BackoffMin:     100 * time.Millisecond,
		BackoffMax:     2 * time.Second,
		HealthInterval: 5 * time.Second,
		ConnectTimeout: time.Second,
	}
	f.subscriber = NewSubscriber(f.broker, f.sink, f.availability, f.clock, cfg, f.metrics)
	return f
}

func (f *subscriberFixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.subscriber.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("subscriber did not stop")
		}
	})
}

// waitForWaiters blocks until n timers or tickers are pending on the fake clock.
func (f *subscriberFixture) waitForWaiters(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, n))
}

func TestSubscriber_RelaysMessagesInOrder(t *testing.T) {
	f := newSubscriberFixture()
	sub := newFakeSubscription()
	f.broker.queue(sub)
	f.start(t)

	require.Eventually(t, f.availability.Available, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnected, f.subscriber.State())

	sub.msgs <- []byte(`{"event":"match_updated","payload":{"matchId":7}}`)
	sub.msgs <- []byte(`not json`)
	sub.msgs <- []byte(`{"event":"round_started","payload":{"round":2}}`)

	require.Eventually(t, func() bool { return len(f.sink.events()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"match_updated", "round_started"}, f.sink.events())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.DecodeErrors.WithLabelValues("fake")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.MessagesReceived.WithLabelValues("fake")), 0)
}

func TestSubscriber_BackoffGrowsUntilConnected(t *testing.T) {
	f := newSubscriberFixture()
	sub := newFakeSubscription()
	f.broker.queue(errors.New("refused"), errors.New("refused"), sub)
	f.start(t)

	// First failure waits 100ms.
	f.waitForWaiters(t, 1)
	assert.False(t, f.availability.Available())
	assert.Equal(t, 1, f.broker.attemptCount())
	f.clock.Advance(99 * time.Millisecond)
	assert.Equal(t, 1, f.broker.attemptCount())
	f.clock.Advance(time.Millisecond)

	// Second failure waits 200ms.
	require.Eventually(t, func() bool { return f.broker.attemptCount() == 2 }, time.Second, 5*time.Millisecond)
	f.waitForWaiters(t, 1)
	f.clock.Advance(200 * time.Millisecond)

	require.Eventually(t, f.availability.Available, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, f.broker.attemptCount())
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.Reconnects.WithLabelValues("fake", "failure")), 0)
}

func TestSubscriber_ReconnectsAfterSubscriptionError(t *testing.T) {
	f := newSubscriberFixture()
	first, second := newFakeSubscription(), newFakeSubscription()
	f.broker.queue(first, second)
	f.start(t)

	require.Eventually(t, f.availability.Available, time.Second, 5*time.Millisecond)

	first.errs <- errors.New("connection reset")
	require.Eventually(t, func() bool { return !f.availability.Available() }, time.Second, 5*time.Millisecond)

	// Backoff was reset by the successful connect: the retry waits the minimum.
	f.waitForWaiters(t, 1)
	f.clock.Advance(100 * time.Millisecond)

	require.Eventually(t, f.availability.Available, time.Second, 5*time.Millisecond)
	second.msgs <- []byte(`{"event":"after_reconnect"}`)
	require.Eventually(t, func() bool { return len(f.sink.events()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscriber_PublishPingFailureDisconnects(t *testing.T) {
	f := newSubscriberFixture()
	sub := newFakeSubscription()
	f.broker.queue(sub)
	f.start(t)

	require.Eventually(t, f.availability.Available, time.Second, 5*time.Millisecond)
	f.waitForWaiters(t, 1)

	f.broker.mu.Lock()
	f.broker.pingErr = errors.New("broken pipe")
	f.broker.mu.Unlock()
	f.clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool { return !f.availability.Available() }, time.Second, 5*time.Millisecond)
	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestSubscriber_ConnectInitial(t *testing.T) {
	f := newSubscriberFixture()
	err := f.subscriber.ConnectInitial(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, f.subscriber.State())
	assert.False(t, f.availability.Available())

	sub := newFakeSubscription()
	f.broker.queue(sub)
	require.NoError(t, f.subscriber.ConnectInitial(context.Background()))
	assert.True(t, f.availability.Available())

	f.start(t)
	sub.msgs <- []byte(`{"event":"primed"}`)
	require.Eventually(t, func() bool { return len(f.sink.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, f.broker.attemptCount())
}

// expiringBroker fails a connect whose context is already done, like a real
// client dialing under a deadline.
type expiringBroker struct {
	*fakeBroker
}

func (b expiringBroker) Connect(ctx context.Context, channel string) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.fakeBroker.Connect(ctx, channel)
}

func TestSubscriber_ZeroConnectTimeoutUsesDefault(t *testing.T) {
	broker := expiringBroker{fakeBroker: &fakeBroker{}}
	broker.queue(newFakeSubscription())
	availability := coordination.NewAvailability(nil)
	sub := NewSubscriber(broker, &fakeSink{}, availability, clockwork.NewFakeClock(), SubscriberConfig{
		BackoffMin:     100 * time.Millisecond,
		BackoffMax:     time.Second,
		HealthInterval: time.Second,
	}, metrics.NewTransportMetrics(prometheus.NewRegistry()))

	require.NoError(t, sub.ConnectInitial(context.Background()))
	assert.True(t, availability.Available())
	assert.Equal(t, StateConnected, sub.State())
}

func TestSubscriber_StopClearsAvailability(t *testing.T) {
	f := newSubscriberFixture()
	f.broker.queue(newFakeSubscription())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.subscriber.Run(ctx) }()

	require.Eventually(t, f.availability.Available, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.False(t, f.availability.Available())
	assert.Equal(t, StateDisconnected, f.subscriber.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "State(9)", State(9).String())
}
