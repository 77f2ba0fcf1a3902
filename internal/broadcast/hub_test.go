package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/tournamentfeed/internal/domain"
)

func startHub(t *testing.T, queueSize int) (*Hub, *Registry) {
	t.Helper()
	hm, _ := newTestMetrics()
	registry := NewRegistry(hm)
	hub := NewHub(NewEngine(registry, clockwork.NewRealClock(), hm), hm, queueSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, registry
}

func TestHub_DeliversInOrderToAllClients(t *testing.T) {
	hub, registry := startHub(t, 0)
	ctx := context.Background()

	const clients, events = 4, 20
	conns := make([]*fakeConn, clients)
	for i := range conns {
		conns[i] = newFakeConn(fmt.Sprintf("c%d", i))
		registry.Register(conns[i])
	}

	for i := range events {
		require.NoError(t, hub.Deliver(ctx, mustEnvelope(t, "score", i)))
	}

	for _, c := range conns {
		require.Eventually(t, func() bool { return len(c.messages()) == events }, 2*time.Second, 5*time.Millisecond)
		for i, m := range c.messages() {
			assert.JSONEq(t, fmt.Sprintf(`{"event":"score","payload":%d}`, i), m)
		}
	}
}

func TestHub_PreservesOrderPerProducer(t *testing.T) {
	hub, registry := startHub(t, 4)
	conn := newFakeConn("c")
	registry.Register(conn)

	var wg sync.WaitGroup
	for _, source := range []string{"redis", "spool"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				_ = hub.Deliver(context.Background(), mustEnvelope(t, source, i))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(conn.messages()) == 50 }, 2*time.Second, 5*time.Millisecond)

	next := map[string]int{}
	for _, m := range conn.messages() {
		env, err := domain.DecodeEnvelope([]byte(m))
		require.NoError(t, err)
		assert.JSONEq(t, fmt.Sprint(next[env.Event]), string(env.Payload))
		next[env.Event]++
	}
}

func TestHub_DeliverAfterStop(t *testing.T) {
	hm, _ := newTestMetrics()
	registry := NewRegistry(hm)
	hub := NewHub(NewEngine(registry, clockwork.NewRealClock(), hm), hm, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hub.Run(ctx))

	err := hub.Deliver(context.Background(), mustEnvelope(t, "late", nil))
	assert.ErrorIs(t, err, domain.ErrHubStopped)
}

func TestHub_DeliverHonoursContextWhenQueueFull(t *testing.T) {
	hm, _ := newTestMetrics()
	registry := NewRegistry(hm)
	hub := NewHub(NewEngine(registry, clockwork.NewRealClock(), hm), hm, 1)

	// Not running: the first delivery fills the queue.
	require.NoError(t, hub.Deliver(context.Background(), mustEnvelope(t, "a", nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := hub.Deliver(ctx, mustEnvelope(t, "b", nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
