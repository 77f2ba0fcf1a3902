package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/adapter/spool"
	"github.com/pscheid92/tournamentfeed/internal/broadcast"
	"github.com/pscheid92/tournamentfeed/internal/domain"
)

const matchUpdated = `{"event":"match_updated","payload":{"matchId":7}}`

// viewer is an in-memory connection recording every frame it gets.
type viewer struct {
	id     string
	mu     sync.Mutex
	frames []string
}

func (v *viewer) ID() string      { return v.id }
func (v *viewer) Open() bool      { return true }
func (v *viewer) Close() error    { return nil }
func (v *viewer) Shutdown(string) {}

func (v *viewer) Send(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames = append(v.frames, string(data))
	return nil
}

func (v *viewer) received() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.frames...)
}

type pipeline struct {
	dir    string
	shared *Shared
	broker *fakeBroker
	viewer *viewer
}

// startPipeline runs the hub, the poller and a subscriber on a fake broker
// with short real-time intervals.
func startPipeline(t *testing.T) *pipeline {
	t.Helper()

	clock := clockwork.NewRealClock()
	m := metrics.New(prometheus.NewRegistry())
	p := &pipeline{
		dir:    t.TempDir(),
		shared: NewShared(m),
		broker: &fakeBroker{},
		viewer: &viewer{id: "viewer-1"},
	}
	p.shared.Registry.Register(p.viewer)

	hub := broadcast.NewHub(broadcast.NewEngine(p.shared.Registry, clock, m.Hub), m.Hub, 0)
	poller := spool.NewPoller(spool.Config{
		Dir:          p.dir,
		Prefix:       "tournament_",
		Ext:          ".json",
		PollInterval: 20 * time.Millisecond,
		Grace:        10 * time.Millisecond,
	}, clock, p.shared.Availability, p.shared.Processed, hub, m)
	subscriber := NewSubscriber(p.broker, hub, p.shared.Availability, clock, SubscriberConfig{
		Channel:        domain.DefaultChannel,
		BackoffMin:     10 * time.Millisecond,
		BackoffMax:     20 * time.Millisecond,
		HealthInterval: time.Second,
		ConnectTimeout: time.Second,
	}, m.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSupervisor(p.shared, hub, poller, subscriber).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("supervisor did not stop")
		}
	})
	return p
}

func (p *pipeline) spool(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	old := time.Now().Add(-time.Second)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestPipeline_SpoolDeliversWhileBrokerDown(t *testing.T) {
	p := startPipeline(t)

	path := p.spool(t, "tournament_42.json", matchUpdated)

	require.Eventually(t, func() bool { return len(p.viewer.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, matchUpdated, p.viewer.received()[0])
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
	assert.False(t, p.shared.Availability.Available())
}

func TestPipeline_BrokerTakesOverMidRun(t *testing.T) {
	p := startPipeline(t)

	require.Eventually(t, func() bool { return p.broker.attemptCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	sub := newFakeSubscription()
	p.broker.queue(sub)
	require.Eventually(t, p.shared.Availability.Available, 2*time.Second, 5*time.Millisecond)

	sub.msgs <- []byte(matchUpdated)
	require.Eventually(t, func() bool { return len(p.viewer.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, matchUpdated, p.viewer.received()[0])

	path := p.spool(t, "tournament_43.json", `{"event":"bracket_updated","payload":{}}`)
	time.Sleep(150 * time.Millisecond)

	assert.FileExists(t, path)
	assert.Len(t, p.viewer.received(), 1)

	// Losing the broker again hands the pending file to the spool.
	sub.errs <- errors.New("connection reset by peer")
	require.Eventually(t, func() bool { return !p.shared.Availability.Available() }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(p.viewer.received()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"event":"bracket_updated","payload":{}}`, p.viewer.received()[1])
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}
