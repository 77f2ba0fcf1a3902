package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/broadcast"
	"github.com/pscheid92/tournamentfeed/internal/coordination"
	"github.com/pscheid92/tournamentfeed/internal/platform/config"
)

type testServer struct {
	*Server
	clock        *clockwork.FakeClock
	availability *coordination.Availability
	registry     *broadcast.Registry
	metrics      *metrics.Metrics
}

func testConfig() *config.Config {
	return &config.Config{
		Port:          "0",
		Profile:       config.ProfileResilient,
		WebSocketPath: "/ws",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, checks ...HealthCheck) *testServer {
	t.Helper()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	clock := clockwork.NewFakeClockAt(time.Now())
	availability := coordination.NewAvailability(nil)
	registry := broadcast.NewRegistry(m.Hub)

	srv, err := NewServer(cfg, Deps{
		Registry:     registry,
		Availability: availability,
		Metrics:      m,
		Gatherer:     reg,
		Clock:        clock,
		HealthChecks: checks,
	})
	require.NoError(t, err)

	t.Cleanup(func() { registry.CloseAll("test finished") })

	return &testServer{
		Server:       srv,
		clock:        clock,
		availability: availability,
		registry:     registry,
		metrics:      m,
	}
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RoutesRegistered(t *testing.T) {
	ts := newTestServer(t, testConfig())

	for _, path := range []string{"/health/live", "/health/ready", "/version", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, ts.get(path).Code)
		})
	}
	assert.Equal(t, http.StatusNotFound, ts.get("/nope").Code)
}

func TestMetricsEndpoint_ExposesNamespace(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.availability.Set(context.Background(), true, "test")

	rec := ts.get("/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tournamentfeed_hub_connections")
}

func TestShutdown_BeforeStart(t *testing.T) {
	ts := newTestServer(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, ts.Shutdown(ctx))
}
