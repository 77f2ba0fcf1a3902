package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/adapter/httpserver"
	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/adapter/spool"
	"github.com/pscheid92/tournamentfeed/internal/app"
	"github.com/pscheid92/tournamentfeed/internal/broadcast"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	"github.com/pscheid92/tournamentfeed/internal/platform/config"
	"github.com/pscheid92/tournamentfeed/internal/platform/logging"
	"github.com/pscheid92/tournamentfeed/internal/platform/version"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupBroker(cfg *config.Config, m *metrics.TransportMetrics) domain.Broker {
	broker, err := app.NewBroker(cfg, m)
	if err != nil {
		slog.Error("Failed to create broker", "kind", cfg.BrokerKind, "error", err)
		os.Exit(1)
	}
	return broker
}

func setupSubscriber(cfg *config.Config, broker domain.Broker, hub *broadcast.Hub, shared *app.Shared, clock clockwork.Clock, m *metrics.TransportMetrics) *app.Subscriber {
	sub := app.NewSubscriber(broker, hub, shared.Availability, clock, app.SubscriberConfig{
		Channel:        cfg.BrokerChannel,
		BackoffMin:     cfg.BrokerBackoffMin,
		BackoffMax:     cfg.BrokerBackoffMax,
		HealthInterval: cfg.BrokerHealthInterval,
		ConnectTimeout: cfg.BrokerConnectTimeout,
	}, m)

	if cfg.IsStrict() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.BrokerConnectTimeout)
		defer cancel()
		if err := sub.ConnectInitial(ctx); err != nil {
			slog.Error("Broker unreachable at startup", "broker", broker.Name(), "profile", cfg.Profile, "error", err)
			os.Exit(1)
		}
	}
	return sub
}

func healthChecks(cfg *config.Config, poller *spool.Poller, broker domain.Broker) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "spool_dir", Check: poller.CheckDir},
	}
	if broker != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:     broker.Name(),
			Check:    broker.Ping,
			Optional: !cfg.IsStrict(),
		})
	}
	return checks
}

func runGracefulShutdown(srv *httpserver.Server, shared *app.Shared, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancel()
		closed := shared.Registry.CloseAll("Server shutting down")
		slog.Info("Closed websocket clients", "count", closed)

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port, "profile", cfg.Profile)

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	shared := app.NewShared(m)

	engine := broadcast.NewEngine(shared.Registry, clock, m.Hub)
	hub := broadcast.NewHub(engine, m.Hub, 0)

	broker := setupBroker(cfg, m.Transport)
	if broker != nil {
		defer func() { _ = broker.Close() }()
	}

	var subscriber app.Runner
	if broker != nil {
		subscriber = setupSubscriber(cfg, broker, hub, shared, clock, m.Transport)
	}

	poller := spool.NewPoller(spool.Config{
		Dir:          cfg.SpoolDir,
		Prefix:       cfg.SpoolPrefix,
		Ext:          cfg.SpoolExt,
		PollInterval: cfg.SpoolPollInterval,
		Grace:        cfg.SpoolGrace,
	}, clock, shared.Availability, shared.Processed, hub, m)
	if err := poller.EnsureDir(); err != nil {
		slog.Error("Failed to prepare spool directory", "dir", cfg.SpoolDir, "error", err)
		os.Exit(1)
	}

	srv, err := httpserver.NewServer(cfg, httpserver.Deps{
		Registry:     shared.Registry,
		Availability: shared.Availability,
		Metrics:      m,
		Gatherer:     reg,
		Clock:        clock,
		HealthChecks: healthChecks(cfg, poller, broker),
	})
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisor := app.NewSupervisor(shared, hub, poller, subscriber)
	supervised := make(chan error, 1)
	go func() { supervised <- supervisor.Run(ctx) }()

	done := runGracefulShutdown(srv, shared, cancel)

	go func() {
		if err := <-supervised; err != nil {
			slog.Error("Transport supervisor failed", "error", err)
			os.Exit(1)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
