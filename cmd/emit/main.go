package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/adapter/spool"
	"github.com/pscheid92/tournamentfeed/internal/app"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	"github.com/pscheid92/tournamentfeed/internal/platform/config"
	"github.com/pscheid92/tournamentfeed/internal/platform/logging"
	"github.com/pscheid92/tournamentfeed/internal/producer"
)

func main() {
	var (
		event     = flag.String("event", "", "Event name, e.g. match_updated")
		payload   = flag.String("payload", "{}", "JSON payload")
		spoolOnly = flag.Bool("spool-only", false, "Skip the broker and write straight to the spool directory")
		attempts  = flag.Int("attempts", 3, "Publish attempts before falling back to the spool")
		verbose   = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *event == "" {
		log.Fatal("Event name required (-event)")
	}
	if !json.Valid([]byte(*payload)) {
		log.Fatalf("Payload is not valid JSON: %s", *payload)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, cfg.LogFormat)

	m := metrics.New(metrics.NewRegistry())

	var broker domain.Broker
	if !*spoolOnly {
		broker, err = app.NewBroker(cfg, m.Transport)
		if err != nil {
			log.Fatalf("Failed to create broker: %v", err)
		}
	}
	if broker != nil {
		defer func() { _ = broker.Close() }()
	}

	writer := spool.NewWriter(cfg.SpoolDir, cfg.SpoolPrefix, cfg.SpoolExt, clockwork.NewRealClock())
	emitter := producer.NewEmitter(broker, writer, producer.Options{
		Channel:  cfg.BrokerChannel,
		Attempts: *attempts,
		Backoff:  cfg.BrokerBackoffMin,
	}, m.Spool)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := domain.Envelope{Event: *event, Payload: json.RawMessage(*payload)}
	res, err := emitter.Emit(ctx, env)
	if err != nil {
		slog.Error("Emit failed", "event", *event, "error", err)
		os.Exit(1)
	}

	switch res.Transport {
	case producer.TransportSpool:
		slog.Info("Event spooled", "event", *event, "path", res.Path)
	default:
		slog.Info("Event published", "event", *event, "broker", broker.Name(), "channel", cfg.BrokerChannel)
	}
	fmt.Println(res.Transport)
}
