package spool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/coordination"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	"github.com/pscheid92/tournamentfeed/internal/platform/correlation"
	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
)

const transportName = "spool"

type Config struct {
	Dir          string
	Prefix       string
	Ext          string
	PollInterval time.Duration
	Grace        time.Duration
}

// ScanResult counts what one pass over the directory did.
type ScanResult struct {
	Consumed  int
	Deferred  int
	Abandoned int
}

// Poller delivers spool files to the sink while the primary transport is down.
type Poller struct {
	cfg          Config
	clock        clockwork.Clock
	availability *coordination.Availability
	processed    *coordination.FileSet
	sink         domain.EventSink
	spool        *metrics.SpoolMetrics
	transport    *metrics.TransportMetrics
}

func NewPoller(cfg Config, clock clockwork.Clock, availability *coordination.Availability, processed *coordination.FileSet, sink domain.EventSink, m *metrics.Metrics) *Poller {
	return &Poller{
		cfg:          cfg,
		clock:        clock,
		availability: availability,
		processed:    processed,
		sink:         sink,
		spool:        m.Spool,
		transport:    m.Transport,
	}
}

// EnsureDir creates the spool directory if it does not exist.
func (p *Poller) EnsureDir() error {
	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return apperrors.SpoolIOError("create spool directory", err).WithField("dir", p.cfg.Dir)
	}
	return nil
}

// CheckDir reports whether the spool directory exists and is writable.
func (p *Poller) CheckDir(context.Context) error {
	f, err := os.CreateTemp(p.cfg.Dir, ".probe-*")
	if err != nil {
		return apperrors.SpoolIOError("spool directory not writable", err).WithField("dir", p.cfg.Dir)
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return nil
}

// Run scans on every poll interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.EnsureDir(); err != nil {
		return err
	}

	slog.Info("Spool poller started", "dir", p.cfg.Dir, "interval", p.cfg.PollInterval, "grace", p.cfg.Grace)

	ticker := p.clock.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Spool poller stopped")
			return nil
		case <-ticker.Chan():
			if _, err := p.Scan(ctx); err != nil {
				slog.Warn("Spool scan failed", asAttrs(err)...)
			}
		}
	}
}

// Scan makes one pass over the spool directory. It does nothing while the
// primary transport is available. Files younger than the grace window are
// released and picked up by a later scan; every other matching file is taken
// exactly once, whether or not it can be delivered.
func (p *Poller) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	if p.availability.Available() {
		p.spool.Scans.WithLabelValues("skipped").Inc()
		return result, nil
	}
	p.spool.Scans.WithLabelValues("ran").Inc()

	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return result, apperrors.SpoolIOError("list spool directory", err).WithField("dir", p.cfg.Dir)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !p.matches(name) {
			continue
		}
		if p.availability.Available() {
			slog.DebugContext(ctx, "Primary transport back, stopping spool scan", "remaining_from", name)
			break
		}
		if !p.processed.Mark(name) {
			continue
		}

		fileCtx := correlation.Begin(ctx, transportName)
		switch err := p.consume(fileCtx, entry); {
		case err == nil:
			result.Consumed++
			p.spool.Files.WithLabelValues("consumed").Inc()
		case errors.Is(err, errTooYoung):
			p.processed.Unmark(name)
			result.Deferred++
			p.spool.Files.WithLabelValues("deferred").Inc()
		default:
			result.Abandoned++
			p.spool.Files.WithLabelValues("abandoned").Inc()
			slog.WarnContext(fileCtx, "Abandoning spool file", append([]any{"file", name}, asAttrs(err)...)...)
		}
	}

	if result != (ScanResult{}) {
		slog.DebugContext(ctx, "Spool scan complete",
			"consumed", result.Consumed,
			"deferred", result.Deferred,
			"abandoned", result.Abandoned,
		)
	}
	return result, nil
}

func (p *Poller) matches(name string) bool {
	return strings.HasPrefix(name, p.cfg.Prefix) && strings.HasSuffix(name, p.cfg.Ext)
}

var errTooYoung = errors.New("spool file inside grace window")

func (p *Poller) consume(ctx context.Context, entry os.DirEntry) error {
	path := filepath.Join(p.cfg.Dir, entry.Name())

	info, err := entry.Info()
	if err != nil {
		return apperrors.SpoolIOError("stat spool file", err)
	}
	if p.clock.Since(info.ModTime()) < p.cfg.Grace {
		return errTooYoung
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.SpoolIOError("read spool file", err)
	}

	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		p.transport.DecodeErrors.WithLabelValues(transportName).Inc()
		return apperrors.DecodeError("decode spool file", err)
	}
	p.transport.MessagesReceived.WithLabelValues(transportName).Inc()

	if err := p.sink.Deliver(ctx, env); err != nil {
		return apperrors.DeliveryError("hand envelope to hub", err).WithField("event", env.Event)
	}

	if err := os.Remove(path); err != nil {
		slog.WarnContext(ctx, "Delivered spool file could not be deleted", "file", entry.Name(), "error", err)
	}
	slog.DebugContext(ctx, "Spool file delivered", "file", entry.Name(), "event", env.Event)
	return nil
}

func asAttrs(err error) []any {
	return apperrors.AsStructuredError(err).LogAttrs()
}
