package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/broadcast"
	"github.com/pscheid92/tournamentfeed/internal/coordination"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	"github.com/pscheid92/tournamentfeed/internal/platform/config"
)

// Deps are the runtime components the HTTP surface reads from.
type Deps struct {
	Registry     *broadcast.Registry
	Availability *coordination.Availability
	Metrics      *metrics.Metrics
	Gatherer     *prometheus.Registry
	Clock        clockwork.Clock
	HealthChecks []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	registry     *broadcast.Registry
	availability *coordination.Availability
	metrics      *metrics.Metrics
	gatherer     *prometheus.Registry
	clock        clockwork.Clock

	upgrader     websocket.Upgrader
	checkOrigin  func(r *http.Request) bool
	limits       *ConnectionLimits
	greeting     []byte
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	greeting, err := domain.ConnectedEnvelope().Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode greeting: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		registry:     deps.Registry,
		availability: deps.Availability,
		metrics:      deps.Metrics,
		gatherer:     deps.Gatherer,
		clock:        deps.Clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origins are checked before the upgrade so rejections are counted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		checkOrigin:  NewCheckOrigin(cfg.Origins()),
		limits:       NewConnectionLimits(cfg.MaxWebSocketConnections, cfg.MaxConnectionsPerIP),
		greeting:     greeting,
		healthChecks: deps.HealthChecks,
		startTime:    deps.Clock.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port, "websocket_path", s.config.WebSocketPath)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests. Upgraded connections are hijacked and
// must be closed through the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
