package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/tournamentfeed/internal/broadcast"
	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
)

// handleWebSocket upgrades a viewer, greets it and keeps it registered until
// it disconnects. The greeting is queued before registration so it is always
// the first frame the client sees.
func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	if !s.checkOrigin(c.Request()) {
		s.metrics.WebSocket.Rejected.WithLabelValues("origin").Inc()
		return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
	}

	release, reason, ok := s.limits.Acquire(ip)
	if !ok {
		s.metrics.WebSocket.Rejected.WithLabelValues(reason).Inc()
		return apperrors.UnavailableError("connection limit reached").WithField("reason", reason)
	}
	defer release()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.metrics.WebSocket.Rejected.WithLabelValues("upgrade").Inc()
		slog.DebugContext(ctx, "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	client := broadcast.NewClient(conn, s.clock, s.metrics.WebSocket)
	if err := client.Send(s.greeting); err != nil {
		_ = client.Close()
		return nil
	}
	s.registry.Register(client)

	slog.DebugContext(ctx, "Client connected", "client_id", client.ID(), "remote_ip", ip, "connections", s.registry.Len())

	err = client.ReadLoop()

	s.registry.Unregister(client)
	_ = client.Close()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		slog.DebugContext(ctx, "Client connection error", "client_id", client.ID(), "error", err)
	}
	slog.DebugContext(ctx, "Client disconnected", "client_id", client.ID(), "connections", s.registry.Len())
	return nil
}
