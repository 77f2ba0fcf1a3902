package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter throttles new websocket handshakes per client IP.
func newRateLimiter(ratePerSecond float64, burst int, m *metrics.WebSocketMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			m.Rejected.WithLabelValues("rate").Inc()
			// The rate limiter hands this straight to c.Error, bypassing
			// ErrorHandlingMiddleware, so the response is written here.
			return HandleError(c, apperrors.RateLimitedError("connection rate exceeded").WithField("remote_ip", identifier))
		},
	})
}
