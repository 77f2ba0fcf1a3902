package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
)

// Profiles select how the process reacts to broker trouble at startup.
const (
	// ProfileResilient treats the broker as optional; the spool carries traffic
	// whenever the broker is missing or unreachable.
	ProfileResilient = "resilient"
	// ProfileStrict requires BROKER_URL and a successful initial connection.
	ProfileStrict = "strict"
)

const (
	BrokerRedis = "redis"
	BrokerNATS  = "nats"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	Profile   string `env:"PROFILE" default:"resilient"`

	BrokerKind           string        `env:"BROKER_KIND" default:"redis"`
	BrokerURL            string        `env:"BROKER_URL"`
	BrokerChannel        string        `env:"BROKER_CHANNEL" default:"tournament_events"`
	BrokerBackoffMin     time.Duration `env:"BROKER_BACKOFF_MIN" default:"100ms"`
	BrokerBackoffMax     time.Duration `env:"BROKER_BACKOFF_MAX" default:"2s"`
	BrokerHealthInterval time.Duration `env:"BROKER_HEALTH_INTERVAL" default:"5s"`
	BrokerConnectTimeout time.Duration `env:"BROKER_CONNECT_TIMEOUT" default:"5s"`

	SpoolDir          string        `env:"SPOOL_DIR" default:"./events"`
	SpoolPrefix       string        `env:"SPOOL_PREFIX" default:"tournament_"`
	SpoolExt          string        `env:"SPOOL_EXT" default:".json"`
	SpoolPollInterval time.Duration `env:"SPOOL_POLL_INTERVAL" default:"500ms"`
	SpoolGrace        time.Duration `env:"SPOOL_GRACE" default:"50ms"`

	WebSocketPath  string `env:"WS_PATH" default:"/ws/tournaments"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"0"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"0"`
	ConnectionRate          float64 `env:"CONNECTION_RATE" default:"0"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, apperrors.ConfigError("failed to load environment variables", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// BrokerEnabled reports whether a primary transport should be started.
func (c *Config) BrokerEnabled() bool {
	return c.BrokerURL != ""
}

// IsStrict reports whether broker failures are fatal at startup.
func (c *Config) IsStrict() bool {
	return c.Profile == ProfileStrict
}

// Origins returns the parsed ALLOWED_ORIGINS list; empty means allow all.
func (c *Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	switch cfg.Profile {
	case ProfileResilient, ProfileStrict:
	default:
		return invalid("PROFILE must be 'resilient' or 'strict', got %q", cfg.Profile)
	}

	switch cfg.BrokerKind {
	case BrokerRedis, BrokerNATS:
	default:
		return invalid("BROKER_KIND must be 'redis' or 'nats', got %q", cfg.BrokerKind)
	}

	if cfg.Profile == ProfileStrict && cfg.BrokerURL == "" {
		return invalid("BROKER_URL is required")
	}
	if cfg.BrokerURL != "" {
		if err := validateBrokerURL(cfg.BrokerKind, cfg.BrokerURL); err != nil {
			return err
		}
	}

	if cfg.BrokerChannel == "" {
		return invalid("BROKER_CHANNEL must not be empty")
	}
	if cfg.BrokerBackoffMin <= 0 || cfg.BrokerBackoffMax < cfg.BrokerBackoffMin {
		return invalid("BROKER_BACKOFF_MIN must be positive and not exceed BROKER_BACKOFF_MAX")
	}
	if cfg.BrokerHealthInterval <= 0 {
		return invalid("BROKER_HEALTH_INTERVAL must be positive")
	}
	if cfg.BrokerConnectTimeout <= 0 {
		return invalid("BROKER_CONNECT_TIMEOUT must be positive")
	}

	if cfg.SpoolDir == "" {
		return invalid("SPOOL_DIR is required")
	}
	if cfg.SpoolPrefix == "" || strings.ContainsRune(cfg.SpoolPrefix, filepath.Separator) {
		return invalid("SPOOL_PREFIX must be a non-empty file name prefix")
	}
	if !strings.HasPrefix(cfg.SpoolExt, ".") {
		return invalid("SPOOL_EXT must start with '.'")
	}
	if cfg.SpoolPollInterval <= 0 {
		return invalid("SPOOL_POLL_INTERVAL must be positive")
	}
	if cfg.SpoolGrace < 0 {
		return invalid("SPOOL_GRACE must not be negative")
	}

	if !strings.HasPrefix(cfg.WebSocketPath, "/") {
		return invalid("WS_PATH must start with '/'")
	}
	if cfg.MaxWebSocketConnections < 0 || cfg.MaxConnectionsPerIP < 0 || cfg.ConnectionRate < 0 {
		return invalid("connection limits must not be negative")
	}
	if cfg.ConnectionRate > 0 && cfg.ConnectionBurst < 1 {
		return invalid("CONNECTION_BURST must be at least 1 when CONNECTION_RATE is set")
	}

	return nil
}

func validateBrokerURL(kind, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return apperrors.ConfigError("BROKER_URL is not a valid URL", err)
	}
	switch kind {
	case BrokerRedis:
		if u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix" {
			return invalid("BROKER_URL must use redis://, rediss:// or unix:// for BROKER_KIND=redis")
		}
	case BrokerNATS:
		if u.Scheme != "nats" && u.Scheme != "tls" && u.Scheme != "ws" && u.Scheme != "wss" {
			return invalid("BROKER_URL must use nats://, tls://, ws:// or wss:// for BROKER_KIND=nats")
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperrors.ConfigError(fmt.Sprintf(format, args...), nil)
}
