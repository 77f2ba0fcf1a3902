package app

import (
	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/adapter/nats"
	"github.com/pscheid92/tournamentfeed/internal/adapter/redis"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	"github.com/pscheid92/tournamentfeed/internal/platform/config"
)

// NewBroker builds the configured primary transport. It returns nil when no
// BROKER_URL is set. Nothing is dialed until Connect or Publish.
func NewBroker(cfg *config.Config, m *metrics.TransportMetrics) (domain.Broker, error) {
	if !cfg.BrokerEnabled() {
		return nil, nil
	}

	switch cfg.BrokerKind {
	case config.BrokerNATS:
		return nats.NewBroker(cfg.BrokerURL, cfg.BrokerConnectTimeout, cfg.BrokerHealthInterval), nil
	default:
		b, err := redis.NewBroker(cfg.BrokerURL, cfg.BrokerConnectTimeout, cfg.BrokerHealthInterval, m)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}
