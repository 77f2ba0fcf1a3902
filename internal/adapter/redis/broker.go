package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
	"github.com/pscheid92/tournamentfeed/internal/domain"
	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
)

const breakerDelay = 5 * time.Second

// Broker is the Redis pub/sub implementation of domain.Broker. It keeps two
// clients: one for PUBLISH and PING, one dedicated to the subscription.
type Broker struct {
	pub         *goredis.Client
	sub         *goredis.Client
	breaker     *PublishBreakerHook
	idleTimeout time.Duration
}

var _ domain.Broker = (*Broker)(nil)

// NewBroker builds both clients. idleTimeout is how long a subscription may
// stay silent before it pings the server.
func NewBroker(redisURL string, dialTimeout, idleTimeout time.Duration, m *metrics.TransportMetrics) (*Broker, error) {
	pub, err := NewClient(redisURL, dialTimeout, m)
	if err != nil {
		return nil, apperrors.ConfigError("invalid BROKER_URL", err)
	}
	sub, err := NewClient(redisURL, dialTimeout, m)
	if err != nil {
		_ = pub.Close()
		return nil, apperrors.ConfigError("invalid BROKER_URL", err)
	}

	breaker := NewPublishBreakerHook(breakerDelay, m)
	pub.AddHook(breaker)

	return &Broker{pub: pub, sub: sub, breaker: breaker, idleTimeout: idleTimeout}, nil
}

func (b *Broker) Name() string { return "redis" }

// Connect checks the publish connection, then subscribes and waits for the
// server's confirmation.
func (b *Broker) Connect(ctx context.Context, channel string) (domain.Subscription, error) {
	if err := ping(ctx, b.pub); err != nil {
		return nil, apperrors.TransportConnectError("publish connection", err).WithField("broker", b.Name())
	}

	ps := b.sub.Subscribe(ctx)
	if err := ps.Subscribe(ctx, channel); err != nil {
		_ = ps.Close()
		return nil, apperrors.TransportConnectError("subscribe", err).WithField("channel", channel)
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperrors.TransportConnectError("subscribe confirmation", err).WithField("channel", channel)
	}

	return newSubscription(ps, b.idleTimeout), nil
}

func (b *Broker) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return nil
}

// Ping checks the publish connection.
func (b *Broker) Ping(ctx context.Context) error {
	return ping(ctx, b.pub)
}

func (b *Broker) Close() error {
	pubErr := b.pub.Close()
	subErr := b.sub.Close()
	if pubErr != nil {
		return fmt.Errorf("close publish client: %w", pubErr)
	}
	if subErr != nil {
		return fmt.Errorf("close subscribe client: %w", subErr)
	}
	return nil
}
