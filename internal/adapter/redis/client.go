package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
)

// NewClient parses a redis:// URL into a go-redis client with metrics
// instrumentation. It does not dial; go-redis connects lazily.
func NewClient(redisURL string, dialTimeout time.Duration, m *metrics.TransportMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if dialTimeout > 0 {
		opts.DialTimeout = dialTimeout
	}
	opts.MaxRetries = -1

	client := goredis.NewClient(opts)
	client.AddHook(NewMetricsHook(m))
	return client, nil
}

// ping is used by tests and the broker alike.
func ping(ctx context.Context, client *goredis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
