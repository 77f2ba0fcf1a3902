package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/tournamentfeed/internal/domain"
)

type subscription struct {
	ps          *goredis.PubSub
	idleTimeout time.Duration
}

func newSubscription(ps *goredis.PubSub, idleTimeout time.Duration) *subscription {
	return &subscription{ps: ps, idleTimeout: idleTimeout}
}

// Receive returns the next published payload. A read that stays idle for
// idleTimeout triggers a PING on the subscriber connection; a failed ping is
// returned as an error like any other.
func (s *subscription) Receive(ctx context.Context) ([]byte, error) {
	for {
		msg, err := s.ps.ReceiveTimeout(ctx, s.idleTimeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !isTimeout(err) {
				return nil, fmt.Errorf("redis receive: %w", err)
			}
			if err := s.ps.Ping(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("redis subscriber ping: %w", err)
			}
			continue
		}

		switch m := msg.(type) {
		case *goredis.Message:
			return []byte(m.Payload), nil
		case *goredis.Subscription:
			if m.Kind == "unsubscribe" && m.Count == 0 {
				return nil, domain.ErrBrokerClosed
			}
		case *goredis.Pong:
		}
	}
}

func (s *subscription) Close() error {
	return s.ps.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
