// Package nats implements the broker port on core NATS subjects.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pscheid92/tournamentfeed/internal/domain"
	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
)

// Broker publishes and subscribes on plain NATS subjects. Library-level
// reconnects are disabled so connection loss reaches the subscriber state
// machine instead of being hidden.
type Broker struct {
	url         string
	dialTimeout time.Duration
	idleTimeout time.Duration

	mu  sync.Mutex
	pub *nats.Conn
}

var _ domain.Broker = (*Broker)(nil)

func NewBroker(url string, dialTimeout, idleTimeout time.Duration) *Broker {
	return &Broker{url: url, dialTimeout: dialTimeout, idleTimeout: idleTimeout}
}

func (b *Broker) Name() string { return "nats" }

func (b *Broker) dial(name string) (*nats.Conn, error) {
	nc, err := nats.Connect(b.url,
		nats.Name(name),
		nats.Timeout(b.dialTimeout),
		nats.NoReconnect(),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

// publisher returns the publish connection, dialing a new one if the
// previous connection was lost.
func (b *Broker) publisher() (*nats.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pub != nil && !b.pub.IsClosed() {
		return b.pub, nil
	}
	nc, err := b.dial("tournamentfeed-publish")
	if err != nil {
		return nil, err
	}
	b.pub = nc
	return nc, nil
}

func (b *Broker) Connect(ctx context.Context, channel string) (domain.Subscription, error) {
	if err := b.Ping(ctx); err != nil {
		return nil, apperrors.TransportConnectError("publish connection", err).WithField("broker", b.Name())
	}

	nc, err := b.dial("tournamentfeed-subscribe")
	if err != nil {
		return nil, apperrors.TransportConnectError("subscribe connection", err).WithField("broker", b.Name())
	}

	sub, err := nc.SubscribeSync(channel)
	if err != nil {
		nc.Close()
		return nil, apperrors.TransportConnectError("subscribe", err).WithField("channel", channel)
	}
	if err := flush(ctx, nc, b.dialTimeout); err != nil {
		nc.Close()
		return nil, apperrors.TransportConnectError("subscribe confirmation", err).WithField("channel", channel)
	}

	slog.Debug("NATS subscription established", "subject", channel, "server", nc.ConnectedUrlRedacted())
	return &subscription{nc: nc, sub: sub, idleTimeout: b.idleTimeout, pingTimeout: b.dialTimeout}, nil
}

func (b *Broker) Publish(ctx context.Context, channel string, data []byte) error {
	nc, err := b.publisher()
	if err != nil {
		return err
	}
	if err := nc.Publish(channel, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	if err := flush(ctx, nc, b.dialTimeout); err != nil {
		return fmt.Errorf("nats flush %s: %w", channel, err)
	}
	return nil
}

// Ping round-trips the publish connection.
func (b *Broker) Ping(ctx context.Context) error {
	nc, err := b.publisher()
	if err != nil {
		return err
	}
	if err := flush(ctx, nc, b.dialTimeout); err != nil {
		return fmt.Errorf("nats ping: %w", err)
	}
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		b.pub.Close()
		b.pub = nil
	}
	return nil
}

// flush round-trips nc. FlushWithContext refuses contexts without a
// deadline, so one is added when ctx has none.
func flush(ctx context.Context, nc *nats.Conn, timeout time.Duration) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return nc.FlushWithContext(ctx)
}

type subscription struct {
	nc          *nats.Conn
	sub         *nats.Subscription
	idleTimeout time.Duration
	pingTimeout time.Duration
}

// Receive waits for the next message. After idleTimeout without traffic it
// round-trips the subscriber connection and keeps waiting.
func (s *subscription) Receive(ctx context.Context) ([]byte, error) {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, s.idleTimeout)
		msg, err := s.sub.NextMsgWithContext(waitCtx)
		cancel()

		if err == nil {
			return msg.Data, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil, fmt.Errorf("%w: %w", domain.ErrBrokerClosed, err)
			}
			return nil, fmt.Errorf("nats receive: %w", err)
		}
		if err := flush(ctx, s.nc, s.pingTimeout); err != nil {
			return nil, fmt.Errorf("nats subscriber ping: %w", err)
		}
	}
}

func (s *subscription) Close() error {
	_ = s.sub.Unsubscribe()
	s.nc.Close()
	return nil
}
