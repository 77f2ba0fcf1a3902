package domain

import "context"

// DefaultChannel is the broker channel tournament events are published on.
const DefaultChannel = "tournament_events"

// EventSink accepts decoded envelopes from a transport.
type EventSink interface {
	Deliver(ctx context.Context, env Envelope) error
}

// Broker opens the two logical broker connections (publish and subscribe)
// and subscribes to a channel.
type Broker interface {
	Name() string
	Connect(ctx context.Context, channel string) (Subscription, error)
	Publish(ctx context.Context, channel string, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a live subscription on the dedicated subscriber connection.
// Receive blocks until a payload arrives, the connection fails or ctx ends.
// Any error means the subscription is dead and must be closed.
type Subscription interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
