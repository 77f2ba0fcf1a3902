package broadcast

import "errors"

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Connection is one registered client as seen by the registry and engine.
type Connection interface {
	ID() string
	Open() bool
	// Send must not block on network I/O.
	Send(data []byte) error
	// Close drops the connection immediately.
	Close() error
	// Shutdown sends a normal-closure frame with reason before closing.
	Shutdown(reason string)
}
