package broadcast

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
)

const readLimit = 64 * 1024

// Client is a websocket Connection. Viewers never send anything meaningful;
// ReadLoop only keeps pongs and close frames flowing.
type Client struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	writer     *clientWriter
}

func NewClient(conn *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Client {
	return &Client{
		id:         uuid.NewString(),
		remoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		writer:     newClientWriter(conn, clock, m),
	}
}

func (c *Client) ID() string         { return c.id }
func (c *Client) RemoteAddr() string { return c.remoteAddr }
func (c *Client) Open() bool         { return c.writer.alive() }

func (c *Client) Send(data []byte) error {
	return c.writer.enqueue(data)
}

func (c *Client) Close() error {
	c.writer.stop()
	return nil
}

func (c *Client) Shutdown(reason string) {
	c.writer.stopGraceful(reason)
}

// ReadLoop discards client frames until the peer disconnects, the pong
// deadline passes or the connection is closed locally.
func (c *Client) ReadLoop() error {
	c.conn.SetReadLimit(readLimit)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}
