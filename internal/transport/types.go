package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Connection errors.
var (
	// ErrConnClosed is returned when sending on a terminated connection.
	ErrConnClosed = errors.New("connection closed")

	// ErrStaleConnection indicates no pong arrived within the pong wait.
	ErrStaleConnection = errors.New("connection stale: no pong received")
)

// Conn is one established connection to the gateway. A Conn is
// single-use: once Done is closed it never becomes live again, and the
// caller dials a fresh one.
type Conn interface {
	// Send writes one raw payload to the peer.
	Send(data []byte) error

	// Messages returns the inbound payload channel. It is closed when
	// the connection terminates.
	Messages() <-chan []byte

	// Done is closed when the connection has terminated for any reason.
	Done() <-chan struct{}

	// Err returns the termination cause after Done is closed; nil for a
	// locally requested close.
	Err() error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// DialFunc establishes a connection to the given gateway URL. The
// session core depends only on this shape, so tests substitute fakes.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Options configures the WebSocket dialer.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration // how often we ping the gateway
	PongWait         time.Duration // read deadline extended on each pong
	ReadLimit        int64         // max inbound frame size, 0 = no limit
	MessageBuffer    int           // inbound channel capacity
	Header           http.Header   // extra handshake headers (auth)
	Logger           *slog.Logger

	// HeaderFunc computes handshake headers per dial and takes
	// precedence over Header. Timestamped auth signatures must be
	// regenerated for every reconnect, not captured once at startup.
	HeaderFunc func() http.Header
}

// Default transport settings.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultPongWait         = 40 * time.Second
	DefaultReadLimit        = 1 << 20 // 1 MiB
	DefaultMessageBuffer    = 256
)

// DefaultOptions returns standard dialer settings.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		PingInterval:     DefaultPingInterval,
		PongWait:         DefaultPongWait,
		ReadLimit:        DefaultReadLimit,
		MessageBuffer:    DefaultMessageBuffer,
	}
}
