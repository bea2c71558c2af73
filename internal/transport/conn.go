package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn implements Conn over gorilla/websocket.
type wsConn struct {
	opts   Options
	logger *slog.Logger

	ws *websocket.Conn

	messages chan []byte
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// Termination
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dialer returns a DialFunc that establishes WebSocket connections with
// the given options.
func Dialer(opts Options) DialFunc {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MessageBuffer <= 0 {
		opts.MessageBuffer = DefaultMessageBuffer
	}

	return func(ctx context.Context, url string) (Conn, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		}

		header := opts.Header
		if opts.HeaderFunc != nil {
			header = opts.HeaderFunc()
		}

		ws, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, err
		}

		c := &wsConn{
			opts:     opts,
			logger:   opts.Logger,
			ws:       ws,
			messages: make(chan []byte, opts.MessageBuffer),
			done:     make(chan struct{}),
		}

		if opts.ReadLimit > 0 {
			ws.SetReadLimit(opts.ReadLimit)
		}
		ws.SetReadDeadline(time.Now().Add(opts.PongWait))

		// Server pings us: answer with pong and extend the read deadline.
		ws.SetPingHandler(func(data string) error {
			ws.SetReadDeadline(time.Now().Add(opts.PongWait))
			return ws.WriteControl(
				websocket.PongMessage,
				[]byte(data),
				time.Now().Add(time.Second),
			)
		})

		// Server answers our pings: extend the read deadline.
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
		})

		go c.readLoop()
		go c.pingLoop()

		c.logger.Debug("websocket connected", "url", url)
		return c, nil
	}
}

// Send writes one payload, serialized under the write mutex.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Messages() <-chan []byte {
	return c.messages
}

func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

func (c *wsConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close requests a normal closure and terminates the connection.
func (c *wsConn) Close() error {
	c.terminate(nil, true)
	return nil
}

// terminate records the cause, signals Done, and closes the socket.
// Only the first call wins.
func (c *wsConn) terminate(cause error, sendClose bool) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		if sendClose {
			c.writeMu.Lock()
			c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			c.writeMu.Unlock()
		}

		close(c.done)
		c.ws.Close()
	})
}

// readLoop pumps inbound frames into the messages channel. It owns the
// channel and closes it on exit.
func (c *wsConn) readLoop() {
	defer close(c.messages)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				err = ErrStaleConnection
			}
			// A locally requested close surfaces here as a read error on
			// the dead socket; terminate is a no-op in that case.
			c.terminate(err, false)
			return
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		default:
			c.logger.Warn("inbound buffer full, dropping message")
		}
	}
}

// pingLoop keeps the connection alive and lets dead peers surface as
// read deadline errors.
func (c *wsConn) pingLoop() {
	if c.opts.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(
				websocket.PingMessage,
				[]byte("keepalive"),
				time.Now().Add(c.opts.WriteTimeout),
			)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
