// Package channel provides a reconnecting duplex message channel over a
// WebSocket connection. A channel delivers binary audio frames best-effort:
// frames sent while the connection is down are dropped, never queued across
// a reconnect, because live audio is a lossy stream rather than a log.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tapcast/tapcast/internal/types"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 5 * time.Second
	maxMessageSize   = 512 * 1024
	// sendQueueSize bounds the write pump queue. Roughly eight seconds of
	// audio; overflow drops the newest frame instead of blocking the tick.
	sendQueueSize = 32
)

// ErrNotOpen is returned by Open when the channel was already closed.
var ErrNotOpen = errors.New("channel is closed")

// Config holds channel configuration. Zero values fall back to the
// defaults in internal/types.
type Config struct {
	// URL is the ws:// or wss:// endpoint address.
	URL string

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration

	// RetryDelay is the fixed wait between reconnection attempts.
	RetryDelay time.Duration
}

// Channel wraps a single logical WebSocket connection with automatic
// recovery. After a successful Open, the channel reconnects on its own
// whenever the transport drops, until Close is called.
type Channel struct {
	url            string
	connectTimeout time.Duration
	retryDelay     time.Duration

	mu    sync.RWMutex
	conn  *websocket.Conn
	state types.ChannelState

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	onMessage func([]byte)
	onState   func(types.ChannelState)
}

// New creates a channel for the given configuration. The connection is not
// established until Open is called.
func New(cfg Config) *Channel {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = types.ConnectTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = types.ReconnectDelay
	}
	return &Channel{
		url:            cfg.URL,
		connectTimeout: connectTimeout,
		retryDelay:     retryDelay,
		state:          types.ChannelConnecting,
		send:           make(chan []byte, sendQueueSize),
		done:           make(chan struct{}),
	}
}

// ValidateURL reports whether raw is a well-formed socket URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse endpoint URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("endpoint host is empty")
	}
	return nil
}

// OnMessage registers the handler invoked for every message received from
// the endpoint. At most one handler is active; registration must happen
// before Open.
func (c *Channel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnStateChange registers the handler invoked on every state transition.
// At most one handler is active; registration must happen before Open.
func (c *Channel) OnStateChange(fn func(types.ChannelState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current channel state.
func (c *Channel) State() types.ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Open establishes the initial connection, blocking until the transport is
// ready or the connect timeout elapses. On success the channel manages its
// own lifecycle until Close. An initial connection failure leaves the
// channel closed; the automatic retry loop only guards established
// sessions.
func (c *Channel) Open(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrNotOpen
	default:
	}

	conn, err := c.dial(ctx)
	if err != nil {
		_ = c.Close()
		return err
	}

	go c.run(conn)
	return nil
}

// Send queues one message for delivery. It never blocks and never returns
// an error: if the channel is not open, or the write queue is full, the
// message is dropped. Callers that care about delivery must check State
// first; this channel is best-effort by contract.
func (c *Channel) Send(msg []byte) {
	if c.State() != types.ChannelOpen {
		return
	}
	select {
	case c.send <- msg:
	default:
		slog.Debug("send queue full, dropping frame", "bytes", len(msg))
	}
}

// Close tears the channel down. Idempotent; guarantees that no further
// reconnection attempts happen after it returns.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			_ = conn.Close()
		}

		c.setState(types.ChannelClosed)
	})
	return nil
}

// dial performs one connection attempt.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	c.setState(types.ChannelConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// run owns the connection lifecycle: pump messages until the transport
// drops, then reconnect at a fixed interval until it comes back or the
// channel is closed.
func (c *Channel) run(conn *websocket.Conn) {
	for {
		c.mu.Lock()
		select {
		case <-c.done:
			// Close raced the connect; the conn was never published, so
			// Close could not reach it.
			c.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		c.conn = conn
		c.mu.Unlock()
		c.setState(types.ChannelOpen)

		writerDone := make(chan struct{})
		go c.writePump(conn, writerDone)
		c.readPump(conn)
		close(writerDone)
		_ = conn.Close()

		select {
		case <-c.done:
			return
		default:
		}

		c.setState(types.ChannelReconnecting)
		slog.Info("channel dropped, reconnecting", "url", c.url, "delay", c.retryDelay)

		var err error
		conn, err = c.redial()
		if err != nil {
			// Only happens when Close raced the retry loop.
			return
		}

		// Frames queued before the drop must not replay on the new
		// connection.
		c.drainSend()
	}
}

// drainSend discards everything in the write queue.
func (c *Channel) drainSend() {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// redial retries the connection at the fixed interval until it succeeds or
// the channel is closed.
func (c *Channel) redial() (*websocket.Conn, error) {
	for {
		select {
		case <-c.done:
			return nil, ErrNotOpen
		case <-time.After(c.retryDelay):
		}

		conn, err := c.dial(context.Background())
		if err == nil {
			slog.Info("channel reconnected", "url", c.url)
			return conn, nil
		}
		slog.Warn("reconnect attempt failed", "url", c.url, "error", err)
		c.setState(types.ChannelReconnecting)
	}
}

// readPump delivers inbound messages to the registered handler until the
// connection fails.
func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("channel read error", "error", err)
			}
			return
		}

		c.mu.RLock()
		handler := c.onMessage
		c.mu.RUnlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// writePump writes queued messages to the connection until it fails or the
// channel winds down.
func (c *Channel) writePump(conn *websocket.Conn, writerDone <-chan struct{}) {
	for {
		select {
		case <-writerDone:
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				slog.Warn("channel write error", "error", err)
				return
			}
		}
	}
}

// setState records a state transition and notifies the registered handler.
func (c *Channel) setState(s types.ChannelState) {
	c.mu.Lock()
	// Closed is terminal. A pump or retry goroutine that loses the race
	// with Close must not resurrect the channel.
	if c.state == s || c.state == types.ChannelClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(s)
	}
}
