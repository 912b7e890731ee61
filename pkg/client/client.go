package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalgrid-dev/signalgrid/pkg/protocol"
	"github.com/signalgrid-dev/signalgrid/pkg/signal"
)

// Client errors.
var (
	// ErrClosed is returned when operating on a closed client.
	ErrClosed = errors.New("client: closed")

	// ErrHandshakeFailed is returned when the server does not confirm the
	// connection before the handshake timeout.
	ErrHandshakeFailed = errors.New("client: handshake failed")
)

// Status reflects current transport liveness.
type Status struct {
	Connected bool
}

// Handler consumes one inbound envelope payload for a subscribed signal.
type Handler func(payload json.RawMessage, emittedAt time.Time)

// Config configures Dial. Only URL is required.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://host:8090/ws".
	URL string

	// Header carries handshake credentials (Authorization, cookies) for
	// the server's authentication collaborator.
	Header http.Header

	// HandshakeTimeout bounds dialing plus the wait for the server's
	// connected confirmation. Default 10s.
	HandshakeTimeout time.Duration

	// PingInterval is how often the client sends protocol-level pings.
	// Default 15s.
	PingInterval time.Duration

	// OnDisconnect runs once when the transport is lost or closed, with
	// the causing error (nil on clean Close).
	OnDisconnect func(error)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is one physical connection and its subscription table.
type Client struct {
	config Config
	ws     *websocket.Conn

	userID      string
	connectedAt time.Time

	mu   sync.RWMutex
	subs map[string]map[uint64]Handler
	seq  atomic.Uint64

	writeMu   sync.Mutex
	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}

	disconnectOnce sync.Once

	logger *slog.Logger
}

// Dial opens a connection and waits for the server's connected
// confirmation. The returned client is authenticated and receiving.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, config.URL, config.Header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: unauthorized", ErrHandshakeFailed)
		}
		return nil, fmt.Errorf("client: dial %s: %w", config.URL, err)
	}

	c := &Client{
		config: config,
		ws:     ws,
		subs:   make(map[string]map[uint64]Handler),
		done:   make(chan struct{}),
		logger: config.Logger.With("component", "client"),
	}

	// The handshake completes only when the server names the user.
	ws.SetReadDeadline(time.Now().Add(config.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	conn, ok := msg.(protocol.Connected)
	if !ok {
		ws.Close()
		return nil, fmt.Errorf("%w: expected connected, got %T", ErrHandshakeFailed, msg)
	}

	c.userID = conn.UserID
	c.connectedAt = time.Now()
	c.connected.Store(true)
	ws.SetReadDeadline(time.Time{})

	go c.readLoop()
	go c.pingLoop()

	c.logger.Debug("connected", "user_id", c.userID)
	return c, nil
}

// UserID returns the identity the server confirmed at handshake.
func (c *Client) UserID() string { return c.userID }

// Status returns current transport liveness.
func (c *Client) Status() Status {
	return Status{Connected: c.connected.Load()}
}

// Subscribe registers a callback for a signal id and returns its
// unsubscribe function, safe to call repeatedly and after connection loss.
// Multiple subscribers per signal id each get every matching envelope.
func (c *Client) Subscribe(signalID string, h Handler) func() {
	id := c.seq.Add(1)

	c.mu.Lock()
	if c.subs[signalID] == nil {
		c.subs[signalID] = make(map[uint64]Handler)
	}
	c.subs[signalID][id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[signalID], id)
			if len(c.subs[signalID]) == 0 {
				delete(c.subs, signalID)
			}
			c.mu.Unlock()
		})
	}
}

// On subscribes a typed callback: envelopes are decoded and validated
// against the signal's schema before the callback runs; payloads that do
// not conform are dropped with a log line.
func On[T any](c *Client, s *signal.Signal[T], fn func(T)) func() {
	return c.Subscribe(s.ID(), func(payload json.RawMessage, _ time.Time) {
		value, err := s.Decode(payload)
		if err != nil {
			c.logger.Warn("dropping non-conforming payload",
				"signal_id", s.ID(), "error", err)
			return
		}
		fn(value)
	})
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.connected.Store(false)
	close(c.done)
	c.ws.Close()
	c.disconnectOnce.Do(func() {
		if c.config.OnDisconnect != nil {
			c.config.OnDisconnect(cause)
		}
	})
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("transport lost", "error", err)
			}
			c.shutdown(err)
			return
		}

		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			c.logger.Warn("dropping malformed server message", "error", err)
			continue
		}

		switch m := msg.(type) {
		case protocol.Envelope:
			c.dispatch(m)
		case protocol.Pong:
			// Liveness confirmation; nothing to do.
		case protocol.ErrorMessage:
			c.logger.Warn("server reported error", "message", m.Message)
		case protocol.Connected:
			c.logger.Warn("unexpected connected message mid-stream")
		}
	}
}

// dispatch fans one envelope out to the signal's subscribers. Envelopes
// emitted before this connection's handshake belong to a superseded
// transport and are discarded.
func (c *Client) dispatch(env protocol.Envelope) {
	if t := env.Time(); !t.IsZero() && t.Before(c.connectedAt) {
		c.logger.Debug("discarding stale envelope",
			"signal_id", env.SignalID, "timestamp", env.Timestamp)
		return
	}

	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.subs[env.SignalID]))
	for _, h := range c.subs[env.SignalID] {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	emittedAt := env.Time()
	for _, h := range handlers {
		h(env.Payload, emittedAt)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	ping, err := protocol.EncodeClientMessage(protocol.Ping{})
	if err != nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.ws.WriteMessage(websocket.TextMessage, ping)
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
