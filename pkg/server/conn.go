package server

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/signalgrid-dev/signalgrid/pkg/protocol"
)

// Conn is one physical duplex session with an authenticated client. It is
// owned by the registry of the process that accepted it: created after a
// successful handshake, mutated only by its own read/write goroutines, and
// removed exactly once on close.
type Conn struct {
	id        string
	userID    string
	createdAt time.Time
	lastSeen  atomic.Int64 // unix nanos

	ws      *websocket.Conn
	sendCh  chan protocol.ServerMessage
	done    chan struct{}
	closed  atomic.Bool
	limiter *rate.Limiter

	config  *Config
	logger  *slog.Logger
	metrics *Metrics
	onClose func(*Conn)
}

// newConn wraps an upgraded WebSocket for an authenticated user.
func newConn(ws *websocket.Conn, userID string, config *Config, logger *slog.Logger, metrics *Metrics) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:        id,
		userID:    userID,
		createdAt: time.Now(),
		ws:        ws,
		sendCh:    make(chan protocol.ServerMessage, config.SendQueueSize),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Limit(config.InboundRate), config.InboundBurst),
		config:    config,
		logger:    logger.With("conn_id", id, "user_id", userID),
		metrics:   metrics,
	}
	c.touch()
	return c
}

// ID returns the process-local connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user id.
func (c *Conn) UserID() string { return c.userID }

// CreatedAt returns when the handshake completed.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// LastSeen returns the time of the last inbound traffic.
func (c *Conn) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// IsClosed reports whether the connection has reached its terminal state.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

func (c *Conn) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// Send enqueues an outbound message without blocking. ErrConnClosed means
// the connection is already gone; ErrSendQueueFull means the consumer is
// not draining and the caller should close the connection.
func (c *Conn) Send(msg protocol.ServerMessage) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	select {
	case c.sendCh <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// start launches the read and write goroutines.
func (c *Conn) start() {
	go c.readLoop()
	go c.writeLoop()
}

// Close transitions the connection to its terminal state: loops stop, the
// transport closes, and the registry entry is removed. Safe to call from
// any goroutine, any number of times.
func (c *Conn) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	c.ws.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}

// readLoop consumes inbound messages until the transport errors or the
// liveness window lapses. Any traffic — including WebSocket pong control
// frames answering our heartbeat — re-arms the window.
func (c *Conn) readLoop() {
	defer c.Close()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.armDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		c.armDeadline()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "error", err)
				c.metrics.RecordWSError("read")
			}
			return
		}

		c.touch()
		c.armDeadline()

		if !c.limiter.Allow() {
			c.logger.Debug("inbound message dropped by rate limit")
			c.metrics.RecordInboundDropped()
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			// Tolerant path: answer with an error envelope, stay open.
			c.logger.Debug("malformed inbound message", "error", err)
			c.metrics.RecordWSError("malformed")
			c.reply(protocol.ErrorMessage{Message: err.Error()})
			continue
		}

		switch msg.(type) {
		case protocol.Ping:
			c.reply(protocol.Pong{})
		default:
			c.reply(protocol.ErrorMessage{Message: "unsupported message"})
		}
	}
}

// reply enqueues a protocol response. A full queue gets the same slow
// consumer treatment as a full queue on the delivery path.
func (c *Conn) reply(msg protocol.ServerMessage) {
	if err := c.Send(msg); errors.Is(err, ErrSendQueueFull) {
		c.logger.Warn("send queue full, closing connection")
		c.metrics.RecordQueueDrop()
		c.Close()
	}
}

// writeLoop serializes all outbound writes: queued messages plus the
// heartbeat pings that keep idle connections' liveness windows armed on
// both ends.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.sendCh:
			data, err := protocol.EncodeServerMessage(msg)
			if err != nil {
				c.logger.Error("encode failed", "error", err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.metrics.RecordWSError("write")
				c.Close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.metrics.RecordWSError("ping")
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Conn) armDeadline() {
	c.ws.SetReadDeadline(time.Now().Add(c.config.LivenessTimeout))
}
