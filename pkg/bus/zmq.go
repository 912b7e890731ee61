package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// ZMQConfig configures the ZeroMQ bus adapter.
type ZMQConfig struct {
	// PubAddr is the relay's XSUB endpoint processes publish to,
	// e.g. "tcp://relay:5557".
	PubAddr string

	// SubAddr is the relay's XPUB endpoint processes subscribe on,
	// e.g. "tcp://relay:5558".
	SubAddr string

	// RecvTimeout bounds each blocking receive so subscription changes
	// and shutdown are picked up promptly. Default 250ms.
	RecvTimeout time.Duration
}

// ZMQ is a Bus over a ZeroMQ XPUB/XSUB relay. One PUB socket carries all
// publishes (serialized by a mutex; ZeroMQ sockets are not goroutine-safe)
// and one SUB socket is owned exclusively by the receive loop.
type ZMQ struct {
	pub   *zmq.Socket
	pubMu sync.Mutex

	sub *zmq.Socket

	mu       sync.Mutex
	handlers map[string]map[uint64]Handler
	pending  []string // topics awaiting SetSubscribe on the recv loop
	seq      atomic.Uint64

	recvTimeout time.Duration
	closed      atomic.Bool
	done        chan struct{}
	logger      *slog.Logger
}

// NewZMQ connects both sockets to the relay and starts the receive loop.
func NewZMQ(cfg ZMQConfig, logger *slog.Logger) (*ZMQ, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = 250 * time.Millisecond
	}

	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("bus: create PUB socket: %w", err)
	}
	if err := pub.Connect(cfg.PubAddr); err != nil {
		pub.Close()
		return nil, fmt.Errorf("bus: connect PUB %s: %w", cfg.PubAddr, err)
	}

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("bus: create SUB socket: %w", err)
	}
	if err := sub.Connect(cfg.SubAddr); err != nil {
		pub.Close()
		sub.Close()
		return nil, fmt.Errorf("bus: connect SUB %s: %w", cfg.SubAddr, err)
	}
	if err := sub.SetRcvtimeo(cfg.RecvTimeout); err != nil {
		pub.Close()
		sub.Close()
		return nil, fmt.Errorf("bus: set receive timeout: %w", err)
	}

	b := &ZMQ{
		pub:         pub,
		sub:         sub,
		handlers:    make(map[string]map[uint64]Handler),
		recvTimeout: cfg.RecvTimeout,
		done:        make(chan struct{}),
		logger:      logger.With("component", "bus"),
	}

	go b.recvLoop()

	b.logger.Info("zmq bus connected", "pub_addr", cfg.PubAddr, "sub_addr", cfg.SubAddr)
	return b, nil
}

// Publish implements Bus. Messages go out as multipart frames:
// topic first, payload second.
func (b *ZMQ) Publish(ctx context.Context, topic string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if topic == "" {
		return ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if _, err := b.pub.SendMessage(topic, data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Bus. The actual SetSubscribe call happens on the
// receive loop, which owns the SUB socket.
func (b *ZMQ) Subscribe(topic string, h Handler) (func(), error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	id := b.seq.Add(1)

	b.mu.Lock()
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[uint64]Handler)
		b.pending = append(b.pending, topic)
	}
	b.handlers[topic][id] = h
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[topic], id)
			if len(b.handlers[topic]) == 0 {
				delete(b.handlers, topic)
			}
			b.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

// Close implements Bus.
func (b *ZMQ) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	<-b.done // recv loop owns the SUB socket; wait for it to exit
	b.pubMu.Lock()
	b.pub.Close()
	b.pubMu.Unlock()
	b.sub.Close()
	return nil
}

// recvLoop owns the SUB socket: it applies pending subscriptions, receives
// multipart [topic, payload] messages, and dispatches to handlers.
func (b *ZMQ) recvLoop() {
	defer close(b.done)

	for !b.closed.Load() {
		b.applyPending()

		parts, err := b.sub.RecvMessageBytes(0)
		if err != nil {
			// Timeout is the idle case; anything else is worth a log line.
			if zmq.AsErrno(err) != zmq.Errno(syscall.EAGAIN) {
				b.logger.Warn("bus receive failed", "error", err)
			}
			continue
		}
		if len(parts) < 2 {
			b.logger.Warn("bus message missing payload frame", "frames", len(parts))
			continue
		}

		topic := string(parts[0])
		payload := parts[1]

		b.mu.Lock()
		handlers := make([]Handler, 0, len(b.handlers[topic]))
		for _, h := range b.handlers[topic] {
			handlers = append(handlers, h)
		}
		b.mu.Unlock()

		for _, h := range handlers {
			h(payload)
		}
	}
}

func (b *ZMQ) applyPending() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, topic := range pending {
		if err := b.sub.SetSubscribe(topic); err != nil {
			b.logger.Error("subscribe failed", "topic", topic, "error", err)
		}
	}
}
