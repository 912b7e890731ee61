package bus

import (
	"context"
	"errors"
)

// Bus errors.
var (
	// ErrClosed is returned when publishing or subscribing on a closed bus.
	ErrClosed = errors.New("bus: closed")

	// ErrEmptyTopic is returned when a topic name is empty.
	ErrEmptyTopic = errors.New("bus: empty topic")
)

// Handler consumes one published message. Handlers run on the bus's
// receive path and must not block; hand off anything slow.
type Handler func(data []byte)

// Bus is a topic-based publish/subscribe transport shared by all backend
// processes. Implementations guarantee at-least-once delivery to live
// subscribers and nothing more: no durability, no cross-process ordering.
type Bus interface {
	// Publish sends data to every live subscriber of topic. It returns
	// once the message has been accepted by the transport, not once it
	// has been handled.
	Publish(ctx context.Context, topic string, data []byte) error

	// Subscribe registers a handler for a topic and returns an
	// unsubscribe function that is safe to call more than once.
	Subscribe(topic string, h Handler) (func(), error)

	// Close releases the transport. Pending deliveries may be dropped.
	Close() error
}
