package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Bus for single-process deployments and tests.
// Handlers are invoked synchronously on the publisher's goroutine, so the
// Handler contract (do not block) matters here most of all.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	seq    atomic.Uint64
	closed atomic.Bool
}

// NewMemory creates an in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[uint64]Handler)}
}

// Publish implements Bus.
func (b *Memory) Publish(ctx context.Context, topic string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if topic == "" {
		return ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Snapshot handlers so delivery runs without the lock held.
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return nil
}

// Subscribe implements Bus.
func (b *Memory) Subscribe(topic string, h Handler) (func(), error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	id := b.seq.Add(1)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

// Close implements Bus.
func (b *Memory) Close() error {
	b.closed.Store(true)
	b.mu.Lock()
	b.subs = make(map[string]map[uint64]Handler)
	b.mu.Unlock()
	return nil
}
