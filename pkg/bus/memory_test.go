package bus

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	var got [][]byte
	unsub, err := b.Subscribe("signals", func(data []byte) {
		got = append(got, data)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsub()

	if err := b.Publish(context.Background(), "signals", []byte("a")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(context.Background(), "signals", []byte("b")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "b" {
		t.Errorf("received = %q, want [a b]", got)
	}
}

func TestMemoryTopicIsolation(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	var other int
	unsub, _ := b.Subscribe("other", func([]byte) { other++ })
	defer unsub()

	if err := b.Publish(context.Background(), "signals", []byte("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if other != 0 {
		t.Errorf("handler on other topic fired %d times", other)
	}
}

func TestMemoryUnsubscribe(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	var calls int
	unsub, _ := b.Subscribe("signals", func([]byte) { calls++ })

	b.Publish(context.Background(), "signals", []byte("1"))
	unsub()
	unsub() // second call is a no-op
	b.Publish(context.Background(), "signals", []byte("2"))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestMemoryFanout(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	var a, c int
	ua, _ := b.Subscribe("signals", func([]byte) { a++ })
	uc, _ := b.Subscribe("signals", func([]byte) { c++ })
	defer ua()
	defer uc()

	b.Publish(context.Background(), "signals", []byte("x"))

	if a != 1 || c != 1 {
		t.Errorf("fanout = (%d, %d), want (1, 1)", a, c)
	}
}

func TestMemoryEmptyTopic(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	if err := b.Publish(context.Background(), "", nil); !errors.Is(err, ErrEmptyTopic) {
		t.Errorf("Publish() error = %v, want ErrEmptyTopic", err)
	}
	if _, err := b.Subscribe("", func([]byte) {}); !errors.Is(err, ErrEmptyTopic) {
		t.Errorf("Subscribe() error = %v, want ErrEmptyTopic", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	b := NewMemory()
	b.Close()

	if err := b.Publish(context.Background(), "signals", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() error = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe("signals", func([]byte) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() error = %v, want ErrClosed", err)
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Publish(ctx, "signals", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}
