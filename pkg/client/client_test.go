package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalgrid-dev/signalgrid/pkg/protocol"
	"github.com/signalgrid-dev/signalgrid/pkg/signal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFakeServer serves upgrades that immediately confirm the handshake for
// userID and hands the server-side socket to the test.
func newFakeServer(t *testing.T, userID string) (wsURL string, conns chan *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conns = make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		data, err := protocol.EncodeServerMessage(protocol.Connected{UserID: userID})
		if err != nil {
			t.Errorf("encode connected: %v", err)
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		conns <- ws
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http"), conns
}

func sendEnvelope(t *testing.T, ws *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	data, err := protocol.EncodeServerMessage(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func TestDialHandshake(t *testing.T) {
	url, conns := newFakeServer(t, "u9")

	c, err := Dial(context.Background(), Config{URL: url, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()
	defer (<-conns).Close()

	if c.UserID() != "u9" {
		t.Errorf("UserID() = %q, want u9", c.UserID())
	}
	if !c.Status().Connected {
		t.Error("Status().Connected = false")
	}
}

func TestDialRejectsWrongFirstMessage(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		data, _ := protocol.EncodeServerMessage(protocol.Pong{})
		ws.WriteMessage(websocket.TextMessage, data)
	}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	_, err := Dial(context.Background(), Config{URL: url, Logger: testLogger()})
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("Dial() error = %v, want ErrHandshakeFailed", err)
	}
}

func TestDispatchDiscardsStaleEnvelopes(t *testing.T) {
	url, conns := newFakeServer(t, "u1")

	c, err := Dial(context.Background(), Config{URL: url, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()
	ws := <-conns
	defer ws.Close()

	got := make(chan json.RawMessage, 4)
	c.Subscribe("s.a", func(p json.RawMessage, _ time.Time) { got <- p })

	// Stamped before this connection existed: belongs to a superseded
	// transport and must be dropped.
	sendEnvelope(t, ws, protocol.Envelope{
		SignalID:  "s.a",
		Payload:   json.RawMessage(`{"stale":true}`),
		Timestamp: protocol.FormatTimestamp(time.Now().Add(-time.Minute)),
	})
	sendEnvelope(t, ws, protocol.Envelope{
		SignalID:  "s.a",
		Payload:   json.RawMessage(`{"fresh":true}`),
		Timestamp: protocol.FormatTimestamp(time.Now().Add(time.Second)),
	})

	select {
	case p := <-got:
		if string(p) != `{"fresh":true}` {
			t.Errorf("received %s, want only the fresh envelope", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fresh envelope never arrived")
	}

	select {
	case p := <-got:
		t.Errorf("received extra envelope %s", p)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSubscribeFanoutAndUnsubscribe(t *testing.T) {
	url, conns := newFakeServer(t, "u1")

	c, err := Dial(context.Background(), Config{URL: url, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()
	ws := <-conns
	defer ws.Close()

	first := make(chan struct{}, 4)
	second := make(chan struct{}, 4)
	unsubFirst := c.Subscribe("s.a", func(json.RawMessage, time.Time) { first <- struct{}{} })
	c.Subscribe("s.a", func(json.RawMessage, time.Time) { second <- struct{}{} })

	fresh := func() protocol.Envelope {
		return protocol.Envelope{
			SignalID:  "s.a",
			Payload:   json.RawMessage(`{}`),
			Timestamp: protocol.FormatTimestamp(time.Now().Add(time.Second)),
		}
	}

	sendEnvelope(t, ws, fresh())
	for _, ch := range []chan struct{}{first, second} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber never fired")
		}
	}

	unsubFirst()
	unsubFirst() // repeat is a no-op
	sendEnvelope(t, ws, fresh())

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("remaining subscriber never fired")
	}
	select {
	case <-first:
		t.Error("unsubscribed handler fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTypedSubscriberDropsNonConforming(t *testing.T) {
	url, conns := newFakeServer(t, "u1")

	c, err := Dial(context.Background(), Config{URL: url, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()
	ws := <-conns
	defer ws.Close()

	type note struct {
		Title string `json:"title"`
	}
	sig := signal.New[note]("note.created")

	got := make(chan note, 4)
	On(c, sig, func(n note) { got <- n })

	ts := protocol.FormatTimestamp(time.Now().Add(time.Second))
	sendEnvelope(t, ws, protocol.Envelope{SignalID: "note.created", Payload: json.RawMessage(`{"title":7}`), Timestamp: ts})
	sendEnvelope(t, ws, protocol.Envelope{SignalID: "note.created", Payload: json.RawMessage(`{"title":"ok"}`), Timestamp: ts})

	select {
	case n := <-got:
		if n.Title != "ok" {
			t.Errorf("received %+v, want the conforming payload only", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("conforming payload never arrived")
	}
}

func TestOnDisconnectRunsOnce(t *testing.T) {
	url, conns := newFakeServer(t, "u1")

	disconnects := make(chan error, 4)
	c, err := Dial(context.Background(), Config{
		URL:          url,
		Logger:       testLogger(),
		OnDisconnect: func(err error) { disconnects <- err },
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	ws := <-conns

	ws.Close()

	select {
	case <-disconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect never ran")
	}
	if c.Status().Connected {
		t.Error("Status().Connected = true after transport loss")
	}

	c.Close() // already down, must not fire the hook again
	select {
	case <-disconnects:
		t.Error("OnDisconnect ran twice")
	case <-time.After(150 * time.Millisecond):
	}
}
