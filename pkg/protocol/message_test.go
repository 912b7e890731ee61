package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeServerMessageShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
		want string
	}{
		{"pong", Pong{}, `{"type":"pong"}`},
		{"connected", Connected{UserID: "u1"}, `{"type":"connected","userId":"u1"}`},
		{
			"signal",
			Envelope{SignalID: "notification.received", Payload: json.RawMessage(`{"title":"x"}`), Timestamp: "2026-09-01T10:00:00Z"},
			`{"type":"signal","signalId":"notification.received","payload":{"title":"x"},"timestamp":"2026-09-01T10:00:00Z"}`,
		},
		{"error", ErrorMessage{Message: "boom"}, `{"type":"error","message":"boom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeServerMessage(tt.msg)
			if err != nil {
				t.Fatalf("EncodeServerMessage() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("EncodeServerMessage() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestEncodeClientMessagePing(t *testing.T) {
	data, err := EncodeClientMessage(Ping{})
	if err != nil {
		t.Fatalf("EncodeClientMessage() error = %v", err)
	}
	if string(data) != `{"type":"ping"}` {
		t.Errorf("EncodeClientMessage() = %s, want {\"type\":\"ping\"}", data)
	}
}

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	if _, ok := msg.(Ping); !ok {
		t.Errorf("DecodeClientMessage() = %T, want Ping", msg)
	}
}

func TestDecodeClientMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"payload":1}`},
		{"unknown type", `{"type":"subscribe"}`},
		{"server tag", `{"type":"pong"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tt.data))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("DecodeClientMessage(%s) error = %v, want ErrMalformedMessage", tt.data, err)
			}
		})
	}
}

func TestDecodeServerMessage(t *testing.T) {
	msg, err := DecodeServerMessage([]byte(`{"type":"signal","signalId":"s.a","payload":{"n":1},"timestamp":"2026-09-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("DecodeServerMessage() error = %v", err)
	}
	env, ok := msg.(Envelope)
	if !ok {
		t.Fatalf("DecodeServerMessage() = %T, want Envelope", msg)
	}
	if env.SignalID != "s.a" {
		t.Errorf("SignalID = %q, want s.a", env.SignalID)
	}
	if string(env.Payload) != `{"n":1}` {
		t.Errorf("Payload = %s, want {\"n\":1}", env.Payload)
	}
	want := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if !env.Time().Equal(want) {
		t.Errorf("Time() = %v, want %v", env.Time(), want)
	}
}

func TestDecodeServerMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type":"patch"}`},
		{"connected without user", `{"type":"connected"}`},
		{"signal without id", `{"type":"signal","payload":{}}`},
		{"missing type", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeServerMessage([]byte(tt.data))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("DecodeServerMessage(%s) error = %v, want ErrMalformedMessage", tt.data, err)
			}
		})
	}
}

func TestEnvelopeTimeInvalid(t *testing.T) {
	env := Envelope{Timestamp: "not-a-time"}
	if !env.Time().IsZero() {
		t.Errorf("Time() = %v, want zero for unparseable timestamp", env.Time())
	}
}

func TestFormatTimestampUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := FormatTimestamp(time.Date(2026, 9, 1, 12, 0, 0, 0, loc))
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t.Fatalf("timestamp %q does not parse: %v", ts, err)
	}
	if !parsed.Equal(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("FormatTimestamp() = %q, want 10:00 UTC", ts)
	}
}
