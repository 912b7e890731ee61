package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType is the tag carried in the "type" field of every wire message.
type MessageType string

const (
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
	TypeConnected MessageType = "connected"
	TypeSignal    MessageType = "signal"
	TypeError     MessageType = "error"
)

// ErrMalformedMessage is returned when a wire message cannot be decoded
// or carries an unknown tag. Inbound, this is a tolerant failure: the
// connection answers with an error envelope and stays open.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// ClientMessage is a message sent by a connected frontend.
type ClientMessage interface {
	clientMessage()
}

// Ping is the client liveness probe. It does not carry data; the server
// answers with a Pong and re-arms the connection's liveness window.
type Ping struct{}

func (Ping) clientMessage() {}

// ServerMessage is a message pushed to a connected frontend.
type ServerMessage interface {
	serverMessage()
}

// Pong answers a client Ping.
type Pong struct{}

func (Pong) serverMessage() {}

// Connected confirms a completed handshake and names the authenticated user.
type Connected struct {
	UserID string
}

func (Connected) serverMessage() {}

// Envelope is the wire-level unit of one signal delivery: the signal id,
// its validated payload, and the emit timestamp. Envelopes are created at
// emit time, never persisted, and consumed once per receiving connection.
type Envelope struct {
	SignalID  string
	Payload   json.RawMessage
	Timestamp string
}

func (Envelope) serverMessage() {}

// Time parses the envelope timestamp. A zero time is returned when the
// timestamp does not parse; callers treating it as an ordering hint should
// then fall back to delivering.
func (e Envelope) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ErrorMessage reports a per-connection protocol failure to the client.
// It is informational; the connection stays open.
type ErrorMessage struct {
	Message string
}

func (ErrorMessage) serverMessage() {}

// FormatTimestamp renders an emit time as the ISO-8601 string carried on
// the wire. UTC keeps envelopes comparable across processes in different
// zones.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// wireMessage is the JSON shape shared by all tagged messages. Fields not
// used by a variant are omitted so every variant keeps its exact published
// shape.
type wireMessage struct {
	Type      MessageType     `json:"type"`
	UserID    string          `json:"userId,omitempty"`
	SignalID  string          `json:"signalId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// EncodeClientMessage encodes a client → server message.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	switch msg.(type) {
	case Ping, *Ping:
		return json.Marshal(wireMessage{Type: TypePing})
	default:
		return nil, fmt.Errorf("protocol: unsupported client message %T", msg)
	}
}

// DecodeClientMessage decodes a client → server message. An undecodable
// body or unknown tag yields ErrMalformedMessage.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch w.Type {
	case TypePing:
		return Ping{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, w.Type)
	}
}

// EncodeServerMessage encodes a server → client message.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	switch m := msg.(type) {
	case Pong:
		return json.Marshal(wireMessage{Type: TypePong})
	case Connected:
		return json.Marshal(wireMessage{Type: TypeConnected, UserID: m.UserID})
	case Envelope:
		return json.Marshal(wireMessage{
			Type:      TypeSignal,
			SignalID:  m.SignalID,
			Payload:   m.Payload,
			Timestamp: m.Timestamp,
		})
	case ErrorMessage:
		return json.Marshal(wireMessage{Type: TypeError, Message: m.Message})
	default:
		return nil, fmt.Errorf("protocol: unsupported server message %T", msg)
	}
}

// DecodeServerMessage decodes a server → client message on the client side.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch w.Type {
	case TypePong:
		return Pong{}, nil
	case TypeConnected:
		if w.UserID == "" {
			return nil, fmt.Errorf("%w: connected without userId", ErrMalformedMessage)
		}
		return Connected{UserID: w.UserID}, nil
	case TypeSignal:
		if w.SignalID == "" {
			return nil, fmt.Errorf("%w: signal without signalId", ErrMalformedMessage)
		}
		return Envelope{SignalID: w.SignalID, Payload: w.Payload, Timestamp: w.Timestamp}, nil
	case TypeError:
		return ErrorMessage{Message: w.Message}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, w.Type)
	}
}
