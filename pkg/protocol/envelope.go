package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ChannelType names the routing target of one emission. A channel is a
// value that exists only for the duration of the emission call.
type ChannelType string

const (
	// ChannelBroadcast addresses every authenticated connection.
	ChannelBroadcast ChannelType = "broadcast"

	// ChannelUser addresses all connections of specific user ids, which
	// may resolve to zero, one, or many physical connections per process.
	ChannelUser ChannelType = "user"
)

// BusEnvelope is the unit published to the cross-process event bus: the
// signal envelope plus routing metadata. Every process receives every bus
// envelope and delivers only to connections it physically holds.
type BusEnvelope struct {
	Channel   ChannelType `msgpack:"channel"`
	UserIDs   []string    `msgpack:"userIds,omitempty"`
	SignalID  string      `msgpack:"signalId"`
	Payload   []byte      `msgpack:"payload"`
	Timestamp string      `msgpack:"timestamp"`
}

// WireEnvelope converts the bus envelope into the client-plane signal
// envelope pushed to each resolved connection.
func (b *BusEnvelope) WireEnvelope() Envelope {
	return Envelope{
		SignalID:  b.SignalID,
		Payload:   b.Payload,
		Timestamp: b.Timestamp,
	}
}

// EncodeBusEnvelope encodes a bus envelope with msgpack.
func EncodeBusEnvelope(env *BusEnvelope) ([]byte, error) {
	return msgpack.Marshal(env)
}

// DecodeBusEnvelope decodes and validates a bus envelope.
func DecodeBusEnvelope(data []byte) (*BusEnvelope, error) {
	var env BusEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Channel {
	case ChannelBroadcast:
	case ChannelUser:
		if len(env.UserIDs) == 0 {
			return nil, fmt.Errorf("%w: user channel without user ids", ErrMalformedMessage)
		}
	default:
		return nil, fmt.Errorf("%w: unknown channel %q", ErrMalformedMessage, env.Channel)
	}
	if env.SignalID == "" {
		return nil, fmt.Errorf("%w: bus envelope without signalId", ErrMalformedMessage)
	}
	return &env, nil
}
