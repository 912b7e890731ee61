package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Signal errors.
var (
	// ErrDuplicateSignal is returned when a signal id is registered twice.
	ErrDuplicateSignal = errors.New("signal: duplicate signal id")

	// ErrUnknownSignal is returned when an id has no registered definition.
	ErrUnknownSignal = errors.New("signal: unknown signal id")

	// ErrEmptyID is returned when a definition carries an empty id.
	ErrEmptyID = errors.New("signal: empty signal id")
)

// ValidationError reports an emit-time payload that does not conform to
// the signal's schema. It is returned synchronously from the emit API
// before any network effect.
type ValidationError struct {
	SignalID string
	Err      error
}

// Error returns the error message with signal context.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("signal: payload for %q failed validation: %v", e.SignalID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Definition is the schema-bearing identity of one signal as stored in the
// registry. Concrete definitions come from New (typed) or Raw (shapeless).
type Definition interface {
	// ID returns the globally unique, namespaced signal id.
	ID() string

	// ValidatePayload checks an in-memory payload against the schema and
	// returns its canonical JSON encoding for the wire.
	ValidatePayload(payload any) (json.RawMessage, error)

	// ValidateRaw checks an already-encoded payload, as received from the
	// bus or from an external emitter.
	ValidateRaw(raw json.RawMessage) error
}

// Signal is a typed signal definition. The type parameter is the payload
// schema: emitted payloads must decode into T without leftover or
// mistyped fields, then pass the optional validator.
type Signal[T any] struct {
	id        string
	validator func(T) error
}

// Option configures a typed signal definition.
type Option[T any] func(*Signal[T])

// WithValidator attaches a semantic check run after structural decoding.
// Required-field and cross-field rules live here.
func WithValidator[T any](fn func(T) error) Option[T] {
	return func(s *Signal[T]) {
		s.validator = fn
	}
}

// New creates a typed signal definition. The id should be namespaced
// ("notification.received") and globally unique within one registry.
func New[T any](id string, opts ...Option[T]) *Signal[T] {
	s := &Signal[T]{id: id}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the signal id.
func (s *Signal[T]) ID() string {
	return s.id
}

// Validate checks a typed payload against the signal's validator.
func (s *Signal[T]) Validate(payload T) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator(payload); err != nil {
		return &ValidationError{SignalID: s.id, Err: err}
	}
	return nil
}

// ValidatePayload implements Definition. A payload that is already a T is
// validated directly; anything else (a map from an HTTP emitter, say) is
// round-tripped through JSON into T first, rejecting unknown fields and
// type mismatches.
func (s *Signal[T]) ValidatePayload(payload any) (json.RawMessage, error) {
	if typed, ok := payload.(T); ok {
		if err := s.Validate(typed); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(typed)
		if err != nil {
			return nil, &ValidationError{SignalID: s.id, Err: err}
		}
		return raw, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{SignalID: s.id, Err: err}
	}
	if err := s.ValidateRaw(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ValidateRaw implements Definition.
func (s *Signal[T]) ValidateRaw(raw json.RawMessage) error {
	_, err := s.Decode(raw)
	return err
}

// Decode decodes and validates a wire payload into the signal's type.
func (s *Signal[T]) Decode(raw json.RawMessage) (T, error) {
	var payload T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return payload, &ValidationError{SignalID: s.id, Err: err}
	}
	if err := s.Validate(payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// RawSignal is a shapeless signal definition: any well-formed JSON payload
// passes. Gateways registering signals from configuration use this when
// the payload schema is owned by the emitting side.
type RawSignal struct {
	id string
}

// Raw creates a shapeless signal definition.
func Raw(id string) *RawSignal {
	return &RawSignal{id: id}
}

// ID returns the signal id.
func (s *RawSignal) ID() string {
	return s.id
}

// ValidatePayload implements Definition.
func (s *RawSignal) ValidatePayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		if err := s.ValidateRaw(raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{SignalID: s.id, Err: err}
	}
	return raw, nil
}

// ValidateRaw implements Definition.
func (s *RawSignal) ValidateRaw(raw json.RawMessage) error {
	if !json.Valid(raw) {
		return &ValidationError{SignalID: s.id, Err: errors.New("invalid JSON")}
	}
	return nil
}
