package signal

import (
	"encoding/json"
	"errors"
	"testing"
)

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

func TestTypedSignalValidatePayload(t *testing.T) {
	sig := New[notification]("notification.received")

	raw, err := sig.ValidatePayload(notification{Title: "hi"})
	if err != nil {
		t.Fatalf("ValidatePayload() error = %v", err)
	}
	if string(raw) != `{"title":"hi"}` {
		t.Errorf("ValidatePayload() = %s, want {\"title\":\"hi\"}", raw)
	}
}

func TestTypedSignalValidator(t *testing.T) {
	sig := New("notification.received", WithValidator(func(n notification) error {
		if n.Title == "" {
			return errors.New("title is required")
		}
		return nil
	}))

	if _, err := sig.ValidatePayload(notification{Title: "ok"}); err != nil {
		t.Fatalf("ValidatePayload() error = %v", err)
	}

	_, err := sig.ValidatePayload(notification{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidatePayload() error = %v, want *ValidationError", err)
	}
	if verr.SignalID != "notification.received" {
		t.Errorf("SignalID = %q, want notification.received", verr.SignalID)
	}
}

func TestTypedSignalRejectsUnknownFields(t *testing.T) {
	sig := New[notification]("notification.received")

	err := sig.ValidateRaw(json.RawMessage(`{"title":"hi","extra":1}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("ValidateRaw() error = %v, want *ValidationError", err)
	}
}

func TestTypedSignalRejectsMistypedFields(t *testing.T) {
	sig := New[notification]("notification.received")

	if err := sig.ValidateRaw(json.RawMessage(`{"title":42}`)); err == nil {
		t.Error("ValidateRaw() accepted mistyped field")
	}
}

func TestTypedSignalDecode(t *testing.T) {
	sig := New[notification]("notification.received")

	n, err := sig.Decode(json.RawMessage(`{"title":"hi","body":"there"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n.Title != "hi" || n.Body != "there" {
		t.Errorf("Decode() = %+v", n)
	}
}

func TestRawSignalAcceptsAnyJSON(t *testing.T) {
	sig := Raw("legacy.event")

	for _, raw := range []string{`{"a":1}`, `[1,2]`, `"s"`, `null`, `42`} {
		if err := sig.ValidateRaw(json.RawMessage(raw)); err != nil {
			t.Errorf("ValidateRaw(%s) error = %v", raw, err)
		}
	}

	if err := sig.ValidateRaw(json.RawMessage(`{broken`)); err == nil {
		t.Error("ValidateRaw() accepted invalid JSON")
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	verr := &ValidationError{SignalID: "s", Err: inner}
	if !errors.Is(verr, inner) {
		t.Error("errors.Is() did not reach wrapped error")
	}
}
