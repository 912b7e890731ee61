package server

import (
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	var c *Config
	got := c.withDefaults()
	if got.Address != ":8090" || got.Topic != "signals" {
		t.Errorf("withDefaults() on nil = %+v", got)
	}

	partial := &Config{Address: ":9999", SendQueueSize: 8}
	got = partial.withDefaults()
	if got.Address != ":9999" {
		t.Errorf("Address = %q, want :9999", got.Address)
	}
	if got.SendQueueSize != 8 {
		t.Errorf("SendQueueSize = %d, want 8", got.SendQueueSize)
	}
	if got.LivenessTimeout != 60*time.Second {
		t.Errorf("LivenessTimeout = %v, want 60s", got.LivenessTimeout)
	}
	if got.HeartbeatInterval >= got.LivenessTimeout {
		t.Error("default heartbeat not shorter than liveness window")
	}

	// withDefaults copies; the input stays untouched.
	if partial.Topic != "" {
		t.Errorf("input mutated: Topic = %q", partial.Topic)
	}
}
