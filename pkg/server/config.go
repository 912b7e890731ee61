package server

import (
	"net/http"
	"time"
)

// Config holds tunables for the realtime server. Zero values are replaced
// by defaults in New.
type Config struct {
	// Address is the listen address for Start ("host:port").
	Address string

	// HeartbeatInterval is how often the server pings idle connections at
	// the WebSocket control level. Must be shorter than LivenessTimeout
	// or healthy idle clients get reaped.
	HeartbeatInterval time.Duration

	// LivenessTimeout is the rolling window within which a connection
	// must show any traffic (messages, pings, pongs). Silence past the
	// window closes the connection and frees its registry entry.
	LivenessTimeout time.Duration

	// WriteTimeout bounds a single outbound WebSocket write.
	WriteTimeout time.Duration

	// SendQueueSize caps each connection's outbound queue. A full queue
	// closes the connection.
	SendQueueSize int

	// MaxMessageSize caps inbound message size in bytes.
	MaxMessageSize int64

	// InboundRate and InboundBurst rate-limit inbound client messages per
	// connection. Over-limit messages are dropped.
	InboundRate  float64
	InboundBurst int

	// ShutdownTimeout bounds graceful shutdown in Run.
	ShutdownTimeout time.Duration

	// Topic is the event bus topic carrying signal envelopes.
	Topic string

	// MetricsNamespace is the prometheus namespace ("signalgrid").
	MetricsNamespace string

	// CheckOrigin validates the upgrade request origin. Nil allows all
	// origins, which assumes an upstream proxy enforces origin policy.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8090",
		HeartbeatInterval: 20 * time.Second,
		LivenessTimeout:   60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendQueueSize:     64,
		MaxMessageSize:    64 * 1024,
		InboundRate:       20,
		InboundBurst:      40,
		ShutdownTimeout:   10 * time.Second,
		Topic:             "signals",
		MetricsNamespace:  "signalgrid",
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	d := DefaultConfig()
	out := *c
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = d.HeartbeatInterval
	}
	if out.LivenessTimeout <= 0 {
		out.LivenessTimeout = d.LivenessTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.SendQueueSize <= 0 {
		out.SendQueueSize = d.SendQueueSize
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.InboundRate <= 0 {
		out.InboundRate = d.InboundRate
	}
	if out.InboundBurst <= 0 {
		out.InboundBurst = d.InboundBurst
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	if out.Topic == "" {
		out.Topic = d.Topic
	}
	if out.MetricsNamespace == "" {
		out.MetricsNamespace = d.MetricsNamespace
	}
	return &out
}
