// Package config loads the signalgrid.json gateway configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "signalgrid.json"

	// DefaultAddress is the default gateway listen address.
	DefaultAddress = ":8090"

	// DefaultTopic is the default event bus topic.
	DefaultTopic = "signals"
)

// Config is the complete signalgrid.json schema.
type Config struct {
	// Name is the deployment name, used for logging only.
	Name string `json:"name,omitempty"`

	// Server configures the realtime endpoint.
	Server ServerConfig `json:"server,omitempty"`

	// Bus configures the cross-process event bus.
	Bus BusConfig `json:"bus,omitempty"`

	// Relay configures the `signalgrid relay` bind addresses.
	Relay RelayConfig `json:"relay,omitempty"`

	// Auth maps static bearer tokens to user ids for the gateway's
	// built-in token authenticator.
	Auth AuthConfig `json:"auth,omitempty"`

	// Signals lists ids registered at startup as shapeless signals,
	// for deployments whose payload schemas live on the emitting side.
	Signals []string `json:"signals,omitempty"`
}

// ServerConfig configures the realtime endpoint.
type ServerConfig struct {
	Address           string   `json:"address,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty"`
	LivenessTimeout   Duration `json:"livenessTimeout,omitempty"`
	WriteTimeout      Duration `json:"writeTimeout,omitempty"`
	SendQueueSize     int      `json:"sendQueueSize,omitempty"`
	MaxMessageSize    int64    `json:"maxMessageSize,omitempty"`
	InboundRate       float64  `json:"inboundRate,omitempty"`
	InboundBurst      int      `json:"inboundBurst,omitempty"`
}

// BusConfig configures the cross-process event bus.
type BusConfig struct {
	// Driver selects the transport: "memory" (single process) or "zmq".
	Driver string `json:"driver,omitempty"`

	// PubAddr is the relay XSUB endpoint to publish to (zmq driver).
	PubAddr string `json:"pubAddr,omitempty"`

	// SubAddr is the relay XPUB endpoint to subscribe on (zmq driver).
	SubAddr string `json:"subAddr,omitempty"`

	// Topic is the bus topic carrying signal envelopes.
	Topic string `json:"topic,omitempty"`
}

// RelayConfig configures the relay's bind addresses.
type RelayConfig struct {
	XSubAddr string `json:"xsubAddr,omitempty"`
	XPubAddr string `json:"xpubAddr,omitempty"`
}

// AuthConfig configures the built-in static token authenticator.
type AuthConfig struct {
	// Tokens maps bearer token to user id.
	Tokens map[string]string `json:"tokens,omitempty"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           DefaultAddress,
			HeartbeatInterval: Duration(20 * time.Second),
			LivenessTimeout:   Duration(60 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
			SendQueueSize:     64,
			MaxMessageSize:    64 * 1024,
			InboundRate:       20,
			InboundBurst:      40,
		},
		Bus: BusConfig{
			Driver: "memory",
			Topic:  DefaultTopic,
		},
		Relay: RelayConfig{
			XSubAddr: "tcp://*:5557",
			XPubAddr: "tcp://*:5558",
		},
	}
}

// Load reads a configuration file, filling unset fields with defaults.
// A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.HeartbeatInterval <= 0 {
		c.Server.HeartbeatInterval = d.Server.HeartbeatInterval
	}
	if c.Server.LivenessTimeout <= 0 {
		c.Server.LivenessTimeout = d.Server.LivenessTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.SendQueueSize <= 0 {
		c.Server.SendQueueSize = d.Server.SendQueueSize
	}
	if c.Server.MaxMessageSize <= 0 {
		c.Server.MaxMessageSize = d.Server.MaxMessageSize
	}
	if c.Server.InboundRate <= 0 {
		c.Server.InboundRate = d.Server.InboundRate
	}
	if c.Server.InboundBurst <= 0 {
		c.Server.InboundBurst = d.Server.InboundBurst
	}
	if c.Bus.Driver == "" {
		c.Bus.Driver = d.Bus.Driver
	}
	if c.Bus.Topic == "" {
		c.Bus.Topic = d.Bus.Topic
	}
	if c.Relay.XSubAddr == "" {
		c.Relay.XSubAddr = d.Relay.XSubAddr
	}
	if c.Relay.XPubAddr == "" {
		c.Relay.XPubAddr = d.Relay.XPubAddr
	}
}

// Validate returns the first configuration error found.
func (c *Config) Validate() error {
	switch c.Bus.Driver {
	case "memory":
	case "zmq":
		if c.Bus.PubAddr == "" || c.Bus.SubAddr == "" {
			return fmt.Errorf("config: zmq bus requires pubAddr and subAddr")
		}
	default:
		return fmt.Errorf("config: unknown bus driver %q", c.Bus.Driver)
	}

	if time.Duration(c.Server.HeartbeatInterval) >= time.Duration(c.Server.LivenessTimeout) {
		return fmt.Errorf("config: heartbeatInterval must be shorter than livenessTimeout")
	}
	return nil
}

// Warnings returns non-fatal configuration observations.
func (c *Config) Warnings() []string {
	var warnings []string
	if len(c.Auth.Tokens) == 0 {
		warnings = append(warnings, "no auth tokens configured; every handshake will be rejected")
	}
	if len(c.Signals) == 0 {
		warnings = append(warnings, "no signals configured; /api/emit will reject every request")
	}
	return warnings
}
