package bus

import (
	"fmt"
	"log/slog"

	zmq "github.com/pebbe/zmq4"
)

// RelayConfig configures the stateless pub/sub relay.
type RelayConfig struct {
	// XSubAddr is the bind address backend processes publish to,
	// e.g. "tcp://*:5557".
	XSubAddr string

	// XPubAddr is the bind address backend processes subscribe on,
	// e.g. "tcp://*:5558".
	XPubAddr string
}

// Relay runs the XPUB/XSUB forwarder that joins every backend process's
// PUB and SUB sockets into one logical bus. It blocks until the proxy
// fails; the relay holds no state, so supervising it with a plain restart
// is enough.
func Relay(cfg RelayConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relay")

	xsub, err := zmq.NewSocket(zmq.XSUB)
	if err != nil {
		return fmt.Errorf("bus: create XSUB socket: %w", err)
	}
	defer xsub.Close()
	if err := xsub.Bind(cfg.XSubAddr); err != nil {
		return fmt.Errorf("bus: bind XSUB %s: %w", cfg.XSubAddr, err)
	}

	xpub, err := zmq.NewSocket(zmq.XPUB)
	if err != nil {
		return fmt.Errorf("bus: create XPUB socket: %w", err)
	}
	defer xpub.Close()
	if err := xpub.Bind(cfg.XPubAddr); err != nil {
		return fmt.Errorf("bus: bind XPUB %s: %w", cfg.XPubAddr, err)
	}

	logger.Info("relay listening", "xsub_addr", cfg.XSubAddr, "xpub_addr", cfg.XPubAddr)

	if err := zmq.Proxy(xsub, xpub, nil); err != nil {
		return fmt.Errorf("bus: relay proxy: %w", err)
	}
	return nil
}
