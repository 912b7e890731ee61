package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalgrid-dev/signalgrid/internal/config"
	"github.com/signalgrid-dev/signalgrid/pkg/auth"
	"github.com/signalgrid-dev/signalgrid/pkg/bus"
	"github.com/signalgrid-dev/signalgrid/pkg/server"
	"github.com/signalgrid-dev/signalgrid/pkg/signal"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a realtime gateway",
		Long: `Serve runs one realtime gateway process: the WebSocket endpoint
clients connect to, the HTTP emit API, /healthz, and /metrics.

With the zmq bus driver, multiple gateways behind a load balancer form
one logical deployment: a signal emitted on any of them reaches the
connections held by all of them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "path to configuration file")
	return cmd
}

func runServe(configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn("config warning", "warning", warning)
	}

	signals := signal.NewRegistry()
	for _, id := range cfg.Signals {
		if err := signals.Register(signal.Raw(id)); err != nil {
			return fmt.Errorf("register signal %q: %w", id, err)
		}
	}

	var transport bus.Bus
	switch cfg.Bus.Driver {
	case "zmq":
		transport, err = bus.NewZMQ(bus.ZMQConfig{
			PubAddr: cfg.Bus.PubAddr,
			SubAddr: cfg.Bus.SubAddr,
		}, logger)
		if err != nil {
			return err
		}
	default:
		transport = bus.NewMemory()
	}
	defer transport.Close()

	srv, err := server.New(&server.Config{
		Address:           cfg.Server.Address,
		HeartbeatInterval: cfg.Server.HeartbeatInterval.Std(),
		LivenessTimeout:   cfg.Server.LivenessTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
		SendQueueSize:     cfg.Server.SendQueueSize,
		MaxMessageSize:    cfg.Server.MaxMessageSize,
		InboundRate:       cfg.Server.InboundRate,
		InboundBurst:      cfg.Server.InboundBurst,
		Topic:             cfg.Bus.Topic,
	}, server.Deps{
		Signals: signals,
		Bus:     transport,
		Auth:    auth.StaticTokens(cfg.Auth.Tokens),
		Logger:  logger,
		Metrics: prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}

	if cfg.Name != "" {
		logger.Info("starting gateway", "name", cfg.Name, "signals", signals.Len())
	}
	return srv.Run()
}
