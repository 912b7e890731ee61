package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalgrid-dev/signalgrid/internal/config"
	"github.com/signalgrid-dev/signalgrid/pkg/bus"
)

func relayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the stateless pub/sub relay",
		Long: `Relay joins every gateway's publish and subscribe sockets into one
logical event bus. It holds no state; restarting it only drops whatever
was in flight, which the delivery guarantees already allow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			return bus.Relay(bus.RelayConfig{
				XSubAddr: cfg.Relay.XSubAddr,
				XPubAddr: cfg.Relay.XPubAddr,
			}, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "path to configuration file")
	return cmd
}
