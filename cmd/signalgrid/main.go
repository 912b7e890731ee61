package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "signalgrid",
		Short: "Realtime signal delivery for multi-process deployments",
		Long: `Signalgrid pushes typed signals from backend processes to connected
frontend sessions over WebSockets, with delivery routed across every
backend process through a shared event bus.

  • serve  runs a realtime gateway (WebSocket endpoint + HTTP emit API)
  • relay  runs the stateless pub/sub relay joining gateways together`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		relayCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
