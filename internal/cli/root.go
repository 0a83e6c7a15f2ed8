// Package cli implements the VeriMesh command-line interface using Cobra.
// Each subcommand maps to one node operation (serve, peers, sync, verify…).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "verimesh",
	Short: "VeriMesh — gossip peer sync and trace verification",
	Long: `VeriMesh keeps a mesh of nodes in agreement about their runtime traces.
Nodes find each other over UDP broadcast, exchange heartbeats, and verify
each other's trace digests — with no coordinator and no central server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
