package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/verimesh/verimesh/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host for the HTTP API (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port for the HTTP API (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the VeriMesh node daemon",
	Long: `Start the node: the gossip receive loop, the liveness scheduler, and
the HTTP orchestration API. Blocks until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		d.Config.API.Host = serveHost
	}
	if servePort > 0 {
		d.Config.API.Port = servePort
	}

	return d.Serve(context.Background())
}
