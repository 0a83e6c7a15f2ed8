package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/verimesh/verimesh/internal/daemon"
	"github.com/verimesh/verimesh/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node identity and mesh summary",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	state := d.Protocol.State()
	fmt.Printf("Node:         %s\n", state.NodeID)
	fmt.Printf("Protocol:     %s\n", onOff(state.Enabled))
	fmt.Printf("Version:      %s\n", state.Version)
	fmt.Printf("Capabilities: %v\n", state.Capabilities)
	if !state.LastHeartbeat.IsZero() {
		fmt.Printf("Last heartbeat round: %s\n", state.LastHeartbeat.Format("2006-01-02 15:04:05"))
	}

	counts := map[domain.PeerStatus]int{}
	for _, p := range d.Registry.List() {
		counts[p.Status]++
	}
	fmt.Printf("Peers:        %d", d.Registry.Count())
	if d.Registry.Count() > 0 {
		fmt.Printf(" (%d online, %d offline, %d unknown)",
			counts[domain.PeerOnline], counts[domain.PeerOffline], counts[domain.PeerUnknown])
	}
	fmt.Println()
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
