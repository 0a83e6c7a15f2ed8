package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/verimesh/verimesh/internal/daemon"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(discoverCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync <peer-id>",
	Short: "Request a sync round with a peer",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn the gossip protocol on",
	RunE:  runEnable,
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn the gossip protocol off",
	RunE:  runDisable,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Broadcast a discovery ping on the local network",
	RunE:  runDiscover,
}

func runSync(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Coordinator.SynchronizeWith(args[0]); err != nil {
		return err
	}
	fmt.Printf("Sync requested with peer %s\n", args[0])
	return nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Protocol.Enable(); err != nil {
		return err
	}
	if err := d.Verify.EnableSync(); err != nil {
		return err
	}
	fmt.Println("Gossip protocol enabled")
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Protocol.Disable(); err != nil {
		return err
	}
	fmt.Println("Gossip protocol disabled")
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Protocol.BroadcastDiscovery(); err != nil {
		return err
	}
	fmt.Println("Discovery ping broadcast")
	return nil
}
