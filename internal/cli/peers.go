package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/verimesh/verimesh/internal/daemon"
)

func init() {
	peersCmd.AddCommand(peersAddCmd)
	peersCmd.AddCommand(peersRemoveCmd)
	peersCmd.AddCommand(peersListCmd)
	peersCmd.AddCommand(peersShowCmd)
	peersCmd.AddCommand(peersProbeCmd)
	rootCmd.AddCommand(peersCmd)
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Manage the peer registry",
}

var peersAddCmd = &cobra.Command{
	Use:   "add <id> <endpoint>",
	Short: "Register a peer by id and host:port endpoint",
	Args:  cobra.ExactArgs(2),
	RunE:  runPeersAdd,
}

var peersRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a peer from the registry",
	Args:    cobra.ExactArgs(1),
	RunE:    runPeersRemove,
}

var peersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List known peers",
	RunE:    runPeersList,
}

var peersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one peer's details and sync history",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeersShow,
}

var peersProbeCmd = &cobra.Command{
	Use:   "probe <id>",
	Short: "Probe whether a peer's endpoint accepts datagrams",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeersProbe,
}

func runPeersAdd(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Registry.Add(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Added peer %s at %s\n", args[0], args[1])
	return nil
}

func runPeersRemove(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Registry.Remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed peer %s\n", args[0])
	return nil
}

func runPeersList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	peers := d.Registry.List()
	if len(peers) == 0 {
		fmt.Println("No peers registered. Run 'verimesh peers add <id> <endpoint>' or 'verimesh discover'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENDPOINT\tSTATUS\tLAST SEEN")
	for _, p := range peers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			p.ID, p.Endpoint, p.Status, p.LastSeen.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runPeersShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.Registry.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Peer:      %s\n", p.ID)
	fmt.Printf("Endpoint:  %s\n", p.Endpoint)
	fmt.Printf("Status:    %s\n", p.Status)
	fmt.Printf("Last seen: %s\n", p.LastSeen.Format("2006-01-02 15:04:05"))

	if ss, err := d.Registry.SyncStatus(p.ID); err == nil && len(ss) > 0 {
		fmt.Println("Sync status:")
		for component, st := range ss {
			fmt.Printf("  %-10s %3d%%  %s  (last sync %s)\n",
				component, st.Progress, st.StateHash, st.LastSync.Format("15:04:05"))
		}
	}
	if det, err := d.Registry.LoadDetails(p.ID); err == nil {
		fmt.Printf("Version:      %s\n", det.Version)
		fmt.Printf("Capabilities: %v\n", det.Capabilities)
		fmt.Printf("Trust level:  %d\n", det.TrustLevel)
		fmt.Printf("Discovered:   %s\n", det.DiscoveredAt.Format("2006-01-02 15:04:05"))
		if n := len(det.SyncHistory); n > 0 {
			last := det.SyncHistory[n-1]
			fmt.Printf("Last sync event: %s (%s) at %s\n",
				last.EventType, last.Status, last.Timestamp.Format("15:04:05"))
		}
	}
	return nil
}

func runPeersProbe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	reachable, err := d.Protocol.CheckReachability(args[0])
	if err != nil {
		return err
	}
	if reachable {
		fmt.Printf("Peer %s is reachable\n", args[0])
	} else {
		fmt.Printf("Peer %s is unreachable\n", args[0])
	}
	return nil
}
