package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/verimesh/verimesh/internal/daemon"
	"github.com/verimesh/verimesh/internal/domain"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(pullCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the local trace against the mesh",
	RunE:  runVerify,
}

var pullCmd = &cobra.Command{
	Use:   "pull <peer-id>",
	Short: "Pull and verify a peer's full trace set",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func runVerify(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Verify.VerifyTrace()
	if err != nil {
		return err
	}

	switch res.Status {
	case domain.NoVerification:
		fmt.Println("No peers available — nothing to verify against.")
	case domain.FullMatch:
		fmt.Printf("Trace verified: all %d peers match.\n", res.TotalPeers)
	case domain.PartialMatch:
		fmt.Printf("Trace partially verified: %d of %d peers match.\n",
			res.MatchingPeers, res.TotalPeers)
	case domain.NoMatch:
		fmt.Printf("Trace NOT verified: none of %d peers match.\n", res.TotalPeers)
	}
	for _, m := range res.Mismatches {
		fmt.Printf("  mismatch: peer %s reports %s\n", m.PeerID, m.PeerHash)
	}
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Verify.PullFromPeer(args[0]); err != nil {
		return err
	}
	fmt.Printf("Pulled and verified trace from peer %s\n", args[0])
	return nil
}
