package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chainnode",
	Short: "A minimal peer-to-peer proof-of-work blockchain node",
	Long: `chainnode runs a single node of a small peer-to-peer proof-of-work
blockchain network: it validates and extends a local chain, gossips
blocks and chain snapshots to discovered peers over a Kademlia-style
overlay, and optionally mines new blocks.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
