package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"chainnode/chainlog"
	"chainnode/config"
	"chainnode/core"
	"chainnode/network"
)

var (
	bootstrapSeeds []string
	mineFlag       bool
	debugFlag      bool
	storePath      string
)

// nodeCmd implements spec.md §6.4's process surface:
// node <port> [-b IP PORT]... [-m] [-D]
//
// libp2p addressing requires a peer ID alongside host:port (unlike the
// reference implementation's bare UDP endpoints), so -b takes a full
// bootstrap multiaddr (e.g. /ip4/1.2.3.4/tcp/9000/p2p/<peer-id>) —
// the same shape the teacher's StartNode already accepted as a single
// bootstrapAddr string.
var nodeCmd = &cobra.Command{
	Use:   "node <port>",
	Short: "Run a chain node, listening on the given TCP port",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid port: %q", args[0])
		}

		chainlog.SetDebug(debugFlag)
		log := chainlog.New(chainlog.Node)

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var store core.SnapshotStore
		if storePath != "" {
			store = &core.ChunkedFileStore{Path: storePath}
		}

		n := network.NewNode(cfg, mineFlag, store)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := n.Listen(ctx, "0.0.0.0", port); err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		if len(bootstrapSeeds) > 0 {
			if err := n.Bootstrap(ctx, bootstrapSeeds); err != nil {
				log.Warn().Err(err).Msg("bootstrap did not fully succeed")
			}
		}

		<-ctx.Done()
		n.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringArrayVarP(&bootstrapSeeds, "bootstrap", "b", nil, "bootstrap peer multiaddr (repeatable)")
	nodeCmd.Flags().BoolVarP(&mineFlag, "mine", "m", false, "enable mining")
	nodeCmd.Flags().BoolVarP(&debugFlag, "debug", "D", false, "enable verbose logging")
	nodeCmd.Flags().StringVar(&storePath, "store", "", "optional path to persist the chain snapshot")
}
