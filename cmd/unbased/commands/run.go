package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	db "github.com/tendermint/tm-db"

	uctx "github.com/arcology-network/unbase/context"
	"github.com/arcology-network/unbase/config"
	"github.com/arcology-network/unbase/log"
	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/rpcdebug"
	"github.com/arcology-network/unbase/slab"
)

var genesis bool

// RunCmd starts a node: a Slab, a Context over it, and the rpcdebug
// introspection server, per config.toml. Peering is not started here:
// the core engine stays transport-agnostic, and this repo only carries
// transport/simulator (a test fixture); an embedder wires its own
// transport.Sender and constructs a peering.Reactor around this node's
// Slab the way reactor_test.go does around a simulated one.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(filepath.Join(homeDir, "config.toml"))
		if err != nil {
			return err
		}

		logger := log.NewLogfmtLogger(os.Stdout)

		backing, err := openBackend(cfg.Slab)
		if err != nil {
			return err
		}

		slabOpts := []slab.Option{slab.WithLogger(logger)}
		if cfg.Slab.TargetPeers > 0 {
			slabOpts = append(slabOpts, slab.WithTargetPeers(cfg.Slab.TargetPeers))
		}
		id := memo.NewSlabID([]byte(cfg.Peering.ListenAddress))
		s := slab.New(id, backing, slabOpts...)
		s.Start()
		defer s.Close()

		c := uctx.NewContext(s, uctx.WithLogger(logger))
		defer c.Close()

		if genesis {
			seed, err := c.BootstrapRootIndex(context.Background())
			if err != nil {
				return err
			}
			logger.Info("bootstrapped root index", "seed", seed.Refs())
		}

		srv := rpcdebug.NewServer(s, c, rpcdebug.WithLogger(logger))
		if err := srv.Start(cfg.RPCDebug.ListenAddress); err != nil {
			return err
		}
		defer srv.Stop(context.Background())

		fmt.Println("unbased running, slab", id.String())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func init() {
	RunCmd.Flags().BoolVar(&genesis, "genesis", false, "mint a fresh root index for a new network")
}

func openBackend(cfg config.SlabConfig) (db.DB, error) {
	if cfg.DBBackend == "memdb" {
		return db.NewMemDB(), nil
	}
	return db.NewGoLevelDB("unbase", cfg.DBDir)
}
