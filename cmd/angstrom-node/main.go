// Command angstrom-node runs the introspection sidecar: it opens the same
// pebble-backed state the host-invoked bundle executor writes to and serves
// it read-only over HTTP. It does not execute bundles itself — that happens
// synchronously inside the host process (see bundleexec.Executor) — and it
// carries no consensus or networking layer of its own.
package main

import (
	"log"
	"os"

	"github.com/angstrom-labs/angstrom-core/amm"
	"github.com/angstrom-labs/angstrom-core/config"
	"github.com/angstrom-labs/angstrom-core/configstore"
	"github.com/angstrom-labs/angstrom-core/growth"
	"github.com/angstrom-labs/angstrom-core/nonce"
	"github.com/angstrom-labs/angstrom-core/pkg/api"
	"github.com/angstrom-labs/angstrom-core/pkg/storage"
	"github.com/angstrom-labs/angstrom-core/pkg/util"
	"github.com/angstrom-labs/angstrom-core/position"
)

func main() {
	cfg := config.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/angstrom-node.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Sugar().Infow("node_starting", "db_path", cfg.Node.DBPath, "listen_addr", cfg.Node.ListenAddr)

	store, err := storage.NewPebbleStore(cfg.Node.DBPath)
	if err != nil {
		logger.Sugar().Fatalw("pebble_open_failed", "err", err)
	}
	defer store.Close()

	configStore := configstore.New(store)
	configStore.SetTickSpacingRange(cfg.Node.TickSpacingMin, cfg.Node.TickSpacingMax)
	if entries, ok, err := store.LoadEntries(); err != nil {
		logger.Sugar().Fatalw("load_config_entries_failed", "err", err)
	} else if ok {
		for _, e := range entries {
			fee, _ := configStore.UnlockedFee(e.Key)
			_ = configStore.Add(e, fee)
		}
	}

	positions := position.New(store)
	nonces := nonce.New(store)

	// Reward accumulators are rebuilt from the host AMM's own tick state on
	// each bundle, not persisted here; the introspection API reports whatever
	// the running process has observed since it started.
	growths := make(map[amm.PoolID]*growth.Pool)

	server := api.NewServer(configStore, growths, positions, nonces, logger)
	logger.Sugar().Infow("api_server_starting", "addr", cfg.Node.ListenAddr)
	if err := server.Start(cfg.Node.ListenAddr); err != nil {
		logger.Sugar().Fatalw("api_server_failed", "err", err)
	}
}
