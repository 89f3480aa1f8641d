// Command node starts a single tolbattle ledger node.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tolelom/tolbattle/config"
	"github.com/tolelom/tolbattle/events"
	"github.com/tolelom/tolbattle/indexer"
	"github.com/tolelom/tolbattle/rpc"
	"github.com/tolelom/tolbattle/storage"
	"github.com/tolelom/tolbattle/vm"
	"github.com/tolelom/tolbattle/vm/modules/battle"
	"github.com/tolelom/tolbattle/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file (.json, .yaml or .yml)")
	keyPath := flag.String("key", "player.key", "keystore path used by -genkey")
	genKey := flag.Bool("genkey", false, "generate a new player key and exit")
	exportPath := flag.String("export", "", "write a zstd state snapshot to this path and exit")
	importPath := flag.String("import", "", "load a zstd state snapshot into a fresh data dir before starting")
	flag.Parse()

	// ---- generate key mode ----
	if *genKey {
		// Read keystore password from environment (not CLI flags, which leak via ps).
		password := os.Getenv("TOLBATTLE_PASSWORD")
		if password == "" {
			log.Println("WARNING: TOLBATTLE_PASSWORD not set, keystore will use an empty password")
		}
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key (player owner): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- open DB ----
	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	state := storage.NewStateDB(db)

	// ---- snapshot import (fresh state only) ----
	if *importPath != "" {
		if err := importSnapshot(*importPath, state); err != nil {
			log.Fatalf("import: %v", err)
		}
	}

	// ---- genesis (no-op on an initialised state) ----
	root, err := config.CreateGenesis(cfg, state)
	if err != nil {
		log.Fatalf("genesis: %v", err)
	}
	log.Printf("Chain %s ready, state root %s", cfg.Genesis.ChainID, root)

	// ---- snapshot export mode ----
	if *exportPath != "" {
		if err := exportSnapshot(*exportPath, state); err != nil {
			log.Fatalf("export: %v", err)
		}
		log.Printf("Snapshot written to %s", *exportPath)
		return
	}

	// ---- events ----
	emitter := events.NewEmitter()

	// ---- indexer ----
	idx := indexer.New(db, emitter)
	defer idx.Close()

	// ---- VM executor ----
	exec := vm.NewExecutor(state, emitter, vm.Options{
		ChainID:        cfg.Genesis.ChainID,
		StrictAccounts: cfg.StrictAccounts,
	})
	log.Printf("Battle program %s (strict accounts: %v)", battle.ProgramID, cfg.StrictAccounts)

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(exec, idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, emitter, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	log.Printf("RPC listening on %s (events at /ws)", rpcServer.Addr())
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// Stop RPC first so no transaction is in flight when the DB closes.
	if err := rpcServer.Stop(); err != nil {
		log.Printf("rpc stop: %v", err)
	}
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Config file not found at %s, using defaults.", path)
		return config.Load("")
	}
	return cfg, err
}

func openDB(cfg *config.Config) (storage.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}
	switch cfg.Storage {
	case config.StorageSQLite:
		return storage.NewSQLiteDB(filepath.Join(cfg.DataDir, "state.db"))
	default:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	}
}

func importSnapshot(path string, state *storage.StateDB) error {
	accounts, err := state.Accounts()
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return fmt.Errorf("data dir already holds %d accounts", len(accounts))
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := storage.ImportSnapshot(f, state)
	if err != nil {
		return err
	}
	if err := state.Commit(); err != nil {
		return err
	}
	log.Printf("Imported %d state entries from %s", n, path)
	return nil
}

func exportSnapshot(path string, state *storage.StateDB) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := storage.ExportSnapshot(f, state); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
