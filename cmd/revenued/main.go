package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"revenueos/config"
	"revenueos/native/links"
	"revenueos/observability"
	"revenueos/observability/logging"
	"revenueos/rpc"
	"revenueos/state"
	"revenueos/storage"
)

func main() {
	configPath := flag.String("config", "./revenued.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Exit(fatal("load config", err))
	}
	log := logging.Setup("revenued", cfg.Environment)

	vault, err := cfg.Vault()
	if err != nil {
		os.Exit(fatal("decode vault address", err))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		os.Exit(fatal("create data dir", err))
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		os.Exit(fatal("open ledger database", err))
	}
	defer db.Close()

	engine := links.NewEngine()
	engine.SetState(state.NewManager(db))
	engine.SetEmitter(observability.LogEmitter{Log: log})
	engine.SetVault(vault.Array())

	server := rpc.NewServer(engine, log)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("rpc server listening", "addr", cfg.ListenAddress, "vault", cfg.VaultAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("rpc server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "err", err)
	}
}

func fatal(msg string, err error) int {
	// Logging may not be configured yet when config loading fails.
	os.Stderr.WriteString("revenued: " + msg + ": " + err.Error() + "\n")
	return 1
}
