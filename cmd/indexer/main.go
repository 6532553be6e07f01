// Command indexer runs the BRC-20 block processor: it walks the configured
// Bitcoin node from the last completed block, applies every BRC-20
// operation it finds, and serves the ops-only HTTP surface (/healthz,
// /status) alongside it. Grounded on the teacher's cmd/server's runServe:
// load config, set up logging, open the store, run migrations, start the
// long-running worker, serve HTTP, wait for a signal, shut down gracefully.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brc20network/indexer/internal/address"
	"github.com/brc20network/indexer/internal/config"
	"github.com/brc20network/indexer/internal/db"
	"github.com/brc20network/indexer/internal/httpapi"
	"github.com/brc20network/indexer/internal/logging"
	"github.com/brc20network/indexer/internal/node"
	"github.com/brc20network/indexer/internal/processor"
	"github.com/brc20network/indexer/internal/ticker"
	"github.com/brc20network/indexer/internal/transfer"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting brc20indexer",
		"version", version,
		"network", cfg.Network,
		"activationHeight", cfg.ActivationHeight,
		"storePath", cfg.StorePath,
	)

	store, err := db.New(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "path", cfg.StorePath)

	tickers, err := ticker.LoadAll(store)
	if err != nil {
		return fmt.Errorf("load ticker registry: %w", err)
	}
	transfers, err := transfer.LoadAll(store)
	if err != nil {
		return fmt.Errorf("load active transfer registry: %w", err)
	}
	slog.Info("in-memory registries loaded", "tickers", tickers.Count(), "pendingTransfers", transfers.Count())

	rpcNode, err := node.Dial(cfg.NodeRPCHost, cfg.NodeRPCUser, cfg.NodeRPCPass, cfg.NodeRPCTLS)
	if err != nil {
		return fmt.Errorf("dial bitcoin node: %w", err)
	}
	defer rpcNode.Shutdown()

	net := address.NetParamsForNetwork(cfg.Network)
	proc := processor.New(rpcNode, store, tickers, transfers, net, cfg)

	procCtx, procCancel := context.WithCancel(context.Background())
	defer procCancel()

	procErrCh := make(chan error, 1)
	go func() {
		procErrCh <- proc.Run(procCtx)
	}()

	router := httpapi.NewRouter(store, rpcNode, cfg)
	srv := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        router,
		ReadTimeout:    config.HTTPReadTimeout,
		WriteTimeout:   config.HTTPWriteTimeout,
		IdleTimeout:    config.HTTPIdleTimeout,
		MaxHeaderBytes: config.HTTPMaxHeaderBytes,
	}

	go func() {
		slog.Info("ops http surface listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
		procCancel()
		<-procErrCh
	case err := <-procErrCh:
		if err != nil {
			slog.Error("processor stopped with error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops http server shutdown: %w", err)
	}

	slog.Info("brc20indexer stopped gracefully")
	return nil
}
