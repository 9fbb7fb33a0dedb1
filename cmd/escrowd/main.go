package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sahilgill24/x3Fusion/config"
	"github.com/Sahilgill24/x3Fusion/native/auction"
	"github.com/Sahilgill24/x3Fusion/native/htlc"
	"github.com/Sahilgill24/x3Fusion/observability/logging"
	"github.com/Sahilgill24/x3Fusion/services/escrowd"
	"github.com/Sahilgill24/x3Fusion/settlement"
	"github.com/Sahilgill24/x3Fusion/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		fmt.Fprintln(os.Stderr, "escrowd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("escrowd", cfg.Environment, logging.Options{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
	})

	db, err := storage.NewLevelDB(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bank := settlement.NewBank(settlement.NewLedgerTransport(), logger)
	defer bank.Close()

	engine := htlc.NewEngine()
	engine.SetState(htlc.NewStore(db))
	engine.SetBank(bank)
	engine.SetBounds(cfg.TimelockBounds())
	engine.SetEmitter(htlc.EmitterFunc(func(event htlc.Event) {
		logger.Info("escrow event", slog.String("type", event.Type), slog.Any("attributes", event.Attributes))
	}))

	ledger := auction.NewLedger(db)
	pricer := auction.NewPricer()
	pricer.SetLedger(ledger)

	provisioner := escrowd.NewProvisioner(engine, bank, logger)
	server := escrowd.NewServer(provisioner, engine, pricer, ledger, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("chain_role", cfg.ChainRole))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
