// Package main is the entry point for the fxsync exchange-rate service.
// It keeps a local day-granularity store of currency→USD rates in sync
// with a market-data provider: nightly scheduled runs, an HTTP API for
// manual control, and a websocket stream of run progress.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avolkov/fxsync/internal/clients/yahoo"
	"github.com/avolkov/fxsync/internal/config"
	"github.com/avolkov/fxsync/internal/database"
	"github.com/avolkov/fxsync/internal/modules/currency"
	"github.com/avolkov/fxsync/internal/modules/ledger"
	"github.com/avolkov/fxsync/internal/modules/rates"
	"github.com/avolkov/fxsync/internal/ratesync"
	"github.com/avolkov/fxsync/internal/scheduler"
	"github.com/avolkov/fxsync/internal/server"
	"github.com/avolkov/fxsync/pkg/logger"
)

// baseCurrency is the unit everything is priced in. It is never
// synchronized against itself.
const baseCurrency = "USD"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting fxsync")

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "fxsync.db"),
		Name: "fxsync",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Str("path", db.Path()).Msg("Database ready")

	currencyRepo := currency.NewRepository(db.Conn(), log)
	rateRepo := rates.NewRepository(db.Conn(), log)
	ledgerRepo := ledger.NewRepository(db.Conn(), log)

	provider := yahoo.NewClient(log)
	hub := server.NewEventHub(log)

	engine := ratesync.New(ratesync.Deps{
		Currencies:   currencyRepo,
		Ledger:       ledgerRepo,
		Rates:        rateRepo,
		Provider:     provider,
		Emitter:      hub,
		BaseCurrency: baseCurrency,
	}, cfg.Sync, log)

	srv := server.New(server.Config{
		Log:        log,
		DB:         db,
		Config:     cfg,
		Engine:     engine,
		Hub:        hub,
		Currencies: currencyRepo,
		Rates:      rateRepo,
		Ledger:     ledgerRepo,
	})

	sched := scheduler.New(log)
	syncJob := scheduler.NewRateSyncJob(engine, log)
	if err := sched.AddJob(cfg.SyncSchedule, syncJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SyncSchedule).Msg("Failed to register sync job")
	}
	sched.Start()

	// Catch up on whatever the daemon missed while it was down.
	go func() {
		if err := sched.RunNow(syncJob); err != nil {
			log.Warn().Err(err).Msg("Startup synchronization failed")
		}
	}()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	engine.Cancel()
	sched.Stop()
	engine.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}

	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}

	log.Info().Msg("Stopped")
}
