// Package main is the entry point for the aquabalance water accounting service.
// The application computes monthly site water balances for a mine site from a
// measurement workbook, maintains the storage facility registry, and raises
// alerts when the balance drifts outside regulatory thresholds.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
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

	"github.com/tailwater/aquabalance/internal/config"
	"github.com/tailwater/aquabalance/internal/di"
	"github.com/tailwater/aquabalance/internal/server"
	"github.com/tailwater/aquabalance/pkg/logger"
)

// main orchestrates the system startup sequence:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging (stdout plus a rotating file under the log directory)
// 3. Wires all dependencies via the DI container (databases, repositories,
//    services, scheduler jobs); settings-database overrides are applied there
// 4. Starts the HTTP server for API endpoints
// 5. Starts the cron scheduler for background jobs
// 6. Waits for shutdown signal and performs graceful shutdown
//
// The application uses a 4-database architecture:
// - water.db: Measurement ledger (facilities, storage history, transfers, results)
// - config.db: Application configuration (settings, system constants)
// - alerts.db: Alert rules and raised alerts
// - cache.db: Ephemeral derived data (storage and balance caches, job history)
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails so the error is still visible
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Structured logging to stdout and a rotating file. The async file sink
	// must be drained on shutdown, so its closer is deferred first and runs
	// after everything below has finished logging.
	log, logCloser, err := logger.NewWithFile(logger.Config{
		Level:         cfg.LogLevel,
		Pretty:        true,
		FilePath:      filepath.Join(cfg.LogDir, "app.log"),
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
		log.Warn().Err(err).Str("log_dir", cfg.LogDir).Msg("File logging unavailable, using stdout only")
	} else {
		defer logCloser.Close()
	}

	log.Info().Msg("Starting aquabalance")

	// Wire all dependencies using DI container.
	// This initializes the four databases, repositories, services and the
	// scheduler jobs. Settings stored in config.db (workbook path, S3
	// credentials) override environment variables during wiring.
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// All four databases must close cleanly so WAL checkpoints are written.
	defer container.WaterDB.Close()
	defer container.ConfigDB.Close()
	defer container.AlertsDB.Close()
	defer container.CacheDB.Close()

	// Initialize HTTP server. The container is passed through so handlers can
	// reach every service: facilities, balance, storage, alerts, constants,
	// settings, workbook, plus the system and event-stream surfaces.
	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		WaterDB:   container.WaterDB,
		ConfigDB:  container.ConfigDB,
		AlertsDB:  container.AlertsDB,
		CacheDB:   container.CacheDB,
		Config:    cfg,
		DevMode:   cfg.DevMode,
		Container: container,
	})
	srv.SetJobs(jobs)

	// Start server in goroutine so the scheduler and signal handling below
	// run concurrently.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Start the cron scheduler. Jobs were registered during wiring: monthly
	// balance compute, log cleanup, local and offsite backups, cache sweep,
	// alert sweep, database integrity checks and WAL checkpoints.
	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop the scheduler first. Stop blocks until running jobs finish, so a
	// backup or compute in flight completes before the databases close.
	container.Scheduler.Stop()

	// Graceful shutdown: in-flight HTTP requests get up to 10 seconds.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
