// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/config"
	"github.com/tailwater/aquabalance/internal/database"
	"github.com/tailwater/aquabalance/internal/events"
	"github.com/tailwater/aquabalance/internal/modules/alerts"
	"github.com/tailwater/aquabalance/internal/modules/balance"
	"github.com/tailwater/aquabalance/internal/modules/constants"
	"github.com/tailwater/aquabalance/internal/modules/facilities"
	"github.com/tailwater/aquabalance/internal/modules/settings"
	"github.com/tailwater/aquabalance/internal/modules/storage"
	"github.com/tailwater/aquabalance/internal/reliability"
	"github.com/tailwater/aquabalance/internal/workbook"
)

// InitializeServices creates all services and stores them in the container
// Construction order follows the dependency graph: bus and settings first,
// then the computation chain (calculator, engine, orchestrator), then the
// cross-cutting wiring (alerts, reload purging, backup write guard).
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Hand-built configs (tests) may omit the backup block; treat that as
	// local snapshots with defaults and no offsite upload.
	backupCfg := cfg.Backup
	if backupCfg == nil {
		backupCfg = &config.BackupConfig{}
	}
	if backupCfg.Dir == "" {
		backupCfg.Dir = filepath.Join(cfg.DataDir, "backups")
	}

	// ==========================================
	// Event bus - everything downstream announces on it
	// ==========================================
	container.EventBus = events.NewBus(log)

	// ==========================================
	// Settings and constants (config.db)
	// ==========================================
	container.SettingsService = settings.NewService(container.SettingsRepo, log)
	container.SettingsService.SetEventBus(container.EventBus)

	container.ConstantsService = constants.NewService(container.ConstantsRepo, container.EventBus, log)
	if err := container.ConstantsService.EnsureSeeded(); err != nil {
		return fmt.Errorf("failed to seed system constants: %w", err)
	}

	// Alert rule definitions ship with defaults the same way constants do.
	if err := container.AlertRuleRepo.EnsureSeeded(); err != nil {
		return fmt.Errorf("failed to seed alert rules: %w", err)
	}

	// ==========================================
	// Workbook - initial load is best-effort
	// ==========================================
	// A missing or malformed workbook leaves the repository loaded-empty so
	// the API still serves facilities, settings and past results. Computing
	// a balance without frames fails per-request instead.
	if err := container.WorkbookRepo.Load(); err != nil {
		log.Warn().
			Err(err).
			Str("path", cfg.WorkbookPath).
			Msg("Workbook not loaded at startup, continuing degraded")
	}

	// ==========================================
	// Facility service
	// ==========================================
	container.FacilityService = facilities.NewService(
		container.FacilityRepo,
		container.FacilityHistoryRepo,
		container.TransferRepo,
		container.EventBus,
		log,
	)

	// ==========================================
	// Computation chain: calculator -> engine -> orchestrator
	// ==========================================
	container.StorageCalculator = storage.NewCalculator(
		container.WorkbookRepo,
		container.MonthlyRepo,
		container.EnvironmentalRepo,
		container.ConstantsService,
		container.StorageCache,
		log,
	)

	container.BalanceEngine = balance.NewEngine(
		container.WorkbookRepo,
		container.ConstantsService,
		log,
	)

	container.Orchestrator = balance.NewOrchestrator(
		container.BalanceEngine,
		container.StorageCalculator,
		container.FacilityService,
		log,
	)
	container.Orchestrator.SetPersistence(container.MonthlyRepo, container.ResultRepo)
	container.Orchestrator.SetResultCache(container.BalanceCache, container.WorkbookRepo)
	container.Orchestrator.SetEventBus(container.EventBus)

	// ==========================================
	// Alerts: evaluator + forecast signal source
	// ==========================================
	container.AlertEvaluator = alerts.NewEvaluator(container.AlertRuleRepo, container.AlertRepo, log)
	container.AlertEvaluator.SetEventBus(container.EventBus)

	container.Forecaster = alerts.NewForecaster(
		container.FacilityService,
		container.FacilityHistoryRepo,
		container.ConstantsService,
		log,
	)
	container.AlertEvaluator.AddSignalSource(container.Forecaster)

	// Fresh results flow straight into rule evaluation.
	container.Orchestrator.SetAlertSink(container.AlertEvaluator)

	// ==========================================
	// Workbook reload service
	// ==========================================
	// A reload drops both persistent cache tiers and the calculator memo
	// before the reload event goes out.
	container.WorkbookService = workbook.NewService(container.WorkbookRepo, container.EventBus, log)
	container.WorkbookService.AddPurger(container.StorageCache)
	container.WorkbookService.AddPurger(container.BalanceCache)
	container.WorkbookService.AddMemoInvalidator(container.StorageCalculator)

	// Facility attribute edits change computed records without changing the
	// workbook signature, so every mutation drops both cache tiers too.
	container.FacilityService.AddInvalidationHook(func() {
		container.StorageCalculator.InvalidateMemo()
		if _, err := container.StorageCache.PurgeForWorkbook(container.WorkbookRepo.Path()); err != nil {
			log.Warn().Err(err).Msg("Failed to purge storage record cache")
		}
		if _, err := container.BalanceCache.PurgeForWorkbook(container.WorkbookRepo.Path()); err != nil {
			log.Warn().Err(err).Msg("Failed to purge balance result cache")
		}
	})

	// ==========================================
	// Backups: local snapshots + optional offsite upload
	// ==========================================
	// cache.db is excluded: it is rebuilt from the workbook on demand.
	container.BackupService = reliability.NewBackupService(
		map[string]*database.DB{
			"water":  container.WaterDB,
			"config": container.ConfigDB,
			"alerts": container.AlertsDB,
		},
		backupCfg.Dir,
		backupCfg.Retain,
		backupCfg.MinInterval,
		log,
	)

	if backupCfg.Enabled {
		container.FacilityService.SetWriteGuard(container.BackupService)
	}

	if backupCfg.OffsiteEnabled && backupCfg.S3Bucket != "" {
		s3, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Bucket:      backupCfg.S3Bucket,
			Region:      backupCfg.S3Region,
			Endpoint:    backupCfg.S3Endpoint,
			AccessKeyID: backupCfg.S3AccessKeyID,
			SecretKey:   backupCfg.S3SecretKey,
			Prefix:      backupCfg.S3Prefix,
		}, log)
		if err != nil {
			// Offsite is an extra copy; a bad endpoint must not block startup.
			log.Warn().Err(err).Msg("Offsite backup unavailable, continuing without")
		} else {
			container.OffsiteBackup = reliability.NewOffsiteBackupService(
				s3,
				container.BackupService,
				cfg.DataDir,
				log,
			)
		}
	}

	log.Info().Msg("All services initialized")

	return nil
}
