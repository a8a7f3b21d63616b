/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to handlers for access to services.
 */
package di

import (
	"github.com/tailwater/aquabalance/internal/cache"
	"github.com/tailwater/aquabalance/internal/database"
	"github.com/tailwater/aquabalance/internal/events"
	"github.com/tailwater/aquabalance/internal/modules/alerts"
	"github.com/tailwater/aquabalance/internal/modules/balance"
	"github.com/tailwater/aquabalance/internal/modules/constants"
	"github.com/tailwater/aquabalance/internal/modules/environmental"
	"github.com/tailwater/aquabalance/internal/modules/facilities"
	"github.com/tailwater/aquabalance/internal/modules/monthly"
	"github.com/tailwater/aquabalance/internal/modules/settings"
	"github.com/tailwater/aquabalance/internal/modules/storage"
	"github.com/tailwater/aquabalance/internal/reliability"
	"github.com/tailwater/aquabalance/internal/scheduler"
	"github.com/tailwater/aquabalance/internal/workbook"
)

/**
 * Container holds all dependencies for the application.
 *
 * This is the single source of truth for all service instances.
 * The container is created by Wire() and passed to handlers for access to services.
 *
 * Architecture:
 * - Databases: 4-database architecture (water, config, alerts, cache)
 * - Workbook: in-memory time-series repository loaded from the site xlsx
 * - Repositories: Data access layer (facilities, parameters, results, rules, ...)
 * - Services: Business logic layer (balance orchestration, storage, alerts, ...)
 * - Scheduler: cron-driven background jobs (monthly compute, backups, sweeps)
 *
 * All dependencies are injected via constructor injection following clean architecture principles.
 */
type Container struct {
	// Databases (4-database architecture)
	// Each database uses SQLite with WAL mode and profile-specific PRAGMAs for optimal performance
	WaterDB  *database.DB // Operational water data (facilities, history, parameters, results)
	ConfigDB *database.DB // Application configuration (settings, system constants)
	AlertsDB *database.DB // Alert rules and raised alerts
	CacheDB  *database.DB // Computed-record and result cache keyed by workbook signature

	// Workbook - the site's measurement workbook loaded into memory
	WorkbookRepo    *workbook.Repository // Parsed monthly time-series frames
	WorkbookService *workbook.Service    // Reload coordination (purge caches, announce)

	// Repositories - Data access layer
	// Repositories abstract database access and provide clean interfaces for services
	FacilityRepo        *facilities.Repository         // Storage facility registry
	FacilityHistoryRepo *facilities.HistoryRepository  // Computed monthly history per facility
	TransferRepo        *facilities.TransferRepository // Inter-facility transfer log
	MonthlyRepo         *monthly.Repository            // Manual monthly parameters (workbook fallback)
	EnvironmentalRepo   *environmental.Repository      // Rainfall/evaporation fallback records
	ConstantsRepo       *constants.Repository          // Tuning constants with audit trail
	SettingsRepo        *settings.Repository           // Runtime settings (config.db)
	ResultRepo          *balance.ResultRepository      // Persisted balance results per period
	AlertRuleRepo       *alerts.RuleRepository         // Alert rule definitions
	AlertRepo           *alerts.AlertRepository        // Raised alerts with dedup state

	// Caches - persistent, signature-keyed
	StorageCache *cache.StorageRecordCache // Per-facility monthly records (cache.db)
	BalanceCache *cache.BalanceCache       // Full period results (cache.db)

	// Services - Business logic layer
	// Services implement business logic and coordinate between repositories and domain models
	EventBus          *events.Bus           // Event bus for pub/sub (SSE + websocket fan-out)
	SettingsService   *settings.Service     // Typed settings access over SettingsRepo
	ConstantsService  *constants.Service    // Seeded constants with change events
	FacilityService   *facilities.Service   // Facility lifecycle (guarded writes, invalidation)
	StorageCalculator *storage.Calculator   // Monthly facility mass balance (recursive openings)
	BalanceEngine     *balance.Engine       // Period-level balance aggregation
	Orchestrator      *balance.Orchestrator // End-to-end compute runs (modes, persistence, cache)
	AlertEvaluator    *alerts.Evaluator     // Rule evaluation, dedup and auto-resolve
	Forecaster        *alerts.Forecaster    // Storage depletion trend signals

	BackupService *reliability.BackupService        // Local snapshots + pre-write guard
	OffsiteBackup *reliability.OffsiteBackupService // S3 archive upload (nil when unconfigured)

	// Scheduler - background job runner (created in RegisterJobs)
	Scheduler *scheduler.Scheduler
}

// JobInstances holds job instances for manual triggering via the API.
// The scheduler owns the cron cadence; handlers use these for RunNow.
type JobInstances struct {
	MonthlyBalance *scheduler.MonthlyBalanceJob
	LogCleanup     *scheduler.LogCleanupJob
	DailyBackup    *scheduler.DailyBackupJob
	OffsiteBackup  *scheduler.OffsiteBackupJob
	CacheSweep     *cache.SweepJob
	AlertSweep     *scheduler.AlertSweepJob
	CheckDatabases *scheduler.CheckDatabasesJob
	WALCheckpoint  *scheduler.WALCheckpointJob
}
