// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/cache"
	"github.com/tailwater/aquabalance/internal/config"
	"github.com/tailwater/aquabalance/internal/database"
	"github.com/tailwater/aquabalance/internal/scheduler"
)

// Cron schedules, six fields with seconds. Jobs that touch the databases
// are staggered so snapshots, integrity checks and WAL truncation never
// overlap the nightly compute window.
const (
	scheduleMonthlyBalance = "0 0 2 2 * *"   // 02:00 on day 2 of every month
	scheduleLogCleanup     = "0 30 0 * * *"  // 00:30 daily
	scheduleDailyBackup    = "0 0 1 * * *"   // 01:00 daily
	scheduleOffsiteBackup  = "0 0 3 * * *"   // 03:00 daily
	scheduleCacheSweep     = "0 0 3 * * SUN" // Sunday 03:00
	scheduleAlertSweep     = "0 0 * * * *"   // every hour
	scheduleCheckDatabases = "0 0 4 * * *"   // 04:00 daily
	scheduleWALCheckpoint  = "0 30 4 * * *"  // 04:30 daily
)

// RegisterJobs creates the scheduler, constructs all background jobs and
// registers them on their cron schedules.
// Returns JobInstances for manual triggering via API
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	sched.SetEventBus(container.EventBus)
	container.Scheduler = sched

	instances := &JobInstances{}

	// ==========================================
	// Job 1: Monthly Balance Compute
	// ==========================================
	instances.MonthlyBalance = scheduler.NewMonthlyBalanceJob(
		container.Orchestrator,
		container.SettingsService,
		log,
	)

	// ==========================================
	// Job 2: Log Cleanup
	// ==========================================
	instances.LogCleanup = scheduler.NewLogCleanupJob(
		cfg.LogDir,
		container.SettingsService,
		log,
	)

	// ==========================================
	// Job 3: Daily Local Backup
	// ==========================================
	instances.DailyBackup = scheduler.NewDailyBackupJob(
		container.BackupService,
		container.SettingsService,
		log,
	)

	// ==========================================
	// Job 4: Offsite Backup (no-op when S3 is not configured)
	// ==========================================
	// A typed nil service would defeat the job's own nil check, so the
	// interface is only bound when the offsite service exists.
	if container.OffsiteBackup != nil {
		instances.OffsiteBackup = scheduler.NewOffsiteBackupJob(
			container.OffsiteBackup,
			container.SettingsService,
			log,
		)
	} else {
		instances.OffsiteBackup = scheduler.NewOffsiteBackupJob(nil, container.SettingsService, log)
	}

	// ==========================================
	// Job 5: Cache Sweep (drop stale-signature cache rows)
	// ==========================================
	instances.CacheSweep = cache.NewSweepJob(
		container.StorageCache,
		container.BalanceCache,
		container.WorkbookRepo,
		log,
	)

	// ==========================================
	// Job 6: Stale Alert Sweep
	// ==========================================
	instances.AlertSweep = scheduler.NewAlertSweepJob(
		container.AlertEvaluator,
		container.SettingsService,
		log,
	)

	// ==========================================
	// Job 7: Database Integrity Check
	// ==========================================
	instances.CheckDatabases = scheduler.NewCheckDatabasesJob(
		container.WaterDB,
		container.ConfigDB,
		container.AlertsDB,
	)
	instances.CheckDatabases.SetLogger(log)

	// ==========================================
	// Job 8: WAL Checkpoint (all four databases)
	// ==========================================
	instances.WALCheckpoint = scheduler.NewWALCheckpointJob(map[string]*database.DB{
		"water":  container.WaterDB,
		"config": container.ConfigDB,
		"alerts": container.AlertsDB,
		"cache":  container.CacheDB,
	})
	instances.WALCheckpoint.SetLogger(log)

	// ==========================================
	// Register everything on the cron
	// ==========================================
	for _, reg := range []struct {
		schedule string
		job      scheduler.Job
	}{
		{scheduleMonthlyBalance, instances.MonthlyBalance},
		{scheduleLogCleanup, instances.LogCleanup},
		{scheduleDailyBackup, instances.DailyBackup},
		{scheduleOffsiteBackup, instances.OffsiteBackup},
		{scheduleCacheSweep, instances.CacheSweep},
		{scheduleAlertSweep, instances.AlertSweep},
		{scheduleCheckDatabases, instances.CheckDatabases},
		{scheduleWALCheckpoint, instances.WALCheckpoint},
	} {
		if err := sched.AddJob(reg.schedule, reg.job); err != nil {
			return nil, fmt.Errorf("failed to register job %s: %w", reg.job.Name(), err)
		}
	}

	log.Info().Msg("All scheduler jobs registered")

	return instances, nil
}
