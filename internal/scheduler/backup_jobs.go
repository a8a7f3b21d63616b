package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DailyBackupJob snapshots every database locally and prunes old snapshots
// down to the configured retention count.
type DailyBackupJob struct {
	backups  SnapshotService
	settings JobSettings
	log      zerolog.Logger
}

// NewDailyBackupJob creates a new DailyBackupJob
func NewDailyBackupJob(backups SnapshotService, settings JobSettings, log zerolog.Logger) *DailyBackupJob {
	return &DailyBackupJob{
		backups:  backups,
		settings: settings,
		log:      log.With().Str("job", "daily_backup").Logger(),
	}
}

// Name returns the job name
func (j *DailyBackupJob) Name() string {
	return "daily_backup"
}

// Run executes the daily local backup
func (j *DailyBackupJob) Run() error {
	if !j.settings.Enabled("backup_enabled") {
		j.log.Info().Msg("Local backups disabled, skipping")
		return nil
	}

	if err := j.backups.SnapshotAll(); err != nil {
		return err
	}

	keep := int(j.settings.Float("backup_retention_count"))
	if err := j.backups.PruneBackups(keep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	return nil
}

// OffsiteBackupJob uploads a tar.gz archive of all databases to the
// configured object store and rotates remote copies beyond the retention
// count.
type OffsiteBackupJob struct {
	offsite  OffsiteService
	settings JobSettings
	timeout  time.Duration
	log      zerolog.Logger
}

// NewOffsiteBackupJob creates a new OffsiteBackupJob
func NewOffsiteBackupJob(offsite OffsiteService, settings JobSettings, log zerolog.Logger) *OffsiteBackupJob {
	return &OffsiteBackupJob{
		offsite:  offsite,
		settings: settings,
		timeout:  30 * time.Minute,
		log:      log.With().Str("job", "offsite_backup").Logger(),
	}
}

// Name returns the job name
func (j *OffsiteBackupJob) Name() string {
	return "offsite_backup"
}

// Run executes the offsite upload and remote rotation
func (j *OffsiteBackupJob) Run() error {
	if j.offsite == nil {
		j.log.Debug().Msg("Offsite backup not configured, skipping")
		return nil
	}
	if !j.settings.Enabled("offsite_backup_enabled") {
		j.log.Info().Msg("Offsite backups disabled, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.offsite.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	keep := int(j.settings.Float("offsite_retention_count"))
	if err := j.offsite.RotateOldBackups(ctx, keep); err != nil {
		return fmt.Errorf("failed to rotate offsite backups: %w", err)
	}

	return nil
}
