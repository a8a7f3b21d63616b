package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/logging"
)

// LogCleanupJob removes rotated log files past the retention window.
type LogCleanupJob struct {
	logDir   string
	settings JobSettings
	log      zerolog.Logger
}

// NewLogCleanupJob creates a new LogCleanupJob
func NewLogCleanupJob(logDir string, settings JobSettings, log zerolog.Logger) *LogCleanupJob {
	return &LogCleanupJob{
		logDir:   logDir,
		settings: settings,
		log:      log.With().Str("job", "log_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *LogCleanupJob) Name() string {
	return "log_cleanup"
}

// Run deletes log files older than log_retention_days. A retention of zero
// keeps everything.
func (j *LogCleanupJob) Run() error {
	days := int(j.settings.Float("log_retention_days"))
	if days <= 0 {
		j.log.Debug().Msg("Log retention disabled, skipping cleanup")
		return nil
	}

	removed, err := logging.CleanupOldLogs(j.logDir, time.Duration(days)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to clean up old logs: %w", err)
	}

	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Int("retention_days", days).
			Msg("Removed old log files")
	}

	return nil
}
