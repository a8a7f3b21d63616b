package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// AlertSweepJob re-runs auto-resolution for alerts raised in past periods
// whose metric can no longer be observed. Runs hourly.
type AlertSweepJob struct {
	sweeper  StaleAlertSweeper
	settings JobSettings
	log      zerolog.Logger
	now      func() time.Time
}

// NewAlertSweepJob creates a new AlertSweepJob
func NewAlertSweepJob(sweeper StaleAlertSweeper, settings JobSettings, log zerolog.Logger) *AlertSweepJob {
	return &AlertSweepJob{
		sweeper:  sweeper,
		settings: settings,
		log:      log.With().Str("job", "alert_sweep").Logger(),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *AlertSweepJob) Name() string {
	return "alert_sweep"
}

// Run executes the stale alert sweep
func (j *AlertSweepJob) Run() error {
	if !j.settings.Enabled("alert_sweep_enabled") {
		j.log.Debug().Msg("Alert sweep disabled, skipping")
		return nil
	}

	t := j.now()
	current := domain.CalculationPeriod{Year: t.Year(), Month: int(t.Month())}

	resolved, err := j.sweeper.SweepStale(current)
	if err != nil {
		return fmt.Errorf("failed to sweep stale alerts: %w", err)
	}

	if resolved > 0 {
		j.log.Info().
			Int("resolved", resolved).
			Str("current_period", current.String()).
			Msg("Resolved stale auto-resolve alerts")
	}

	return nil
}
