package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// MonthlyBalanceJob computes the previous month's water balance in the
// configured default mode. Scheduled for 02:00 on day 2 so late meter
// readings entered on the 1st are included.
type MonthlyBalanceJob struct {
	computer BalanceComputer
	settings JobSettings
	log      zerolog.Logger
	now      func() time.Time
}

// NewMonthlyBalanceJob creates a new MonthlyBalanceJob
func NewMonthlyBalanceJob(computer BalanceComputer, settings JobSettings, log zerolog.Logger) *MonthlyBalanceJob {
	return &MonthlyBalanceJob{
		computer: computer,
		settings: settings,
		log:      log.With().Str("job", "monthly_balance").Logger(),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *MonthlyBalanceJob) Name() string {
	return "monthly_balance"
}

// Run executes the scheduled monthly compute
func (j *MonthlyBalanceJob) Run() error {
	if !j.settings.Enabled("scheduled_compute_enabled") {
		j.log.Info().Msg("Scheduled compute disabled, skipping")
		return nil
	}

	mode, err := j.settings.DefaultBalanceMode()
	if err != nil {
		return fmt.Errorf("failed to read default balance mode: %w", err)
	}

	period := previousPeriod(j.now())

	j.log.Info().
		Str("period", period.String()).
		Str("mode", string(mode)).
		Msg("Computing scheduled monthly balance")

	result, err := j.computer.Compute(period, mode)
	if err != nil {
		return fmt.Errorf("failed to compute balance for %s: %w", period.String(), err)
	}

	j.log.Info().
		Str("period", period.String()).
		Str("status", string(result.Status)).
		Float64("error_pct", result.ErrorPct).
		Msg("Scheduled monthly balance computed")

	return nil
}

// previousPeriod returns the calendar month before t. Going through the last
// day of the previous month avoids AddDate's day normalization.
func previousPeriod(t time.Time) domain.CalculationPeriod {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	prev := firstOfMonth.AddDate(0, 0, -1)
	return domain.CalculationPeriod{Year: prev.Year(), Month: int(prev.Month())}
}
