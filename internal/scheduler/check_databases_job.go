package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/database"
)

// CheckDatabasesJob verifies integrity of the durable site databases.
// cache.db is excluded: it is rebuilt from the workbook on demand.
type CheckDatabasesJob struct {
	log      zerolog.Logger
	waterDB  *database.DB
	configDB *database.DB
	alertsDB *database.DB
}

// NewCheckDatabasesJob creates a new CheckDatabasesJob
func NewCheckDatabasesJob(waterDB, configDB, alertsDB *database.DB) *CheckDatabasesJob {
	return &CheckDatabasesJob{
		log:      zerolog.Nop(),
		waterDB:  waterDB,
		configDB: configDB,
		alertsDB: alertsDB,
	}
}

// SetLogger sets the logger for the job
func (j *CheckDatabasesJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CheckDatabasesJob) Name() string {
	return "check_databases"
}

// Run executes the database integrity check
func (j *CheckDatabasesJob) Run() error {
	databases := map[string]*database.DB{
		"water":  j.waterDB,
		"config": j.configDB,
		"alerts": j.alertsDB,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for name, db := range databases {
		if db == nil {
			j.log.Warn().Str("database", name).Msg("Database not initialized, skipping")
			continue
		}

		if err := db.HealthCheck(ctx); err != nil {
			// Corruption in the durable databases cannot be auto-recovered;
			// surface it so the operator restores from a snapshot.
			j.log.Error().
				Err(err).
				Str("database", name).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", name, err)
		}

		j.log.Debug().Str("database", name).Msg("Database integrity OK")
	}

	j.log.Info().Msg("All database integrity checks passed")
	return nil
}
