package cache

import (
	"github.com/rs/zerolog"
)

// SignatureSource reports the workbook path and the signature of its
// current content. Implemented by the workbook repository.
type SignatureSource interface {
	Path() string
	CurrentSignature() string
}

// SweepJob removes cache entries left behind by superseded workbook saves.
// The signature check on read already makes them unreachable; the sweep
// keeps cache.db from growing without bound. Scheduled weekly.
type SweepJob struct {
	storage  *StorageRecordCache
	balance  *BalanceCache
	workbook SignatureSource
	log      zerolog.Logger
}

// NewSweepJob creates a new cache sweep job.
func NewSweepJob(storage *StorageRecordCache, balance *BalanceCache, workbook SignatureSource, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		storage:  storage,
		balance:  balance,
		workbook: workbook,
		log:      log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *SweepJob) Name() string {
	return "cache_sweep"
}

// Run deletes entries whose signature no longer matches the loaded
// workbook. With no loaded workbook there is nothing authoritative to
// sweep against, so the job is a no-op.
func (j *SweepJob) Run() error {
	sig := j.workbook.CurrentSignature()
	if sig == "" {
		j.log.Debug().Msg("No loaded workbook, skipping cache sweep")
		return nil
	}

	removed, err := j.storage.PurgeStaleSignatures(j.workbook.Path(), sig)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to sweep storage record cache")
		return err
	}

	balanceRemoved, err := j.balance.PurgeStale(sig)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to sweep balance cache")
		return err
	}

	if removed > 0 || balanceRemoved > 0 {
		j.log.Info().
			Int("storage_records", removed).
			Int("balance_results", balanceRemoved).
			Msg("Swept stale cache entries")
	}
	return nil
}
