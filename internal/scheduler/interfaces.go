package scheduler

import (
	"context"

	"github.com/tailwater/aquabalance/internal/domain"
)

// BalanceComputer runs a balance computation for one period.
// Used by scheduler to enable testing with mocks
type BalanceComputer interface {
	Compute(period domain.CalculationPeriod, mode domain.BalanceMode) (*domain.BalanceResult, error)
}

// JobSettings exposes the runtime flags and numbers jobs consult.
// Satisfied by the settings service.
type JobSettings interface {
	Enabled(key string) bool
	Float(key string) float64
	DefaultBalanceMode() (domain.BalanceMode, error)
}

// StaleAlertSweeper resolves auto-resolve alerts left over from past periods.
// Used by scheduler to enable testing with mocks
type StaleAlertSweeper interface {
	SweepStale(current domain.CalculationPeriod) (int, error)
}

// SnapshotService is the local backup surface the daily backup job drives.
// Used by scheduler to enable testing with mocks
type SnapshotService interface {
	SnapshotAll() error
	PruneBackups(keep int) error
}

// OffsiteService is the offsite backup surface.
// Used by scheduler to enable testing with mocks
type OffsiteService interface {
	CreateAndUploadBackup(ctx context.Context) error
	RotateOldBackups(ctx context.Context, keep int) error
}
