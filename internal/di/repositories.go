// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/cache"
	"github.com/tailwater/aquabalance/internal/config"
	"github.com/tailwater/aquabalance/internal/modules/alerts"
	"github.com/tailwater/aquabalance/internal/modules/balance"
	"github.com/tailwater/aquabalance/internal/modules/constants"
	"github.com/tailwater/aquabalance/internal/modules/environmental"
	"github.com/tailwater/aquabalance/internal/modules/facilities"
	"github.com/tailwater/aquabalance/internal/modules/monthly"
	"github.com/tailwater/aquabalance/internal/modules/settings"
	"github.com/tailwater/aquabalance/internal/workbook"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Facility registry (needs waterDB)
	container.FacilityRepo = facilities.NewRepository(
		container.WaterDB.Conn(),
		log,
	)

	// Facility monthly history (needs waterDB)
	container.FacilityHistoryRepo = facilities.NewHistoryRepository(
		container.WaterDB.Conn(),
		log,
	)

	// Inter-facility transfers (needs waterDB)
	container.TransferRepo = facilities.NewTransferRepository(
		container.WaterDB.Conn(),
		log,
	)

	// Manual monthly parameters (needs waterDB)
	container.MonthlyRepo = monthly.NewRepository(
		container.WaterDB.Conn(),
		log,
	)

	// Environmental fallback records (needs waterDB)
	container.EnvironmentalRepo = environmental.NewRepository(
		container.WaterDB.Conn(),
		log,
	)

	// Balance results (needs waterDB)
	container.ResultRepo = balance.NewResultRepository(
		container.WaterDB.Conn(),
		log,
	)

	// System constants (needs configDB)
	container.ConstantsRepo = constants.NewRepository(
		container.ConfigDB.Conn(),
		log,
	)

	// Settings repository (needs configDB)
	container.SettingsRepo = settings.NewRepository(
		container.ConfigDB.Conn(),
		log,
	)

	// Settings-database overrides (workbook path, S3 credentials) must land
	// before the workbook repository and the S3 client are constructed.
	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		return fmt.Errorf("failed to apply settings overrides: %w", err)
	}

	// Alert rules and raised alerts (need alertsDB)
	container.AlertRuleRepo = alerts.NewRuleRepository(
		container.AlertsDB.Conn(),
		log,
	)
	container.AlertRepo = alerts.NewAlertRepository(
		container.AlertsDB.Conn(),
		log,
	)

	// Persistent computation caches (need cacheDB)
	container.StorageCache = cache.NewStorageRecordCache(
		container.CacheDB.Conn(),
		log,
	)
	container.BalanceCache = cache.NewBalanceCache(
		container.CacheDB.Conn(),
		log,
	)

	// Workbook time-series repository. The workbook is loaded lazily so a
	// missing or unreadable file degrades the API instead of aborting startup.
	container.WorkbookRepo = workbook.NewRepository(
		cfg.WorkbookPath,
		cfg.SheetLoadTimeout,
		log,
	)

	log.Info().Msg("All repositories initialized")

	return nil
}
