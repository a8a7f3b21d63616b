// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/config"
	"github.com/tailwater/aquabalance/internal/database"
)

// InitializeDatabases initializes all 4 databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. water.db - Operational water data (facilities, history, parameters, results)
	waterDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/water.db",
		Profile: database.ProfileLedger, // Maximum safety for the regulatory record
		Name:    "water",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize water database: %w", err)
	}
	container.WaterDB = waterDB

	// 2. config.db - Application configuration (settings, system constants)
	configDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/config.db",
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		waterDB.Close()
		return nil, fmt.Errorf("failed to initialize config database: %w", err)
	}
	container.ConfigDB = configDB

	// 3. alerts.db - Alert rules and raised alerts
	alertsDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/alerts.db",
		Profile: database.ProfileStandard,
		Name:    "alerts",
	})
	if err != nil {
		waterDB.Close()
		configDB.Close()
		return nil, fmt.Errorf("failed to initialize alerts database: %w", err)
	}
	container.AlertsDB = alertsDB

	// 4. cache.db - Computed records and results, rebuildable from the workbook
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache, // Maximum speed for ephemeral data
		Name:    "cache",
	})
	if err != nil {
		waterDB.Close()
		configDB.Close()
		alertsDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// Apply schemas to all databases (single source of truth)
	for _, db := range []*database.DB{waterDB, configDB, alertsDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			// Cleanup on error
			waterDB.Close()
			configDB.Close()
			alertsDB.Close()
			cacheDB.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
