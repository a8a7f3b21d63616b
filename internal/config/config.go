// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for databases, logs and backups (always absolute)
	WorkbookPath string // Site water-balance workbook (.xlsx)
	LogLevel     string
	LogDir       string // Defaults to <DataDir>/logs
	Port         int
	DevMode      bool

	// LogRetentionDays is how many days of rotated log files the startup
	// sweep keeps. The daily cleanup job reads the log_retention_days
	// setting instead once config.db is up.
	LogRetentionDays int

	// SheetLoadTimeout bounds the parallel workbook sheet loads.
	// Zero means no deadline.
	SheetLoadTimeout time.Duration

	Backup *BackupConfig
}

// BackupConfig holds local snapshot and offsite upload configuration.
type BackupConfig struct {
	Enabled     bool
	Dir         string        // snapshot directory, defaults to <DataDir>/backups
	Retain      int           // snapshots kept per database
	MinInterval time.Duration // throttle for pre-write safety snapshots

	// Offsite upload to an S3-compatible bucket. Credentials may be
	// overridden at runtime from the settings database.
	OffsiteEnabled bool
	S3Bucket       string
	S3Region       string
	S3Endpoint     string // non-AWS endpoints (MinIO etc.); empty for AWS
	S3AccessKeyID  string
	S3SecretKey    string
	S3Prefix       string
}

// SettingsSource supplies runtime overrides from the settings database.
// Satisfied by the settings repository; an interface here avoids the config
// package depending on a module package.
type SettingsSource interface {
	Get(key string) (*string, error)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check AQUA_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("AQUA_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logDir := getEnv("AQUA_LOG_DIR", "")
	if logDir == "" {
		logDir = filepath.Join(absDataDir, "logs")
	}

	cfg := &Config{
		DataDir:          absDataDir,
		WorkbookPath:     getEnv("AQUA_WORKBOOK", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogDir:           logDir,
		Port:             getEnvAsInt("AQUA_PORT", 8010),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		LogRetentionDays: getEnvAsInt("AQUA_LOG_RETENTION_DAYS", 90),
		SheetLoadTimeout: time.Duration(getEnvAsInt("AQUA_SHEET_LOAD_TIMEOUT_SECONDS", 0)) * time.Second,
		Backup:           loadBackupConfig(absDataDir),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings updates configuration from the settings database.
// This should be called after config.db is initialized. Non-empty settings
// values take precedence over environment variables.
func (c *Config) UpdateFromSettings(settings SettingsSource) error {
	// Hand-built configs may omit the backup block; overrides still need a
	// place to land.
	if c.Backup == nil {
		c.Backup = &BackupConfig{}
	}

	overrides := []struct {
		key    string
		target *string
	}{
		{"workbook_path", &c.WorkbookPath},
		{"s3_bucket_name", &c.Backup.S3Bucket},
		{"s3_region", &c.Backup.S3Region},
		{"s3_endpoint", &c.Backup.S3Endpoint},
		{"s3_access_key_id", &c.Backup.S3AccessKeyID},
		{"s3_secret_access_key", &c.Backup.S3SecretKey},
	}

	for _, o := range overrides {
		value, err := settings.Get(o.key)
		if err != nil {
			return fmt.Errorf("failed to get %s from settings: %w", o.key, err)
		}
		// Empty settings values keep the env var fallback.
		if value != nil && *value != "" {
			*o.target = *value
		}
	}

	if enabled, err := settings.Get("offsite_backup_enabled"); err == nil && enabled != nil {
		if v, perr := strconv.ParseBool(*enabled); perr == nil {
			c.Backup.OffsiteEnabled = v
		}
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	// The workbook path may arrive later from the settings database, so it
	// is not required at startup. The workbook service tolerates a missing
	// path and reports unloaded state.
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads backup configuration with defaults
func loadBackupConfig(dataDir string) *BackupConfig {
	return &BackupConfig{
		Enabled:        getEnvAsBool("AQUA_BACKUP_ENABLED", true),
		Dir:            getEnv("AQUA_BACKUP_DIR", filepath.Join(dataDir, "backups")),
		Retain:         getEnvAsInt("AQUA_BACKUP_RETAIN", 7),
		MinInterval:    time.Duration(getEnvAsInt("AQUA_BACKUP_MIN_INTERVAL_MINUTES", 10)) * time.Minute,
		OffsiteEnabled: getEnvAsBool("AQUA_OFFSITE_BACKUP_ENABLED", false),
		S3Bucket:       getEnv("AQUA_S3_BUCKET", ""),
		S3Region:       getEnv("AQUA_S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("AQUA_S3_ENDPOINT", ""),
		S3AccessKeyID:  getEnv("AQUA_S3_ACCESS_KEY_ID", ""),
		S3SecretKey:    getEnv("AQUA_S3_SECRET_KEY", ""),
		S3Prefix:       getEnv("AQUA_S3_PREFIX", "aquabalance"),
	}
}
