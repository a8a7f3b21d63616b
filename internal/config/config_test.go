package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithEnv(t *testing.T, env map[string]string) *Config {
	t.Helper()
	t.Setenv("AQUA_DATA_DIR", t.TempDir())
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadWithEnv(t, nil)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 90, cfg.LogRetentionDays)
	assert.False(t, cfg.DevMode)
	require.NotNil(t, cfg.Backup)
	assert.Equal(t, 7, cfg.Backup.Retain)
}

func TestLoad_LogRetentionFromEnv(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{"AQUA_LOG_RETENTION_DAYS": "30"})
	assert.Equal(t, 30, cfg.LogRetentionDays)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := &Config{Port: 0}
	assert.Error(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg.Port = 8010
	assert.NoError(t, cfg.Validate())
}
