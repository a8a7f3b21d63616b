package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agedRotatedFile(t *testing.T, dir string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(dir, "app.log.2025-06-01")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(p, old, old))
	return p
}

func TestNewWithFile_SweepsRotatedFilesPastRetention(t *testing.T) {
	dir := t.TempDir()
	stale := agedRotatedFile(t, dir, 45*24*time.Hour)

	l, closer, err := NewWithFile(Config{
		Level:         "info",
		FilePath:      filepath.Join(dir, "app.log"),
		RetentionDays: 30,
	})
	require.NoError(t, err)
	l.Info().Msg("started")
	require.NoError(t, closer.Close())

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "rotated file past retention survives startup")
}

func TestNewWithFile_KeepsRotatedFilesWithinRetention(t *testing.T) {
	dir := t.TempDir()
	recent := agedRotatedFile(t, dir, 45*24*time.Hour)

	_, closer, err := NewWithFile(Config{
		Level:         "info",
		FilePath:      filepath.Join(dir, "app.log"),
		RetentionDays: 90,
	})
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	_, err = os.Stat(recent)
	assert.NoError(t, err)
}
