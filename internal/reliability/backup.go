// Package reliability provides local database snapshots and offsite
// archive uploads for the site databases.
package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/database"
)

// snapshotTimeFormat names snapshot files down to the second. Pre-write
// snapshots are throttled well above that resolution.
const snapshotTimeFormat = "2006-01-02_150405"

// BackupService creates local snapshots of the site databases using SQLite's
// VACUUM INTO. Snapshots land in the backup directory as <name>_<timestamp>.db
// and are pruned to a per-database retention count.
type BackupService struct {
	databases   map[string]*database.DB
	backupDir   string
	retain      int
	minInterval time.Duration

	mu           sync.Mutex
	lastSnapshot map[string]time.Time

	log zerolog.Logger
	now func() time.Time
}

// NewBackupService creates a backup service over the given databases.
// retain bounds the number of snapshots kept per database and minInterval
// throttles pre-write snapshots.
func NewBackupService(
	databases map[string]*database.DB,
	backupDir string,
	retain int,
	minInterval time.Duration,
	log zerolog.Logger,
) *BackupService {
	if retain <= 0 {
		retain = 30
	}
	if minInterval <= 0 {
		minInterval = 10 * time.Minute
	}
	return &BackupService{
		databases:    databases,
		backupDir:    backupDir,
		retain:       retain,
		minInterval:  minInterval,
		lastSnapshot: make(map[string]time.Time),
		log:          log.With().Str("service", "backup").Logger(),
		now:          time.Now,
	}
}

// DatabaseNames returns the registered database names in stable order.
func (s *BackupService) DatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BackupDatabase writes a verified copy of a single database to destPath
// using VACUUM INTO. A copy that fails the integrity check is removed.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("database %s not found", name)
	}

	s.log.Debug().
		Str("database", name).
		Str("backup_path", destPath).
		Msg("Backing up database")

	// VACUUM INTO produces a fresh, checkpointed copy without WAL files.
	if _, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("VACUUM INTO failed for %s: %w", name, err)
	}

	if err := s.verifyBackup(destPath); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("backup verification failed for %s: %w", name, err)
	}

	return nil
}

// Snapshot writes a timestamped snapshot of one database into the backup
// directory and prunes that database's older snapshots. Returns the path of
// the new snapshot.
func (s *BackupService) Snapshot(name string) (string, error) {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupName := fmt.Sprintf("%s_%s.db", name, s.now().Format(snapshotTimeFormat))
	backupPath := filepath.Join(s.backupDir, backupName)

	if err := s.BackupDatabase(name, backupPath); err != nil {
		return "", err
	}

	if err := s.pruneDatabase(name, s.retain); err != nil {
		s.log.Warn().Err(err).Str("database", name).Msg("Failed to prune old snapshots")
	}

	s.log.Info().
		Str("database", name).
		Str("backup_path", backupPath).
		Msg("Snapshot created")

	return backupPath, nil
}

// SnapshotAll snapshots every registered database. A failure on one database
// is logged and the remaining databases are still backed up.
func (s *BackupService) SnapshotAll() error {
	s.log.Info().Msg("Starting snapshot of all databases")
	startTime := time.Now()

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	for _, name := range s.DatabaseNames() {
		if _, err := s.Snapshot(name); err != nil {
			s.log.Error().
				Str("database", name).
				Err(err).
				Msg("Failed to snapshot database")
			continue
		}
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("backup_dir", s.backupDir).
		Msg("Snapshots completed")

	return nil
}

// BackupBeforeWrite snapshots a database ahead of a destructive write.
// Snapshots for the same database are throttled to one per minInterval so
// bursts of edits do not flood the backup directory.
func (s *BackupService) BackupBeforeWrite(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastSnapshot[name]; ok && s.now().Sub(last) < s.minInterval {
		s.log.Debug().
			Str("database", name).
			Time("last_snapshot", last).
			Msg("Skipping pre-write snapshot, recent one exists")
		return nil
	}

	if _, err := s.Snapshot(name); err != nil {
		return err
	}

	s.lastSnapshot[name] = s.now()
	return nil
}

// PruneBackups trims every database's snapshots down to keep files, deleting
// the oldest first. keep <= 0 keeps everything.
func (s *BackupService) PruneBackups(keep int) error {
	if keep <= 0 {
		return nil
	}
	for _, name := range s.DatabaseNames() {
		if err := s.pruneDatabase(name, keep); err != nil {
			return err
		}
	}
	return nil
}

// pruneDatabase deletes the oldest snapshots of one database beyond keep.
func (s *BackupService) pruneDatabase(name string, keep int) error {
	if keep <= 0 {
		return nil
	}

	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	type snapshot struct {
		path    string
		modTime time.Time
	}

	prefix := name + "_"
	var snapshots []snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snapshot{
			path:    filepath.Join(s.backupDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	if len(snapshots) <= keep {
		return nil
	}

	// Newest first, delete the tail.
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].modTime.After(snapshots[j].modTime)
	})

	for _, old := range snapshots[keep:] {
		if err := os.Remove(old.path); err != nil {
			s.log.Warn().
				Str("path", old.path).
				Err(err).
				Msg("Failed to delete old snapshot")
			continue
		}
		s.log.Debug().
			Str("path", old.path).
			Msg("Deleted old snapshot")
	}

	return nil
}

// verifyBackup opens a snapshot and runs SQLite's integrity check on it.
func (s *BackupService) verifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}
