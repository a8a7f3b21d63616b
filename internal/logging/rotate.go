// Package logging implements the asynchronous log sink: a bounded queue
// drained by a single worker, writing to files that rotate on size or time,
// with age-based cleanup of old files.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationInterval selects the time component of the hybrid rotation policy.
type RotationInterval string

const (
	RotateDaily   RotationInterval = "daily"
	RotateWeekly  RotationInterval = "weekly"
	RotateMonthly RotationInterval = "monthly"
)

// RotatingFileConfig configures a RotatingFile sink.
type RotatingFileConfig struct {
	Path        string           // log file path; rotated files live beside it
	MaxBytes    int64            // size threshold (default 10 MiB)
	Interval    RotationInterval // time threshold (default daily)
	BackupCount int              // rotated files retained (default 7)
}

// RotatingFile is an io.Writer that rotates the underlying file when either
// the size threshold or the time interval is reached. Rotated files are
// renamed with a dated suffix (YYYY-MM-DD) and the oldest beyond BackupCount
// are deleted.
type RotatingFile struct {
	mu       sync.Mutex
	cfg      RotatingFileConfig
	file     *os.File
	size     int64
	openedAt time.Time

	// now is replaceable for tests.
	now func() time.Time
}

// NewRotatingFile opens (creating if needed) the log file and returns the sink.
func NewRotatingFile(cfg RotatingFileConfig) (*RotatingFile, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("rotating file: path is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.Interval == "" {
		cfg.Interval = RotateDaily
	}
	if cfg.BackupCount <= 0 {
		cfg.BackupCount = 7
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("rotating file: create log directory: %w", err)
	}

	w := &RotatingFile{cfg: cfg, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFile) open() error {
	f, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("rotating file: open %s: %w", w.cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("rotating file: stat %s: %w", w.cfg.Path, err)
	}
	w.file = f
	w.size = info.Size()
	w.openedAt = w.now()
	return nil
}

// Write appends one record, rotating first when a threshold is reached.
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shouldRotate(int64(len(p))) {
		if err := w.rotate(); err != nil {
			// Rotation failure must not lose the record; keep appending to
			// the oversized file and surface the error to the caller.
			n, werr := w.file.Write(p)
			w.size += int64(n)
			if werr != nil {
				return n, werr
			}
			return n, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// shouldRotate applies the hybrid policy: rotate when the next record would
// cross the size threshold, or when the configured interval has elapsed
// since the file was opened.
func (w *RotatingFile) shouldRotate(incoming int64) bool {
	if w.size > 0 && w.size+incoming > w.cfg.MaxBytes {
		return true
	}
	return w.intervalElapsed(w.now())
}

func (w *RotatingFile) intervalElapsed(now time.Time) bool {
	switch w.cfg.Interval {
	case RotateWeekly:
		return now.Sub(w.openedAt) >= 7*24*time.Hour
	case RotateMonthly:
		return now.Sub(w.openedAt) >= 30*24*time.Hour
	default: // daily: rotate when the calendar day changes
		oy, om, od := w.openedAt.Date()
		ny, nm, nd := now.Date()
		return oy != ny || om != nm || od != nd
	}
}

// rotate renames the current file to a dated backup and reopens a fresh one.
// The suffix carries the day the file was opened, so contents and label agree
// when rotation fires just past an interval boundary.
func (w *RotatingFile) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("rotating file: close before rotate: %w", err)
	}

	target := w.backupName(w.openedAt)
	if err := os.Rename(w.cfg.Path, target); err != nil {
		// Reopen regardless; losing rotation is better than losing logging.
		if openErr := w.open(); openErr != nil {
			return openErr
		}
		return fmt.Errorf("rotating file: rename to %s: %w", target, err)
	}

	w.pruneBackups()
	return w.open()
}

// backupName builds "<path>.<YYYY-MM-DD>", appending ".N" when the dated
// name is already taken (several size rotations on one day).
func (w *RotatingFile) backupName(now time.Time) string {
	base := w.cfg.Path + "." + now.Format("2006-01-02")
	name := base
	for n := 1; ; n++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s.%d", base, n)
	}
}

// pruneBackups deletes rotated files beyond BackupCount, oldest first.
func (w *RotatingFile) pruneBackups() {
	backups := w.listBackups()
	if len(backups) <= w.cfg.BackupCount {
		return
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.Before(backups[j].modTime)
	})
	for _, b := range backups[:len(backups)-w.cfg.BackupCount] {
		_ = os.Remove(b.path)
	}
}

type backupFile struct {
	path    string
	modTime time.Time
}

func (w *RotatingFile) listBackups() []backupFile {
	dir := filepath.Dir(w.cfg.Path)
	prefix := filepath.Base(w.cfg.Path) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var backups []backupFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{
			path:    filepath.Join(dir, e.Name()),
			modTime: info.ModTime(),
		})
	}
	return backups
}

// Close flushes and closes the underlying file.
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// CleanupOldLogs deletes files in dir older than maxAge by modification
// time. It runs once at logger init (90-day default retention) and returns
// the number of files removed.
func CleanupOldLogs(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("log cleanup: read %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
