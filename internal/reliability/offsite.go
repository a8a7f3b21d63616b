package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archivePrefix     = "aquabalance-backup-"
	archiveTimeFormat = "2006-01-02-150405"
	manifestFilename  = "manifest.json"
	manifestVersion   = "1.0.0"
)

// ObjectStore is the remote side of the offsite backup. Satisfied by S3Client.
type ObjectStore interface {
	Upload(ctx context.Context, name string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]RemoteObject, error)
	Delete(ctx context.Context, name string) error
}

// ArchiveManifest describes the databases bundled in an offsite archive.
type ArchiveManifest struct {
	CreatedAt time.Time          `json:"created_at"`
	Version   string             `json:"version"`
	Databases []DatabaseManifest `json:"databases"`
}

// DatabaseManifest records one database file inside the archive.
type DatabaseManifest struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// BackupInfo describes one archive stored offsite.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// OffsiteBackupService bundles fresh database snapshots into a tar.gz archive
// with a checksum manifest and uploads it to an object store.
type OffsiteBackupService struct {
	store   ObjectStore
	backups *BackupService
	dataDir string
	log     zerolog.Logger
}

// NewOffsiteBackupService creates an offsite backup service.
func NewOffsiteBackupService(
	store ObjectStore,
	backups *BackupService,
	dataDir string,
	log zerolog.Logger,
) *OffsiteBackupService {
	return &OffsiteBackupService{
		store:   store,
		backups: backups,
		dataDir: dataDir,
		log:     log.With().Str("service", "offsite_backup").Logger(),
	}
}

// CreateAndUploadBackup snapshots every database into a staging directory,
// bundles the copies with a manifest into one tar.gz and uploads it.
func (s *OffsiteBackupService) CreateAndUploadBackup(ctx context.Context) error {
	s.log.Info().Msg("Starting offsite backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "offsite-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	archivePath, archiveName, err := s.stageArchive(stagingDir)
	if err != nil {
		return err
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, archiveName, archiveFile); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("Offsite backup completed")

	return nil
}

// stageArchive writes per-database copies plus the manifest into stagingDir
// and bundles them into a timestamped tar.gz. Returns the archive path and
// its object name.
func (s *OffsiteBackupService) stageArchive(stagingDir string) (string, string, error) {
	names := s.backups.DatabaseNames()
	manifest := ArchiveManifest{
		CreatedAt: time.Now().UTC(),
		Version:   manifestVersion,
		Databases: make([]DatabaseManifest, 0, len(names)),
	}

	filenames := make([]string, 0, len(names)+1)
	for _, name := range names {
		filename := name + ".db"
		dbPath := filepath.Join(stagingDir, filename)

		if err := s.backups.BackupDatabase(name, dbPath); err != nil {
			return "", "", fmt.Errorf("failed to stage %s: %w", name, err)
		}

		info, err := os.Stat(dbPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat staged %s: %w", name, err)
		}

		checksum, err := sha256File(dbPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to checksum staged %s: %w", name, err)
		}

		manifest.Databases = append(manifest.Databases, DatabaseManifest{
			Name:      name,
			Filename:  filename,
			SizeBytes: info.Size(),
			SHA256:    checksum,
		})
		filenames = append(filenames, filename)
	}

	manifestPath := filepath.Join(stagingDir, manifestFilename)
	if err := writeManifest(manifestPath, manifest); err != nil {
		return "", "", fmt.Errorf("failed to write manifest: %w", err)
	}
	filenames = append(filenames, manifestFilename)

	archiveName := archivePrefix + time.Now().Format(archiveTimeFormat) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, filenames); err != nil {
		return "", "", fmt.Errorf("failed to create archive: %w", err)
	}

	return archivePath, archiveName, nil
}

// ListBackups lists the archives stored offsite, newest first.
func (s *OffsiteBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list offsite backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if !strings.HasPrefix(obj.Name, archivePrefix) || !strings.HasSuffix(obj.Name, ".tar.gz") {
			continue
		}

		timestampStr := strings.TrimPrefix(obj.Name, archivePrefix)
		timestampStr = strings.TrimSuffix(timestampStr, ".tar.gz")

		timestamp, err := time.Parse(archiveTimeFormat, timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", obj.Name).Msg("Failed to parse timestamp from archive name")
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  obj.Name,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes offsite archives beyond the retention count,
// oldest first. keep <= 0 keeps everything.
func (s *OffsiteBackupService) RotateOldBackups(ctx context.Context, keep int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if keep <= 0 || len(backups) <= keep {
		s.log.Info().
			Int("count", len(backups)).
			Int("keep", keep).
			Msg("No offsite backups to rotate")
		return nil
	}

	deleted := 0
	for _, backup := range backups[keep:] {
		if err := s.store.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().
				Err(err).
				Str("filename", backup.Filename).
				Msg("Failed to delete old offsite backup")
			continue
		}

		s.log.Info().
			Str("filename", backup.Filename).
			Time("timestamp", backup.Timestamp).
			Msg("Deleted old offsite backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Offsite backup rotation completed")

	return nil
}

// sha256File hashes a file's contents.
func sha256File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeManifest writes the archive manifest as indented JSON.
func writeManifest(path string, manifest ArchiveManifest) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(manifest)
}

// createArchive bundles the named files from sourceDir into a tar.gz.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}

	return nil
}

// addFileToArchive appends a single file to a tar stream.
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}

	return nil
}
