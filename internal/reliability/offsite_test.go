package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwater/aquabalance/internal/database"
)

type fakeStore struct {
	objects []RemoteObject
	uploads map[string][]byte
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, name string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[name] = data
	f.objects = append(f.objects, RemoteObject{Name: name, SizeBytes: int64(len(data))})
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]RemoteObject, error) {
	var out []RemoteObject
	for _, obj := range f.objects {
		if strings.HasPrefix(obj.Name, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	var kept []RemoteObject
	for _, obj := range f.objects {
		if obj.Name != name {
			kept = append(kept, obj)
		}
	}
	f.objects = kept
	return nil
}

func archiveName(ts string) string {
	return archivePrefix + ts + ".tar.gz"
}

func TestOffsiteCreateAndUploadBackup(t *testing.T) {
	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")
	backupDir := filepath.Join(tempDir, "backups")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	waterDB := newSiteDB(t, dataDir, "water")
	_, err := waterDB.Conn().Exec("CREATE TABLE readings (id INTEGER PRIMARY KEY, value REAL)")
	require.NoError(t, err)
	_, err = waterDB.Conn().Exec("INSERT INTO readings (value) VALUES (41000)")
	require.NoError(t, err)

	configDB := newSiteDB(t, dataDir, "config")
	_, err = configDB.Conn().Exec("CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT)")
	require.NoError(t, err)

	backups := NewBackupService(map[string]*database.DB{
		"water":  waterDB,
		"config": configDB,
	}, backupDir, 5, 10*time.Minute, zerolog.Nop())

	store := newFakeStore()
	svc := NewOffsiteBackupService(store, backups, dataDir, zerolog.Nop())

	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	// Staging is cleaned up after the upload.
	_, err = os.Stat(filepath.Join(dataDir, "offsite-staging"))
	assert.True(t, os.IsNotExist(err))

	require.Len(t, store.uploads, 1)
	var name string
	var data []byte
	for n, d := range store.uploads {
		name, data = n, d
	}
	assert.True(t, strings.HasPrefix(name, archivePrefix))
	assert.True(t, strings.HasSuffix(name, ".tar.gz"))

	// Unpack the archive and check every member against the manifest.
	gzipReader, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tarReader := tar.NewReader(gzipReader)

	files := map[string][]byte{}
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tarReader)
		require.NoError(t, err)
		files[header.Name] = content
	}

	require.Contains(t, files, "water.db")
	require.Contains(t, files, "config.db")
	require.Contains(t, files, manifestFilename)

	var manifest ArchiveManifest
	require.NoError(t, json.Unmarshal(files[manifestFilename], &manifest))
	assert.Equal(t, manifestVersion, manifest.Version)
	require.Len(t, manifest.Databases, 2)
	assert.Equal(t, "config", manifest.Databases[0].Name)
	assert.Equal(t, "water", manifest.Databases[1].Name)

	for _, db := range manifest.Databases {
		content, ok := files[db.Filename]
		require.True(t, ok, "archive is missing %s", db.Filename)
		assert.Equal(t, int64(len(content)), db.SizeBytes)
		assert.Equal(t, fmt.Sprintf("sha256:%x", sha256.Sum256(content)), db.SHA256)
	}
}

func TestOffsiteListBackups(t *testing.T) {
	store := newFakeStore()
	store.objects = []RemoteObject{
		{Name: archiveName("2026-01-05-010000"), SizeBytes: 100},
		{Name: archiveName("2026-02-01-013000"), SizeBytes: 200},
		{Name: archivePrefix + "latest.tar.gz", SizeBytes: 50},
	}

	backups := NewBackupService(map[string]*database.DB{}, t.TempDir(), 5, 10*time.Minute, zerolog.Nop())
	svc := NewOffsiteBackupService(store, backups, t.TempDir(), zerolog.Nop())

	list, err := svc.ListBackups(context.Background())
	require.NoError(t, err)

	// The unparsable name is skipped, the rest come back newest first.
	require.Len(t, list, 2)
	assert.Equal(t, archiveName("2026-02-01-013000"), list[0].Filename)
	assert.Equal(t, int64(200), list[0].SizeBytes)
	assert.True(t, list[0].Timestamp.Equal(time.Date(2026, 2, 1, 1, 30, 0, 0, time.UTC)))
	assert.Equal(t, archiveName("2026-01-05-010000"), list[1].Filename)
}

func TestOffsiteRotateOldBackups(t *testing.T) {
	newStore := func(count int) *fakeStore {
		store := newFakeStore()
		for i := 1; i <= count; i++ {
			store.objects = append(store.objects, RemoteObject{
				Name: archiveName(fmt.Sprintf("2026-%02d-01-010000", i)),
			})
		}
		return store
	}

	backups := NewBackupService(map[string]*database.DB{}, t.TempDir(), 5, 10*time.Minute, zerolog.Nop())

	t.Run("deletes archives beyond the retention count", func(t *testing.T) {
		store := newStore(5)
		svc := NewOffsiteBackupService(store, backups, t.TempDir(), zerolog.Nop())

		require.NoError(t, svc.RotateOldBackups(context.Background(), 2))

		assert.ElementsMatch(t, []string{
			archiveName("2026-01-01-010000"),
			archiveName("2026-02-01-010000"),
			archiveName("2026-03-01-010000"),
		}, store.deleted)

		remaining, err := svc.ListBackups(context.Background())
		require.NoError(t, err)
		require.Len(t, remaining, 2)
		assert.Equal(t, archiveName("2026-05-01-010000"), remaining[0].Filename)
	})

	t.Run("keeps everything within the retention count", func(t *testing.T) {
		store := newStore(2)
		svc := NewOffsiteBackupService(store, backups, t.TempDir(), zerolog.Nop())

		require.NoError(t, svc.RotateOldBackups(context.Background(), 5))
		assert.Empty(t, store.deleted)
	})

	t.Run("keep zero disables rotation", func(t *testing.T) {
		store := newStore(4)
		svc := NewOffsiteBackupService(store, backups, t.TempDir(), zerolog.Nop())

		require.NoError(t, svc.RotateOldBackups(context.Background(), 0))
		assert.Empty(t, store.deleted)
	})
}
