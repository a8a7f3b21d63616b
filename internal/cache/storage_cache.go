// Package cache provides the persistent calculation caches backed by
// cache.db. Entries are msgpack blobs addressed by workbook signature, so
// a stale entry can never be served after the workbook changes.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tailwater/aquabalance/internal/domain"
)

// StorageKey addresses one cached per-facility monthly record.
type StorageKey struct {
	WorkbookPath string
	FacilityCode string
	Year         int
	Month        int
	Signature    string
}

// StorageRecordCache is the write-through disk cache for storage
// calculator results. Reads that miss return (nil, nil).
type StorageRecordCache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStorageRecordCache creates the cache over cache.db.
func NewStorageRecordCache(db *sql.DB, log zerolog.Logger) *StorageRecordCache {
	return &StorageRecordCache{
		db:  db,
		log: log.With().Str("component", "storage_cache").Logger(),
	}
}

// Get returns the cached record for the key, or (nil, nil) on miss. The
// signature is part of the key: an entry computed against an older save of
// the workbook can never match.
func (c *StorageRecordCache) Get(key StorageKey) (*domain.StorageRecord, error) {
	var payload []byte
	err := c.db.QueryRow(`
		SELECT payload FROM storage_records
		WHERE workbook_path = ? AND facility_code = ? AND year = ? AND month = ? AND excel_signature = ?
	`, key.WorkbookPath, key.FacilityCode, key.Year, key.Month, key.Signature).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage cache: %w", err)
	}

	var record domain.StorageRecord
	if err := msgpack.Unmarshal(payload, &record); err != nil {
		// A corrupt payload is treated as a miss; the entry is replaced on
		// the next write-through.
		c.log.Warn().Err(err).
			Str("facility", key.FacilityCode).
			Int("year", key.Year).
			Int("month", key.Month).
			Msg("Corrupt cache payload, treating as miss")
		return nil, nil
	}
	return &record, nil
}

// Put stores a computed record (write-through from the calculator).
func (c *StorageRecordCache) Put(key StorageKey, record *domain.StorageRecord) error {
	payload, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode storage record: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO storage_records
			(workbook_path, facility_code, year, month, excel_signature, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.WorkbookPath, key.FacilityCode, key.Year, key.Month, key.Signature, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write storage cache: %w", err)
	}
	return nil
}

// PurgeForWorkbook deletes every entry for a workbook path, regardless of
// signature. Called on reload.
func (c *StorageRecordCache) PurgeForWorkbook(path string) (int, error) {
	result, err := c.db.Exec(`DELETE FROM storage_records WHERE workbook_path = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("failed to purge storage cache for %s: %w", path, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PurgeStaleSignatures deletes entries for a workbook whose signature no
// longer matches the current one. Run by the cache sweep job.
func (c *StorageRecordCache) PurgeStaleSignatures(path, currentSignature string) (int, error) {
	result, err := c.db.Exec(`
		DELETE FROM storage_records WHERE workbook_path = ? AND excel_signature != ?
	`, path, currentSignature)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale cache entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count returns the number of cached storage records.
func (c *StorageRecordCache) Count() (int64, error) {
	var n int64
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM storage_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count storage cache: %w", err)
	}
	return n, nil
}
