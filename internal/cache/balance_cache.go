package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tailwater/aquabalance/internal/domain"
)

// BalanceCache memoizes full balance results per (period, mode) against a
// workbook signature. One row per (year, month, mode); a signature mismatch
// on read is a miss and the row is replaced by the next write.
type BalanceCache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBalanceCache creates the balance result cache over cache.db.
func NewBalanceCache(db *sql.DB, log zerolog.Logger) *BalanceCache {
	return &BalanceCache{
		db:  db,
		log: log.With().Str("component", "balance_cache").Logger(),
	}
}

// Get returns the cached result when the stored signature matches, else
// (nil, nil).
func (c *BalanceCache) Get(period domain.CalculationPeriod, mode domain.BalanceMode, signature string) (*domain.BalanceResult, error) {
	var payload []byte
	var storedSig string
	err := c.db.QueryRow(`
		SELECT workbook_signature, payload FROM balance_cache
		WHERE year = ? AND month = ? AND mode = ?
	`, period.Year, period.Month, string(mode)).Scan(&storedSig, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance cache: %w", err)
	}
	if storedSig != signature {
		return nil, nil
	}

	var result domain.BalanceResult
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		c.log.Warn().Err(err).Str("period", period.String()).Msg("Corrupt balance cache payload, treating as miss")
		return nil, nil
	}
	return &result, nil
}

// Put stores a computed result for the period and mode.
func (c *BalanceCache) Put(period domain.CalculationPeriod, mode domain.BalanceMode, signature string, result *domain.BalanceResult) error {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode balance result: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO balance_cache
			(year, month, mode, workbook_signature, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, period.Year, period.Month, string(mode), signature, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write balance cache: %w", err)
	}
	return nil
}

// PurgeForWorkbook drops every cached balance result. Balance results are
// all derived from the single site workbook, so a reload invalidates the
// whole table.
func (c *BalanceCache) PurgeForWorkbook(string) (int, error) {
	result, err := c.db.Exec(`DELETE FROM balance_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge balance cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PurgeStale deletes rows whose signature differs from the current one.
func (c *BalanceCache) PurgeStale(currentSignature string) (int, error) {
	result, err := c.db.Exec(`DELETE FROM balance_cache WHERE workbook_signature != ?`, currentSignature)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale balance cache rows: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
