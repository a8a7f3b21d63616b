package balance

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// ResultRepository persists computed balance results for reporting. One
// row per (year, month, mode); a recompute replaces the row. Headline
// numbers are stored as columns so listings never touch the JSON payload.
// Database: water.db (balance_results table)
type ResultRepository struct {
	db  *sql.DB // water.db
	log zerolog.Logger
}

// NewResultRepository creates a new balance result repository
func NewResultRepository(db *sql.DB, log zerolog.Logger) *ResultRepository {
	return &ResultRepository{
		db:  db,
		log: log.With().Str("repository", "balance_results").Logger(),
	}
}

// Save upserts the result row for the result's (year, month, mode) and
// returns the row id.
func (r *ResultRepository) Save(result *domain.BalanceResult) (int64, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("failed to encode balance result: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO balance_results
			(year, month, mode, status, total_inflows_m3, total_outflows_m3,
			 storage_delta_m3, balance_error_m3, error_pct, payload, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(year, month, mode) DO UPDATE SET
			status = excluded.status,
			total_inflows_m3 = excluded.total_inflows_m3,
			total_outflows_m3 = excluded.total_outflows_m3,
			storage_delta_m3 = excluded.storage_delta_m3,
			balance_error_m3 = excluded.balance_error_m3,
			error_pct = excluded.error_pct,
			payload = excluded.payload,
			computed_at = excluded.computed_at
	`, result.Period.Year, result.Period.Month, string(result.Mode), string(result.Status),
		result.Inflows.Total(), result.Outflows.Total(), result.Storage.DeltaM3,
		result.BalanceErrorM3, result.ErrorPct, string(payload), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to save balance result for %s: %w", result.Period, err)
	}

	var id int64
	err = r.db.QueryRow(
		"SELECT id FROM balance_results WHERE year = ? AND month = ? AND mode = ?",
		result.Period.Year, result.Period.Month, string(result.Mode)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read back balance result id: %w", err)
	}
	return id, nil
}

// GetByPeriod returns the stored result for one period and mode, nil when
// none was persisted.
func (r *ResultRepository) GetByPeriod(period domain.CalculationPeriod, mode domain.BalanceMode) (*domain.BalanceResult, error) {
	var payload string
	err := r.db.QueryRow(
		"SELECT payload FROM balance_results WHERE year = ? AND month = ? AND mode = ?",
		period.Year, period.Month, string(mode)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance result for %s: %w", period, err)
	}

	var result domain.BalanceResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, domain.StorageError(
			fmt.Sprintf("corrupt balance result payload for %s %s", period, mode), err)
	}
	return &result, nil
}

// Summary is one headline row of the results listing.
type Summary struct {
	ID              int64                `json:"id"`
	Year            int                  `json:"year"`
	Month           int                  `json:"month"`
	Mode            domain.BalanceMode   `json:"mode"`
	Status          domain.BalanceStatus `json:"status"`
	TotalInflowsM3  float64              `json:"total_inflows_m3"`
	TotalOutflowsM3 float64              `json:"total_outflows_m3"`
	StorageDeltaM3  float64              `json:"storage_delta_m3"`
	BalanceErrorM3  float64              `json:"balance_error_m3"`
	ErrorPct        float64              `json:"error_pct"`
	ComputedAt      time.Time            `json:"computed_at"`
}

// ListRecent returns up to limit headline rows, newest period first.
func (r *ResultRepository) ListRecent(limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := r.db.Query(`
		SELECT id, year, month, mode, status, total_inflows_m3, total_outflows_m3,
		       storage_delta_m3, balance_error_m3, error_pct, computed_at
		FROM balance_results
		ORDER BY year DESC, month DESC, mode ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance results: %w", err)
	}
	defer rows.Close()

	var result []*Summary
	for rows.Next() {
		var s Summary
		var computedAt int64
		err := rows.Scan(&s.ID, &s.Year, &s.Month, &s.Mode, &s.Status,
			&s.TotalInflowsM3, &s.TotalOutflowsM3, &s.StorageDeltaM3,
			&s.BalanceErrorM3, &s.ErrorPct, &computedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance result summary: %w", err)
		}
		s.ComputedAt = time.Unix(computedAt, 0)
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance results: %w", err)
	}
	return result, nil
}
