package facilities

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// HistoryRepository handles storage history database operations
// Database: water.db (storage_history table)
type HistoryRepository struct {
	db  *sql.DB // water.db
	log zerolog.Logger
}

const historyColumns = `id, facility_code, year, month, opening_volume_m3,
	closing_volume_m3, delta_m3, data_source, created_at`

// NewHistoryRepository creates a new storage history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repository", "storage_history").Logger(),
	}
}

func scanHistory(row interface{ Scan(...interface{}) error }) (*domain.StorageHistory, error) {
	var h domain.StorageHistory
	var createdAt int64
	err := row.Scan(&h.ID, &h.FacilityCode, &h.Year, &h.Month, &h.OpeningVolumeM3,
		&h.ClosingVolumeM3, &h.DeltaM3, &h.DataSource, &createdAt)
	if err != nil {
		return nil, err
	}
	h.CreatedAt = time.Unix(createdAt, 0)
	return &h, nil
}

// Upsert writes the history row for one facility month. Delta is stored
// denormalised and always recomputed from the volumes.
func (r *HistoryRepository) Upsert(h *domain.StorageHistory) error {
	if err := h.Validate(); err != nil {
		return err
	}
	h.DeltaM3 = h.ClosingVolumeM3 - h.OpeningVolumeM3

	_, err := r.db.Exec(`
		INSERT INTO storage_history
			(facility_code, year, month, opening_volume_m3, closing_volume_m3, delta_m3, data_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(facility_code, year, month) DO UPDATE SET
			opening_volume_m3 = excluded.opening_volume_m3,
			closing_volume_m3 = excluded.closing_volume_m3,
			delta_m3 = excluded.delta_m3,
			data_source = excluded.data_source
	`, domain.NormalizeCode(h.FacilityCode), h.Year, h.Month, h.OpeningVolumeM3,
		h.ClosingVolumeM3, h.DeltaM3, string(h.DataSource), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert storage history %s %04d-%02d: %w",
			h.FacilityCode, h.Year, h.Month, err)
	}
	return nil
}

// GetByPeriod returns the history row for a facility month, nil when absent.
func (r *HistoryRepository) GetByPeriod(code string, period domain.CalculationPeriod) (*domain.StorageHistory, error) {
	row := r.db.QueryRow(
		"SELECT "+historyColumns+" FROM storage_history WHERE facility_code = ? AND year = ? AND month = ?",
		domain.NormalizeCode(code), period.Year, period.Month)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage history %s %s: %w", code, period, err)
	}
	return h, nil
}

// GetForFacility returns up to limit history rows for one facility, newest
// period first.
func (r *HistoryRepository) GetForFacility(code string, limit int) ([]*domain.StorageHistory, error) {
	if limit <= 0 {
		limit = 24
	}
	rows, err := r.db.Query(`
		SELECT `+historyColumns+` FROM storage_history
		WHERE facility_code = ?
		ORDER BY year DESC, month DESC
		LIMIT ?
	`, domain.NormalizeCode(code), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage history for %s: %w", code, err)
	}
	defer rows.Close()

	var result []*domain.StorageHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan storage history: %w", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage history: %w", err)
	}
	return result, nil
}

// GetRecentClosings returns the closing volumes of the most recent months
// for a facility in ascending period order. The forecaster fits a trend
// line through these points.
func (r *HistoryRepository) GetRecentClosings(code string, months int) ([]*domain.StorageHistory, error) {
	recent, err := r.GetForFacility(code, months)
	if err != nil {
		return nil, err
	}
	// GetForFacility returns newest first, reverse in place.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}
