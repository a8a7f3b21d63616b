package environmental

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// Repository handles environmental data database operations. One row per
// month carries the measured rainfall and evaporation depths; the storage
// calculator falls back to these when the workbook's Environmental sheet
// has no row for the period. Every change is audited per field.
// Database: water.db (environmental_data + environmental_data_audit tables)
type Repository struct {
	db  *sql.DB // water.db
	log zerolog.Logger
}

const environmentalColumns = `id, year, month, rainfall_mm, evaporation_mm,
	updated_by, created_at, updated_at`

// NewRepository creates a new environmental data repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "environmental").Logger(),
	}
}

func scanRecord(row interface{ Scan(...interface{}) error }) (*domain.EnvironmentalRecord, error) {
	var e domain.EnvironmentalRecord
	var createdAt, updatedAt int64
	err := row.Scan(&e.ID, &e.Year, &e.Month, &e.RainfallMM, &e.EvaporationMM,
		&e.UpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

// GetByPeriod returns the environmental record for one month, nil when absent.
func (r *Repository) GetByPeriod(period domain.CalculationPeriod) (*domain.EnvironmentalRecord, error) {
	row := r.db.QueryRow(
		"SELECT "+environmentalColumns+" FROM environmental_data WHERE year = ? AND month = ?",
		period.Year, period.Month)
	e, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get environmental data for %s: %w", period, err)
	}
	return e, nil
}

// GetRange returns the records between two periods inclusive, ascending.
func (r *Repository) GetRange(from, to domain.CalculationPeriod) ([]*domain.EnvironmentalRecord, error) {
	rows, err := r.db.Query(`
		SELECT `+environmentalColumns+` FROM environmental_data
		WHERE (year * 100 + month) BETWEEN ? AND ?
		ORDER BY year, month
	`, from.Year*100+from.Month, to.Year*100+to.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to query environmental data %s..%s: %w", from, to, err)
	}
	defer rows.Close()

	var result []*domain.EnvironmentalRecord
	for rows.Next() {
		e, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan environmental data: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating environmental data: %w", err)
	}
	return result, nil
}

// Upsert writes the record for one month and audits every changed field in
// the same transaction. Unchanged fields produce no audit rows.
func (r *Repository) Upsert(e *domain.EnvironmentalRecord) (*domain.EnvironmentalRecord, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	period, _ := domain.NewPeriod(e.Year, e.Month)
	existing, err := r.GetByPeriod(period)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin environmental upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if existing == nil {
		_, err = tx.Exec(`
			INSERT INTO environmental_data (year, month, rainfall_mm, evaporation_mm, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.Year, e.Month, e.RainfallMM, e.EvaporationMM, e.UpdatedBy, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert environmental data for %s: %w", period, err)
		}
		if err := auditField(tx, now, e, "rainfall_mm", nil, e.RainfallMM); err != nil {
			return nil, err
		}
		if err := auditField(tx, now, e, "evaporation_mm", nil, e.EvaporationMM); err != nil {
			return nil, err
		}
	} else {
		_, err = tx.Exec(`
			UPDATE environmental_data
			SET rainfall_mm = ?, evaporation_mm = ?, updated_by = ?, updated_at = ?
			WHERE year = ? AND month = ?
		`, e.RainfallMM, e.EvaporationMM, e.UpdatedBy, now, e.Year, e.Month)
		if err != nil {
			return nil, fmt.Errorf("failed to update environmental data for %s: %w", period, err)
		}
		if existing.RainfallMM != e.RainfallMM {
			if err := auditField(tx, now, e, "rainfall_mm", &existing.RainfallMM, e.RainfallMM); err != nil {
				return nil, err
			}
		}
		if existing.EvaporationMM != e.EvaporationMM {
			if err := auditField(tx, now, e, "evaporation_mm", &existing.EvaporationMM, e.EvaporationMM); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByPeriod(period)
}

func auditField(tx *sql.Tx, now int64, e *domain.EnvironmentalRecord, field string, oldValue *float64, newValue float64) error {
	_, err := tx.Exec(`
		INSERT INTO environmental_data_audit (changed_at, year, month, field, old_value, new_value, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, now, e.Year, e.Month, field, oldValue, newValue, e.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to audit environmental %s: %w", field, err)
	}
	return nil
}

// AuditEntry is one row of the environmental audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	ChangedAt time.Time `json:"changed_at"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Field     string    `json:"field"`
	OldValue  *float64  `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	UpdatedBy string    `json:"updated_by"`
}

// GetAuditTrail returns the audit entries for one month, newest first.
func (r *Repository) GetAuditTrail(period domain.CalculationPeriod, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, changed_at, year, month, field, old_value, new_value, updated_by
		FROM environmental_data_audit
		WHERE year = ? AND month = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?
	`, period.Year, period.Month, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get environmental audit trail for %s: %w", period, err)
	}
	defer rows.Close()

	var result []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var changedAt int64
		if err := rows.Scan(&e.ID, &changedAt, &e.Year, &e.Month, &e.Field,
			&e.OldValue, &e.NewValue, &e.UpdatedBy); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan environmental audit row")
			continue
		}
		e.ChangedAt = time.Unix(changedAt, 0)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating environmental audit trail: %w", err)
	}
	return result, nil
}
