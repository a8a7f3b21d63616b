package constants

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// Repository handles system constant database operations
// Database: config.db (system_constants + system_constants_audit tables)
type Repository struct {
	db  *sql.DB // config.db
	log zerolog.Logger
}

// NewRepository creates a new constants repository
// db parameter should be config.db connection
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "constants").Logger(),
	}
}

const constantColumns = `id, constant_key, constant_value, min_value, max_value,
	unit, category, description, editable, updated_at`

func scanConstant(row interface{ Scan(...interface{}) error }) (*domain.SystemConstant, error) {
	var c domain.SystemConstant
	var editable int
	var updatedAt int64
	err := row.Scan(&c.ID, &c.Key, &c.Value, &c.MinValue, &c.MaxValue,
		&c.Unit, &c.Category, &c.Description, &editable, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Editable = editable != 0
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

// Get retrieves a constant by key, nil when absent.
func (r *Repository) Get(key string) (*domain.SystemConstant, error) {
	row := r.db.QueryRow(
		"SELECT "+constantColumns+" FROM system_constants WHERE constant_key = ?", key)
	c, err := scanConstant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get constant %s: %w", key, err)
	}
	return c, nil
}

// GetAll retrieves all constants ordered by category then key.
func (r *Repository) GetAll() ([]*domain.SystemConstant, error) {
	rows, err := r.db.Query(
		"SELECT " + constantColumns + " FROM system_constants ORDER BY category, constant_key")
	if err != nil {
		return nil, fmt.Errorf("failed to get constants: %w", err)
	}
	defer rows.Close()

	var result []*domain.SystemConstant
	for rows.Next() {
		c, err := scanConstant(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan constant row")
			continue
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constants: %w", err)
	}
	return result, nil
}

// GetByCategory retrieves the constants of one category ordered by key.
func (r *Repository) GetByCategory(category string) ([]*domain.SystemConstant, error) {
	rows, err := r.db.Query(
		"SELECT "+constantColumns+" FROM system_constants WHERE category = ? ORDER BY constant_key",
		category)
	if err != nil {
		return nil, fmt.Errorf("failed to get constants for category %s: %w", category, err)
	}
	defer rows.Close()

	var result []*domain.SystemConstant
	for rows.Next() {
		c, err := scanConstant(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan constant row")
			continue
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constants: %w", err)
	}
	return result, nil
}

// UpdateValue writes a new value and the matching audit row in one
// transaction. The caller has already checked bounds and editability.
func (r *Repository) UpdateValue(key string, oldValue, newValue float64, updatedBy string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin constant update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.Exec(
		"UPDATE system_constants SET constant_value = ?, updated_at = ? WHERE constant_key = ?",
		newValue, now, key)
	if err != nil {
		return fmt.Errorf("failed to update constant %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update constant %s: %w", key, err)
	}
	if affected == 0 {
		return domain.NotFoundf("constant %s not found", key)
	}

	_, err = tx.Exec(`
		INSERT INTO system_constants_audit (changed_at, constant_key, old_value, new_value, updated_by)
		VALUES (?, ?, ?, ?, ?)
	`, now, key, oldValue, newValue, updatedBy)
	if err != nil {
		return fmt.Errorf("failed to audit constant %s: %w", key, err)
	}

	return tx.Commit()
}

// SeedMissing inserts every default whose key is not yet present. Existing
// rows are never touched, so the seed is safe to run at every startup.
// Each inserted row gets an audit entry with a null old value.
func (r *Repository) SeedMissing(defaults []Default) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin constants seed: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	inserted := 0
	for _, d := range defaults {
		var exists int
		err := tx.QueryRow(
			"SELECT COUNT(*) FROM system_constants WHERE constant_key = ?", d.Key).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("failed to check constant %s: %w", d.Key, err)
		}
		if exists > 0 {
			continue
		}

		editable := 0
		if d.Editable {
			editable = 1
		}
		_, err = tx.Exec(`
			INSERT INTO system_constants
				(constant_key, constant_value, min_value, max_value, unit, category, description, editable, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.Key, d.Value, d.MinValue, d.MaxValue, d.Unit, d.Category, d.Description, editable, now)
		if err != nil {
			return 0, fmt.Errorf("failed to seed constant %s: %w", d.Key, err)
		}

		_, err = tx.Exec(`
			INSERT INTO system_constants_audit (changed_at, constant_key, old_value, new_value, updated_by)
			VALUES (?, ?, NULL, ?, 'seed')
		`, now, d.Key, d.Value)
		if err != nil {
			return 0, fmt.Errorf("failed to audit seed of %s: %w", d.Key, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// AuditEntry is one row of the constants audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	ChangedAt time.Time `json:"changed_at"`
	Key       string    `json:"constant_key"`
	OldValue  *float64  `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	UpdatedBy string    `json:"updated_by"`
}

// GetAuditTrail returns the most recent audit entries for a key, newest first.
func (r *Repository) GetAuditTrail(key string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, changed_at, constant_key, old_value, new_value, updated_by
		FROM system_constants_audit
		WHERE constant_key = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail for %s: %w", key, err)
	}
	defer rows.Close()

	var result []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var changedAt int64
		if err := rows.Scan(&e.ID, &changedAt, &e.Key, &e.OldValue, &e.NewValue, &e.UpdatedBy); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan audit row")
			continue
		}
		e.ChangedAt = time.Unix(changedAt, 0)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit trail: %w", err)
	}
	return result, nil
}
