package monthly

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// Repository handles monthly parameter database operations. One row per
// (facility, year, month) holds the manual inflow/outflow totals; the
// storage calculator treats them as authoritative when the workbook has
// no row for that facility month.
// Database: water.db (facility_monthly_parameters table)
type Repository struct {
	db  *sql.DB // water.db
	log zerolog.Logger
}

const parameterColumns = `id, facility_id, year, month, total_inflows_m3,
	total_outflows_m3, created_at, updated_at`

// NewRepository creates a new monthly parameters repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "monthly_parameters").Logger(),
	}
}

func scanParameters(row interface{ Scan(...interface{}) error }) (*domain.MonthlyParameters, error) {
	var p domain.MonthlyParameters
	var createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.FacilityID, &p.Year, &p.Month,
		&p.TotalInflowsM3, &p.TotalOutflowsM3, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// GetByPeriod returns the parameters for one facility month, nil when absent.
func (r *Repository) GetByPeriod(facilityID int64, period domain.CalculationPeriod) (*domain.MonthlyParameters, error) {
	row := r.db.QueryRow(
		"SELECT "+parameterColumns+" FROM facility_monthly_parameters WHERE facility_id = ? AND year = ? AND month = ?",
		facilityID, period.Year, period.Month)
	p, err := scanParameters(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly parameters for facility %d %s: %w",
			facilityID, period, err)
	}
	return p, nil
}

// GetAllByPeriod returns the parameters of every facility for one month,
// keyed by facility id.
func (r *Repository) GetAllByPeriod(period domain.CalculationPeriod) (map[int64]*domain.MonthlyParameters, error) {
	rows, err := r.db.Query(
		"SELECT "+parameterColumns+" FROM facility_monthly_parameters WHERE year = ? AND month = ?",
		period.Year, period.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly parameters for %s: %w", period, err)
	}
	defer rows.Close()

	result := make(map[int64]*domain.MonthlyParameters)
	for rows.Next() {
		p, err := scanParameters(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly parameters: %w", err)
		}
		result[p.FacilityID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly parameters: %w", err)
	}
	return result, nil
}

// GetForFacility returns up to limit parameter rows for one facility,
// newest period first.
func (r *Repository) GetForFacility(facilityID int64, limit int) ([]*domain.MonthlyParameters, error) {
	if limit <= 0 {
		limit = 24
	}
	rows, err := r.db.Query(`
		SELECT `+parameterColumns+` FROM facility_monthly_parameters
		WHERE facility_id = ?
		ORDER BY year DESC, month DESC
		LIMIT ?
	`, facilityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly parameters for facility %d: %w", facilityID, err)
	}
	defer rows.Close()

	var result []*domain.MonthlyParameters
	for rows.Next() {
		p, err := scanParameters(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly parameters: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly parameters: %w", err)
	}
	return result, nil
}

// Upsert writes the parameters for one facility month. Unknown facility
// ids surface as NotFound through the foreign key constraint.
func (r *Repository) Upsert(p *domain.MonthlyParameters) (*domain.MonthlyParameters, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	_, err := r.db.Exec(`
		INSERT INTO facility_monthly_parameters
			(facility_id, year, month, total_inflows_m3, total_outflows_m3, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(facility_id, year, month) DO UPDATE SET
			total_inflows_m3 = excluded.total_inflows_m3,
			total_outflows_m3 = excluded.total_outflows_m3,
			updated_at = excluded.updated_at
	`, p.FacilityID, p.Year, p.Month, p.TotalInflowsM3, p.TotalOutflowsM3, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, domain.NotFoundf("facility %d not found", p.FacilityID)
		}
		return nil, fmt.Errorf("failed to upsert monthly parameters for facility %d: %w", p.FacilityID, err)
	}

	period, _ := domain.NewPeriod(p.Year, p.Month)
	return r.GetByPeriod(p.FacilityID, period)
}

// Delete removes one parameter row.
func (r *Repository) Delete(id int64) error {
	res, err := r.db.Exec("DELETE FROM facility_monthly_parameters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete monthly parameters %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete monthly parameters %d: %w", id, err)
	}
	if affected == 0 {
		return domain.NotFoundf("monthly parameters %d not found", id)
	}
	return nil
}
