package facilities

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// Repository handles storage facility database operations
// Database: water.db (storage_facilities table)
type Repository struct {
	db  *sql.DB // water.db
	log zerolog.Logger
}

// facilityColumns is the list of columns for the storage_facilities table
// Used to avoid SELECT * which can break when schema changes
const facilityColumns = `id, code, name, facility_type, capacity_m3, surface_area_m2,
	current_volume_m3, is_lined, status, notes, created_at, updated_at`

// NewRepository creates a new facility repository
// db parameter should be water.db connection
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "facilities").Logger(),
	}
}

func scanFacility(row interface{ Scan(...interface{}) error }) (*domain.StorageFacility, error) {
	var f domain.StorageFacility
	var surfaceArea sql.NullFloat64
	var isLined sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.FacilityType, &f.CapacityM3, &surfaceArea,
		&f.CurrentVolumeM3, &isLined, &f.Status, &f.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if surfaceArea.Valid {
		f.SurfaceAreaM2 = &surfaceArea.Float64
	}
	if isLined.Valid {
		lined := isLined.Int64 != 0
		f.IsLined = &lined
	}
	f.CreatedAt = time.Unix(createdAt, 0)
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}

func linedParam(f *domain.StorageFacility) interface{} {
	if f.IsLined == nil {
		return nil
	}
	if *f.IsLined {
		return 1
	}
	return 0
}

// GetByID returns a facility by id, nil when absent.
func (r *Repository) GetByID(id int64) (*domain.StorageFacility, error) {
	row := r.db.QueryRow("SELECT "+facilityColumns+" FROM storage_facilities WHERE id = ?", id)
	f, err := scanFacility(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility %d: %w", id, err)
	}
	return f, nil
}

// GetByCode returns a facility by its unique code, nil when absent.
// The code is normalized before lookup.
func (r *Repository) GetByCode(code string) (*domain.StorageFacility, error) {
	row := r.db.QueryRow(
		"SELECT "+facilityColumns+" FROM storage_facilities WHERE code = ?",
		domain.NormalizeCode(code))
	f, err := scanFacility(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility %s: %w", code, err)
	}
	return f, nil
}

// GetAll returns every facility ordered by code.
func (r *Repository) GetAll() ([]*domain.StorageFacility, error) {
	rows, err := r.db.Query("SELECT " + facilityColumns + " FROM storage_facilities ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()
	return collectFacilities(rows)
}

// ListByStatus returns the facilities in one lifecycle state ordered by code.
func (r *Repository) ListByStatus(status domain.FacilityStatus) ([]*domain.StorageFacility, error) {
	rows, err := r.db.Query(
		"SELECT "+facilityColumns+" FROM storage_facilities WHERE status = ? ORDER BY code",
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities by status %s: %w", status, err)
	}
	defer rows.Close()
	return collectFacilities(rows)
}

func collectFacilities(rows *sql.Rows) ([]*domain.StorageFacility, error) {
	var result []*domain.StorageFacility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facilities: %w", err)
	}
	return result, nil
}

// Create inserts a facility and returns it with the generated id and
// timestamps filled in.
func (r *Repository) Create(f *domain.StorageFacility) (*domain.StorageFacility, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		INSERT INTO storage_facilities
			(code, name, facility_type, capacity_m3, surface_area_m2, current_volume_m3,
			 is_lined, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, domain.NormalizeCode(f.Code), f.Name, string(f.FacilityType), f.CapacityM3, f.SurfaceAreaM2,
		f.CurrentVolumeM3, linedParam(f), string(f.Status), f.Notes, now.Unix(), now.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, domain.DuplicateCodef("facility code %s already exists", f.Code)
		}
		return nil, fmt.Errorf("failed to create facility %s: %w", f.Code, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read created facility id: %w", err)
	}

	created := *f
	created.ID = id
	created.Code = domain.NormalizeCode(f.Code)
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// Update overwrites every mutable column of a facility. The code never
// changes after creation, so it is not part of the SET list.
func (r *Repository) Update(f *domain.StorageFacility) error {
	now := time.Now().Unix()
	res, err := r.db.Exec(`
		UPDATE storage_facilities
		SET name = ?, facility_type = ?, capacity_m3 = ?, surface_area_m2 = ?,
			current_volume_m3 = ?, is_lined = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, f.Name, string(f.FacilityType), f.CapacityM3, f.SurfaceAreaM2,
		f.CurrentVolumeM3, linedParam(f), string(f.Status), f.Notes, now, f.ID)
	if err != nil {
		return fmt.Errorf("failed to update facility %s: %w", f.Code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update facility %s: %w", f.Code, err)
	}
	if affected == 0 {
		return domain.NotFoundf("facility %d not found", f.ID)
	}
	return nil
}

// Delete removes a facility row. Monthly parameters, history and transfers
// cascade with it.
func (r *Repository) Delete(id int64) error {
	res, err := r.db.Exec("DELETE FROM storage_facilities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete facility %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete facility %d: %w", id, err)
	}
	if affected == 0 {
		return domain.NotFoundf("facility %d not found", id)
	}
	return nil
}

// CodeExists reports whether a facility code is already taken.
func (r *Repository) CodeExists(code string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM storage_facilities WHERE code = ?",
		domain.NormalizeCode(code)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check facility code %s: %w", code, err)
	}
	return count > 0, nil
}
