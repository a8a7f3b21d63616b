package facilities

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// TransferRepository handles facility transfer database operations
// Database: water.db (facility_transfers table)
type TransferRepository struct {
	db  *sql.DB // water.db
	log zerolog.Logger
}

const transferColumns = `id, source_facility_code, dest_facility_code, year, month,
	volume_m3, transfer_method, notes, created_at`

// NewTransferRepository creates a new facility transfer repository
func NewTransferRepository(db *sql.DB, log zerolog.Logger) *TransferRepository {
	return &TransferRepository{
		db:  db,
		log: log.With().Str("repository", "transfers").Logger(),
	}
}

func scanTransfer(row interface{ Scan(...interface{}) error }) (*domain.FacilityTransfer, error) {
	var t domain.FacilityTransfer
	var createdAt int64
	err := row.Scan(&t.ID, &t.SourceFacilityCode, &t.DestFacilityCode, &t.Year, &t.Month,
		&t.VolumeM3, &t.TransferMethod, &t.Notes, &createdAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// Create inserts a transfer and returns it with the generated id. Unknown
// facility codes surface as NotFound through the foreign key constraint.
func (r *TransferRepository) Create(t *domain.FacilityTransfer) (*domain.FacilityTransfer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	res, err := r.db.Exec(`
		INSERT INTO facility_transfers
			(source_facility_code, dest_facility_code, year, month, volume_m3, transfer_method, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, domain.NormalizeCode(t.SourceFacilityCode), domain.NormalizeCode(t.DestFacilityCode),
		t.Year, t.Month, t.VolumeM3, string(t.TransferMethod), t.Notes, now.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, domain.NotFoundf("transfer %s->%s references an unknown facility",
				t.SourceFacilityCode, t.DestFacilityCode)
		}
		return nil, fmt.Errorf("failed to create transfer %s->%s: %w",
			t.SourceFacilityCode, t.DestFacilityCode, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read created transfer id: %w", err)
	}

	created := *t
	created.ID = id
	created.SourceFacilityCode = domain.NormalizeCode(t.SourceFacilityCode)
	created.DestFacilityCode = domain.NormalizeCode(t.DestFacilityCode)
	created.CreatedAt = now
	return &created, nil
}

// GetByPeriod returns every transfer recorded for one month.
func (r *TransferRepository) GetByPeriod(period domain.CalculationPeriod) ([]*domain.FacilityTransfer, error) {
	rows, err := r.db.Query(
		"SELECT "+transferColumns+" FROM facility_transfers WHERE year = ? AND month = ? ORDER BY id",
		period.Year, period.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers for %s: %w", period, err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

// GetForFacility returns transfers touching one facility on either end,
// newest first.
func (r *TransferRepository) GetForFacility(code string, limit int) ([]*domain.FacilityTransfer, error) {
	if limit <= 0 {
		limit = 50
	}
	normalized := domain.NormalizeCode(code)
	rows, err := r.db.Query(`
		SELECT `+transferColumns+` FROM facility_transfers
		WHERE source_facility_code = ? OR dest_facility_code = ?
		ORDER BY year DESC, month DESC, id DESC
		LIMIT ?
	`, normalized, normalized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers for %s: %w", code, err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

func collectTransfers(rows *sql.Rows) ([]*domain.FacilityTransfer, error) {
	var result []*domain.FacilityTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	return result, nil
}
