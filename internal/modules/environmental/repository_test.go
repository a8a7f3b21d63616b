package environmental

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tailwater/aquabalance/internal/domain"
)

const testSchema = `
CREATE TABLE environmental_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	rainfall_mm REAL NOT NULL DEFAULT 0,
	evaporation_mm REAL NOT NULL DEFAULT 0,
	updated_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (year, month)
);
CREATE TABLE environmental_data_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	changed_at INTEGER NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	field TEXT NOT NULL,
	old_value REAL,
	new_value REAL NOT NULL,
	updated_by TEXT NOT NULL DEFAULT ''
);
`

func setupRepo(t *testing.T) (*Repository, *sql.DB) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return NewRepository(db, zerolog.Nop()), db
}

func march() domain.CalculationPeriod {
	p, _ := domain.NewPeriod(2025, 3)
	return p
}

func TestRepository_UpsertAuditsChanges(t *testing.T) {
	repo, db := setupRepo(t)

	created, err := repo.Upsert(&domain.EnvironmentalRecord{
		Year: 2025, Month: 3,
		RainfallMM:    85.5,
		EvaporationMM: 140.0,
		UpdatedBy:     "hydrologist",
	})
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))

	// Insert audits both fields with a null old value.
	var audits int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM environmental_data_audit WHERE old_value IS NULL").Scan(&audits))
	assert.Equal(t, 2, audits)

	// Change one field only: exactly one new audit row.
	_, err = repo.Upsert(&domain.EnvironmentalRecord{
		Year: 2025, Month: 3,
		RainfallMM:    92.0,
		EvaporationMM: 140.0,
		UpdatedBy:     "hydrologist",
	})
	require.NoError(t, err)

	trail, err := repo.GetAuditTrail(march(), 10)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "rainfall_mm", trail[0].Field)
	require.NotNil(t, trail[0].OldValue)
	assert.Equal(t, 85.5, *trail[0].OldValue)
	assert.Equal(t, 92.0, trail[0].NewValue)

	// Re-writing identical values audits nothing.
	_, err = repo.Upsert(&domain.EnvironmentalRecord{
		Year: 2025, Month: 3,
		RainfallMM:    92.0,
		EvaporationMM: 140.0,
		UpdatedBy:     "hydrologist",
	})
	require.NoError(t, err)

	trail, err = repo.GetAuditTrail(march(), 10)
	require.NoError(t, err)
	assert.Len(t, trail, 3)
}

func TestRepository_UpsertKeepsOneRowPerMonth(t *testing.T) {
	repo, db := setupRepo(t)

	for i := 0; i < 3; i++ {
		_, err := repo.Upsert(&domain.EnvironmentalRecord{
			Year: 2025, Month: 3, RainfallMM: float64(i * 10), EvaporationMM: 100,
		})
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM environmental_data").Scan(&count))
	assert.Equal(t, 1, count)

	got, err := repo.GetByPeriod(march())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 20.0, got.RainfallMM)
}

func TestRepository_UpsertRejectsNegativeDepths(t *testing.T) {
	repo, _ := setupRepo(t)

	_, err := repo.Upsert(&domain.EnvironmentalRecord{
		Year: 2025, Month: 3, RainfallMM: -1,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvariantViolation, domain.KindOf(err))
}

func TestRepository_GetRange(t *testing.T) {
	repo, _ := setupRepo(t)

	for _, ym := range [][2]int{{2024, 11}, {2024, 12}, {2025, 1}, {2025, 2}} {
		_, err := repo.Upsert(&domain.EnvironmentalRecord{
			Year: ym[0], Month: ym[1], RainfallMM: 10, EvaporationMM: 20,
		})
		require.NoError(t, err)
	}

	from, _ := domain.NewPeriod(2024, 12)
	to, _ := domain.NewPeriod(2025, 2)
	got, err := repo.GetRange(from, to)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 12, got[0].Month)
	assert.Equal(t, 2, got[2].Month)

	missing, err := repo.GetByPeriod(march())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
