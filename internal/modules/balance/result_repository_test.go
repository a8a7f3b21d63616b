package balance

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tailwater/aquabalance/internal/domain"
)

const resultsSchema = `
CREATE TABLE balance_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	total_inflows_m3 REAL NOT NULL,
	total_outflows_m3 REAL NOT NULL,
	storage_delta_m3 REAL NOT NULL,
	balance_error_m3 REAL NOT NULL,
	error_pct REAL NOT NULL,
	payload TEXT NOT NULL,
	computed_at INTEGER NOT NULL,
	UNIQUE (year, month, mode)
);
`

func setupResultRepo(t *testing.T) (*ResultRepository, *sql.DB) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(resultsSchema)
	require.NoError(t, err)

	return NewResultRepository(db, zerolog.Nop()), db
}

// computedResult builds a realistic result through the engine so the
// persisted payload carries facilities, KPIs and quality flags.
func computedResult(t *testing.T, mode domain.BalanceMode) *domain.BalanceResult {
	t.Helper()
	wb := newFakeWorkbook()
	p, inputs := marchInputs(wb)
	result, err := newTestEngine(wb, nil).Compute(p, mode, inputs)
	require.NoError(t, err)
	return result
}

func TestResultRepository_SaveAndGetRoundTrip(t *testing.T) {
	repo, _ := setupResultRepo(t)
	result := computedResult(t, domain.ModeRegulator)

	id, err := repo.Save(result)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	loaded, err := repo.GetByPeriod(result.Period, domain.ModeRegulator)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, result.Period, loaded.Period)
	assert.Equal(t, result.Status, loaded.Status)
	assert.InDelta(t, result.BalanceErrorM3, loaded.BalanceErrorM3, 1e-9)
	assert.InDelta(t, result.ErrorPct, loaded.ErrorPct, 1e-9)

	require.Len(t, loaded.Storage.Facilities, 2)
	assert.Equal(t, "RWD1", loaded.Storage.Facilities[0].FacilityCode)
	require.NotNil(t, loaded.Recycled)
	assert.InDelta(t, result.Recycled.Total(), loaded.Recycled.Total(), 1e-9)
	require.NotNil(t, loaded.KPIs)
	require.NotNil(t, loaded.QualityFlags)
	assert.True(t, loaded.QualityFlags.Clean())
	assert.InDelta(t, 1_200, loaded.Inflows.Other["other_inflow"], 1e-9, "component maps survive the payload")
}

func TestResultRepository_SaveReplacesSameKey(t *testing.T) {
	repo, db := setupResultRepo(t)
	result := computedResult(t, domain.ModeRegulator)

	firstID, err := repo.Save(result)
	require.NoError(t, err)

	result.Notes = []string{"recomputed after workbook reload"}
	secondID, err := repo.Save(result)
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID, "upsert keeps the row id")

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM balance_results").Scan(&count))
	assert.Equal(t, 1, count)

	loaded, err := repo.GetByPeriod(result.Period, domain.ModeRegulator)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []string{"recomputed after workbook reload"}, loaded.Notes)
}

func TestResultRepository_ModesAreSeparateRows(t *testing.T) {
	repo, _ := setupResultRepo(t)

	_, err := repo.Save(computedResult(t, domain.ModeRegulator))
	require.NoError(t, err)
	_, err = repo.Save(computedResult(t, domain.ModeAudit))
	require.NoError(t, err)

	audit, err := repo.GetByPeriod(period(2026, 3), domain.ModeAudit)
	require.NoError(t, err)
	require.NotNil(t, audit)
	assert.Equal(t, domain.ModeAudit, audit.Mode)
	assert.NotEmpty(t, audit.Notes)

	regulator, err := repo.GetByPeriod(period(2026, 3), domain.ModeRegulator)
	require.NoError(t, err)
	require.NotNil(t, regulator)
	assert.Empty(t, regulator.Notes)
}

func TestResultRepository_GetMissingReturnsNil(t *testing.T) {
	repo, _ := setupResultRepo(t)

	result, err := repo.GetByPeriod(period(2026, 3), domain.ModeRegulator)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestResultRepository_CorruptPayload(t *testing.T) {
	repo, db := setupResultRepo(t)

	_, err := db.Exec(`
		INSERT INTO balance_results
			(year, month, mode, status, total_inflows_m3, total_outflows_m3,
			 storage_delta_m3, balance_error_m3, error_pct, payload, computed_at)
		VALUES (2026, 3, 'REGULATOR', 'GREEN', 0, 0, 0, 0, 0, '{truncated', ?)
	`, time.Now().Unix())
	require.NoError(t, err)

	_, err = repo.GetByPeriod(period(2026, 3), domain.ModeRegulator)
	require.Error(t, err)
	assert.Equal(t, domain.KindStorageBackend, domain.KindOf(err))
}

func TestResultRepository_ListRecentOrdersAndLimits(t *testing.T) {
	repo, _ := setupResultRepo(t)
	wb := newFakeWorkbook()

	save := func(p domain.CalculationPeriod, mode domain.BalanceMode) {
		t.Helper()
		result, err := newTestEngine(wb, nil).Compute(p, mode, nil)
		require.NoError(t, err)
		_, err = repo.Save(result)
		require.NoError(t, err)
	}
	save(period(2025, 12), domain.ModeRegulator)
	save(period(2026, 1), domain.ModeRegulator)
	save(period(2026, 2), domain.ModeInternal)
	save(period(2026, 2), domain.ModeAudit)

	summaries, err := repo.ListRecent(3)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.Equal(t, 2026, summaries[0].Year)
	assert.Equal(t, 2, summaries[0].Month)
	assert.Equal(t, domain.ModeAudit, summaries[0].Mode, "same period ordered by mode")
	assert.Equal(t, domain.ModeInternal, summaries[1].Mode)
	assert.Equal(t, 1, summaries[2].Month)
	assert.False(t, summaries[0].ComputedAt.IsZero())

	all, err := repo.ListRecent(0)
	require.NoError(t, err)
	assert.Len(t, all, 4, "zero limit falls back to the default window")
}
