package cache

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
CREATE TABLE storage_records (
	workbook_path TEXT NOT NULL,
	facility_code TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	excel_signature TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (workbook_path, facility_code, year, month, excel_signature)
);
CREATE TABLE balance_cache (
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	mode TEXT NOT NULL,
	workbook_signature TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (year, month, mode)
);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection so every statement sees the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func testKey(sig string) StorageKey {
	return StorageKey{
		WorkbookPath: "/data/site.xlsx",
		FacilityCode: "TSF1",
		Year:         2025,
		Month:        3,
		Signature:    sig,
	}
}

func testRecord() *domain.StorageRecord {
	return &domain.StorageRecord{
		FacilityCode:    "TSF1",
		Year:            2025,
		Month:           3,
		OpeningVolumeM3: 100000,
		ClosingVolumeM3: 104200,
		InflowTotalM3:   120850,
		OutflowTotalM3:  116650,
		Warnings:        []string{},
	}
}

func TestStorageRecordCache_RoundTrip(t *testing.T) {
	c := NewStorageRecordCache(setupTestDB(t), zerolog.Nop())

	got, err := c.Get(testKey("1:1"))
	require.NoError(t, err)
	assert.Nil(t, got, "miss before any write")

	require.NoError(t, c.Put(testKey("1:1"), testRecord()))

	got, err = c.Get(testKey("1:1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 104200.0, got.ClosingVolumeM3)
	assert.Equal(t, "TSF1", got.FacilityCode)
}

func TestStorageRecordCache_SignatureIsPartOfKey(t *testing.T) {
	c := NewStorageRecordCache(setupTestDB(t), zerolog.Nop())
	require.NoError(t, c.Put(testKey("old-sig"), testRecord()))

	got, err := c.Get(testKey("new-sig"))
	require.NoError(t, err)
	assert.Nil(t, got, "entry written under a different signature never matches")
}

func TestStorageRecordCache_PurgeForWorkbook(t *testing.T) {
	c := NewStorageRecordCache(setupTestDB(t), zerolog.Nop())
	require.NoError(t, c.Put(testKey("s"), testRecord()))

	other := testKey("s")
	other.WorkbookPath = "/data/other.xlsx"
	require.NoError(t, c.Put(other, testRecord()))

	purged, err := c.PurgeForWorkbook("/data/site.xlsx")
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	got, err := c.Get(other)
	require.NoError(t, err)
	assert.NotNil(t, got, "other workbook untouched")
}

func TestStorageRecordCache_PurgeStaleSignatures(t *testing.T) {
	c := NewStorageRecordCache(setupTestDB(t), zerolog.Nop())
	require.NoError(t, c.Put(testKey("old"), testRecord()))
	require.NoError(t, c.Put(testKey("current"), testRecord()))

	purged, err := c.PurgeStaleSignatures("/data/site.xlsx", "current")
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	got, err := c.Get(testKey("current"))
	require.NoError(t, err)
	assert.NotNil(t, got)

	n, err := c.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStorageRecordCache_CorruptPayloadIsMiss(t *testing.T) {
	db := setupTestDB(t)
	c := NewStorageRecordCache(db, zerolog.Nop())

	_, err := db.Exec(`
		INSERT INTO storage_records (workbook_path, facility_code, year, month, excel_signature, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, "/data/site.xlsx", "TSF1", 2025, 3, "sig", []byte{0xc1}) // 0xc1 is never valid msgpack
	require.NoError(t, err)

	got, err := c.Get(testKey("sig"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBalanceCache_SignatureMismatchIsMiss(t *testing.T) {
	c := NewBalanceCache(setupTestDB(t), zerolog.Nop())
	period := domain.CalculationPeriod{Year: 2025, Month: 3}

	result := &domain.BalanceResult{
		Period: period,
		Mode:   domain.ModeRegulator,
		Status: domain.StatusGreen,
	}
	require.NoError(t, c.Put(period, domain.ModeRegulator, "sig-a", result))

	got, err := c.Get(period, domain.ModeRegulator, "sig-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusGreen, got.Status)

	got, err = c.Get(period, domain.ModeRegulator, "sig-b")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Modes are cached independently.
	got, err = c.Get(period, domain.ModeAudit, "sig-a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

type staticSource struct {
	path string
	sig  string
}

func (s staticSource) Path() string             { return s.path }
func (s staticSource) CurrentSignature() string { return s.sig }

func TestSweepJob_RemovesStaleEntries(t *testing.T) {
	db := setupTestDB(t)
	storage := NewStorageRecordCache(db, zerolog.Nop())
	balance := NewBalanceCache(db, zerolog.Nop())

	require.NoError(t, storage.Put(testKey("old"), testRecord()))
	require.NoError(t, storage.Put(testKey("current"), testRecord()))

	period := domain.CalculationPeriod{Year: 2025, Month: 3}
	require.NoError(t, balance.Put(period, domain.ModeRegulator, "old", &domain.BalanceResult{Period: period}))

	job := NewSweepJob(storage, balance, staticSource{"/data/site.xlsx", "current"}, zerolog.Nop())
	assert.Equal(t, "cache_sweep", job.Name())
	require.NoError(t, job.Run())

	n, err := storage.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := balance.Get(period, domain.ModeRegulator, "old")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSweepJob_NoWorkbookIsNoop(t *testing.T) {
	db := setupTestDB(t)
	storage := NewStorageRecordCache(db, zerolog.Nop())
	balance := NewBalanceCache(db, zerolog.Nop())
	require.NoError(t, storage.Put(testKey("any"), testRecord()))

	job := NewSweepJob(storage, balance, staticSource{"", ""}, zerolog.Nop())
	require.NoError(t, job.Run())

	n, err := storage.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "nothing swept without a loaded workbook")
}
