package workbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tailwater/aquabalance/internal/domain"
)

// writeRows writes a header row followed by data rows starting at A1.
func writeRows(t *testing.T, f *excelize.File, sheet string, rows [][]interface{}) {
	t.Helper()
	_, err := f.NewSheet(sheet)
	require.NoError(t, err)
	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}
}

// newTestWorkbook builds a minimal but complete workbook covering
// March and April 2025.
func newTestWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()

	writeRows(t, f, SheetEnvironmental, [][]interface{}{
		{"Date", "Rainfall_mm", "Custom_Evaporation_mm", "Pan_Coefficient"},
		{"2025-03-01", 42.5, 110.0, 0.7},
		{"2025-04-01", 10.0, 130.0, 0.7},
	})
	writeRows(t, f, SheetStorage, [][]interface{}{
		{"Date", "Facility_Code", "Inflow_m3", "Outflow_m3", "Abstraction_m3"},
		{"2025-03-01", "tsf1", 120000.0, 85000.0, 15000.0},
		{"2025-03-01", "RWD1", 30000.0, 22000.0, ""},
		{"2025-04-01", "TSF1", 90000.0, 91000.0, 12000.0},
	})
	writeRows(t, f, SheetProduction, [][]interface{}{
		{"Date", "Concentrate_Produced_t", "Concentrate_Moisture_Percent", "Slurry_Density_t_per_m3", "Tailings_Moisture_Percent", "Ore_Milled_t", "Tailings_t"},
		{"2025-03-01", 5200.0, 8.5, 1.45, 22.0, 210000.0, 198000.0},
	})
	writeRows(t, f, SheetConsumption, [][]interface{}{
		{"Date", "Dust_Suppression_m3", "Mining_m3", "Domestic_m3", "Irrigation_m3", "Other_m3", "External_Abstraction_m3"},
		{"2025-03-01", 4000.0, 2500.0, 800.0, 300.0, 150.0, 48000.0},
	})
	writeRows(t, f, SheetSeepage, [][]interface{}{
		{"Date", "Seepage_Loss_m3", "Seepage_Gain_m3", "Unaccounted_Losses_m3"},
		{"2025-03-01", 6000.0, 500.0, 1200.0},
	})
	writeRows(t, f, SheetDischarge, [][]interface{}{
		{"Date", "Facility_Code", "Discharge_Volume_m3", "Discharge_Type", "Reason", "Approval_Reference"},
		{"2025-03-01", "RWD1", 5000.0, "controlled", "storm buffer", "ENV-2025-014"},
		{"2025-03-01", "RWD1", 2500.0, "controlled", "storm buffer", "ENV-2025-015"},
	})
	require.NoError(t, f.DeleteSheet("Sheet1"))

	path := filepath.Join(t.TempDir(), "site.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func march() domain.CalculationPeriod {
	return domain.CalculationPeriod{Year: 2025, Month: 3}
}

func TestRepository_LoadParsesAllSheets(t *testing.T) {
	path := newTestWorkbook(t)
	repo := NewRepository(path, 0, zerolog.Nop())

	require.NoError(t, repo.Load())
	require.True(t, repo.Loaded())

	rain := repo.GetRainfall(march())
	require.NotNil(t, rain)
	assert.Equal(t, 42.5, *rain)

	evap := repo.GetEvaporation(march())
	require.NotNil(t, evap)
	assert.Equal(t, 110.0, *evap)

	pan := repo.GetPanCoefficient(march())
	require.NotNil(t, pan)
	assert.Equal(t, 0.7, *pan)

	prod := repo.GetConcentrateProduced(march())
	require.NotNil(t, prod)
	assert.Equal(t, 5200.0, *prod)

	slurry := repo.GetSlurryDensity(march())
	require.NotNil(t, slurry)
	assert.Equal(t, 1.45, *slurry)

	ore := repo.GetOreMilled(march())
	require.NotNil(t, ore)
	assert.Equal(t, 210000.0, *ore)

	tails := repo.GetTailingsProduced(march())
	require.NotNil(t, tails)
	assert.Equal(t, 198000.0, *tails)
	assert.Nil(t, repo.GetRWDIntensity(march()), "column absent from fixture")

	cons, ok := repo.GetConsumption(march())
	require.True(t, ok)
	assert.Equal(t, 4000.0, *cons.DustSuppressionM3)
	assert.Equal(t, 150.0, *cons.OtherM3)
	require.NotNil(t, cons.ExternalAbstractionM3)
	assert.Equal(t, 48000.0, *cons.ExternalAbstractionM3)
	assert.Nil(t, cons.OtherInflowM3)

	seep, ok := repo.GetSeepage(march())
	require.True(t, ok)
	assert.Equal(t, 6000.0, *seep.SeepageLossM3)

	discharges := repo.GetDischarge(march())
	require.Len(t, discharges, 2)
	assert.Equal(t, "RWD1", discharges[0].FacilityCode)
	assert.Equal(t, "ENV-2025-014", discharges[0].ApprovalReference)
}

func TestRepository_StorageRawNormalizesAndSorts(t *testing.T) {
	repo := NewRepository(newTestWorkbook(t), 0, zerolog.Nop())
	require.NoError(t, repo.Load())

	// Lowercase code in the sheet still resolves.
	row, ok := repo.GetStorageRaw("tsf1", march())
	require.True(t, ok)
	assert.Equal(t, "TSF1", row.FacilityCode)
	assert.Equal(t, 120000.0, *row.InflowM3)
	assert.Equal(t, 15000.0, *row.AbstractionM3)

	// Missing abstraction cell reads as nil.
	rwd, ok := repo.GetStorageRaw("RWD1", march())
	require.True(t, ok)
	assert.Nil(t, rwd.AbstractionM3)

	all := repo.GetAllStorageRaw(march())
	require.Len(t, all, 2)
	assert.Equal(t, "RWD1", all[0].FacilityCode)
	assert.Equal(t, "TSF1", all[1].FacilityCode)
}

func TestRepository_MissingPeriodReturnsNil(t *testing.T) {
	repo := NewRepository(newTestWorkbook(t), 0, zerolog.Nop())
	require.NoError(t, repo.Load())

	missing := domain.CalculationPeriod{Year: 2024, Month: 1}
	assert.Nil(t, repo.GetRainfall(missing))
	_, ok := repo.GetConsumption(missing)
	assert.False(t, ok)
	_, ok = repo.GetStorageRaw("TSF1", missing)
	assert.False(t, ok)
	assert.Empty(t, repo.GetDischarge(missing))
}

func TestRepository_MissingSheetLeavesEmptyFrame(t *testing.T) {
	f := excelize.NewFile()
	writeRows(t, f, SheetEnvironmental, [][]interface{}{
		{"Date", "Rainfall_mm", "Custom_Evaporation_mm", "Pan_Coefficient"},
		{"2025-03-01", 12.0, 90.0, 0.7},
	})
	require.NoError(t, f.DeleteSheet("Sheet1"))
	path := filepath.Join(t.TempDir(), "partial.xlsx")
	require.NoError(t, f.SaveAs(path))

	repo := NewRepository(path, 0, zerolog.Nop())
	require.NoError(t, repo.Load())

	assert.NotNil(t, repo.GetRainfall(march()))
	assert.Nil(t, repo.GetSlurryDensity(march()))

	st := repo.CurrentStatus()
	assert.Empty(t, st.SheetErr, "absent sheets are warnings, not errors")
	assert.NotEmpty(t, st.Warnings)
}

func TestRepository_MissingRequiredColumnIsIsolated(t *testing.T) {
	f := excelize.NewFile()
	// Environmental lacks Rainfall_mm.
	writeRows(t, f, SheetEnvironmental, [][]interface{}{
		{"Date", "Custom_Evaporation_mm", "Pan_Coefficient"},
		{"2025-03-01", 90.0, 0.7},
	})
	writeRows(t, f, SheetStorage, [][]interface{}{
		{"Date", "Facility_Code", "Inflow_m3", "Outflow_m3"},
		{"2025-03-01", "TSF1", 1000.0, 500.0},
	})
	require.NoError(t, f.DeleteSheet("Sheet1"))
	path := filepath.Join(t.TempDir(), "badcol.xlsx")
	require.NoError(t, f.SaveAs(path))

	repo := NewRepository(path, 0, zerolog.Nop())
	require.NoError(t, repo.Load())

	st := repo.CurrentStatus()
	assert.Contains(t, st.SheetErr, SheetEnvironmental)
	assert.Nil(t, repo.GetEvaporation(march()), "failed sheet contributes nothing")

	// The storage sheet is unaffected.
	_, ok := repo.GetStorageRaw("TSF1", march())
	assert.True(t, ok)
}

func TestRepository_MalformedNumericBecomesNil(t *testing.T) {
	f := excelize.NewFile()
	writeRows(t, f, SheetEnvironmental, [][]interface{}{
		{"Date", "Rainfall_mm", "Custom_Evaporation_mm", "Pan_Coefficient"},
		{"2025-03-01", "n/a", 90.0, 0.7},
	})
	require.NoError(t, f.DeleteSheet("Sheet1"))
	path := filepath.Join(t.TempDir(), "malformed.xlsx")
	require.NoError(t, f.SaveAs(path))

	repo := NewRepository(path, 0, zerolog.Nop())
	require.NoError(t, repo.Load())

	assert.Nil(t, repo.GetRainfall(march()))
	evap := repo.GetEvaporation(march())
	require.NotNil(t, evap, "other cells in the row survive")
	assert.Equal(t, 90.0, *evap)
}

func TestRepository_BadPathMarksLoadedEmpty(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "nope.xlsx"), 0, zerolog.Nop())

	err := repo.Load()
	require.Error(t, err)
	assert.Equal(t, domain.KindInputFormat, domain.KindOf(err))

	assert.True(t, repo.Loaded(), "unusable path still marks repo loaded-empty")
	assert.Nil(t, repo.GetRainfall(march()))
	assert.Empty(t, repo.CurrentSignature())
}

func TestRepository_LoadIsIdempotent(t *testing.T) {
	path := newTestWorkbook(t)
	repo := NewRepository(path, 0, zerolog.Nop())
	require.NoError(t, repo.Load())
	first := repo.CurrentStatus().LoadedAt

	require.NoError(t, repo.Load())
	assert.Equal(t, first, repo.CurrentStatus().LoadedAt)
}

func TestRepository_ReloadPicksUpChanges(t *testing.T) {
	path := newTestWorkbook(t)
	repo := NewRepository(path, 0, zerolog.Nop())
	require.NoError(t, repo.Load())
	oldSig := repo.CurrentSignature()

	// Rewrite the workbook with different rainfall.
	time.Sleep(10 * time.Millisecond) // ensure mtime moves
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(SheetEnvironmental, "B2", 99.0))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	stats, err := repo.Reload()
	require.NoError(t, err)
	assert.NotEqual(t, oldSig, stats.Signature)

	rain := repo.GetRainfall(march())
	require.NotNil(t, rain)
	assert.Equal(t, 99.0, *rain)
}

func TestSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wb.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	sig1, err := Signature(path)
	require.NoError(t, err)
	assert.Regexp(t, `^\d+:\d+$`, sig1)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("three"), 0o644))
	sig2, err := Signature(path)
	require.NoError(t, err)
	assert.NotEqual(t, sig1, sig2)

	_, err = Signature(filepath.Dir(path))
	require.Error(t, err)
	assert.Equal(t, domain.KindInputFormat, domain.KindOf(err))
}

func TestParseDateCell(t *testing.T) {
	// Excel serial for 2025-01-01.
	got, ok := parseDateCell("45658")
	require.True(t, ok)
	assert.Equal(t, 2025, got.Year())
	assert.Equal(t, time.January, got.Month())

	got, ok = parseDateCell("2025-03-01")
	require.True(t, ok)
	assert.Equal(t, time.March, got.Month())

	_, ok = parseDateCell("not a date")
	assert.False(t, ok)
}
