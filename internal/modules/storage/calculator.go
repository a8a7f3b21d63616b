package storage

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/cache"
	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/constants"
	"github.com/tailwater/aquabalance/internal/workbook"
)

// WorkbookSource is the slice of the time-series repository the calculator
// reads from.
type WorkbookSource interface {
	Path() string
	CurrentSignature() string
	GetRainfall(period domain.CalculationPeriod) *float64
	GetEvaporation(period domain.CalculationPeriod) *float64
	GetPanCoefficient(period domain.CalculationPeriod) *float64
	GetStorageRaw(facilityCode string, period domain.CalculationPeriod) (workbook.StorageRow, bool)
}

// ParameterSource provides the manual monthly totals stored in the database.
// They stand in for a workbook row when the sheet has none for a facility
// month.
type ParameterSource interface {
	GetByPeriod(facilityID int64, period domain.CalculationPeriod) (*domain.MonthlyParameters, error)
}

// EnvironmentalSource provides the database fallback for months missing
// from the workbook's Environmental sheet.
type EnvironmentalSource interface {
	GetByPeriod(period domain.CalculationPeriod) (*domain.EnvironmentalRecord, error)
}

// ConstantSource reads tuning constants with a fallback value.
type ConstantSource interface {
	ValueOr(key string, fallback float64) float64
}

// RecordCache is the persistent write-through cache for computed records.
type RecordCache interface {
	Get(key cache.StorageKey) (*domain.StorageRecord, error)
	Put(key cache.StorageKey, record *domain.StorageRecord) error
	PurgeStaleSignatures(workbookPath, currentSignature string) (int, error)
}

type memoKey struct {
	code  string
	year  int
	month int
}

type memoEntry struct {
	record *domain.StorageRecord
	found  bool
}

// Calculator derives the monthly mass balance of a single facility. The
// opening volume of a month is the closing volume of the month before, so
// a lookup recurses backwards until it runs out of data and falls back to
// a 10%-of-capacity baseline. Results are memoized in memory for the
// recursion and written through to the persistent cache keyed by the
// workbook signature.
type Calculator struct {
	workbook      WorkbookSource
	params        ParameterSource
	environmental EnvironmentalSource
	constants     ConstantSource
	cache         RecordCache
	log           zerolog.Logger

	mu   sync.Mutex
	memo map[memoKey]memoEntry
}

// NewCalculator creates a storage calculator. params, environmental,
// constants and recordCache may be nil; each missing collaborator simply
// disables its fallback or caching path.
func NewCalculator(wb WorkbookSource, params ParameterSource, environmental EnvironmentalSource,
	consts ConstantSource, recordCache RecordCache, log zerolog.Logger) *Calculator {
	return &Calculator{
		workbook:      wb,
		params:        params,
		environmental: environmental,
		constants:     consts,
		cache:         recordCache,
		log:           log.With().Str("component", "storage_calculator").Logger(),
		memo:          make(map[memoKey]memoEntry),
	}
}

// InvalidateMemo drops every memoized record. Called after a workbook
// reload or a facility mutation.
func (c *Calculator) InvalidateMemo() {
	c.mu.Lock()
	c.memo = make(map[memoKey]memoEntry)
	c.mu.Unlock()
}

// GetStorageRecord returns the computed record for one facility month.
// A month with no workbook row and no monthly parameters is NotFound.
func (c *Calculator) GetStorageRecord(f *domain.StorageFacility, period domain.CalculationPeriod) (*domain.StorageRecord, error) {
	if f == nil {
		return nil, domain.Invariantf("storage calculator: facility is required")
	}
	if f.CapacityM3 < 0 {
		return nil, domain.Invariantf("facility %s: capacity cannot be negative", f.Code)
	}
	if !period.Valid() {
		return nil, domain.Invariantf("storage calculator: period %s out of range", period)
	}

	signature := c.workbook.CurrentSignature()
	c.purgeIfWorkbookChanged(signature)

	rec, found, err := c.compute(f, period, signature)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NotFoundf("no storage data for %s in %s", domain.NormalizeCode(f.Code), period)
	}
	return copyRecord(rec), nil
}

// purgeIfWorkbookChanged compares the on-disk workbook against the loaded
// signature and drops cache rows written under older signatures. The
// loaded frames stay authoritative until the next Reload.
func (c *Calculator) purgeIfWorkbookChanged(loadedSignature string) {
	if c.cache == nil || loadedSignature == "" {
		return
	}
	current, err := workbook.Signature(c.workbook.Path())
	if err != nil || current == loadedSignature {
		return
	}
	purged, err := c.cache.PurgeStaleSignatures(c.workbook.Path(), loadedSignature)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to purge stale cache entries")
		return
	}
	c.log.Warn().
		Str("loaded_signature", loadedSignature).
		Str("disk_signature", current).
		Int("purged", purged).
		Msg("Workbook changed on disk since load, reload to pick up new data")
}

func (c *Calculator) compute(f *domain.StorageFacility, period domain.CalculationPeriod, signature string) (*domain.StorageRecord, bool, error) {
	code := domain.NormalizeCode(f.Code)
	key := memoKey{code: code, year: period.Year, month: period.Month}

	c.mu.Lock()
	entry, ok := c.memo[key]
	c.mu.Unlock()
	if ok {
		return entry.record, entry.found, nil
	}

	cacheKey := cache.StorageKey{
		WorkbookPath: c.workbook.Path(),
		FacilityCode: code,
		Year:         period.Year,
		Month:        period.Month,
		Signature:    signature,
	}
	if c.cache != nil && signature != "" {
		cached, err := c.cache.Get(cacheKey)
		if err != nil {
			c.log.Warn().Err(err).Str("facility", code).Msg("Cache read failed, computing")
		} else if cached != nil {
			c.memoize(key, cached, true)
			return cached, true, nil
		}
	}

	inflowManual, outflowManual, abstraction, hasRow, err := c.rawFlows(f, code, period)
	if err != nil {
		return nil, false, err
	}
	if !hasRow {
		c.memoize(key, nil, false)
		return nil, false, nil
	}

	rec := &domain.StorageRecord{
		FacilityCode:    code,
		Year:            period.Year,
		Month:           period.Month,
		InflowManualM3:  inflowManual,
		OutflowManualM3: outflowManual,
		AbstractionM3:   abstraction,
	}

	if err := c.resolveOpening(f, period, signature, rec); err != nil {
		return nil, false, err
	}
	c.applyEnvironmental(f, period, rec)

	rec.InflowTotalM3 = rec.InflowManualM3 + rec.RainfallVolumeM3
	rec.OutflowTotalM3 = rec.OutflowManualM3 + rec.EvaporationVolumeM3 + rec.AbstractionM3
	closing := rec.OpeningVolumeM3 + rec.InflowTotalM3 - rec.OutflowTotalM3

	if f.CapacityM3 > 0 && closing > f.CapacityM3 {
		rec.OverflowM3 = closing - f.CapacityM3
		closing = f.CapacityM3
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("OVERFLOW: closing volume exceeded capacity by %.1f m3", rec.OverflowM3))
	}
	if closing < 0 {
		rec.DeficitM3 = -closing
		closing = 0
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("DEFICIT: demand exceeded available volume by %.1f m3", rec.DeficitM3))
	}
	rec.ClosingVolumeM3 = closing

	if f.CapacityM3 > 0 && rec.InflowTotalM3 > 1.5*f.CapacityM3 {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("inflow %.1f m3 exceeds 150%% of capacity %.1f m3", rec.InflowTotalM3, f.CapacityM3))
	}
	if rec.OpeningVolumeM3 > 0 && rec.OutflowTotalM3 > 1.2*rec.OpeningVolumeM3 {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("outflow %.1f m3 exceeds 120%% of opening volume %.1f m3", rec.OutflowTotalM3, rec.OpeningVolumeM3))
	}

	if f.CapacityM3 > 0 {
		rec.LevelPercent = rec.OpeningVolumeM3 / f.CapacityM3
	}

	c.memoize(key, rec, true)
	if c.cache != nil && signature != "" {
		if err := c.cache.Put(cacheKey, rec); err != nil {
			c.log.Warn().Err(err).Str("facility", code).Msg("Cache write failed")
		}
	}
	return rec, true, nil
}

// rawFlows resolves the manual inflow/outflow/abstraction of a facility
// month. The workbook row wins; monthly parameters stand in when the sheet
// has none. Absent values count as zero.
func (c *Calculator) rawFlows(f *domain.StorageFacility, code string, period domain.CalculationPeriod) (inflow, outflow, abstraction float64, found bool, err error) {
	row, ok := c.workbook.GetStorageRaw(code, period)
	if ok {
		return floatOrZero(row.InflowM3), floatOrZero(row.OutflowM3), floatOrZero(row.AbstractionM3), true, nil
	}

	if c.params == nil || f.ID == 0 {
		return 0, 0, 0, false, nil
	}
	p, err := c.params.GetByPeriod(f.ID, period)
	if err != nil {
		return 0, 0, 0, false, fmt.Errorf("failed to read monthly parameters for %s %s: %w", code, period, err)
	}
	if p == nil {
		return 0, 0, 0, false, nil
	}
	return p.TotalInflowsM3, p.TotalOutflowsM3, 0, true, nil
}

// resolveOpening fills the opening volume: the previous month's closing
// when one can be computed, otherwise 10% of capacity as an estimate.
func (c *Calculator) resolveOpening(f *domain.StorageFacility, period domain.CalculationPeriod, signature string, rec *domain.StorageRecord) error {
	prev := period.Previous()
	if prev.Valid() {
		prevRec, prevFound, err := c.compute(f, prev, signature)
		if err != nil {
			return err
		}
		if prevFound {
			rec.OpeningVolumeM3 = prevRec.ClosingVolumeM3
			return nil
		}
	}

	if f.CapacityM3 > 0 {
		rec.OpeningVolumeM3 = 0.10 * f.CapacityM3
		rec.OpeningEstimated = true
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("no prior month data, opening volume estimated at 10%% of capacity (%.1f m3)", rec.OpeningVolumeM3))
		return nil
	}
	rec.OpeningVolumeM3 = 0
	rec.OpeningEstimated = true
	rec.Warnings = append(rec.Warnings, "no prior month data and no capacity, opening volume assumed 0")
	return nil
}

// applyEnvironmental converts rainfall and evaporation depths to volumes
// over the facility's surface area. Months missing from the workbook fall
// back to the environmental table; evaporation from that table is raw pan
// data and gets the pan coefficient applied.
func (c *Calculator) applyEnvironmental(f *domain.StorageFacility, period domain.CalculationPeriod, rec *domain.StorageRecord) {
	area := f.SurfaceArea()
	if area <= 0 {
		return
	}

	rain := c.workbook.GetRainfall(period)
	evap := c.workbook.GetEvaporation(period)

	if rain == nil || evap == nil {
		envRec := c.environmentalFallback(period)
		if rain == nil && envRec != nil {
			rain = &envRec.RainfallMM
		}
		if evap == nil && envRec != nil {
			coef := c.panCoefficient(period)
			v := envRec.EvaporationMM * coef
			evap = &v
		}
	}

	if rain != nil {
		rec.RainfallVolumeM3 = (*rain / 1000) * area
	} else {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("no rainfall data for %s, assuming 0", period))
	}
	if evap != nil {
		rec.EvaporationVolumeM3 = (*evap / 1000) * area
	} else {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("no evaporation data for %s, assuming 0", period))
	}
}

func (c *Calculator) environmentalFallback(period domain.CalculationPeriod) *domain.EnvironmentalRecord {
	if c.environmental == nil {
		return nil
	}
	envRec, err := c.environmental.GetByPeriod(period)
	if err != nil {
		c.log.Warn().Err(err).Str("period", period.String()).Msg("Environmental fallback read failed")
		return nil
	}
	return envRec
}

func (c *Calculator) panCoefficient(period domain.CalculationPeriod) float64 {
	if pan := c.workbook.GetPanCoefficient(period); pan != nil {
		return *pan
	}
	if c.constants != nil {
		return c.constants.ValueOr(constants.KeyPanCoefficientDefault, 0.7)
	}
	return 0.7
}

func (c *Calculator) memoize(key memoKey, rec *domain.StorageRecord, found bool) {
	c.mu.Lock()
	c.memo[key] = memoEntry{record: rec, found: found}
	c.mu.Unlock()
}

func copyRecord(rec *domain.StorageRecord) *domain.StorageRecord {
	out := *rec
	if rec.Warnings != nil {
		out.Warnings = append([]string(nil), rec.Warnings...)
	}
	return &out
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
