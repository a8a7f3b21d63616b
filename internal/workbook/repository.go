package workbook

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// Repository holds the workbook's monthly frames in memory. Frames are
// read-mostly after load; Reload takes the write lock as an exclusive
// barrier, so new readers block until the fresh frames are in place.
type Repository struct {
	mu      sync.RWMutex
	path    string
	timeout time.Duration
	log     zerolog.Logger

	loaded    bool
	loadedAt  time.Time
	signature string
	loadErr   error
	warnings  []string
	sheetErrs map[string]string

	env         environmentalFrame
	storage     storageFrame
	production  productionFrame
	consumption consumptionFrame
	seepage     seepageFrame
	discharge   dischargeFrame
}

// NewRepository creates a workbook repository for the given path. The
// timeout bounds a full parallel load; zero means no deadline.
func NewRepository(path string, timeout time.Duration, log zerolog.Logger) *Repository {
	return &Repository{
		path:    path,
		timeout: timeout,
		log:     log.With().Str("component", "workbook").Logger(),
	}
}

// ReloadStats summarizes one load pass.
type ReloadStats struct {
	Signature string        `json:"signature"`
	Sheets    int           `json:"sheets_loaded"`
	Rows      int           `json:"rows"`
	Warnings  int           `json:"warnings"`
	Duration  time.Duration `json:"-"`
}

// Load reads all sheets once. Idempotent: a loaded repository is left
// untouched. An unusable path marks the repository loaded-empty and
// returns an InputFormat error; callers may treat that as non-fatal.
func (r *Repository) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	_, err := r.loadLocked()
	return err
}

// Reload forces a re-read of every sheet, replacing all frames. In-memory
// and persistent calculation caches keyed to this workbook must be purged
// by the caller (the reload service does this).
func (r *Repository) Reload() (ReloadStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

// loadLocked runs the six-sheet parallel load. Caller holds the write lock.
func (r *Repository) loadLocked() (ReloadStats, error) {
	start := time.Now()
	r.resetLocked()

	sig, err := Signature(r.path)
	if err != nil {
		// Unusable path: repository is loaded but empty so consumers keep
		// working against empty frames instead of crashing.
		r.loaded = true
		r.loadedAt = time.Now()
		r.loadErr = err
		r.log.Error().Err(err).Str("path", r.path).Msg("Workbook not loadable, repository marked empty")
		return ReloadStats{}, err
	}
	r.signature = sig

	type outcome struct {
		sheet    string
		data     *sheetData
		err      error
		elapsed  time.Duration
		rowCount int
	}

	tasks := []struct {
		sheet    string
		required []string
	}{
		{SheetEnvironmental, []string{ColDate, ColRainfallMM, ColEvaporationMM, ColPanCoefficient}},
		{SheetStorage, []string{ColDate, ColFacilityCode, ColInflowM3, ColOutflowM3}},
		{SheetProduction, []string{ColDate, ColConcentrateProducedT, ColConcentrateMoisturePct, ColSlurryDensity, ColTailingsMoisturePct}},
		{SheetConsumption, []string{ColDate, ColDustSuppressionM3, ColMiningM3, ColDomesticM3, ColIrrigationM3, ColOtherM3}},
		{SheetSeepage, []string{ColDate, ColSeepageLossM3, ColSeepageGainM3, ColUnaccountedLossesM3}},
		{SheetDischarge, []string{ColDate, ColFacilityCode, ColDischargeVolumeM3, ColDischargeType, ColReason, ColApprovalReference}},
	}

	results := make(chan outcome, len(tasks))
	for _, t := range tasks {
		go func(sheet string, required []string) {
			taskStart := time.Now()
			data, err := readSheet(r.path, sheet, required)
			rows := 0
			if data != nil {
				rows = len(data.rows)
			}
			results <- outcome{sheet: sheet, data: data, err: err, elapsed: time.Since(taskStart), rowCount: rows}
		}(t.sheet, t.required)
	}

	var deadline <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	pending := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		pending[t.sheet] = true
	}

	stats := ReloadStats{Signature: sig}
collect:
	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.sheet)
			if res.err != nil {
				r.sheetErrs[res.sheet] = res.err.Error()
				r.log.Error().Err(res.err).Str("sheet", res.sheet).Msg("Sheet load failed, frame left empty")
				continue
			}
			r.applySheetLocked(res.sheet, res.data)
			r.warnings = append(r.warnings, res.data.warnings...)
			stats.Sheets++
			stats.Rows += res.rowCount
			r.log.Info().
				Str("sheet", res.sheet).
				Int("rows", res.rowCount).
				Dur("elapsed", res.elapsed).
				Msg("Sheet loaded")
		case <-deadline:
			// Remaining sheets become empty frames; their goroutines finish
			// into the buffered channel and are discarded.
			for sheet := range pending {
				r.sheetErrs[sheet] = "load deadline elapsed"
				r.warnings = append(r.warnings, fmt.Sprintf("sheet %s: load deadline (%s) elapsed, treated as empty", sheet, r.timeout))
			}
			r.log.Warn().
				Dur("timeout", r.timeout).
				Int("incomplete_sheets", len(pending)).
				Msg("Workbook load deadline elapsed")
			break collect
		}
	}

	r.loaded = true
	r.loadedAt = time.Now()
	stats.Warnings = len(r.warnings)
	stats.Duration = time.Since(start)

	r.log.Info().
		Str("signature", sig).
		Int("sheets", stats.Sheets).
		Int("rows", stats.Rows).
		Int("warnings", stats.Warnings).
		Dur("elapsed", stats.Duration).
		Msg("Workbook loaded")

	return stats, nil
}

func (r *Repository) resetLocked() {
	r.loaded = false
	r.loadErr = nil
	r.signature = ""
	r.warnings = nil
	r.sheetErrs = make(map[string]string)
	r.env = make(environmentalFrame)
	r.storage = make(storageFrame)
	r.production = make(productionFrame)
	r.consumption = make(consumptionFrame)
	r.seepage = make(seepageFrame)
	r.discharge = make(dischargeFrame)
}

// applySheetLocked builds the typed frame for one parsed sheet. Single-row
// sheets keep the last row per period; multi-row sheets accumulate in file
// order.
func (r *Repository) applySheetLocked(sheet string, data *sheetData) {
	switch sheet {
	case SheetEnvironmental:
		for _, row := range data.rows {
			r.env[row.period] = EnvironmentalRow{
				RainfallMM:     parseFloatCell(row.cells[ColRainfallMM]),
				EvaporationMM:  parseFloatCell(row.cells[ColEvaporationMM]),
				PanCoefficient: parseFloatCell(row.cells[ColPanCoefficient]),
			}
		}
	case SheetStorage:
		for _, row := range data.rows {
			code := domain.NormalizeCode(row.cells[ColFacilityCode])
			if code == "" {
				continue
			}
			r.storage[row.period] = append(r.storage[row.period], StorageRow{
				FacilityCode:  code,
				InflowM3:      parseFloatCell(row.cells[ColInflowM3]),
				OutflowM3:     parseFloatCell(row.cells[ColOutflowM3]),
				AbstractionM3: parseFloatCell(row.cells[ColAbstractionM3]),
			})
		}
	case SheetProduction:
		for _, row := range data.rows {
			r.production[row.period] = ProductionRow{
				ConcentrateProducedT:   parseFloatCell(row.cells[ColConcentrateProducedT]),
				ConcentrateMoisturePct: parseFloatCell(row.cells[ColConcentrateMoisturePct]),
				SlurryDensityTPerM3:    parseFloatCell(row.cells[ColSlurryDensity]),
				TailingsMoisturePct:    parseFloatCell(row.cells[ColTailingsMoisturePct]),
				OreMilledT:             parseFloatCell(row.cells[ColOreMilledT]),
				TailingsProducedT:      parseFloatCell(row.cells[ColTailingsProducedT]),
				RWDIntensityM3PerT:     parseFloatCell(row.cells[ColRWDIntensity]),
			}
		}
	case SheetConsumption:
		for _, row := range data.rows {
			r.consumption[row.period] = ConsumptionRow{
				DustSuppressionM3:     parseFloatCell(row.cells[ColDustSuppressionM3]),
				MiningM3:              parseFloatCell(row.cells[ColMiningM3]),
				DomesticM3:            parseFloatCell(row.cells[ColDomesticM3]),
				IrrigationM3:          parseFloatCell(row.cells[ColIrrigationM3]),
				OtherM3:               parseFloatCell(row.cells[ColOtherM3]),
				ExternalAbstractionM3: parseFloatCell(row.cells[ColExternalAbstractionM3]),
				OtherInflowM3:         parseFloatCell(row.cells[ColOtherInflowM3]),
			}
		}
	case SheetSeepage:
		for _, row := range data.rows {
			r.seepage[row.period] = SeepageRow{
				SeepageLossM3:       parseFloatCell(row.cells[ColSeepageLossM3]),
				SeepageGainM3:       parseFloatCell(row.cells[ColSeepageGainM3]),
				UnaccountedLossesM3: parseFloatCell(row.cells[ColUnaccountedLossesM3]),
			}
		}
	case SheetDischarge:
		for _, row := range data.rows {
			r.discharge[row.period] = append(r.discharge[row.period], DischargeRow{
				FacilityCode:      domain.NormalizeCode(row.cells[ColFacilityCode]),
				VolumeM3:          parseFloatCell(row.cells[ColDischargeVolumeM3]),
				DischargeType:     row.cells[ColDischargeType],
				Reason:            row.cells[ColReason],
				ApprovalReference: row.cells[ColApprovalReference],
			})
		}
	}
}

// Path returns the workbook path.
func (r *Repository) Path() string {
	return r.path
}

// Loaded reports whether a load pass has completed (even loaded-empty).
func (r *Repository) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// CurrentSignature returns the signature captured at the last load, empty
// when the workbook was not loadable.
func (r *Repository) CurrentSignature() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.signature
}

// GetRainfall returns the month's rainfall in mm, nil when absent.
func (r *Repository) GetRainfall(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env[p].RainfallMM
}

// GetEvaporation returns the month's evaporation in mm, nil when absent.
func (r *Repository) GetEvaporation(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env[p].EvaporationMM
}

// GetPanCoefficient returns the month's pan coefficient, nil when absent.
func (r *Repository) GetPanCoefficient(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env[p].PanCoefficient
}

// GetConcentrateProduced returns tonnes of concentrate, nil when absent.
func (r *Repository) GetConcentrateProduced(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[p].ConcentrateProducedT
}

// GetConcentrateMoisture returns concentrate moisture percent, nil when absent.
func (r *Repository) GetConcentrateMoisture(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[p].ConcentrateMoisturePct
}

// GetSlurryDensity returns slurry density in t/m3, nil when absent.
func (r *Repository) GetSlurryDensity(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[p].SlurryDensityTPerM3
}

// GetTailingsMoisture returns tailings moisture percent, nil when absent.
func (r *Repository) GetTailingsMoisture(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[p].TailingsMoisturePct
}

// GetOreMilled returns tonnes of ore milled, nil when absent.
func (r *Repository) GetOreMilled(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[p].OreMilledT
}

// GetTailingsProduced returns tonnes of tailings deposited, nil when absent.
func (r *Repository) GetTailingsProduced(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[p].TailingsProducedT
}

// GetRWDIntensity returns the measured return water dam intensity in m3
// per tonne milled, nil when the site does not report it.
func (r *Repository) GetRWDIntensity(p domain.CalculationPeriod) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.production[p].RWDIntensityM3PerT
}

// GetConsumption returns the month's consumption row.
func (r *Repository) GetConsumption(p domain.CalculationPeriod) (ConsumptionRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.consumption[p]
	return row, ok
}

// GetSeepage returns the month's seepage row.
func (r *Repository) GetSeepage(p domain.CalculationPeriod) (SeepageRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.seepage[p]
	return row, ok
}

// GetDischarge returns the month's discharge events in file order.
func (r *Repository) GetDischarge(p domain.CalculationPeriod) []DischargeRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.discharge[p]
	out := make([]DischargeRow, len(rows))
	copy(out, rows)
	return out
}

// GetStorageRaw returns one facility's raw monthly flows.
func (r *Repository) GetStorageRaw(facilityCode string, p domain.CalculationPeriod) (StorageRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code := domain.NormalizeCode(facilityCode)
	for _, row := range r.storage[p] {
		if row.FacilityCode == code {
			return row, true
		}
	}
	return StorageRow{}, false
}

// GetAllStorageRaw returns all facilities' raw flows for the period,
// sorted by facility code for deterministic iteration.
func (r *Repository) GetAllStorageRaw(p domain.CalculationPeriod) []StorageRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := make([]StorageRow, len(r.storage[p]))
	copy(rows, r.storage[p])
	sort.Slice(rows, func(i, j int) bool { return rows[i].FacilityCode < rows[j].FacilityCode })
	return rows
}

// Status describes the repository for health and UI endpoints.
type Status struct {
	Path       string            `json:"path"`
	Loaded     bool              `json:"loaded"`
	LoadedAt   time.Time         `json:"loaded_at"`
	Signature  string            `json:"signature"`
	LoadError  string            `json:"load_error,omitempty"`
	SheetErr   map[string]string `json:"sheet_errors,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	PeriodSpan string            `json:"period_span,omitempty"`
}

// CurrentStatus snapshots the repository state.
func (r *Repository) CurrentStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{
		Path:      r.path,
		Loaded:    r.loaded,
		LoadedAt:  r.loadedAt,
		Signature: r.signature,
	}
	if r.loadErr != nil {
		st.LoadError = r.loadErr.Error()
	}
	if len(r.sheetErrs) > 0 {
		st.SheetErr = make(map[string]string, len(r.sheetErrs))
		for k, v := range r.sheetErrs {
			st.SheetErr[k] = v
		}
	}
	st.Warnings = append(st.Warnings, r.warnings...)
	if span := r.periodSpanLocked(); span != "" {
		st.PeriodSpan = span
	}
	return st
}

// periodSpanLocked reports the earliest and latest period present in the
// storage frame, the frame that drives calculations.
func (r *Repository) periodSpanLocked() string {
	if len(r.storage) == 0 {
		return ""
	}
	var lo, hi domain.CalculationPeriod
	first := true
	for p := range r.storage {
		if first {
			lo, hi = p, p
			first = false
			continue
		}
		if p.Before(lo) {
			lo = p
		}
		if hi.Before(p) {
			hi = p
		}
	}
	return lo.String() + ".." + hi.String()
}
