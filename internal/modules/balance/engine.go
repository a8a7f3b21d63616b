// Package balance folds per-facility storage records and the workbook's
// monthly frames into a period-level water balance: inflow and outflow
// enumerations, system storage change, closure error against a mode
// threshold, recycled-water KPIs and data quality flags.
package balance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/constants"
	"github.com/tailwater/aquabalance/internal/workbook"
)

// WorkbookSource is the slice of the time-series repository the engine
// aggregates over: the production, consumption, seepage and discharge frames.
// Rainfall and evaporation enter through the per-facility storage records.
type WorkbookSource interface {
	GetConsumption(period domain.CalculationPeriod) (workbook.ConsumptionRow, bool)
	GetSeepage(period domain.CalculationPeriod) (workbook.SeepageRow, bool)
	GetDischarge(period domain.CalculationPeriod) []workbook.DischargeRow
	GetConcentrateProduced(period domain.CalculationPeriod) *float64
	GetConcentrateMoisture(period domain.CalculationPeriod) *float64
	GetSlurryDensity(period domain.CalculationPeriod) *float64
	GetTailingsMoisture(period domain.CalculationPeriod) *float64
	GetOreMilled(period domain.CalculationPeriod) *float64
	GetTailingsProduced(period domain.CalculationPeriod) *float64
	GetRWDIntensity(period domain.CalculationPeriod) *float64
}

// ConstantSource reads tuning constants with a fallback value.
type ConstantSource interface {
	ValueOr(key string, fallback float64) float64
}

// FacilityInput pairs one active facility with its computed monthly record.
// Record is nil when the calculator had no data for the month; the engine
// notes the gap and computes without it.
type FacilityInput struct {
	Facility *domain.StorageFacility
	Record   *domain.StorageRecord
}

// Engine produces the period-level BalanceResult. It is deterministic:
// facilities are assembled in ascending code order and no I/O happens
// beyond the injected collaborators. Missing inputs never fail a run;
// they surface as quality flags on the result.
type Engine struct {
	workbook  WorkbookSource
	constants ConstantSource
	log       zerolog.Logger
}

// NewEngine creates a balance engine over the workbook frames and the
// constants store.
func NewEngine(wb WorkbookSource, consts ConstantSource, log zerolog.Logger) *Engine {
	return &Engine{
		workbook:  wb,
		constants: consts,
		log:       log.With().Str("component", "balance_engine").Logger(),
	}
}

// Compute builds the BalanceResult for one period. Contract violations
// (unknown mode, invalid period, records from another month) fail fast;
// everything else degrades to quality flags.
func (e *Engine) Compute(period domain.CalculationPeriod, mode domain.BalanceMode, inputs []FacilityInput) (*domain.BalanceResult, error) {
	if !period.Valid() {
		return nil, domain.Invariantf("balance period %s out of range", period)
	}
	if !domain.ValidBalanceMode(mode) {
		return nil, domain.Invariantf("unknown balance mode %q", mode)
	}

	sorted := make([]FacilityInput, len(inputs))
	copy(sorted, inputs)
	for _, in := range sorted {
		if in.Facility == nil {
			return nil, domain.Invariantf("balance engine: facility is required on every input")
		}
		if in.Facility.CapacityM3 < 0 {
			return nil, domain.Invariantf("facility %s: capacity cannot be negative", in.Facility.Code)
		}
		if in.Record != nil && (in.Record.Year != period.Year || in.Record.Month != period.Month) {
			return nil, domain.Invariantf("facility %s: record is for %04d-%02d, want %s",
				in.Facility.Code, in.Record.Year, in.Record.Month, period)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return domain.NormalizeCode(sorted[i].Facility.Code) < domain.NormalizeCode(sorted[j].Facility.Code)
	})

	quality := domain.NewDataQualityFlags()
	result := &domain.BalanceResult{
		Period:       period,
		Mode:         mode,
		QualityFlags: quality,
	}

	e.sumStorage(result, period, sorted, quality)
	e.sumConsumption(result, period, quality)
	e.sumProduction(result, period, quality)
	e.sumSeepage(result, period, sorted, quality)
	e.sumDischarge(result, period)
	e.applyKPIs(result, period, quality)

	result.Finalize(e.threshold(mode))
	if mode == domain.ModeAudit {
		result.Notes = auditNotes(result)
	}

	e.log.Debug().
		Str("period", period.String()).
		Str("mode", string(mode)).
		Float64("inflows_m3", result.Inflows.Total()).
		Float64("outflows_m3", result.Outflows.Total()).
		Float64("storage_delta_m3", result.Storage.DeltaM3).
		Float64("error_pct", result.ErrorPct).
		Str("status", string(result.Status)).
		Msg("Balance equation evaluated")

	return result, nil
}

// threshold picks the closure gate for the mode. INTERNAL runs against the
// looser internal threshold; REGULATOR and AUDIT share the strict one.
func (e *Engine) threshold(mode domain.BalanceMode) float64 {
	if mode == domain.ModeInternal {
		return e.constants.ValueOr(constants.KeyBalanceErrorThresholdInternalPct, 10.0)
	}
	return e.constants.ValueOr(constants.KeyBalanceErrorThresholdPct, 5.0)
}

// sumStorage folds the facility records into the storage change, the
// rainfall/evaporation sums and the recycled-water partition. Abstraction
// to plant is internal recirculation: it never enters system outflows.
func (e *Engine) sumStorage(result *domain.BalanceResult, period domain.CalculationPeriod,
	sorted []FacilityInput, quality *domain.DataQualityFlags) {

	recycled := domain.RecycledWater{}
	var estimatedOpenings []string

	for _, in := range sorted {
		code := domain.NormalizeCode(in.Facility.Code)
		if in.Record == nil {
			quality.Warn(fmt.Sprintf("no storage data for %s in %s", code, period))
			continue
		}
		rec := in.Record

		fb := domain.FacilityBalance{
			FacilityCode:    code,
			OpeningVolumeM3: rec.OpeningVolumeM3,
			ClosingVolumeM3: rec.ClosingVolumeM3,
			DeltaM3:         rec.Delta(),
			LevelPercent:    rec.LevelPercent,
			OverflowM3:      rec.OverflowM3,
			DeficitM3:       rec.DeficitM3,
		}
		if len(rec.Warnings) > 0 {
			fb.Warnings = append([]string(nil), rec.Warnings...)
		}
		result.Storage.Facilities = append(result.Storage.Facilities, fb)
		result.Storage.DeltaM3 += fb.DeltaM3

		result.Inflows.RainfallM3 += rec.RainfallVolumeM3
		result.Outflows.EvaporationM3 += rec.EvaporationVolumeM3

		switch in.Facility.FacilityType {
		case domain.FacilityTSF:
			recycled.TSFReturnM3 += rec.AbstractionM3
		case domain.FacilityDam, domain.FacilityPond:
			recycled.RWDReturnM3 += rec.AbstractionM3
		default:
			recycled.ProcessRecircM3 += rec.AbstractionM3
		}

		if rec.OpeningEstimated {
			estimatedOpenings = append(estimatedOpenings, code)
		}
	}

	if len(estimatedOpenings) > 0 {
		quality.MarkEstimated("opening_volume",
			"opening volume estimated at 10% of capacity for "+strings.Join(estimatedOpenings, ", "))
	}
	result.Recycled = &recycled
}

// sumConsumption maps the Consumption sheet onto the named outflow lines
// plus the two system inflows it carries: external abstraction and other
// configured inflows.
func (e *Engine) sumConsumption(result *domain.BalanceResult, period domain.CalculationPeriod,
	quality *domain.DataQualityFlags) {

	row, ok := e.workbook.GetConsumption(period)
	if !ok {
		quality.MarkMissing("consumption", fmt.Sprintf("no Consumption row for %s", period))
		quality.MarkMissing("abstraction", fmt.Sprintf("no Consumption row for %s", period))
		return
	}

	result.Outflows.DustSuppressionM3 = floatOrZero(row.DustSuppressionM3)
	result.Outflows.MiningM3 = floatOrZero(row.MiningM3)
	result.Outflows.DomesticM3 = floatOrZero(row.DomesticM3)
	result.Outflows.IrrigationM3 = floatOrZero(row.IrrigationM3)
	if other := floatOrZero(row.OtherM3); other != 0 {
		addOtherOutflow(result, "consumption_other", other)
	}

	if row.ExternalAbstractionM3 != nil {
		result.Inflows.AbstractionM3 = *row.ExternalAbstractionM3
	} else {
		quality.MarkMissing("abstraction", fmt.Sprintf("no External_Abstraction_m3 value for %s", period))
	}
	if v := floatOrZero(row.OtherInflowM3); v != 0 {
		addOtherInflow(result, "other_inflow", v)
	}
}

// sumProduction computes ore moisture (an inflow: water arriving bound to
// ore) and tailings lockup (an outflow: water locked into deposited
// tailings).
func (e *Engine) sumProduction(result *domain.BalanceResult, period domain.CalculationPeriod,
	quality *domain.DataQualityFlags) {

	concentrate := e.workbook.GetConcentrateProduced(period)
	if concentrate == nil {
		quality.MarkMissing("ore_moisture", fmt.Sprintf("no concentrate tonnage for %s", period))
	} else {
		moisturePct := 0.0
		if m := e.workbook.GetConcentrateMoisture(period); m != nil {
			moisturePct = *m
		} else {
			moisturePct = e.constants.ValueOr(constants.KeyConcentrateMoistureDefault, 9.0)
			quality.MarkEstimated("ore_moisture",
				fmt.Sprintf("concentrate moisture defaulted to %.1f%%", moisturePct))
		}
		result.Inflows.OreMoistureM3 = *concentrate * moisturePct / 100
	}

	tailings := e.workbook.GetTailingsProduced(period)
	if tailings == nil {
		quality.MarkMissing("tailings_lockup", fmt.Sprintf("no tailings tonnage for %s", period))
		return
	}
	moisturePct, derived := e.tailingsMoisture(period)
	if moisturePct == nil {
		quality.MarkMissing("tailings_lockup",
			fmt.Sprintf("no tailings moisture for %s and no slurry density to derive one", period))
		return
	}
	solids := e.constants.ValueOr(constants.KeyTailingsSolidsDensity, 2.7)
	result.Outflows.TailingsLockupM3 = *tailings * *moisturePct / 100 / solids
	if derived {
		quality.MarkEstimated("tailings_lockup",
			fmt.Sprintf("tailings moisture derived from slurry density: %.1f%%", *moisturePct))
	}
}

// tailingsMoisture returns the measured tailings moisture, or one derived
// from the slurry density when the sheet has no measurement. The derived
// flag reports which path produced the value.
func (e *Engine) tailingsMoisture(period domain.CalculationPeriod) (*float64, bool) {
	if m := e.workbook.GetTailingsMoisture(period); m != nil {
		v := *m
		return &v, false
	}
	return e.moistureFromDensity(period), true
}

// moistureFromDensity derives the tailings moisture percent from the slurry
// density: pct = (rho_s - rho) / (rho * (rho_s - 1)) * 100, with rho the
// slurry density and rho_s the dry solids density. Slurries at or below
// water density, or denser than the solids, cannot be inverted.
func (e *Engine) moistureFromDensity(period domain.CalculationPeriod) *float64 {
	slurry := e.workbook.GetSlurryDensity(period)
	if slurry == nil {
		return nil
	}
	rho := *slurry
	rhoS := e.constants.ValueOr(constants.KeyTailingsSolidsDensity, 2.7)
	if rho <= 1 || rhoS <= rho {
		return nil
	}
	pct := (rhoS - rho) / (rho * (rhoS - 1)) * 100
	return &pct
}

// sumSeepage prefers the direct monthly Seepage_Loss_m3 value; without one
// it estimates per facility from the lined/unlined rate constants applied
// to opening volumes. Seepage gains and unaccounted losses from the same
// sheet land in the other-component maps.
func (e *Engine) sumSeepage(result *domain.BalanceResult, period domain.CalculationPeriod,
	sorted []FacilityInput, quality *domain.DataQualityFlags) {

	row, rowPresent := e.workbook.GetSeepage(period)
	if rowPresent && row.SeepageLossM3 != nil {
		result.Outflows.SeepageM3 = *row.SeepageLossM3
	} else {
		linedRate := e.constants.ValueOr(constants.KeySeepageRateLinedPct, 0.5)
		unlinedRate := e.constants.ValueOr(constants.KeySeepageRateUnlinedPct, 2.0)

		total := 0.0
		for _, in := range sorted {
			if in.Record == nil {
				continue
			}
			// Tanks are sealed vessels; the ground-seepage rates do not apply.
			if in.Facility.FacilityType == domain.FacilityTank {
				continue
			}
			rate := unlinedRate
			if in.Facility.Lined() {
				rate = linedRate
			}
			total += rate / 100 * in.Record.OpeningVolumeM3
		}
		result.Outflows.SeepageM3 = total

		reason := "Seepage_Loss_m3 not reported"
		if !rowPresent {
			reason = fmt.Sprintf("no Seepage_Losses row for %s", period)
		}
		quality.MarkEstimated("seepage",
			reason+", estimated from lined/unlined rates on opening volumes")
	}

	if rowPresent {
		if g := floatOrZero(row.SeepageGainM3); g != 0 {
			addOtherInflow(result, "seepage_gain", g)
		}
		if u := floatOrZero(row.UnaccountedLossesM3); u != 0 {
			addOtherOutflow(result, "unaccounted_losses", u)
		}
	}
}

// sumDischarge totals the period's authorized discharge events. An empty
// list is the normal state and carries no flag.
func (e *Engine) sumDischarge(result *domain.BalanceResult, period domain.CalculationPeriod) {
	for _, d := range e.workbook.GetDischarge(period) {
		result.Outflows.DischargeM3 += floatOrZero(d.VolumeM3)
	}
}

// applyKPIs derives the performance indicators. Each stays nil when its
// denominator is unavailable rather than reporting a misleading zero.
func (e *Engine) applyKPIs(result *domain.BalanceResult, period domain.CalculationPeriod,
	quality *domain.DataQualityFlags) {

	kpis := &domain.KPIResult{}
	freshIn := result.Inflows.Total()
	recycledTotal := result.Recycled.Total()

	if freshIn+recycledTotal > 0 {
		v := recycledTotal / (freshIn + recycledTotal) * 100
		kpis.RecycledPct = &v
	}

	ore := e.workbook.GetOreMilled(period)
	if ore != nil && *ore > 0 {
		v := freshIn / *ore
		kpis.WaterIntensityM3PerTonne = &v

		calc := result.Recycled.RWDReturnM3 / *ore
		kpis.RWDIntensityCalculated = &calc
	}

	if license := e.constants.ValueOr(constants.KeyAbstractionLicenseMonthly, 0); license > 0 {
		v := result.Inflows.AbstractionM3 / license * 100
		kpis.AbstractionPctOfLicense = &v
	}

	if measured := e.workbook.GetRWDIntensity(period); measured != nil {
		v := *measured
		kpis.RWDIntensityMeasured = &v
		if v != 0 && kpis.RWDIntensityCalculated != nil {
			diffPct := math.Abs(v-*kpis.RWDIntensityCalculated) / math.Abs(v) * 100
			if diffPct > e.constants.ValueOr(constants.KeyRWDIntensityMismatchPct, 5.0) {
				kpis.RWDIntensityMismatch = true
				quality.Warn(fmt.Sprintf(
					"RWD intensity mismatch: measured %.3f vs calculated %.3f m3/t (%.1f%% apart)",
					v, *kpis.RWDIntensityCalculated, diffPct))
			}
		}
	}

	if e.workbook.GetTailingsMoisture(period) == nil {
		kpis.TailingsMoistureDerived = e.moistureFromDensity(period)
	}

	result.KPIs = kpis
}

// auditNotes renders the full component narrative attached in AUDIT mode.
func auditNotes(result *domain.BalanceResult) []string {
	in, out := &result.Inflows, &result.Outflows
	notes := []string{
		fmt.Sprintf("inflows %.1f m3: rainfall %.1f, abstraction %.1f, ore moisture %.1f, other %.1f",
			in.Total(), in.RainfallM3, in.AbstractionM3, in.OreMoistureM3, in.OtherM3),
		fmt.Sprintf("outflows %.1f m3: evaporation %.1f, seepage %.1f, dust suppression %.1f, mining %.1f, "+
			"domestic %.1f, irrigation %.1f, tailings lockup %.1f, discharge %.1f, other %.1f",
			out.Total(), out.EvaporationM3, out.SeepageM3, out.DustSuppressionM3, out.MiningM3,
			out.DomesticM3, out.IrrigationM3, out.TailingsLockupM3, out.DischargeM3, out.OtherM3),
		fmt.Sprintf("storage delta %.1f m3 across %d facilities",
			result.Storage.DeltaM3, len(result.Storage.Facilities)),
		fmt.Sprintf("recycled %.1f m3: tsf return %.1f, rwd return %.1f, process recirc %.1f",
			result.Recycled.Total(), result.Recycled.TSFReturnM3,
			result.Recycled.RWDReturnM3, result.Recycled.ProcessRecircM3),
		fmt.Sprintf("closure error %.1f m3 (%.2f%% of inflows), status %s at threshold %.1f%%",
			result.BalanceErrorM3, result.ErrorPct, result.Status, result.ThresholdPct),
	}
	for _, fb := range result.Storage.Facilities {
		notes = append(notes, fmt.Sprintf("%s: opening %.1f, closing %.1f, delta %+.1f m3",
			fb.FacilityCode, fb.OpeningVolumeM3, fb.ClosingVolumeM3, fb.DeltaM3))
	}
	return notes
}

func addOtherInflow(result *domain.BalanceResult, name string, v float64) {
	if result.Inflows.Other == nil {
		result.Inflows.Other = map[string]float64{}
	}
	result.Inflows.Other[name] = v
	result.Inflows.OtherM3 += v
}

func addOtherOutflow(result *domain.BalanceResult, name string, v float64) {
	if result.Outflows.Other == nil {
		result.Outflows.Other = map[string]float64{}
	}
	result.Outflows.Other[name] = v
	result.Outflows.OtherM3 += v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
