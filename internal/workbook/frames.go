// Package workbook materializes the site water-balance workbook into typed,
// queryable monthly frames. Sheets load in parallel and failures are
// isolated per sheet, so a damaged Production tab never blocks storage
// calculations.
package workbook

import (
	"github.com/tailwater/aquabalance/internal/domain"
)

// Sheet names. Exact and case-sensitive, as exported by the site template.
const (
	SheetEnvironmental = "Environmental"
	SheetStorage       = "Storage_Facilities"
	SheetProduction    = "Production"
	SheetConsumption   = "Consumption"
	SheetSeepage       = "Seepage_Losses"
	SheetDischarge     = "Discharge"
)

// SheetNames lists the six monthly sheets in load order.
func SheetNames() []string {
	return []string{
		SheetEnvironmental,
		SheetStorage,
		SheetProduction,
		SheetConsumption,
		SheetSeepage,
		SheetDischarge,
	}
}

// Column names. Missing optional columns read as null; malformed numeric
// cells also read as null and surface through DataQualityFlags downstream.
const (
	ColDate = "Date"

	ColRainfallMM     = "Rainfall_mm"
	ColEvaporationMM  = "Custom_Evaporation_mm"
	ColPanCoefficient = "Pan_Coefficient"

	ColFacilityCode  = "Facility_Code"
	ColInflowM3      = "Inflow_m3"
	ColOutflowM3     = "Outflow_m3"
	ColAbstractionM3 = "Abstraction_m3"

	ColConcentrateProducedT   = "Concentrate_Produced_t"
	ColConcentrateMoisturePct = "Concentrate_Moisture_Percent"
	ColSlurryDensity          = "Slurry_Density_t_per_m3"
	ColTailingsMoisturePct    = "Tailings_Moisture_Percent"
	ColOreMilledT             = "Ore_Milled_t"
	ColTailingsProducedT      = "Tailings_t"
	ColRWDIntensity           = "RWD_Intensity_m3_per_t"

	ColDustSuppressionM3     = "Dust_Suppression_m3"
	ColMiningM3              = "Mining_m3"
	ColDomesticM3            = "Domestic_m3"
	ColIrrigationM3          = "Irrigation_m3"
	ColOtherM3               = "Other_m3"
	ColExternalAbstractionM3 = "External_Abstraction_m3"
	ColOtherInflowM3         = "Other_Inflow_m3"

	ColSeepageLossM3       = "Seepage_Loss_m3"
	ColSeepageGainM3       = "Seepage_Gain_m3"
	ColUnaccountedLossesM3 = "Unaccounted_Losses_m3"

	ColDischargeVolumeM3 = "Discharge_Volume_m3"
	ColDischargeType     = "Discharge_Type"
	ColReason            = "Reason"
	ColApprovalReference = "Approval_Reference"
)

// EnvironmentalRow is one month of rainfall, evaporation and pan coefficient.
// Nil means the cell was absent or malformed.
type EnvironmentalRow struct {
	RainfallMM     *float64
	EvaporationMM  *float64
	PanCoefficient *float64
}

// StorageRow is one facility's manual monthly flows. Several rows share a
// period, one per facility.
type StorageRow struct {
	FacilityCode  string
	InflowM3      *float64
	OutflowM3     *float64
	AbstractionM3 *float64
}

// ProductionRow carries the plant figures used for ore moisture and
// tailings lock-up estimation.
type ProductionRow struct {
	ConcentrateProducedT   *float64
	ConcentrateMoisturePct *float64
	SlurryDensityTPerM3    *float64
	TailingsMoisturePct    *float64
	OreMilledT             *float64
	TailingsProducedT      *float64
	RWDIntensityM3PerT     *float64
}

// ConsumptionRow is the site's non-storage water consumption for one month.
// External abstraction and other inflows share this sheet in the template,
// so they live here despite being system inflows.
type ConsumptionRow struct {
	DustSuppressionM3     *float64
	MiningM3              *float64
	DomesticM3            *float64
	IrrigationM3          *float64
	OtherM3               *float64
	ExternalAbstractionM3 *float64
	OtherInflowM3         *float64
}

// SeepageRow is one month of seepage losses and gains.
type SeepageRow struct {
	SeepageLossM3       *float64
	SeepageGainM3       *float64
	UnaccountedLossesM3 *float64
}

// DischargeRow is one authorized discharge event. Several per period.
type DischargeRow struct {
	FacilityCode      string
	VolumeM3          *float64
	DischargeType     string
	Reason            string
	ApprovalReference string
}

// Frames keyed by accounting period. Single-row sheets keep the last row
// seen for a period; multi-row sheets accumulate.
type (
	environmentalFrame map[domain.CalculationPeriod]EnvironmentalRow
	storageFrame       map[domain.CalculationPeriod][]StorageRow
	productionFrame    map[domain.CalculationPeriod]ProductionRow
	consumptionFrame   map[domain.CalculationPeriod]ConsumptionRow
	seepageFrame       map[domain.CalculationPeriod]SeepageRow
	dischargeFrame     map[domain.CalculationPeriod][]DischargeRow
)
