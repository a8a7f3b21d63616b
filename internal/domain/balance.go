package domain

import "math"

// BalanceStatus is the closure quality gate.
type BalanceStatus string

const (
	// StatusGreen - closure error below the configured threshold.
	StatusGreen BalanceStatus = "GREEN"
	// StatusRed - closure error at or above the threshold; the period needs review.
	StatusRed BalanceStatus = "RED"
)

// BalanceMode selects threshold and persistence policy. The balance
// equations themselves are identical in every mode.
type BalanceMode string

const (
	// ModeRegulator - strict thresholds, conservative clamping, full persistence.
	ModeRegulator BalanceMode = "REGULATOR"
	// ModeInternal - same math, looser warning thresholds, persistence on demand.
	ModeInternal BalanceMode = "INTERNAL"
	// ModeAudit - attaches full component breakdowns and notes, full persistence.
	ModeAudit BalanceMode = "AUDIT"
)

// ValidBalanceMode reports whether m is a known mode.
func ValidBalanceMode(m BalanceMode) bool {
	switch m {
	case ModeRegulator, ModeInternal, ModeAudit:
		return true
	}
	return false
}

// InflowResult enumerates fresh water entering the system boundary in m3.
// The named lines are a closed set; anything else goes into Other.
type InflowResult struct {
	RainfallM3    float64            `json:"rainfall"`
	AbstractionM3 float64            `json:"abstraction"`
	OreMoistureM3 float64            `json:"ore_moisture"`
	OtherM3       float64            `json:"other"`
	Other         map[string]float64 `json:"other_components,omitempty"`
}

// Total sums all fresh inflow lines.
func (i *InflowResult) Total() float64 {
	return i.RainfallM3 + i.AbstractionM3 + i.OreMoistureM3 + i.OtherM3
}

// OutflowResult enumerates water leaving the system boundary in m3.
type OutflowResult struct {
	EvaporationM3     float64            `json:"evaporation"`
	SeepageM3         float64            `json:"seepage"`
	DustSuppressionM3 float64            `json:"dust_suppression"`
	MiningM3          float64            `json:"mining"`
	DomesticM3        float64            `json:"domestic"`
	IrrigationM3      float64            `json:"irrigation"`
	TailingsLockupM3  float64            `json:"tailings_lockup"`
	DischargeM3       float64            `json:"discharge"`
	OtherM3           float64            `json:"other"`
	Other             map[string]float64 `json:"other_components,omitempty"`
}

// Total sums all outflow lines.
func (o *OutflowResult) Total() float64 {
	return o.EvaporationM3 + o.SeepageM3 + o.DustSuppressionM3 + o.MiningM3 +
		o.DomesticM3 + o.IrrigationM3 + o.TailingsLockupM3 + o.DischargeM3 + o.OtherM3
}

// FacilityBalance is the per-facility line attached to a period result.
type FacilityBalance struct {
	FacilityCode    string   `json:"facility_code"`
	OpeningVolumeM3 float64  `json:"opening_volume_m3"`
	ClosingVolumeM3 float64  `json:"closing_volume_m3"`
	DeltaM3         float64  `json:"delta_m3"`
	LevelPercent    float64  `json:"level_percent"`
	OverflowM3      float64  `json:"overflow_m3,omitempty"`
	DeficitM3       float64  `json:"deficit_m3,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// StorageChange is the system-level storage movement for the period.
type StorageChange struct {
	DeltaM3    float64           `json:"delta_m3"`
	Facilities []FacilityBalance `json:"facilities"`
}

// RecycledWater tracks recirculation flows. They are KPI inputs only and
// never enter the mass balance. The three lines partition the plant's
// internal abstraction by source facility type.
type RecycledWater struct {
	TSFReturnM3     float64 `json:"tsf_return_m3"`
	RWDReturnM3     float64 `json:"rwd_return_m3"`
	ProcessRecircM3 float64 `json:"process_recirc_m3"`
}

// Total sums all recirculation lines.
func (r *RecycledWater) Total() float64 {
	return r.TSFReturnM3 + r.RWDReturnM3 + r.ProcessRecircM3
}

// KPIResult carries the derived performance indicators of a period.
// Pointer fields are nil when their denominators were unavailable.
type KPIResult struct {
	RecycledPct              *float64 `json:"recycled_pct,omitempty"`
	WaterIntensityM3PerTonne *float64 `json:"water_intensity_m3_per_tonne,omitempty"`
	AbstractionPctOfLicense  *float64 `json:"abstraction_pct_of_license,omitempty"`
	RWDIntensityMeasured     *float64 `json:"rwd_intensity_measured,omitempty"`
	RWDIntensityCalculated   *float64 `json:"rwd_intensity_calculated,omitempty"`
	RWDIntensityMismatch     bool     `json:"rwd_intensity_mismatch,omitempty"`
	TailingsMoistureDerived  *float64 `json:"tailings_moisture_from_density,omitempty"`
}

// BalanceResult is the period-level outcome of the balance engine. It is
// owned by the request that produced it and optionally persisted for
// reporting.
type BalanceResult struct {
	Period   CalculationPeriod `json:"period"`
	Mode     BalanceMode       `json:"mode"`
	Inflows  InflowResult      `json:"inflows"`
	Outflows OutflowResult     `json:"outflows"`
	Storage  StorageChange     `json:"storage"`
	Recycled *RecycledWater    `json:"recycled,omitempty"`
	KPIs     *KPIResult        `json:"kpis,omitempty"`

	BalanceErrorM3 float64       `json:"balance_error_m3"`
	ErrorPct       float64       `json:"error_pct"`
	Status         BalanceStatus `json:"status"`
	ThresholdPct   float64       `json:"threshold_pct"`

	QualityFlags *DataQualityFlags `json:"quality_flags"`

	// Notes carries the full component narrative in AUDIT mode.
	Notes []string `json:"notes,omitempty"`
}

// Finalize computes the derived closure fields from the component sums.
// error_pct is 0 (not NaN) when there are no fresh inflows.
func (b *BalanceResult) Finalize(thresholdPct float64) {
	inTotal := b.Inflows.Total()
	b.BalanceErrorM3 = inTotal - b.Outflows.Total() - b.Storage.DeltaM3
	if inTotal > 0 {
		b.ErrorPct = math.Abs(b.BalanceErrorM3) / inTotal * 100
	} else {
		b.ErrorPct = 0
	}
	b.ThresholdPct = thresholdPct
	if math.Abs(b.ErrorPct) < thresholdPct {
		b.Status = StatusGreen
	} else {
		b.Status = StatusRed
	}
}
