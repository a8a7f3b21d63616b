package domain

// StorageRecord is the computed monthly water balance for one facility.
// It is produced by the storage calculator, cached persistently keyed by
// workbook signature, and consumed by the balance engine.
type StorageRecord struct {
	FacilityCode string `json:"facility_code"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`

	OpeningVolumeM3 float64 `json:"opening_volume"`
	ClosingVolumeM3 float64 `json:"closing_volume"`
	LevelPercent    float64 `json:"level_percent"` // opening / capacity, 0..1

	InflowManualM3  float64 `json:"inflow_manual"`
	OutflowManualM3 float64 `json:"outflow_manual"`
	InflowTotalM3   float64 `json:"inflow_total"`
	OutflowTotalM3  float64 `json:"outflow_total"`

	RainfallVolumeM3    float64 `json:"rainfall_volume"`
	EvaporationVolumeM3 float64 `json:"evaporation_volume"`
	AbstractionM3       float64 `json:"abstraction_to_plant"`

	OverflowM3 float64 `json:"overflow"`
	DeficitM3  float64 `json:"deficit"`

	// OpeningEstimated marks records whose opening volume came from the
	// 10%-of-capacity baseline rather than a previous-month closing.
	OpeningEstimated bool `json:"opening_estimated,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Delta returns closing minus opening for this record.
func (r *StorageRecord) Delta() float64 {
	return r.ClosingVolumeM3 - r.OpeningVolumeM3
}

// Balanced verifies the per-facility mass balance identity after clamping:
// closing - opening = inflow_total - outflow_total + deficit - overflow.
// The tolerance absorbs float rounding only.
func (r *StorageRecord) Balanced(tolerance float64) bool {
	residual := (r.ClosingVolumeM3 - r.OpeningVolumeM3) -
		(r.InflowTotalM3 - r.OutflowTotalM3 + r.DeficitM3 - r.OverflowM3)
	if residual < 0 {
		residual = -residual
	}
	return residual <= tolerance
}
