package domain

import (
	"strings"
	"time"
)

// FacilityType categorises a storage facility.
type FacilityType string

const (
	// FacilityTSF represents a tailings storage facility
	FacilityTSF FacilityType = "TSF"
	// FacilityPond represents a process or storm-water pond
	FacilityPond FacilityType = "Pond"
	// FacilityDam represents a raw-water or return-water dam
	FacilityDam FacilityType = "Dam"
	// FacilityTank represents an engineered tank (lining not applicable)
	FacilityTank FacilityType = "Tank"
	// FacilityOther represents anything else that holds water
	FacilityOther FacilityType = "Other"
)

// ValidFacilityType reports whether t is one of the known facility types.
func ValidFacilityType(t FacilityType) bool {
	switch t {
	case FacilityTSF, FacilityPond, FacilityDam, FacilityTank, FacilityOther:
		return true
	}
	return false
}

// FacilityStatus is the lifecycle state of a facility.
type FacilityStatus string

const (
	StatusActive         FacilityStatus = "active"
	StatusInactive       FacilityStatus = "inactive"
	StatusDecommissioned FacilityStatus = "decommissioned"
)

// ValidFacilityStatus reports whether s is a known status.
func ValidFacilityStatus(s FacilityStatus) bool {
	switch s {
	case StatusActive, StatusInactive, StatusDecommissioned:
		return true
	}
	return false
}

// StorageFacility is a named water storage on the site topology.
// Code is the unique business key and is immutable after creation.
type StorageFacility struct {
	ID              int64          `json:"id"`
	Code            string         `json:"code"`
	Name            string         `json:"name"`
	FacilityType    FacilityType   `json:"facility_type"`
	CapacityM3      float64        `json:"capacity_m3"`
	SurfaceAreaM2   *float64       `json:"surface_area_m2,omitempty"`
	CurrentVolumeM3 float64        `json:"current_volume_m3"`
	IsLined         *bool          `json:"is_lined"` // nil means not applicable (always nil for tanks)
	Status          FacilityStatus `json:"status"`
	Notes           string         `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NormalizeCode canonicalises a facility code for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SurfaceArea returns the surface area, or 0 when none is configured.
func (f *StorageFacility) SurfaceArea() float64 {
	if f.SurfaceAreaM2 == nil {
		return 0
	}
	return *f.SurfaceAreaM2
}

// Lined reports whether the facility has an engineered liner.
// Tanks and facilities without the attribute report false.
func (f *StorageFacility) Lined() bool {
	return f.IsLined != nil && *f.IsLined
}

// Validate enforces the facility invariants:
// capacity strictly positive, current volume within [0, capacity],
// known type and status, and is_lined null iff the facility is a tank.
func (f *StorageFacility) Validate() error {
	if NormalizeCode(f.Code) == "" {
		return Invariantf("facility code is required")
	}
	if f.Name == "" {
		return Invariantf("facility %s: name is required", f.Code)
	}
	if !ValidFacilityType(f.FacilityType) {
		return Invariantf("facility %s: unknown facility type %q", f.Code, f.FacilityType)
	}
	if !ValidFacilityStatus(f.Status) {
		return Invariantf("facility %s: unknown status %q", f.Code, f.Status)
	}
	if f.CapacityM3 <= 0 {
		return Invariantf("facility %s: capacity must be positive, got %.2f", f.Code, f.CapacityM3)
	}
	if f.SurfaceAreaM2 != nil && *f.SurfaceAreaM2 < 0 {
		return Invariantf("facility %s: surface area cannot be negative", f.Code)
	}
	if f.CurrentVolumeM3 < 0 {
		return Invariantf("facility %s: current volume cannot be negative", f.Code)
	}
	if f.CurrentVolumeM3 > f.CapacityM3 {
		return Invariantf("facility %s: current volume %.2f exceeds capacity %.2f",
			f.Code, f.CurrentVolumeM3, f.CapacityM3)
	}
	if f.FacilityType == FacilityTank && f.IsLined != nil {
		return Invariantf("facility %s: is_lined is not applicable to tanks", f.Code)
	}
	if f.FacilityType != FacilityTank && f.IsLined == nil {
		return Invariantf("facility %s: is_lined is required for %s facilities", f.Code, f.FacilityType)
	}
	return nil
}

// ApplyTankLiningRule coerces is_lined to null for tanks. Called by the
// service layer before validation so callers cannot persist the attribute
// on a facility type it does not apply to.
func (f *StorageFacility) ApplyTankLiningRule() {
	if f.FacilityType == FacilityTank {
		f.IsLined = nil
	}
}

// MonthlyParameters holds the manual per-facility inflow/outflow totals for
// one accounting month. One row per (facility, year, month).
type MonthlyParameters struct {
	ID              int64     `json:"id"`
	FacilityID      int64     `json:"facility_id"`
	Year            int       `json:"year"`
	Month           int       `json:"month"`
	TotalInflowsM3  float64   `json:"total_inflows_m3"`
	TotalOutflowsM3 float64   `json:"total_outflows_m3"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate enforces non-negative totals and a valid period.
func (m *MonthlyParameters) Validate() error {
	if _, err := NewPeriod(m.Year, m.Month); err != nil {
		return err
	}
	if m.TotalInflowsM3 < 0 {
		return Invariantf("monthly parameters: total inflows cannot be negative")
	}
	if m.TotalOutflowsM3 < 0 {
		return Invariantf("monthly parameters: total outflows cannot be negative")
	}
	return nil
}

// DataSource tags how a storage history row was obtained.
type DataSource string

const (
	SourceMeasured   DataSource = "measured"
	SourceCalculated DataSource = "calculated"
	SourceEstimated  DataSource = "estimated"
	SourceImported   DataSource = "imported"
)

// ValidDataSource reports whether s is a known data source tag.
func ValidDataSource(s DataSource) bool {
	switch s {
	case SourceMeasured, SourceCalculated, SourceEstimated, SourceImported:
		return true
	}
	return false
}

// StorageHistory is the durable opening/closing record for one facility
// month. DeltaM3 is stored denormalised for query speed and always equals
// closing minus opening.
type StorageHistory struct {
	ID              int64      `json:"id"`
	FacilityCode    string     `json:"facility_code"`
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	OpeningVolumeM3 float64    `json:"opening_volume_m3"`
	ClosingVolumeM3 float64    `json:"closing_volume_m3"`
	DeltaM3         float64    `json:"delta_m3"`
	DataSource      DataSource `json:"data_source"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Validate enforces non-negative volumes, a valid period and a known source.
func (h *StorageHistory) Validate() error {
	if _, err := NewPeriod(h.Year, h.Month); err != nil {
		return err
	}
	if h.OpeningVolumeM3 < 0 || h.ClosingVolumeM3 < 0 {
		return Invariantf("storage history %s %04d-%02d: volumes cannot be negative",
			h.FacilityCode, h.Year, h.Month)
	}
	if !ValidDataSource(h.DataSource) {
		return Invariantf("storage history %s: unknown data source %q", h.FacilityCode, h.DataSource)
	}
	return nil
}

// TransferMethod describes how water moved between facilities.
type TransferMethod string

const (
	TransferPump     TransferMethod = "pump"
	TransferGravity  TransferMethod = "gravity"
	TransferSpillway TransferMethod = "spillway"
	TransferOther    TransferMethod = "other"
)

// ValidTransferMethod reports whether m is a known transfer method.
func ValidTransferMethod(m TransferMethod) bool {
	switch m {
	case TransferPump, TransferGravity, TransferSpillway, TransferOther:
		return true
	}
	return false
}

// FacilityTransfer records water moved between two facilities within a month.
// Transfers are internal to the site and never enter the system-level balance.
type FacilityTransfer struct {
	ID                 int64          `json:"id"`
	SourceFacilityCode string         `json:"source_facility_code"`
	DestFacilityCode   string         `json:"dest_facility_code"`
	Year               int            `json:"year"`
	Month              int            `json:"month"`
	VolumeM3           float64        `json:"volume_m3"`
	TransferMethod     TransferMethod `json:"transfer_method"`
	Notes              string         `json:"notes,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Validate enforces distinct endpoints, positive volume, a valid period and
// a known method.
func (t *FacilityTransfer) Validate() error {
	if _, err := NewPeriod(t.Year, t.Month); err != nil {
		return err
	}
	src := NormalizeCode(t.SourceFacilityCode)
	dst := NormalizeCode(t.DestFacilityCode)
	if src == "" || dst == "" {
		return Invariantf("transfer: source and destination codes are required")
	}
	if src == dst {
		return Invariantf("transfer: source and destination must differ (%s)", src)
	}
	if t.VolumeM3 <= 0 {
		return Invariantf("transfer %s->%s: volume must be positive", src, dst)
	}
	if !ValidTransferMethod(t.TransferMethod) {
		return Invariantf("transfer %s->%s: unknown method %q", src, dst, t.TransferMethod)
	}
	return nil
}

// EnvironmentalRecord is a persisted monthly rainfall/evaporation row.
// One row per (year, month); every change is audited.
type EnvironmentalRecord struct {
	ID            int64     `json:"id"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	RainfallMM    float64   `json:"rainfall_mm"`
	EvaporationMM float64   `json:"evaporation_mm"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate enforces non-negative depths and a valid period.
func (e *EnvironmentalRecord) Validate() error {
	if _, err := NewPeriod(e.Year, e.Month); err != nil {
		return err
	}
	if e.RainfallMM < 0 {
		return Invariantf("environmental %04d-%02d: rainfall cannot be negative", e.Year, e.Month)
	}
	if e.EvaporationMM < 0 {
		return Invariantf("environmental %04d-%02d: evaporation cannot be negative", e.Year, e.Month)
	}
	return nil
}

// SystemConstant is a versioned numeric constant with optional bounds.
// Writes outside the bounds are rejected; every write is audited.
type SystemConstant struct {
	ID          int64     `json:"id"`
	Key         string    `json:"constant_key"`
	Value       float64   `json:"constant_value"`
	MinValue    *float64  `json:"min_value,omitempty"`
	MaxValue    *float64  `json:"max_value,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Editable    bool      `json:"editable"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CheckBounds verifies a candidate value against the constant's bounds.
func (c *SystemConstant) CheckBounds(value float64) error {
	if c.MinValue != nil && value < *c.MinValue {
		return Invariantf("constant %s: value %.4f below minimum %.4f", c.Key, value, *c.MinValue)
	}
	if c.MaxValue != nil && value > *c.MaxValue {
		return Invariantf("constant %s: value %.4f above maximum %.4f", c.Key, value, *c.MaxValue)
	}
	return nil
}
