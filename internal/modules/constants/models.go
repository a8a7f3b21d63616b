package constants

// Well-known constant keys referenced by the balance engine and the
// storage calculator. Callers use these instead of string literals.
const (
	KeyBalanceErrorThresholdPct         = "balance_error_threshold_pct"
	KeyBalanceErrorThresholdInternalPct = "balance_error_threshold_internal_pct"
	KeySeepageRateLinedPct              = "seepage_rate_lined_pct"
	KeySeepageRateUnlinedPct            = "seepage_rate_unlined_pct"
	KeyPanCoefficientDefault            = "pan_coefficient_default"
	KeyTailingsSolidsDensity            = "tailings_solids_density_t_per_m3"
	KeySlurryDensityDefault             = "slurry_density_default_t_per_m3"
	KeyConcentrateMoistureDefault       = "concentrate_moisture_pct_default"
	KeyAbstractionLicenseMonthly        = "abstraction_license_m3_per_month"
	KeyRWDIntensityMismatchPct          = "rwd_intensity_mismatch_pct"
	KeyMinOperatingLevelPct             = "min_operating_level_pct"
)

// Default is one row of the seed payload applied to an empty constants table.
type Default struct {
	Key         string
	Value       float64
	MinValue    *float64
	MaxValue    *float64
	Unit        string
	Category    string
	Description string
	Editable    bool
}

func bound(v float64) *float64 { return &v }

// SeedDefaults holds the known constants payload
var SeedDefaults = []Default{
	// Balance closure thresholds
	{
		Key: KeyBalanceErrorThresholdPct, Value: 5.0,
		MinValue: bound(0.1), MaxValue: bound(50.0),
		Unit: "%", Category: "balance",
		Description: "Closure error above which a REGULATOR balance is flagged RED",
		Editable:    true,
	},
	{
		Key: KeyBalanceErrorThresholdInternalPct, Value: 10.0,
		MinValue: bound(0.1), MaxValue: bound(50.0),
		Unit: "%", Category: "balance",
		Description: "Looser closure threshold applied in INTERNAL mode",
		Editable:    true,
	},

	// Seepage fallback rates (% of opening volume per month)
	{
		Key: KeySeepageRateLinedPct, Value: 0.5,
		MinValue: bound(0.0), MaxValue: bound(10.0),
		Unit: "%/month", Category: "seepage",
		Description: "Seepage rate for lined facilities when no measured value exists",
		Editable:    true,
	},
	{
		Key: KeySeepageRateUnlinedPct, Value: 2.0,
		MinValue: bound(0.0), MaxValue: bound(20.0),
		Unit: "%/month", Category: "seepage",
		Description: "Seepage rate for unlined facilities when no measured value exists",
		Editable:    true,
	},

	// Environmental
	{
		Key: KeyPanCoefficientDefault, Value: 0.7,
		MinValue: bound(0.3), MaxValue: bound(1.0),
		Unit: "", Category: "environmental",
		Description: "Pan-to-open-water evaporation coefficient when the sheet omits one",
		Editable:    true,
	},

	// Process water
	{
		Key: KeyTailingsSolidsDensity, Value: 2.7,
		MinValue: bound(1.5), MaxValue: bound(5.0),
		Unit: "t/m3", Category: "process",
		Description: "Dry solids density used for tailings water lockup",
		Editable:    true,
	},
	{
		Key: KeySlurryDensityDefault, Value: 1.45,
		MinValue: bound(1.0), MaxValue: bound(2.5),
		Unit: "t/m3", Category: "process",
		Description: "Slurry density fallback when the Production sheet omits one",
		Editable:    true,
	},
	{
		Key: KeyConcentrateMoistureDefault, Value: 9.0,
		MinValue: bound(0.0), MaxValue: bound(30.0),
		Unit: "%", Category: "process",
		Description: "Concentrate moisture fallback when the Production sheet omits one",
		Editable:    true,
	},

	// Compliance
	{
		Key: KeyAbstractionLicenseMonthly, Value: 0.0,
		MinValue: bound(0.0), MaxValue: nil,
		Unit: "m3", Category: "compliance",
		Description: "Licensed monthly abstraction limit, 0 means not configured",
		Editable:    true,
	},
	{
		Key: KeyRWDIntensityMismatchPct, Value: 5.0,
		MinValue: bound(0.5), MaxValue: bound(50.0),
		Unit: "%", Category: "compliance",
		Description: "Relative difference above which measured vs calculated RWD intensity is flagged",
		Editable:    true,
	},

	// Storage operations
	{
		Key: KeyMinOperatingLevelPct, Value: 15.0,
		MinValue: bound(0.0), MaxValue: bound(100.0),
		Unit: "%", Category: "storage",
		Description: "Minimum operating level used by the days-to-minimum forecast",
		Editable:    true,
	},
}
