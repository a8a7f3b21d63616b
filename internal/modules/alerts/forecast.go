package alerts

import (
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/constants"
)

// forecastWindowMonths is how many trailing months feed the trend fit.
const forecastWindowMonths = 6

// avgDaysPerMonth converts the fitted per-month drawdown into days.
const avgDaysPerMonth = 30.44

// FacilityLister names the slice of the facility registry the forecaster
// iterates over.
type FacilityLister interface {
	ListActive() ([]*domain.StorageFacility, error)
}

// HistorySource provides recent closing volumes in ascending period order.
type HistorySource interface {
	GetRecentClosings(code string, months int) ([]*domain.StorageHistory, error)
}

// ConstantSource reads tuning constants with a fallback value.
type ConstantSource interface {
	ValueOr(key string, fallback float64) float64
}

// Forecaster projects each facility's storage trend forward and reports the
// days until it crosses the minimum operating level: a least-squares line
// through the recent monthly closings, extrapolated to the minimum volume.
// Facilities that are stable or refilling produce no metric.
type Forecaster struct {
	facilities FacilityLister
	history    HistorySource
	constants  ConstantSource
	log        zerolog.Logger
}

// NewForecaster creates a storage trend forecaster.
func NewForecaster(facilities FacilityLister, history HistorySource, consts ConstantSource, log zerolog.Logger) *Forecaster {
	return &Forecaster{
		facilities: facilities,
		history:    history,
		constants:  consts,
		log:        log.With().Str("component", "storage_forecaster").Logger(),
	}
}

// Signals computes the days_to_minimum metric for every active facility.
// Implements the evaluator's SignalSource.
func (f *Forecaster) Signals(period domain.CalculationPeriod) []Signal {
	active, err := f.facilities.ListActive()
	if err != nil {
		f.log.Error().Err(err).Msg("Failed to list facilities for forecast")
		return nil
	}
	minPct := f.constants.ValueOr(constants.KeyMinOperatingLevelPct, 15.0)

	var signals []Signal
	for _, fac := range active {
		signals = append(signals, Signal{
			Category:        "storage",
			MetricName:      "days_to_minimum",
			Value:           f.daysToMinimum(fac, minPct),
			CalculationDate: period.String(),
			SourceID:        fac.Code,
			Fields:          map[string]string{"period": period.String(), "facility": fac.Code},
		})
	}
	return signals
}

// daysToMinimum fits the trend and extrapolates. nil when the history is
// too short or the facility is not draining; 0 when it is already at or
// below the minimum operating volume.
func (f *Forecaster) daysToMinimum(fac *domain.StorageFacility, minPct float64) *float64 {
	recent, err := f.history.GetRecentClosings(fac.Code, forecastWindowMonths)
	if err != nil {
		f.log.Warn().Err(err).Str("facility", fac.Code).Msg("Failed to load closing history for forecast")
		return nil
	}
	if len(recent) < 2 || fac.CapacityM3 <= 0 {
		return nil
	}

	// x in months since the first sample; gaps in the history keep their
	// true spacing.
	first := recent[0].Year*12 + recent[0].Month
	xs := make([]float64, len(recent))
	ys := make([]float64, len(recent))
	for i, h := range recent {
		xs[i] = float64(h.Year*12 + h.Month - first)
		ys[i] = h.ClosingVolumeM3
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if slope >= 0 {
		return nil
	}

	minVolume := minPct / 100 * fac.CapacityM3
	current := ys[len(ys)-1]
	if current <= minVolume {
		zero := 0.0
		return &zero
	}

	days := (current - minVolume) / -slope * avgDaysPerMonth
	return &days
}
