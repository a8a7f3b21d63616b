// Package domain provides core domain models and types for the water balance system.
// All volumes are in cubic metres (m3) and all depths in millimetres (mm);
// field names carry the unit suffix so values are never mixed silently.
package domain

import (
	"fmt"
	"time"
)

// Period bounds accepted by NewPeriod. Years outside this window are a
// configuration mistake, not data.
const (
	MinYear = 2000
	MaxYear = 2100
)

// CalculationPeriod identifies a single accounting month. It is an immutable
// value object and is used as a cache key component, so it must stay
// comparable (no pointers, no slices).
type CalculationPeriod struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod validates and creates a calculation period.
// Month must be 1..12 and year within [MinYear, MaxYear].
func NewPeriod(year, month int) (CalculationPeriod, error) {
	if month < 1 || month > 12 {
		return CalculationPeriod{}, Invariantf("month %d out of range [1,12]", month)
	}
	if year < MinYear || year > MaxYear {
		return CalculationPeriod{}, Invariantf("year %d out of range [%d,%d]", year, MinYear, MaxYear)
	}
	return CalculationPeriod{Year: year, Month: month}, nil
}

// PeriodOf converts a timestamp to the period containing it.
func PeriodOf(t time.Time) CalculationPeriod {
	return CalculationPeriod{Year: t.Year(), Month: int(t.Month())}
}

// StartDate returns the first day of the accounting month (UTC midnight).
func (p CalculationPeriod) StartDate() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// EndDate returns the last day of the accounting month (UTC midnight).
func (p CalculationPeriod) EndDate() time.Time {
	return p.StartDate().AddDate(0, 1, -1)
}

// DaysInPeriod returns the number of calendar days in the month.
func (p CalculationPeriod) DaysInPeriod() int {
	return p.EndDate().Day()
}

// Previous returns the period immediately before this one.
func (p CalculationPeriod) Previous() CalculationPeriod {
	if p.Month == 1 {
		return CalculationPeriod{Year: p.Year - 1, Month: 12}
	}
	return CalculationPeriod{Year: p.Year, Month: p.Month - 1}
}

// Next returns the period immediately after this one.
func (p CalculationPeriod) Next() CalculationPeriod {
	if p.Month == 12 {
		return CalculationPeriod{Year: p.Year + 1, Month: 1}
	}
	return CalculationPeriod{Year: p.Year, Month: p.Month + 1}
}

// Before reports whether p is strictly earlier than other.
func (p CalculationPeriod) Before(other CalculationPeriod) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Valid reports whether the period is within the accepted bounds.
func (p CalculationPeriod) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= MinYear && p.Year <= MaxYear
}

// String renders the period as "YYYY-MM", the form used in cache keys and logs.
func (p CalculationPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
