package model

import (
	"fmt"
	"time"
)

// =============================================================================
// YEAR-MONTH - the payroll calendar key
// =============================================================================

// YearMonth is a calendar month encoded as YYYYMM, e.g. 202504.
type YearMonth int

// NewYearMonth builds a YearMonth from a year and month.
func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth(year*100 + int(month))
}

// YearMonthOf returns the YearMonth containing t.
func YearMonthOf(t time.Time) YearMonth {
	return NewYearMonth(t.Year(), t.Month())
}

func (ym YearMonth) Year() int         { return int(ym) / 100 }
func (ym YearMonth) Month() time.Month { return time.Month(int(ym) % 100) }

// Valid reports whether the encoded month is 1-12.
func (ym YearMonth) Valid() bool {
	m := int(ym) % 100
	return ym > 0 && m >= 1 && m <= 12
}

// Next returns the following month, rolling over year ends.
func (ym YearMonth) Next() YearMonth {
	if ym.Month() == time.December {
		return NewYearMonth(ym.Year()+1, time.January)
	}
	return NewYearMonth(ym.Year(), ym.Month()+1)
}

// FirstDay returns the first day of the month in UTC.
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.Year(), ym.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns the last day of the month in UTC.
func (ym YearMonth) LastDay() time.Time {
	return ym.FirstDay().AddDate(0, 1, -1)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year(), int(ym.Month()))
}

// =============================================================================
// DATE HELPERS
// =============================================================================

// DateOnly truncates t to midnight UTC. All payroll dates are day-granular.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ClampDay returns the given day-of-month clamped to the month's length,
// so a closing day of 31 lands on Feb 28/29.
func ClampDay(year int, month time.Month, day int) time.Time {
	last := NewYearMonth(year, month).LastDay().Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AgeAt returns the full Gregorian years elapsed from birth to at: the
// year difference, minus one if the birthday has not yet occurred in the
// target year.
func AgeAt(birth, at time.Time) int {
	age := at.Year() - birth.Year()
	anniversary := time.Date(at.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, time.UTC)
	if at.Before(anniversary) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age
}

// CoversDate reports whether a [from, to] validity window includes the
// target date. A nil to means open-ended.
func CoversDate(from time.Time, to *time.Time, target time.Time) bool {
	if target.Before(from) {
		return false
	}
	return to == nil || !target.After(*to)
}

// OverlapsRange reports whether an [effectiveFrom, effectiveTo] window
// overlaps the [start, end] period. A nil effectiveTo means open-ended.
func OverlapsRange(effectiveFrom time.Time, effectiveTo *time.Time, start, end time.Time) bool {
	if effectiveFrom.After(end) {
		return false
	}
	return effectiveTo == nil || !effectiveTo.Before(start)
}
