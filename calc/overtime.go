/*
Package calc contains the payroll calculation engines.

PURPOSE:
  Pure computation over integer yen and integer minutes: overtime
  premiums, social insurance deductions, income tax withholding, and
  the full per-employee payroll calculation that assembles them into
  line items.

DESIGN PRINCIPLES:
  1. Every monetary result is floored to integer yen per component.
  2. Engines are pure between I/O; rate lookups go through the rate
     book inside the caller's transaction.
  3. A missing rate is not fatal: the deduction line is omitted and a
     note is recorded on the calculation details.

SEE ALSO:
  - ratebook: rate and bracket selection
  - payroll:  state machine consuming CalcResult
*/
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// OVERTIME PREMIUMS
// =============================================================================

// Statutory overtime beyond 3,600 minutes (60 hours) in a month earns
// the raised 1.50 multiplier.
const over60hThresholdMinutes = 3600

// Premium multipliers applied to minuteRate x minutes. Night, night
// overtime, night holiday, and night-overtime-holiday are premium-only:
// the straight time is already paid under another component.
var (
	multWithinStatutory      = decimal.NewFromFloat(1.00)
	multStatutoryOvertime    = decimal.NewFromFloat(1.25)
	multOver60h              = decimal.NewFromFloat(1.50)
	multNight                = decimal.NewFromFloat(0.25)
	multStatutoryHoliday     = decimal.NewFromFloat(1.35)
	multNonStatutoryHoliday  = decimal.NewFromFloat(1.00)
	multNightOvertime        = decimal.NewFromFloat(0.50)
	multNightHoliday         = decimal.NewFromFloat(0.60)
	multNightOvertimeHoliday = decimal.NewFromFloat(0.85)
)

// OvertimeBreakdown is the per-component premium pay, all integer yen.
// Zero components produce no line item downstream.
type OvertimeBreakdown struct {
	WithinStatutoryPay      int64
	StatutoryOvertimePay    int64
	Over60hPremiumPay       int64
	NightPremiumPay         int64
	StatutoryHolidayPay     int64
	NonStatutoryHolidayPay  int64
	NightOvertimePay        int64
	NightHolidayPay         int64
	NightOvertimeHolidayPay int64
}

// Total sums all components.
func (b OvertimeBreakdown) Total() int64 {
	return b.WithinStatutoryPay +
		b.StatutoryOvertimePay +
		b.Over60hPremiumPay +
		b.NightPremiumPay +
		b.StatutoryHolidayPay +
		b.NonStatutoryHolidayPay +
		b.NightOvertimePay +
		b.NightHolidayPay +
		b.NightOvertimeHolidayPay
}

// ComputeOvertime prices the attendance minute vector at the base
// hourly rate. The minute rate is baseHourly/60 held as a decimal;
// each component is floored to integer yen independently.
func ComputeOvertime(baseHourlyYen int64, m model.AttendanceMinutes) OvertimeBreakdown {
	minuteRate := decimal.NewFromInt(baseHourlyYen).Div(decimal.NewFromInt(60))

	line := func(minutes int, mult decimal.Decimal) int64 {
		if minutes <= 0 {
			return 0
		}
		return minuteRate.Mul(decimal.NewFromInt(int64(minutes))).Mul(mult).Floor().IntPart()
	}

	normalOT := m.OvertimeStatutory
	over60h := 0
	if normalOT > over60hThresholdMinutes {
		over60h = normalOT - over60hThresholdMinutes
		normalOT = over60hThresholdMinutes
	}

	return OvertimeBreakdown{
		WithinStatutoryPay:      line(m.OvertimeWithinStatutory, multWithinStatutory),
		StatutoryOvertimePay:    line(normalOT, multStatutoryOvertime),
		Over60hPremiumPay:       line(over60h, multOver60h),
		NightPremiumPay:         line(m.Night, multNight),
		StatutoryHolidayPay:     line(m.StatutoryHoliday, multStatutoryHoliday),
		NonStatutoryHolidayPay:  line(m.NonStatutoryHoliday, multNonStatutoryHoliday),
		NightOvertimePay:        line(m.NightOvertime, multNightOvertime),
		NightHolidayPay:         line(m.NightHoliday, multNightHoliday),
		NightOvertimeHolidayPay: line(m.NightOvertimeHoliday, multNightOvertimeHoliday),
	}
}
