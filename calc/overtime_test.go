package calc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kyuyo/payroll-engine/calc"
	"github.com/kyuyo/payroll-engine/model"
)

func TestComputeOvertime_Over60hSplit(t *testing.T) {
	// GIVEN: base hourly 2,400 yen, 4,200 statutory overtime minutes
	// WHEN: computing premiums
	// THEN: 3,600 minutes price at 1.25, the remaining 600 at 1.50

	got := calc.ComputeOvertime(2400, model.AttendanceMinutes{OvertimeStatutory: 4200})

	assert.Equal(t, int64(180000), got.StatutoryOvertimePay, "floor(40*3600*1.25)")
	assert.Equal(t, int64(36000), got.Over60hPremiumPay, "floor(40*600*1.50)")
	assert.Equal(t, int64(216000), got.Total())
}

func TestComputeOvertime_UnderThresholdNoSplit(t *testing.T) {
	// GIVEN: exactly 3,600 statutory overtime minutes
	// WHEN: computing premiums
	// THEN: everything prices at 1.25, nothing at 1.50

	got := calc.ComputeOvertime(2400, model.AttendanceMinutes{OvertimeStatutory: 3600})

	assert.Equal(t, int64(180000), got.StatutoryOvertimePay)
	assert.Zero(t, got.Over60hPremiumPay)
}

func TestComputeOvertime_ComponentMultipliers(t *testing.T) {
	// GIVEN: 60 minutes in each category at base hourly 3,000 (minute rate 50)
	// WHEN: computing premiums
	// THEN: each component applies its own multiplier, floored per line

	got := calc.ComputeOvertime(3000, model.AttendanceMinutes{
		OvertimeWithinStatutory: 60,
		OvertimeStatutory:       60,
		Night:                   60,
		StatutoryHoliday:        60,
		NonStatutoryHoliday:     60,
		NightOvertime:           60,
		NightHoliday:            60,
		NightOvertimeHoliday:    60,
	})

	assert.Equal(t, int64(3000), got.WithinStatutoryPay, "1.00")
	assert.Equal(t, int64(3750), got.StatutoryOvertimePay, "1.25")
	assert.Equal(t, int64(750), got.NightPremiumPay, "0.25 premium only")
	assert.Equal(t, int64(4050), got.StatutoryHolidayPay, "1.35")
	assert.Equal(t, int64(3000), got.NonStatutoryHolidayPay, "1.00")
	assert.Equal(t, int64(1500), got.NightOvertimePay, "0.50 premium only")
	assert.Equal(t, int64(1800), got.NightHolidayPay, "0.60 premium only")
	assert.Equal(t, int64(2550), got.NightOvertimeHolidayPay, "0.85")
}

func TestComputeOvertime_FlooredPerComponent(t *testing.T) {
	// GIVEN: a base hourly that yields fractional minute amounts
	// WHEN: computing premiums
	// THEN: each component floors independently

	// minute rate 1000/60 = 16.666..; 7 minutes at 1.25 = 145.83..
	got := calc.ComputeOvertime(1000, model.AttendanceMinutes{
		OvertimeStatutory: 7,
		Night:             7,
	})

	assert.Equal(t, int64(145), got.StatutoryOvertimePay)
	assert.Equal(t, int64(29), got.NightPremiumPay, "floor(16.66*7*0.25)")
}

func TestComputeOvertime_ZeroMinutes(t *testing.T) {
	// GIVEN: an empty minute vector
	// WHEN: computing premiums
	// THEN: every component is zero

	got := calc.ComputeOvertime(2400, model.AttendanceMinutes{})
	assert.Zero(t, got.Total())
}
