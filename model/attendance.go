package model

import (
	"time"

	"github.com/kyuyo/payroll-engine/errs"
)

// PayrollPeriod is one pay cycle of a company, derived from its closing
// day and payment schedule. Unique per (company, year_month, type).
type PayrollPeriod struct {
	ID          int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID   int64        `gorm:"column:company_id;not null;uniqueIndex:ux_periods_company_ym_type" json:"company_id"`
	YearMonth   YearMonth    `gorm:"column:year_month;not null;uniqueIndex:ux_periods_company_ym_type" json:"year_month"`
	PeriodType  PeriodType   `gorm:"column:period_type;not null;default:'monthly';uniqueIndex:ux_periods_company_ym_type" json:"period_type"`
	StartDate   time.Time    `gorm:"column:start_date;not null" json:"start_date"`
	EndDate     time.Time    `gorm:"column:end_date;not null" json:"end_date"`
	ClosingDate time.Time    `gorm:"column:closing_date;not null" json:"closing_date"`
	PaymentDate time.Time    `gorm:"column:payment_date;not null" json:"payment_date"`
	Status      PeriodStatus `gorm:"not null;default:'draft'" json:"status"`
	Timestamps
}

func (PayrollPeriod) TableName() string { return "payroll_periods" }

// PeriodForMonth derives the monthly pay period for the given month
// from the company's payroll calendar. The period closes on the
// company's closing day (day-clamped, so 31 lands on Feb 28/29) and
// starts the day after the previous closing. Payment lands
// payment_month_offset months later on the payment day.
func PeriodForMonth(c *Company, ym YearMonth) PayrollPeriod {
	end := ClampDay(ym.Year(), ym.Month(), c.ClosingDay)
	prev := end.AddDate(0, -1, 0)
	start := ClampDay(prev.Year(), prev.Month(), c.ClosingDay).AddDate(0, 0, 1)
	payYM := ym
	for i := 0; i < c.PaymentMonthOffset; i++ {
		payYM = payYM.Next()
	}
	payment := ClampDay(payYM.Year(), payYM.Month(), c.PaymentDay)
	return PayrollPeriod{
		CompanyID:   c.ID,
		YearMonth:   ym,
		PeriodType:  PeriodMonthly,
		StartDate:   start,
		EndDate:     end,
		ClosingDate: end,
		PaymentDate: payment,
		Status:      PeriodDraft,
	}
}

// AttendanceRecord aggregates one employee's worked time for one
// calendar month. All quantities are integer minutes; one row per
// (employee, year_month).
type AttendanceRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID  int64     `gorm:"column:company_id;not null;index" json:"company_id"`
	EmployeeID int64     `gorm:"column:employee_id;not null;uniqueIndex:ux_attendance_employee_ym" json:"employee_id"`
	YearMonth  YearMonth `gorm:"column:year_month;not null;uniqueIndex:ux_attendance_employee_ym" json:"year_month"`

	WorkDays    int `gorm:"column:work_days;not null;default:0" json:"work_days"`
	AbsenceDays int `gorm:"column:absence_days;not null;default:0" json:"absence_days"`
	PaidLeaveDays int `gorm:"column:paid_leave_days;not null;default:0" json:"paid_leave_days"`

	// StatutoryWorkDays is the month's prescribed working days, the
	// divisor for absence deductions. Zero means unset; the calculator
	// falls back to 20.
	StatutoryWorkDays int `gorm:"column:statutory_work_days;not null;default:0" json:"statutory_work_days"`

	TotalWorkMinutes            int `gorm:"column:total_work_minutes;not null;default:0" json:"total_work_minutes"`
	OvertimeWithinStatutoryMins int `gorm:"column:overtime_within_statutory_minutes;not null;default:0" json:"overtime_within_statutory_minutes"`
	OvertimeStatutoryMins       int `gorm:"column:overtime_statutory_minutes;not null;default:0" json:"overtime_statutory_minutes"`
	NightMins                   int `gorm:"column:night_minutes;not null;default:0" json:"night_minutes"`
	StatutoryHolidayMins        int `gorm:"column:statutory_holiday_minutes;not null;default:0" json:"statutory_holiday_minutes"`
	NonStatutoryHolidayMins     int `gorm:"column:non_statutory_holiday_minutes;not null;default:0" json:"non_statutory_holiday_minutes"`
	NightOvertimeMins           int `gorm:"column:night_overtime_minutes;not null;default:0" json:"night_overtime_minutes"`
	NightHolidayMins            int `gorm:"column:night_holiday_minutes;not null;default:0" json:"night_holiday_minutes"`
	NightOvertimeHolidayMins    int `gorm:"column:night_overtime_holiday_minutes;not null;default:0" json:"night_overtime_holiday_minutes"`

	Note string `json:"note,omitempty"`
	Timestamps
}

func (AttendanceRecord) TableName() string { return "attendance_records" }

// Validate rejects negative day and minute quantities.
func (a *AttendanceRecord) Validate() error {
	if !a.YearMonth.Valid() {
		return errs.Validationf("year_month", "invalid year-month %d", int(a.YearMonth))
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"work_days", a.WorkDays},
		{"absence_days", a.AbsenceDays},
		{"paid_leave_days", a.PaidLeaveDays},
		{"statutory_work_days", a.StatutoryWorkDays},
		{"total_work_minutes", a.TotalWorkMinutes},
		{"overtime_within_statutory_minutes", a.OvertimeWithinStatutoryMins},
		{"overtime_statutory_minutes", a.OvertimeStatutoryMins},
		{"night_minutes", a.NightMins},
		{"statutory_holiday_minutes", a.StatutoryHolidayMins},
		{"non_statutory_holiday_minutes", a.NonStatutoryHolidayMins},
		{"night_overtime_minutes", a.NightOvertimeMins},
		{"night_holiday_minutes", a.NightHolidayMins},
		{"night_overtime_holiday_minutes", a.NightOvertimeHolidayMins},
	} {
		if f.v < 0 {
			return errs.Validationf(f.name, "must be non-negative, got %d", f.v)
		}
	}
	return nil
}

// AttendanceMinutes is the minute vector fed into the overtime engine.
type AttendanceMinutes struct {
	OvertimeWithinStatutory int
	OvertimeStatutory       int
	Night                   int
	StatutoryHoliday        int
	NonStatutoryHoliday     int
	NightOvertime           int
	NightHoliday            int
	NightOvertimeHoliday    int
}

// Minutes extracts the overtime-engine input vector.
func (a *AttendanceRecord) Minutes() AttendanceMinutes {
	return AttendanceMinutes{
		OvertimeWithinStatutory: a.OvertimeWithinStatutoryMins,
		OvertimeStatutory:       a.OvertimeStatutoryMins,
		Night:                   a.NightMins,
		StatutoryHoliday:        a.StatutoryHolidayMins,
		NonStatutoryHoliday:     a.NonStatutoryHolidayMins,
		NightOvertime:           a.NightOvertimeMins,
		NightHoliday:            a.NightHolidayMins,
		NightOvertimeHoliday:    a.NightOvertimeHolidayMins,
	}
}
