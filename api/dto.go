/*
dto.go - Request and response shapes of the HTTP API

PURPOSE:
  Keeps the wire format separate from the gorm models. Handlers decode
  requests into these structs, validate, call the domain, and encode
  the results. Models that are already JSON-clean (records, items,
  adjustments) are returned directly.
*/
package api

import (
	"time"

	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// AUTH
// =============================================================================

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type loginResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	ExpiresIn    int     `json:"expires_in"`
	User         userDTO `json:"user"`
}

type userDTO struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	FullName   string     `json:"full_name"`
	Role       model.Role `json:"role"`
	CompanyID  int64      `json:"company_id"`
	EmployeeID int64      `json:"employee_id,omitempty"`
}

type createUserRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type attendanceRequest struct {
	EmployeeID int64 `json:"employee_id"`
	YearMonth  int   `json:"year_month"`

	WorkDays          int `json:"work_days"`
	AbsenceDays       int `json:"absence_days"`
	PaidLeaveDays     int `json:"paid_leave_days"`
	StatutoryWorkDays int `json:"statutory_work_days"`

	TotalWorkMinutes            int `json:"total_work_minutes"`
	OvertimeWithinStatutoryMins int `json:"overtime_within_statutory_minutes"`
	OvertimeStatutoryMins       int `json:"overtime_statutory_minutes"`
	NightMins                   int `json:"night_minutes"`
	StatutoryHolidayMins        int `json:"statutory_holiday_minutes"`
	NonStatutoryHolidayMins     int `json:"non_statutory_holiday_minutes"`
	NightOvertimeMins           int `json:"night_overtime_minutes"`
	NightHolidayMins            int `json:"night_holiday_minutes"`
	NightOvertimeHolidayMins    int `json:"night_overtime_holiday_minutes"`

	Note string `json:"note,omitempty"`
}

func (r attendanceRequest) toModel(companyID int64) *model.AttendanceRecord {
	return &model.AttendanceRecord{
		CompanyID:                   companyID,
		EmployeeID:                  r.EmployeeID,
		YearMonth:                   model.YearMonth(r.YearMonth),
		WorkDays:                    r.WorkDays,
		AbsenceDays:                 r.AbsenceDays,
		PaidLeaveDays:               r.PaidLeaveDays,
		StatutoryWorkDays:           r.StatutoryWorkDays,
		TotalWorkMinutes:            r.TotalWorkMinutes,
		OvertimeWithinStatutoryMins: r.OvertimeWithinStatutoryMins,
		OvertimeStatutoryMins:       r.OvertimeStatutoryMins,
		NightMins:                   r.NightMins,
		StatutoryHolidayMins:        r.StatutoryHolidayMins,
		NonStatutoryHolidayMins:     r.NonStatutoryHolidayMins,
		NightOvertimeMins:           r.NightOvertimeMins,
		NightHolidayMins:            r.NightHolidayMins,
		NightOvertimeHolidayMins:    r.NightOvertimeHolidayMins,
		Note:                        r.Note,
	}
}

// =============================================================================
// PAYROLL
// =============================================================================

type calculateRequest struct {
	EmployeeID int64 `json:"employee_id"`
	YearMonth  int   `json:"year_month"`
}

type calculateResponse struct {
	Record  *model.PayrollRecord `json:"record"`
	Created bool                 `json:"created"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type cancelResponse struct {
	Cancelled *model.PayrollRecord `json:"cancelled"`
	Draft     *model.PayrollRecord `json:"draft"`
}

// =============================================================================
// YEAR-END
// =============================================================================

type adjustmentRequest struct {
	EmployeeID int64 `json:"employee_id"`
	TargetYear int   `json:"target_year"`
	adjustmentPatch
}

// adjustmentPatch mirrors yearend.Patch with JSON tags. Absent fields
// stay untouched.
type adjustmentPatch struct {
	BasicDeduction             *int64 `json:"basic_deduction,omitempty"`
	SpouseDeduction            *int64 `json:"spouse_deduction,omitempty"`
	DependentDeduction         *int64 `json:"dependent_deduction,omitempty"`
	DisabilityDeduction        *int64 `json:"disability_deduction,omitempty"`
	WidowDeduction             *int64 `json:"widow_deduction,omitempty"`
	WorkingStudentDeduction    *int64 `json:"working_student_deduction,omitempty"`
	SocialInsurancePremium     *int64 `json:"social_insurance_premium,omitempty"`
	SmallBusinessMutualAid     *int64 `json:"small_business_mutual_aid,omitempty"`
	LifeInsurancePremium       *int64 `json:"life_insurance_premium,omitempty"`
	EarthquakeInsurancePremium *int64 `json:"earthquake_insurance_premium,omitempty"`
	HousingLoanDeduction       *int64 `json:"housing_loan_deduction,omitempty"`

	AnnualIncome        *int64 `json:"annual_income,omitempty"`
	AnnualWithheldTax   *int64 `json:"annual_withheld_tax,omitempty"`
	AnnualCalculatedTax *int64 `json:"annual_calculated_tax,omitempty"`
}

type returnRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// REPORTS
// =============================================================================

type monthlySummaryResponse struct {
	PeriodID        int64     `json:"period_id"`
	YearMonth       string    `json:"year_month"`
	PaymentDate     time.Time `json:"payment_date"`
	EmployeeCount   int       `json:"employee_count"`
	ConfirmedCount  int       `json:"confirmed_count"`
	DraftCount      int       `json:"draft_count"`
	CancelledCount  int       `json:"cancelled_count"`
	TotalEarnings   int64     `json:"total_earnings"`
	TotalDeductions int64     `json:"total_deductions"`
	TotalNetPay     int64     `json:"total_net_pay"`
}

type errorResponse struct {
	Error string `json:"error"`
}
