package model

import (
	"time"

	"github.com/kyuyo/payroll-engine/errs"
)

// Employee is the payroll subject. employee_code is unique per company;
// soft-deleted rows keep their code reserved.
type Employee struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID int64  `gorm:"column:company_id;not null;uniqueIndex:ux_employees_company_code" json:"company_id"`
	UserID    *int64 `gorm:"column:user_id;index" json:"user_id,omitempty"`

	EmployeeCode string `gorm:"column:employee_code;not null;uniqueIndex:ux_employees_company_code" json:"employee_code"`
	LastName     string `gorm:"column:last_name;not null" json:"last_name"`
	FirstName    string `gorm:"column:first_name;not null" json:"first_name"`
	LastNameKana  string `gorm:"column:last_name_kana" json:"last_name_kana,omitempty"`
	FirstNameKana string `gorm:"column:first_name_kana" json:"first_name_kana,omitempty"`

	BirthDate  *time.Time `gorm:"column:birth_date" json:"birth_date,omitempty"`
	Address    string     `json:"address,omitempty"`
	Department string     `json:"department,omitempty"`
	Position   string     `json:"position,omitempty"`
	HireDate   *time.Time `gorm:"column:hire_date" json:"hire_date,omitempty"`
	LeaveDate  *time.Time `gorm:"column:leave_date" json:"leave_date,omitempty"`

	SalaryType     SalaryType     `gorm:"column:salary_type;not null;default:'monthly'" json:"salary_type"`
	SalarySettings SalarySettings `gorm:"column:salary_settings;type:json" json:"salary_settings"`

	TaxCategory        TaxCategory `gorm:"column:tax_category;not null;default:'kou'" json:"tax_category"`
	DependentsCount    int         `gorm:"column:dependents_count;not null;default:0" json:"dependents_count"`
	ResidentTaxMonthly int64       `gorm:"column:resident_tax_monthly;not null;default:0" json:"resident_tax_monthly"`

	SocialInsuranceEnrolled     bool `gorm:"column:social_insurance_enrolled;not null;default:true" json:"social_insurance_enrolled"`
	PensionInsuranceEnrolled    bool `gorm:"column:pension_insurance_enrolled;not null;default:true" json:"pension_insurance_enrolled"`
	EmploymentInsuranceEnrolled bool `gorm:"column:employment_insurance_enrolled;not null;default:true" json:"employment_insurance_enrolled"`

	// Bank transfer destination
	BankCode          string      `gorm:"column:bank_code" json:"bank_code,omitempty"`
	BankName          string      `gorm:"column:bank_name" json:"bank_name,omitempty"`
	BranchCode        string      `gorm:"column:branch_code" json:"branch_code,omitempty"`
	BranchName        string      `gorm:"column:branch_name" json:"branch_name,omitempty"`
	AccountType       AccountType `gorm:"column:account_type;default:'savings'" json:"account_type,omitempty"`
	AccountNumber     string      `gorm:"column:account_number" json:"account_number,omitempty"`
	AccountHolderKana string      `gorm:"column:account_holder_kana" json:"account_holder_kana,omitempty"`

	IsDeleted bool       `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
	Timestamps
}

func (Employee) TableName() string { return "employees" }

// FullName joins family and given name in Japanese order.
func (e *Employee) FullName() string {
	return e.LastName + " " + e.FirstName
}

// FullNameKana joins the kana readings in Japanese order.
func (e *Employee) FullNameKana() string {
	if e.LastNameKana == "" && e.FirstNameKana == "" {
		return ""
	}
	return e.LastNameKana + " " + e.FirstNameKana
}

// AgeOn returns the employee's age on the given date, or nil when the
// birth date is unknown.
func (e *Employee) AgeOn(date time.Time) *int {
	if e.BirthDate == nil {
		return nil
	}
	age := AgeAt(*e.BirthDate, date)
	return &age
}

// Validate checks the salary settings against the declared salary type.
func (e *Employee) Validate() error {
	if e.EmployeeCode == "" {
		return errs.Validationf("employee_code", "required")
	}
	if e.LastName == "" || e.FirstName == "" {
		return errs.Validationf("name", "last_name and first_name are required")
	}
	if e.DependentsCount < 0 {
		return errs.Validationf("dependents_count", "must be non-negative")
	}
	switch e.SalaryType {
	case SalaryMonthly:
		if e.SalarySettings.MonthlySalary < 0 {
			return errs.Validationf("salary_settings.monthly_salary", "must be non-negative")
		}
	case SalaryDaily:
		if e.SalarySettings.DailyRate < 0 {
			return errs.Validationf("salary_settings.daily_rate", "must be non-negative")
		}
	case SalaryHourly:
		if e.SalarySettings.HourlyRate < 0 {
			return errs.Validationf("salary_settings.hourly_rate", "must be non-negative")
		}
	case SalaryCommission:
		if e.SalarySettings.BaseAmount < 0 || e.SalarySettings.CommissionAmount < 0 {
			return errs.Validationf("salary_settings", "amounts must be non-negative")
		}
	default:
		return errs.Validationf("salary_type", "unknown salary type %q", e.SalaryType)
	}
	return nil
}

// AllowanceType is a company-defined recurring earning kind. The flags
// drive how the calculator treats the amount downstream.
type AllowanceType struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID int64  `gorm:"column:company_id;not null;uniqueIndex:ux_allowance_types_company_code" json:"company_id"`
	Code      string `gorm:"not null;uniqueIndex:ux_allowance_types_company_code" json:"code"`
	Name      string `gorm:"not null" json:"name"`

	IsTaxable                   bool `gorm:"column:is_taxable;not null;default:true" json:"is_taxable"`
	IsSocialInsuranceTarget     bool `gorm:"column:is_social_insurance_target;not null;default:true" json:"is_social_insurance_target"`
	IsEmploymentInsuranceTarget bool `gorm:"column:is_employment_insurance_target;not null;default:true" json:"is_employment_insurance_target"`
	IsOvertimeBase              bool `gorm:"column:is_overtime_base;not null;default:false" json:"is_overtime_base"`
	IsActive                    bool `gorm:"column:is_active;not null;default:true" json:"is_active"`
	Timestamps
}

func (AllowanceType) TableName() string { return "allowance_types" }

// EmployeeAllowance assigns a fixed monthly allowance amount to an
// employee over an effective window.
type EmployeeAllowance struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID       int64      `gorm:"column:company_id;not null;index" json:"company_id"`
	EmployeeID      int64      `gorm:"column:employee_id;not null;index" json:"employee_id"`
	AllowanceTypeID int64      `gorm:"column:allowance_type_id;not null" json:"allowance_type_id"`
	Amount          int64      `gorm:"not null" json:"amount"`
	EffectiveFrom   time.Time  `gorm:"column:effective_from;not null" json:"effective_from"`
	EffectiveTo     *time.Time `gorm:"column:effective_to" json:"effective_to,omitempty"`
	Timestamps

	AllowanceType *AllowanceType `gorm:"foreignKey:AllowanceTypeID" json:"allowance_type,omitempty"`
}

func (EmployeeAllowance) TableName() string { return "employee_allowances" }

// ActiveIn reports whether the allowance overlaps the pay period.
func (a *EmployeeAllowance) ActiveIn(start, end time.Time) bool {
	return OverlapsRange(a.EffectiveFrom, a.EffectiveTo, start, end)
}

// CommuteDetail describes an employee's commute and its monthly cost.
// When several rows cover a period, the one with the greatest
// effective_from wins; id breaks remaining ties.
type CommuteDetail struct {
	ID              int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID       int64         `gorm:"column:company_id;not null;index" json:"company_id"`
	EmployeeID      int64         `gorm:"column:employee_id;not null;index" json:"employee_id"`
	Method          CommuteMethod `gorm:"column:commute_method;not null;default:'public_transport'" json:"commute_method"`
	OneWayKm        *float64      `gorm:"column:one_way_km" json:"one_way_km,omitempty"`
	MonthlyCost     int64         `gorm:"column:monthly_cost;not null" json:"monthly_cost"`
	NonTaxableLimit *int64        `gorm:"column:non_taxable_limit" json:"non_taxable_limit,omitempty"`
	EffectiveFrom   time.Time     `gorm:"column:effective_from;not null" json:"effective_from"`
	EffectiveTo     *time.Time    `gorm:"column:effective_to" json:"effective_to,omitempty"`
	Timestamps
}

func (CommuteDetail) TableName() string { return "commute_details" }

// ActiveIn reports whether the commute detail overlaps the pay period.
func (c *CommuteDetail) ActiveIn(start, end time.Time) bool {
	return OverlapsRange(c.EffectiveFrom, c.EffectiveTo, start, end)
}

// NonTaxablePortion returns the tax-exempt part of the monthly cost,
// capped by the stored limit (default 150,000 yen).
func (c *CommuteDetail) NonTaxablePortion() int64 {
	limit := int64(150000)
	if c.NonTaxableLimit != nil {
		limit = *c.NonTaxableLimit
	}
	if c.MonthlyCost < limit {
		return c.MonthlyCost
	}
	return limit
}
