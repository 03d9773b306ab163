package model

import (
	"time"

	"gorm.io/datatypes"
)

// YearEndAdjustment is one employee's 年末調整 for a target year.
// Declared deduction amounts come from the employee's paper forms; the
// annual aggregates and the adjustment amount are computed at
// confirmation time.
type YearEndAdjustment struct {
	ID         int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID  int64            `gorm:"column:company_id;not null;uniqueIndex:ux_yea_company_employee_year" json:"company_id"`
	EmployeeID int64            `gorm:"column:employee_id;not null;uniqueIndex:ux_yea_company_employee_year" json:"employee_id"`
	TargetYear int              `gorm:"column:target_year;not null;uniqueIndex:ux_yea_company_employee_year" json:"target_year"`
	Status     AdjustmentStatus `gorm:"not null;default:'draft'" json:"status"`

	// Declared deductions
	BasicDeduction             int64 `gorm:"column:basic_deduction;not null;default:0" json:"basic_deduction"`
	SpouseDeduction            int64 `gorm:"column:spouse_deduction;not null;default:0" json:"spouse_deduction"`
	DependentDeduction         int64 `gorm:"column:dependent_deduction;not null;default:0" json:"dependent_deduction"`
	DisabilityDeduction        int64 `gorm:"column:disability_deduction;not null;default:0" json:"disability_deduction"`
	WidowDeduction             int64 `gorm:"column:widow_deduction;not null;default:0" json:"widow_deduction"`
	WorkingStudentDeduction    int64 `gorm:"column:working_student_deduction;not null;default:0" json:"working_student_deduction"`
	SocialInsurancePremium     int64 `gorm:"column:social_insurance_premium;not null;default:0" json:"social_insurance_premium"`
	SmallBusinessMutualAid     int64 `gorm:"column:small_business_mutual_aid;not null;default:0" json:"small_business_mutual_aid"`
	LifeInsurancePremium       int64 `gorm:"column:life_insurance_premium;not null;default:0" json:"life_insurance_premium"`
	EarthquakeInsurancePremium int64 `gorm:"column:earthquake_insurance_premium;not null;default:0" json:"earthquake_insurance_premium"`
	HousingLoanDeduction       int64 `gorm:"column:housing_loan_deduction;not null;default:0" json:"housing_loan_deduction"`

	// Annual aggregates, set when the adjustment is confirmed.
	AnnualIncome        *int64 `gorm:"column:annual_income" json:"annual_income,omitempty"`
	AnnualWithheldTax   *int64 `gorm:"column:annual_withheld_tax" json:"annual_withheld_tax,omitempty"`
	AnnualCalculatedTax *int64 `gorm:"column:annual_calculated_tax" json:"annual_calculated_tax,omitempty"`

	// AdjustmentAmount = annual_calculated_tax - annual_withheld_tax.
	// Negative means a refund to the employee.
	AdjustmentAmount *int64 `gorm:"column:adjustment_amount" json:"adjustment_amount,omitempty"`

	SubmittedAt *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	ApprovedBy  *int64     `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	ConfirmedBy *int64     `gorm:"column:confirmed_by" json:"confirmed_by,omitempty"`
	ReturnedAt   *time.Time `gorm:"column:returned_at" json:"returned_at,omitempty"`
	ReturnReason string     `gorm:"column:return_reason" json:"return_reason,omitempty"`
	Timestamps
}

func (YearEndAdjustment) TableName() string { return "year_end_adjustments" }

// DeclaredDeductions flattens the declared fields into a slip payload.
func (y *YearEndAdjustment) DeclaredDeductions() SlipDeductions {
	return SlipDeductions{
		BasicDeduction:             y.BasicDeduction,
		SpouseDeduction:            y.SpouseDeduction,
		DependentDeduction:         y.DependentDeduction,
		DisabilityDeduction:        y.DisabilityDeduction,
		WidowDeduction:             y.WidowDeduction,
		WorkingStudentDeduction:    y.WorkingStudentDeduction,
		SocialInsurancePremium:     y.SocialInsurancePremium,
		SmallBusinessMutualAid:     y.SmallBusinessMutualAid,
		LifeInsurancePremium:       y.LifeInsurancePremium,
		EarthquakeInsurancePremium: y.EarthquakeInsurancePremium,
		HousingLoanDeduction:       y.HousingLoanDeduction,
	}
}

// TotalDeclaredDeductions sums the income-deduction fields. Housing
// loan is a tax credit, not an income deduction, so it is excluded.
func (y *YearEndAdjustment) TotalDeclaredDeductions() int64 {
	return y.BasicDeduction +
		y.SpouseDeduction +
		y.DependentDeduction +
		y.DisabilityDeduction +
		y.WidowDeduction +
		y.WorkingStudentDeduction +
		y.SocialInsurancePremium +
		y.SmallBusinessMutualAid +
		y.LifeInsurancePremium +
		y.EarthquakeInsurancePremium
}

// WithholdingSlip is the generated 源泉徴収票. At most one per
// adjustment; generation requires confirmed status.
type WithholdingSlip struct {
	ID           int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID    int64    `gorm:"column:company_id;not null;index" json:"company_id"`
	AdjustmentID int64    `gorm:"column:adjustment_id;not null;uniqueIndex" json:"adjustment_id"`
	EmployeeID   int64    `gorm:"column:employee_id;not null;index" json:"employee_id"`
	TargetYear   int      `gorm:"column:target_year;not null" json:"target_year"`
	Data         SlipData `gorm:"type:json" json:"data"`
	GeneratedBy  int64    `gorm:"column:generated_by;not null" json:"generated_by"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (WithholdingSlip) TableName() string { return "withholding_slips" }

// YearEndHistory is the append-only audit trail of adjustment
// transitions.
type YearEndHistory struct {
	ID           int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID    int64         `gorm:"column:company_id;not null;index" json:"company_id"`
	AdjustmentID int64         `gorm:"column:adjustment_id;not null;index" json:"adjustment_id"`
	Action       HistoryAction `gorm:"not null" json:"action"`
	OldValues    datatypes.JSONMap `gorm:"column:old_values;type:json" json:"old_values,omitempty"`
	NewValues    datatypes.JSONMap `gorm:"column:new_values;type:json" json:"new_values,omitempty"`
	ActorID      int64         `gorm:"column:actor_id;not null" json:"actor_id"`
	CreatedAt    time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (YearEndHistory) TableName() string { return "year_end_history" }
