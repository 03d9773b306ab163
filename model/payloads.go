package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// =============================================================================
// TYPED JSONB PAYLOADS
// =============================================================================
// Each payload is a closed struct that serializes itself into its JSONB
// column. A discriminator on salary_type keeps SalarySettings total: only
// the fields of the active variant are meaningful.

// SalarySettings is the structured payload on Employee, discriminated by
// the employee's salary_type.
type SalarySettings struct {
	// monthly
	MonthlySalary         int64 `json:"monthly_salary,omitempty"`
	MonthlyPrescribedHours int  `json:"monthly_prescribed_hours,omitempty"`

	// daily
	DailyRate int64 `json:"daily_rate,omitempty"`

	// hourly
	HourlyRate int64 `json:"hourly_rate,omitempty"`

	// commission
	BaseAmount       int64 `json:"base_amount,omitempty"`
	CommissionAmount int64 `json:"commission_amount,omitempty"`
}

// PrescribedHours returns the monthly prescribed working hours, falling
// back to the statutory default of 160.
func (s SalarySettings) PrescribedHours() int {
	if s.MonthlyPrescribedHours > 0 {
		return s.MonthlyPrescribedHours
	}
	return 160
}

// CalculationDetails carries the intermediate scalars of one payroll
// calculation, frozen onto the record for auditability.
type CalculationDetails struct {
	SalaryType           SalaryType `json:"salary_type"`
	BaseSalary           int64      `json:"base_salary"`
	BaseHourlyRate       int64      `json:"base_hourly_rate"`
	GrossSalary          int64      `json:"gross_salary"`
	CommuteNonTaxable    int64      `json:"commute_non_taxable"`
	SocialInsuranceTotal int64      `json:"social_insurance_total"`
	TaxableEarnings      int64      `json:"taxable_earnings"`
	IncomeTax            int64      `json:"income_tax"`
	WorkDays             int        `json:"work_days"`
	TotalWorkMinutes     int        `json:"total_work_minutes"`
	EmployeeAge          *int       `json:"employee_age,omitempty"`

	// Notes records non-fatal anomalies: rate lookup misses, clamped
	// negative base salary.
	Notes []string `json:"notes,omitempty"`
}

// SnapshotRecord is the frozen header portion of a payroll snapshot.
type SnapshotRecord struct {
	RecordID           int64               `json:"record_id"`
	EmployeeID         int64               `json:"employee_id"`
	Version            int                 `json:"version"`
	PaymentDate        string              `json:"payment_date"`
	TotalEarnings      int64               `json:"total_earnings"`
	TotalDeductions    int64               `json:"total_deductions"`
	NetPay             int64               `json:"net_pay"`
	CalculationDetails *CalculationDetails `json:"calculation_details,omitempty"`
}

// SnapshotItem is one frozen line item inside a snapshot.
type SnapshotItem struct {
	ItemType  ItemType `json:"item_type"`
	ItemCode  string   `json:"item_code"`
	ItemName  string   `json:"item_name"`
	Amount    int64    `json:"amount"`
	IsTaxable bool     `json:"is_taxable"`
}

// SnapshotData is the full frozen payload written at confirmation time.
// It is the source of truth for historical disputes.
type SnapshotData struct {
	Record      SnapshotRecord `json:"record"`
	Items       []SnapshotItem `json:"items"`
	ConfirmedAt string         `json:"confirmed_at"`
	ConfirmedBy int64          `json:"confirmed_by"`
}

// SlipDeductions itemizes the declared deductions on a withholding slip.
type SlipDeductions struct {
	BasicDeduction             int64 `json:"basic_deduction"`
	SpouseDeduction            int64 `json:"spouse_deduction"`
	DependentDeduction         int64 `json:"dependent_deduction"`
	DisabilityDeduction        int64 `json:"disability_deduction"`
	WidowDeduction             int64 `json:"widow_deduction"`
	WorkingStudentDeduction    int64 `json:"working_student_deduction"`
	SocialInsurancePremium     int64 `json:"social_insurance_premium"`
	SmallBusinessMutualAid     int64 `json:"small_business_mutual_aid"`
	LifeInsurancePremium       int64 `json:"life_insurance_premium"`
	EarthquakeInsurancePremium int64 `json:"earthquake_insurance_premium"`
	HousingLoanDeduction       int64 `json:"housing_loan_deduction"`
}

// SlipData is the frozen withholding-slip (源泉徴収票) payload generated
// from a confirmed year-end adjustment.
type SlipData struct {
	EmployeeName     string         `json:"employee_name"`
	EmployeeNameKana string         `json:"employee_name_kana"`
	Address          string         `json:"address,omitempty"`
	BirthDate        string         `json:"birth_date,omitempty"`
	TargetYear       int            `json:"target_year"`
	AnnualIncome     *int64         `json:"annual_income"`
	AnnualWithheld   *int64         `json:"annual_withheld_tax"`
	AnnualCalculated *int64         `json:"annual_calculated_tax"`
	AdjustmentAmount *int64         `json:"adjustment_amount"`
	Deductions       SlipDeductions `json:"deductions"`

	SocialInsuranceEnrolled     bool `json:"social_insurance_enrolled"`
	PensionInsuranceEnrolled    bool `json:"pension_insurance_enrolled"`
	EmploymentInsuranceEnrolled bool `json:"employment_insurance_enrolled"`
}

// =============================================================================
// SQL VALUER/SCANNER PLUMBING
// =============================================================================

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(dst any, src any) error {
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(s, dst)
	case string:
		return json.Unmarshal([]byte(s), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

func (s SalarySettings) Value() (driver.Value, error)  { return jsonValue(s) }
func (s *SalarySettings) Scan(src any) error           { return jsonScan(s, src) }
func (d CalculationDetails) Value() (driver.Value, error) { return jsonValue(d) }
func (d *CalculationDetails) Scan(src any) error          { return jsonScan(d, src) }
func (d SnapshotData) Value() (driver.Value, error)    { return jsonValue(d) }
func (d *SnapshotData) Scan(src any) error             { return jsonScan(d, src) }
func (d SlipData) Value() (driver.Value, error)        { return jsonValue(d) }
func (d *SlipData) Scan(src any) error                 { return jsonScan(d, src) }

// GormDataType hints gorm to create JSONB-compatible columns.
func (SalarySettings) GormDataType() string     { return "json" }
func (CalculationDetails) GormDataType() string { return "json" }
func (SnapshotData) GormDataType() string       { return "json" }
func (SlipData) GormDataType() string           { return "json" }
