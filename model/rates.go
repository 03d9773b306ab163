package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InsuranceRate is a time-ranged premium rate row. A null company_id
// means the row is global; a tenant-scoped row with the same key
// overrides it. Rates carry five fractional digits (0.09850 = 9.850%).
type InsuranceRate struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID     *int64          `gorm:"column:company_id;index" json:"company_id,omitempty"`
	InsuranceType InsuranceType   `gorm:"column:insurance_type;not null;index" json:"insurance_type"`
	Prefecture    string          `json:"prefecture,omitempty"`
	ValidFrom     time.Time       `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidTo       *time.Time      `gorm:"column:valid_to" json:"valid_to,omitempty"`
	EmployeeRate  decimal.Decimal `gorm:"column:employee_rate;type:numeric(10,5);not null" json:"employee_rate"`
	EmployerRate  decimal.Decimal `gorm:"column:employer_rate;type:numeric(10,5);not null" json:"employer_rate"`

	// CareInsuranceRate applies only to health rows; nil means the row
	// carries no care component.
	CareInsuranceRate *decimal.Decimal `gorm:"column:care_insurance_rate;type:numeric(10,5)" json:"care_insurance_rate,omitempty"`
	Timestamps
}

func (InsuranceRate) TableName() string { return "insurance_rates" }

// Covers reports whether the rate's validity window includes the date.
func (r *InsuranceRate) Covers(date time.Time) bool {
	return CoversDate(r.ValidFrom, r.ValidTo, date)
}

// IncomeTaxTable is one bracket row of a withholding table. The income
// bracket is [income_from, income_to); a nil income_to is open-ended.
// dependents_count must match the lookup exactly.
type IncomeTaxTable struct {
	ID              int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID       *int64       `gorm:"column:company_id;index" json:"company_id,omitempty"`
	TableType       TaxTableType `gorm:"column:table_type;not null;index" json:"table_type"`
	ValidFrom       time.Time    `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidTo         *time.Time   `gorm:"column:valid_to" json:"valid_to,omitempty"`
	IncomeFrom      int64        `gorm:"column:income_from;not null" json:"income_from"`
	IncomeTo        *int64       `gorm:"column:income_to" json:"income_to,omitempty"`
	DependentsCount int          `gorm:"column:dependents_count;not null;default:0" json:"dependents_count"`
	TaxAmount       int64        `gorm:"column:tax_amount;not null" json:"tax_amount"`
	Timestamps
}

func (IncomeTaxTable) TableName() string { return "income_tax_tables" }

// Matches reports whether the bracket covers the date, income, and
// dependent count.
func (t *IncomeTaxTable) Matches(income int64, dependents int, date time.Time) bool {
	if t.DependentsCount != dependents {
		return false
	}
	if !CoversDate(t.ValidFrom, t.ValidTo, date) {
		return false
	}
	if income < t.IncomeFrom {
		return false
	}
	return t.IncomeTo == nil || income < *t.IncomeTo
}

// CommuteTaxLimit is a distance-bucketed non-taxable commute cap. The
// distance bucket is [distance_from_km, distance_to_km).
type CommuteTaxLimit struct {
	ID             int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID      *int64        `gorm:"column:company_id;index" json:"company_id,omitempty"`
	Method         CommuteMethod `gorm:"column:commute_method;not null" json:"commute_method"`
	DistanceFromKm float64       `gorm:"column:distance_from_km;not null;default:0" json:"distance_from_km"`
	DistanceToKm   *float64      `gorm:"column:distance_to_km" json:"distance_to_km,omitempty"`
	MonthlyLimit   int64         `gorm:"column:monthly_limit;not null" json:"monthly_limit"`
	ValidFrom      time.Time     `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidTo        *time.Time    `gorm:"column:valid_to" json:"valid_to,omitempty"`
	Timestamps
}

func (CommuteTaxLimit) TableName() string { return "commute_tax_limits" }

// Matches reports whether the bucket covers the date and distance.
func (l *CommuteTaxLimit) Matches(method CommuteMethod, distanceKm float64, date time.Time) bool {
	if l.Method != method {
		return false
	}
	if !CoversDate(l.ValidFrom, l.ValidTo, date) {
		return false
	}
	if distanceKm < l.DistanceFromKm {
		return false
	}
	return l.DistanceToKm == nil || distanceKm < *l.DistanceToKm
}

// DebitCredit marks which side of a journal line a mapping produces.
type DebitCredit string

const (
	Debit  DebitCredit = "debit"
	Credit DebitCredit = "credit"
)

// AccountingMapping routes a payroll item code to an account for the
// journal export. Unique per (company, item_type, item_code).
type AccountingMapping struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID   int64       `gorm:"column:company_id;not null;uniqueIndex:ux_mappings_company_item" json:"company_id"`
	ItemType    ItemType    `gorm:"column:item_type;not null;uniqueIndex:ux_mappings_company_item" json:"item_type"`
	ItemCode    string      `gorm:"column:item_code;not null;uniqueIndex:ux_mappings_company_item" json:"item_code"`
	AccountCode string      `gorm:"column:account_code;not null" json:"account_code"`
	AccountName string      `gorm:"column:account_name;not null" json:"account_name"`
	SubAccount  string      `gorm:"column:sub_account" json:"sub_account,omitempty"`
	DebitCredit DebitCredit `gorm:"column:debit_credit;not null;default:'debit'" json:"debit_credit"`
	Timestamps
}

func (AccountingMapping) TableName() string { return "accounting_mappings" }

// BankTransferExport is the append-only audit row of one generated
// Zengin file.
type BankTransferExport struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID   int64     `gorm:"column:company_id;not null;index" json:"company_id"`
	PeriodID    int64     `gorm:"column:period_id;not null;index" json:"period_id"`
	FileName    string    `gorm:"column:file_name;not null" json:"file_name"`
	RecordCount int       `gorm:"column:record_count;not null" json:"record_count"`
	TotalAmount int64     `gorm:"column:total_amount;not null" json:"total_amount"`
	GeneratedBy int64     `gorm:"column:generated_by;not null" json:"generated_by"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (BankTransferExport) TableName() string { return "bank_transfer_exports" }

// DeductionCertificate is file metadata for a document attached to a
// year-end adjustment (insurance premium certificates and the like).
type DeductionCertificate struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID    int64     `gorm:"column:company_id;not null;index" json:"company_id"`
	AdjustmentID int64     `gorm:"column:adjustment_id;not null;index" json:"adjustment_id"`
	FileName     string    `gorm:"column:file_name;not null" json:"file_name"`
	StoredPath   string    `gorm:"column:stored_path;not null" json:"stored_path"`
	ContentType  string    `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes    int64     `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	UploadedBy   int64     `gorm:"column:uploaded_by;not null" json:"uploaded_by"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (DeductionCertificate) TableName() string { return "deduction_certificates" }
