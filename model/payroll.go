package model

import (
	"time"

	"gorm.io/datatypes"
)

// PayrollRecordGroup threads the versions of one employee-month
// together. current_record_id always points at the live version; at
// most one member record may be draft at any time.
type PayrollRecordGroup struct {
	ID              int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID       int64  `gorm:"column:company_id;not null;uniqueIndex:ux_groups_company_employee_period" json:"company_id"`
	EmployeeID      int64  `gorm:"column:employee_id;not null;uniqueIndex:ux_groups_company_employee_period" json:"employee_id"`
	PeriodID        int64  `gorm:"column:period_id;not null;uniqueIndex:ux_groups_company_employee_period" json:"period_id"`
	CurrentRecordID *int64 `gorm:"column:current_record_id" json:"current_record_id,omitempty"`
	Timestamps
}

func (PayrollRecordGroup) TableName() string { return "payroll_record_groups" }

// PayrollRecord is one version of an employee's payroll for a period.
// Versions within a group are append-only; amounts freeze on
// confirmation.
type PayrollRecord struct {
	ID         int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID  int64        `gorm:"column:company_id;not null;index" json:"company_id"`
	GroupID    int64        `gorm:"column:group_id;not null;index" json:"group_id"`
	EmployeeID int64        `gorm:"column:employee_id;not null;index" json:"employee_id"`
	PeriodID   int64        `gorm:"column:period_id;not null;index" json:"period_id"`
	Version    int          `gorm:"not null;default:1" json:"version"`
	Status     RecordStatus `gorm:"not null;default:'draft'" json:"status"`

	PaymentDate time.Time `gorm:"column:payment_date;not null" json:"payment_date"`

	TotalEarnings   int64 `gorm:"column:total_earnings;not null;default:0" json:"total_earnings"`
	TotalDeductions int64 `gorm:"column:total_deductions;not null;default:0" json:"total_deductions"`
	NetPay          int64 `gorm:"column:net_pay;not null;default:0" json:"net_pay"`

	CalculationDetails *CalculationDetails `gorm:"column:calculation_details;type:json" json:"calculation_details,omitempty"`

	ConfirmedAt  *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	ConfirmedBy  *int64     `gorm:"column:confirmed_by" json:"confirmed_by,omitempty"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy  *int64     `gorm:"column:cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason string     `gorm:"column:cancel_reason" json:"cancel_reason,omitempty"`
	Timestamps

	Items []PayrollRecordItem `gorm:"foreignKey:RecordID" json:"items,omitempty"`
}

func (PayrollRecord) TableName() string { return "payroll_records" }

// IsDraft reports whether the record may still be recalculated.
func (r *PayrollRecord) IsDraft() bool { return r.Status == RecordDraft }

// RecomputeTotals re-derives the totals from the items. Net pay may go
// negative when deductions exceed earnings; that is surfaced, not
// clamped.
func (r *PayrollRecord) RecomputeTotals() {
	var earnings, deductions int64
	for i := range r.Items {
		switch r.Items[i].ItemType {
		case ItemEarning:
			earnings += r.Items[i].Amount
		case ItemDeduction:
			deductions += r.Items[i].Amount
		}
	}
	r.TotalEarnings = earnings
	r.TotalDeductions = deductions
	r.NetPay = earnings - deductions
}

// PayrollRecordItem is one earning or deduction line on a record.
type PayrollRecordItem struct {
	ID           int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordID     int64    `gorm:"column:record_id;not null;index" json:"record_id"`
	ItemType     ItemType `gorm:"column:item_type;not null" json:"item_type"`
	ItemCode     string   `gorm:"column:item_code;not null" json:"item_code"`
	ItemName     string   `gorm:"column:item_name;not null" json:"item_name"`
	Amount       int64    `gorm:"not null" json:"amount"`

	// The three flags propagate from the allowance type; built-in lines
	// carry fixed values (deductions all false, commute non-taxable).
	IsTaxable                   bool `gorm:"column:is_taxable;not null;default:true" json:"is_taxable"`
	IsSocialInsuranceTarget     bool `gorm:"column:is_social_insurance_target;not null;default:true" json:"is_social_insurance_target"`
	IsEmploymentInsuranceTarget bool `gorm:"column:is_employment_insurance_target;not null;default:true" json:"is_employment_insurance_target"`

	DisplayOrder int `gorm:"column:display_order;not null;default:0" json:"display_order"`
	Timestamps
}

func (PayrollRecordItem) TableName() string { return "payroll_record_items" }

// PayrollSnapshot freezes a record at confirmation. At most one per
// record; never updated afterwards.
type PayrollSnapshot struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID int64        `gorm:"column:company_id;not null;index" json:"company_id"`
	RecordID  int64        `gorm:"column:record_id;not null;uniqueIndex" json:"record_id"`
	Data      SnapshotData `gorm:"type:json" json:"data"`
	CreatedAt time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (PayrollSnapshot) TableName() string { return "payroll_snapshots" }

// PayrollHistory is the append-only audit trail of record transitions.
// Rows are never updated or deleted.
type PayrollHistory struct {
	ID       int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID int64        `gorm:"column:company_id;not null;index" json:"company_id"`
	RecordID int64         `gorm:"column:record_id;not null;index" json:"record_id"`
	Action   HistoryAction `gorm:"not null" json:"action"`

	// SourceRecordID links a created_from_cancellation row back to the
	// cancelled record it was forked from.
	SourceRecordID *int64 `gorm:"column:source_record_id" json:"source_record_id,omitempty"`

	OldValues datatypes.JSONMap `gorm:"column:old_values;type:json" json:"old_values,omitempty"`
	NewValues datatypes.JSONMap `gorm:"column:new_values;type:json" json:"new_values,omitempty"`

	Reason    string    `json:"reason,omitempty"`
	ActorID   int64     `gorm:"column:actor_id;not null" json:"actor_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (PayrollHistory) TableName() string { return "payroll_history" }
