/*
Package model defines the persistent entities of the payroll engine.

PURPOSE:
  This package contains the gorm models for every table, the enumerated
  string types used across the engine, and the typed JSON payloads stored
  in JSONB columns (salary settings, calculation details, snapshots,
  withholding slips).

DESIGN PRINCIPLES:
  1. Money is integer yen. Time quantities are integer minutes.
  2. Rates are decimal.Decimal with five fractional digits.
  3. Tenant scoping: company_id is mandatory on every entity except the
     global rate/tax tables (where a NULL company_id means global).
  4. Dynamic columns carry closed, tagged struct types rather than
     free-form maps, so the calculation core stays total.
  5. Entities reference each other by id; traversal is explicit lookup,
     not object-graph navigation.

SEE ALSO:
  - payloads.go: typed JSONB payloads
  - dates.go:    YearMonth and date helpers
*/
package model

import (
	"time"

	"gorm.io/datatypes"
)

// JSONMap is the free-form JSON column type used by history tables.
type JSONMap = datatypes.JSONMap

// =============================================================================
// ENUMERATIONS
// =============================================================================

// SalaryType discriminates the salary_settings payload.
type SalaryType string

const (
	SalaryMonthly    SalaryType = "monthly"
	SalaryDaily      SalaryType = "daily"
	SalaryHourly     SalaryType = "hourly"
	SalaryCommission SalaryType = "commission"
)

// TaxCategory is the Japanese withholding category (甲/乙/丙).
type TaxCategory string

const (
	TaxKou  TaxCategory = "kou"  // primary employer
	TaxOtsu TaxCategory = "otsu" // secondary employer
	TaxHei  TaxCategory = "hei"  // daily workers
)

// ItemType classifies a payroll line item.
type ItemType string

const (
	ItemEarning   ItemType = "earning"
	ItemDeduction ItemType = "deduction"
)

// RecordStatus is the payroll record lifecycle.
type RecordStatus string

const (
	RecordDraft     RecordStatus = "draft"
	RecordConfirmed RecordStatus = "confirmed"
	RecordCancelled RecordStatus = "cancelled"
)

// PeriodStatus is the payroll period lifecycle.
type PeriodStatus string

const (
	PeriodDraft     PeriodStatus = "draft"
	PeriodConfirmed PeriodStatus = "confirmed"
	PeriodPaid      PeriodStatus = "paid"
)

// PeriodType selects the payroll cadence. Only monthly periods are
// generated automatically; weekly and daily exist for manual setups.
type PeriodType string

const (
	PeriodMonthly PeriodType = "monthly"
	PeriodWeekly  PeriodType = "weekly"
	PeriodDaily   PeriodType = "daily"
)

// AdjustmentStatus is the year-end adjustment lifecycle.
type AdjustmentStatus string

const (
	AdjustmentDraft     AdjustmentStatus = "draft"
	AdjustmentSubmitted AdjustmentStatus = "submitted"
	AdjustmentReturned  AdjustmentStatus = "returned"
	AdjustmentApproved  AdjustmentStatus = "approved"
	AdjustmentConfirmed AdjustmentStatus = "confirmed"
)

// InsuranceType selects the statutory insurance scheme.
type InsuranceType string

const (
	InsuranceHealth     InsuranceType = "health"
	InsurancePension    InsuranceType = "pension"
	InsuranceEmployment InsuranceType = "employment"
)

// Valid reports whether the value is a known scheme.
func (t InsuranceType) Valid() bool {
	switch t {
	case InsuranceHealth, InsurancePension, InsuranceEmployment:
		return true
	}
	return false
}

// TaxTableType selects the withholding table.
type TaxTableType string

const (
	TableMonthlyKou TaxTableType = "monthly_kou"
	TableDailyKou   TaxTableType = "daily_kou"
	TableOtsu       TaxTableType = "otsu"
	TableHei        TaxTableType = "hei"
)

// Valid reports whether the value names a known table.
func (t TaxTableType) Valid() bool {
	switch t {
	case TableMonthlyKou, TableDailyKou, TableOtsu, TableHei:
		return true
	}
	return false
}

// CommuteMethod classifies commute for the non-taxable limit lookup.
type CommuteMethod string

const (
	CommutePublicTransport CommuteMethod = "public_transport"
	CommuteCar             CommuteMethod = "car"
	CommuteBicycle         CommuteMethod = "bicycle"
	CommuteMixed           CommuteMethod = "mixed"
)

// AccountType is the bank account class used in the Zengin file.
type AccountType string

const (
	AccountSavings  AccountType = "savings"
	AccountChecking AccountType = "checking"
)

// HistoryAction labels append-only history rows.
type HistoryAction string

const (
	ActionCalculated     HistoryAction = "calculated"
	ActionConfirmed      HistoryAction = "confirmed"
	ActionCancelled      HistoryAction = "cancelled"
	ActionCreatedFromCxl HistoryAction = "created_from_cancellation"
	ActionCreated        HistoryAction = "created"
	ActionSubmitted      HistoryAction = "submitted"
	ActionApproved       HistoryAction = "approved"
	ActionReturned       HistoryAction = "returned"
	ActionSlipGenerated  HistoryAction = "slip_generated"
)

// Role is the coarse access level of a user account. Role enforcement
// lives in the API shell; the core only distinguishes admin vs employee
// scope for visibility rules.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleEmployee   Role = "employee"
)

// IsAdmin reports whether the role may act across the whole tenant.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleAccountant
}

// Actor identifies who performed an operation, for history stamping and
// visibility checks.
type Actor struct {
	UserID     int64
	CompanyID  int64
	EmployeeID int64 // 0 when the user has no employee record
	Role       Role
}

// IsAdmin reports whether the actor may act across the whole tenant.
func (a Actor) IsAdmin() bool { return a.Role.IsAdmin() }

// Timestamps is embedded by entities with created/updated columns.
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
