package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/kyuyo/payroll-engine/errs"
)

// Company is the tenant master. Soft-deleted; created by super-admins.
type Company struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"not null" json:"name"`
	NameKana string `gorm:"column:name_kana" json:"name_kana,omitempty"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	RepresentativeName string `gorm:"column:representative_name" json:"representative_name,omitempty"`
	LegalNumber        string `gorm:"column:legal_number" json:"legal_number,omitempty"`

	// Payroll calendar
	ClosingDay         int `gorm:"column:closing_day;not null" json:"closing_day"`
	PaymentDay         int `gorm:"column:payment_day;not null" json:"payment_day"`
	PaymentMonthOffset int `gorm:"column:payment_month_offset;not null;default:1" json:"payment_month_offset"`

	// Health insurance
	HealthInsurancePrefecture string `gorm:"column:health_insurance_prefecture" json:"health_insurance_prefecture,omitempty"`
	CareInsuranceApplicable   bool   `gorm:"column:care_insurance_applicable;not null;default:true" json:"care_insurance_applicable"`

	// Office numbers
	PensionOfficeNumber    string `gorm:"column:pension_office_number" json:"pension_office_number,omitempty"`
	EmploymentOfficeNumber string `gorm:"column:employment_office_number" json:"employment_office_number,omitempty"`

	Settings datatypes.JSONMap `gorm:"type:json" json:"settings,omitempty"`

	IsDeleted bool       `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
	Timestamps
}

func (Company) TableName() string { return "companies" }

// Validate checks the schema-level invariants of the payroll calendar.
func (c *Company) Validate() error {
	if c.Name == "" {
		return errs.Validationf("name", "required")
	}
	if c.ClosingDay < 1 || c.ClosingDay > 31 {
		return errs.Validationf("closing_day", "must be 1-31, got %d", c.ClosingDay)
	}
	if c.PaymentDay < 1 || c.PaymentDay > 31 {
		return errs.Validationf("payment_day", "must be 1-31, got %d", c.PaymentDay)
	}
	if c.PaymentMonthOffset < 0 || c.PaymentMonthOffset > 2 {
		return errs.Validationf("payment_month_offset", "must be 0-2, got %d", c.PaymentMonthOffset)
	}
	return nil
}

// Prefecture returns the health-insurance prefecture, defaulting to 東京都.
func (c *Company) Prefecture() string {
	if c.HealthInsurancePrefecture != "" {
		return c.HealthInsurancePrefecture
	}
	return "東京都"
}

// User is an account that operates the system. Role enforcement lives in
// the API shell; the core reads the role only for actor scoping.
type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID    int64  `gorm:"column:company_id;not null;index" json:"company_id"`
	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	FullName     string `gorm:"column:full_name;not null" json:"full_name"`
	Role         Role   `gorm:"not null;default:'employee'" json:"role"`
	IsActive     bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	Timestamps
}

func (User) TableName() string { return "users" }
