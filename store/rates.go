package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// RATE SOURCE (ratebook.Source)
// =============================================================================

// InsuranceRates returns global rows plus rows scoped to the tenant.
// The book performs window and precedence selection.
func (s *Store) InsuranceRates(ctx context.Context, companyID int64, insType model.InsuranceType, prefecture string) ([]model.InsuranceRate, error) {
	q := s.db.WithContext(ctx).
		Where("insurance_type = ?", insType).
		Where("company_id IS NULL OR company_id = ?", companyID)
	if prefecture != "" {
		q = q.Where("prefecture = ?", prefecture)
	}
	var rows []model.InsuranceRate
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load insurance rates: %w", err)
	}
	return rows, nil
}

// TaxBrackets returns the visible bracket rows of a table type.
func (s *Store) TaxBrackets(ctx context.Context, companyID int64, tableType model.TaxTableType) ([]model.IncomeTaxTable, error) {
	var rows []model.IncomeTaxTable
	err := s.db.WithContext(ctx).
		Where("table_type = ?", tableType).
		Where("company_id IS NULL OR company_id = ?", companyID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load tax brackets: %w", err)
	}
	return rows, nil
}

// CommuteLimits returns the visible limit rows of a commute method.
func (s *Store) CommuteLimits(ctx context.Context, companyID int64, method model.CommuteMethod) ([]model.CommuteTaxLimit, error) {
	var rows []model.CommuteTaxLimit
	err := s.db.WithContext(ctx).
		Where("commute_method = ?", method).
		Where("company_id IS NULL OR company_id = ?", companyID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load commute limits: %w", err)
	}
	return rows, nil
}

// =============================================================================
// CALCULATION MASTERS (calc.Masters)
// =============================================================================

// Attendance returns the month's record, or nil when none exists.
func (s *Store) Attendance(ctx context.Context, companyID, employeeID int64, ym model.YearMonth) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND employee_id = ? AND year_month = ?", companyID, employeeID, ym).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	return &rec, nil
}

// ActiveAllowances returns allowances overlapping the period whose type
// is active, with the type preloaded.
func (s *Store) ActiveAllowances(ctx context.Context, companyID, employeeID int64, period model.PayrollPeriod) ([]model.EmployeeAllowance, error) {
	var rows []model.EmployeeAllowance
	err := s.db.WithContext(ctx).
		Preload("AllowanceType").
		Joins("JOIN allowance_types ON allowance_types.id = employee_allowances.allowance_type_id").
		Where("employee_allowances.company_id = ? AND employee_allowances.employee_id = ?", companyID, employeeID).
		Where("allowance_types.is_active = ?", true).
		Where("employee_allowances.effective_from <= ?", period.EndDate).
		Where("employee_allowances.effective_to IS NULL OR employee_allowances.effective_to >= ?", period.StartDate).
		Order("employee_allowances.id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load allowances: %w", err)
	}
	return rows, nil
}

// ActiveCommute returns the commute detail covering the period, or nil.
// Greatest effective_from wins, then greatest id.
func (s *Store) ActiveCommute(ctx context.Context, companyID, employeeID int64, period model.PayrollPeriod) (*model.CommuteDetail, error) {
	var row model.CommuteDetail
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND employee_id = ?", companyID, employeeID).
		Where("effective_from <= ?", period.EndDate).
		Where("effective_to IS NULL OR effective_to >= ?", period.StartDate).
		Order("effective_from DESC").
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load commute detail: %w", err)
	}
	return &row, nil
}

// =============================================================================
// RATE MASTER MAINTENANCE
// =============================================================================

// CreateInsuranceRate inserts a rate row. Global rows (nil company)
// come from seeding; tenant rows from the settings screens.
func (s *Store) CreateInsuranceRate(ctx context.Context, r *model.InsuranceRate) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create insurance rate: %w", err)
	}
	return nil
}

// CreateTaxBracket inserts a withholding-table row.
func (s *Store) CreateTaxBracket(ctx context.Context, t *model.IncomeTaxTable) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create tax bracket: %w", err)
	}
	return nil
}

// CreateCommuteLimit inserts a commute non-taxable cap row.
func (s *Store) CreateCommuteLimit(ctx context.Context, l *model.CommuteTaxLimit) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("create commute limit: %w", err)
	}
	return nil
}
