package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// COMPANIES AND USERS
// =============================================================================

func (s *Store) CreateCompany(ctx context.Context, c *model.Company) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create company: %w", err)
	}
	return nil
}

func (s *Store) Company(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("company", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	return &c, nil
}

func (s *Store) Companies(ctx context.Context) ([]model.Company, error) {
	var out []model.Company
	err := s.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return out, nil
}

func (s *Store) SaveCompany(ctx context.Context, c *model.Company) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("save company: %w", err)
	}
	return nil
}

// SoftDeleteCompany marks the tenant deleted; rows stay for audit.
func (s *Store) SoftDeleteCompany(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).
		Model(&model.Company{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "deleted_at": gorm.Expr("CURRENT_TIMESTAMP")})
	if res.Error != nil {
		return fmt.Errorf("delete company: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("company", id)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Conflictf("user", "username or email taken")
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).
		Where("username = ? AND is_active = ?", username, true).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

func (s *Store) User(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

// TouchLastLogin stamps a successful authentication.
func (s *Store) TouchLastLogin(ctx context.Context, userID int64) error {
	err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_login_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) CreateEmployee(ctx context.Context, e *model.Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Conflictf("employee", "code %s", e.EmployeeCode)
		}
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

func (s *Store) Employee(ctx context.Context, companyID, id int64) (*model.Employee, error) {
	var e model.Employee
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND id = ? AND is_deleted = ?", companyID, id, false).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	return &e, nil
}

// EmployeeByUser resolves the employee record linked to a user account,
// or nil when the user is staff-only.
func (s *Store) EmployeeByUser(ctx context.Context, companyID, userID int64) (*model.Employee, error) {
	var e model.Employee
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND user_id = ? AND is_deleted = ?", companyID, userID, false).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load employee by user: %w", err)
	}
	return &e, nil
}

func (s *Store) Employees(ctx context.Context, companyID int64) ([]model.Employee, error) {
	var out []model.Employee
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND is_deleted = ?", companyID, false).
		Order("employee_code").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return out, nil
}

func (s *Store) SaveEmployee(ctx context.Context, e *model.Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(e).Error; err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

// SoftDeleteEmployee keeps the row and its code reserved.
func (s *Store) SoftDeleteEmployee(ctx context.Context, companyID, id int64) error {
	res := s.db.WithContext(ctx).
		Model(&model.Employee{}).
		Where("company_id = ? AND id = ? AND is_deleted = ?", companyID, id, false).
		Updates(map[string]any{"is_deleted": true, "deleted_at": gorm.Expr("CURRENT_TIMESTAMP")})
	if res.Error != nil {
		return fmt.Errorf("delete employee: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("employee", id)
	}
	return nil
}

// =============================================================================
// ALLOWANCES AND COMMUTE
// =============================================================================

func (s *Store) CreateAllowanceType(ctx context.Context, at *model.AllowanceType) error {
	if err := s.db.WithContext(ctx).Create(at).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Conflictf("allowance type", "code %s", at.Code)
		}
		return fmt.Errorf("create allowance type: %w", err)
	}
	return nil
}

func (s *Store) AllowanceTypes(ctx context.Context, companyID int64) ([]model.AllowanceType, error) {
	var out []model.AllowanceType
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("code").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list allowance types: %w", err)
	}
	return out, nil
}

func (s *Store) SaveAllowanceType(ctx context.Context, at *model.AllowanceType) error {
	if err := s.db.WithContext(ctx).Save(at).Error; err != nil {
		return fmt.Errorf("save allowance type: %w", err)
	}
	return nil
}

func (s *Store) CreateEmployeeAllowance(ctx context.Context, a *model.EmployeeAllowance) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create employee allowance: %w", err)
	}
	return nil
}

func (s *Store) EmployeeAllowances(ctx context.Context, companyID, employeeID int64) ([]model.EmployeeAllowance, error) {
	var out []model.EmployeeAllowance
	err := s.db.WithContext(ctx).
		Preload("AllowanceType").
		Where("company_id = ? AND employee_id = ?", companyID, employeeID).
		Order("effective_from").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list employee allowances: %w", err)
	}
	return out, nil
}

func (s *Store) CreateCommuteDetail(ctx context.Context, c *model.CommuteDetail) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create commute detail: %w", err)
	}
	return nil
}

func (s *Store) CommuteDetails(ctx context.Context, companyID, employeeID int64) ([]model.CommuteDetail, error) {
	var out []model.CommuteDetail
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND employee_id = ?", companyID, employeeID).
		Order("effective_from").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list commute details: %w", err)
	}
	return out, nil
}

// =============================================================================
// ATTENDANCE AND PERIODS
// =============================================================================

// UpsertAttendance writes the monthly record, replacing an existing row
// for the same (employee, year_month).
func (s *Store) UpsertAttendance(ctx context.Context, rec *model.AttendanceRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "employee_id"}, {Name: "year_month"}},
			UpdateAll: true,
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

func (s *Store) AttendanceForMonth(ctx context.Context, companyID int64, ym model.YearMonth) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND year_month = ?", companyID, ym).
		Order("employee_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return out, nil
}

// EnsurePeriod returns the period for the month, deriving and storing
// it from the company calendar when missing.
func (s *Store) EnsurePeriod(ctx context.Context, c *model.Company, ym model.YearMonth) (*model.PayrollPeriod, error) {
	var p model.PayrollPeriod
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND year_month = ? AND period_type = ?", c.ID, ym, model.PeriodMonthly).
		First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load payroll period: %w", err)
	}

	p = model.PeriodForMonth(c, ym)
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		if isUniqueViolation(err) {
			// Concurrent creation: re-read the winner.
			if err2 := s.db.WithContext(ctx).
				Where("company_id = ? AND year_month = ? AND period_type = ?", c.ID, ym, model.PeriodMonthly).
				First(&p).Error; err2 == nil {
				return &p, nil
			}
		}
		return nil, fmt.Errorf("create payroll period: %w", err)
	}
	return &p, nil
}

func (s *Store) Period(ctx context.Context, companyID, id int64) (*model.PayrollPeriod, error) {
	var p model.PayrollPeriod
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("payroll period", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load payroll period: %w", err)
	}
	return &p, nil
}

func (s *Store) Periods(ctx context.Context, companyID int64) ([]model.PayrollPeriod, error) {
	var out []model.PayrollPeriod
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("year_month DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list payroll periods: %w", err)
	}
	return out, nil
}

// =============================================================================
// ACCOUNTING MAPPINGS
// =============================================================================

func (s *Store) AccountingMappings(ctx context.Context, companyID int64) ([]model.AccountingMapping, error) {
	var out []model.AccountingMapping
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("item_type, item_code").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list accounting mappings: %w", err)
	}
	return out, nil
}

// UpsertAccountingMapping writes one route, replacing an existing
// mapping for the same (item_type, item_code).
func (s *Store) UpsertAccountingMapping(ctx context.Context, m *model.AccountingMapping) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "company_id"}, {Name: "item_type"}, {Name: "item_code"}},
			UpdateAll: true,
		}).
		Create(m).Error
	if err != nil {
		return fmt.Errorf("upsert accounting mapping: %w", err)
	}
	return nil
}
