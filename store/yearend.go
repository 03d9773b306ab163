package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// YEAR-END STORE (yearend.Store)
// =============================================================================

func (y yearEndStore) Adjustment(ctx context.Context, companyID, id int64) (*model.YearEndAdjustment, error) {
	var adj model.YearEndAdjustment
	err := y.s.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&adj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("year-end adjustment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load adjustment: %w", err)
	}
	return &adj, nil
}

func (y yearEndStore) AdjustmentByYear(ctx context.Context, companyID, employeeID int64, year int) (*model.YearEndAdjustment, error) {
	var adj model.YearEndAdjustment
	err := y.s.db.WithContext(ctx).
		Where("company_id = ? AND employee_id = ? AND target_year = ?", companyID, employeeID, year).
		First(&adj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load adjustment by year: %w", err)
	}
	return &adj, nil
}

func (y yearEndStore) CreateAdjustment(ctx context.Context, adj *model.YearEndAdjustment) error {
	if err := y.s.db.WithContext(ctx).Create(adj).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Conflictf("year-end adjustment", "employee %d year %d", adj.EmployeeID, adj.TargetYear)
		}
		return fmt.Errorf("create adjustment: %w", err)
	}
	return nil
}

// SaveAdjustment writes all mutable fields, guarded on the expected
// status. Select forces zero values through gorm's update.
func (y yearEndStore) SaveAdjustment(ctx context.Context, adj *model.YearEndAdjustment, expected model.AdjustmentStatus) (bool, error) {
	res := y.s.db.WithContext(ctx).
		Model(&model.YearEndAdjustment{}).
		Where("id = ? AND status = ?", adj.ID, expected).
		Select(
			"status",
			"basic_deduction", "spouse_deduction", "dependent_deduction",
			"disability_deduction", "widow_deduction", "working_student_deduction",
			"social_insurance_premium", "small_business_mutual_aid",
			"life_insurance_premium", "earthquake_insurance_premium",
			"housing_loan_deduction",
			"annual_income", "annual_withheld_tax", "annual_calculated_tax",
			"adjustment_amount",
			"submitted_at", "approved_at", "approved_by",
			"confirmed_at", "confirmed_by", "returned_at", "return_reason",
		).
		Updates(adj)
	if res.Error != nil {
		return false, fmt.Errorf("save adjustment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (y yearEndStore) Employee(ctx context.Context, companyID, employeeID int64) (*model.Employee, error) {
	return y.s.Employee(ctx, companyID, employeeID)
}

func (y yearEndStore) CreateSlip(ctx context.Context, slip *model.WithholdingSlip) error {
	if err := y.s.db.WithContext(ctx).Create(slip).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Conflictf("withholding slip", "adjustment %d", slip.AdjustmentID)
		}
		return fmt.Errorf("create withholding slip: %w", err)
	}
	return nil
}

func (y yearEndStore) AppendHistory(ctx context.Context, h *model.YearEndHistory) error {
	if err := y.s.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("append year-end history: %w", err)
	}
	return nil
}

// =============================================================================
// QUERIES BEYOND THE WORKFLOW INTERFACE
// =============================================================================

// AdjustmentsByYear lists a company's adjustments for one target year,
// optionally narrowed to a single employee.
func (s *Store) AdjustmentsByYear(ctx context.Context, companyID int64, year int, employeeID *int64) ([]model.YearEndAdjustment, error) {
	q := s.db.WithContext(ctx).
		Where("company_id = ? AND target_year = ?", companyID, year)
	if employeeID != nil {
		q = q.Where("employee_id = ?", *employeeID)
	}
	var out []model.YearEndAdjustment
	if err := q.Order("employee_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return out, nil
}

// AdjustmentHistory returns the audit rows of one adjustment, oldest
// first.
func (s *Store) AdjustmentHistory(ctx context.Context, companyID, adjustmentID int64) ([]model.YearEndHistory, error) {
	var rows []model.YearEndHistory
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND adjustment_id = ?", companyID, adjustmentID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load year-end history: %w", err)
	}
	return rows, nil
}

// SlipForAdjustment returns the generated slip of an adjustment.
func (s *Store) SlipForAdjustment(ctx context.Context, companyID, adjustmentID int64) (*model.WithholdingSlip, error) {
	var slip model.WithholdingSlip
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND adjustment_id = ?", companyID, adjustmentID).
		First(&slip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("withholding slip", adjustmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load withholding slip: %w", err)
	}
	return &slip, nil
}

// CreateCertificate stores metadata for an uploaded deduction
// certificate.
func (s *Store) CreateCertificate(ctx context.Context, cert *model.DeductionCertificate) error {
	if err := s.db.WithContext(ctx).Create(cert).Error; err != nil {
		return fmt.Errorf("create deduction certificate: %w", err)
	}
	return nil
}

// CertificatesForAdjustment lists the uploaded certificates of one
// adjustment.
func (s *Store) CertificatesForAdjustment(ctx context.Context, companyID, adjustmentID int64) ([]model.DeductionCertificate, error) {
	var out []model.DeductionCertificate
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND adjustment_id = ?", companyID, adjustmentID).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list deduction certificates: %w", err)
	}
	return out, nil
}
