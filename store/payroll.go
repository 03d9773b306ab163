package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// PAYROLL STORE (payroll.Store)
// =============================================================================

// GroupFor returns the group for the key, creating it when missing.
func (s *Store) GroupFor(ctx context.Context, companyID, employeeID, periodID int64) (*model.PayrollRecordGroup, error) {
	db := s.db.WithContext(ctx)
	var group model.PayrollRecordGroup
	err := db.Where("company_id = ? AND employee_id = ? AND period_id = ?", companyID, employeeID, periodID).
		First(&group).Error
	if err == nil {
		return &group, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load payroll group: %w", err)
	}

	group = model.PayrollRecordGroup{CompanyID: companyID, EmployeeID: employeeID, PeriodID: periodID}
	if err := db.Create(&group).Error; err != nil {
		return nil, fmt.Errorf("create payroll group: %w", err)
	}
	return &group, nil
}

// DraftRecord returns the group's draft record with items, or nil.
func (s *Store) DraftRecord(ctx context.Context, groupID int64) (*model.PayrollRecord, error) {
	var rec model.PayrollRecord
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("display_order") }).
		Where("group_id = ? AND status = ?", groupID, model.RecordDraft).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft record: %w", err)
	}
	return &rec, nil
}

// MaxVersion returns the highest version in the group, 0 when empty.
func (s *Store) MaxVersion(ctx context.Context, groupID int64) (int, error) {
	var max *int
	err := s.db.WithContext(ctx).
		Model(&model.PayrollRecord{}).
		Where("group_id = ?", groupID).
		Select("MAX(version)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("max version: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// Record returns one record with its items, tenant-scoped.
func (s *Store) Record(ctx context.Context, companyID, recordID int64) (*model.PayrollRecord, error) {
	var rec model.PayrollRecord
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("display_order") }).
		Where("company_id = ? AND id = ?", companyID, recordID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("payroll record", recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payroll record: %w", err)
	}
	return &rec, nil
}

// RecordsInGroup returns all records of a group, without items.
func (s *Store) RecordsInGroup(ctx context.Context, groupID int64) ([]model.PayrollRecord, error) {
	var recs []model.PayrollRecord
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("version").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load group records: %w", err)
	}
	return recs, nil
}

// CreateRecord inserts the record and its items. The partial unique
// index on (group_id) WHERE status='draft' turns a concurrent second
// draft into a Conflict.
func (s *Store) CreateRecord(ctx context.Context, rec *model.PayrollRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Conflictf("payroll record", "draft in group %d", rec.GroupID)
		}
		return fmt.Errorf("create payroll record: %w", err)
	}
	return nil
}

// TransitionRecord updates the status-transition fields only when the
// stored status still equals expected.
func (s *Store) TransitionRecord(ctx context.Context, rec *model.PayrollRecord, expected model.RecordStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.PayrollRecord{}).
		Where("id = ? AND status = ?", rec.ID, expected).
		Updates(map[string]any{
			"status":        rec.Status,
			"confirmed_at":  rec.ConfirmedAt,
			"confirmed_by":  rec.ConfirmedBy,
			"cancelled_at":  rec.CancelledAt,
			"cancelled_by":  rec.CancelledBy,
			"cancel_reason": rec.CancelReason,
		})
	if res.Error != nil {
		return false, fmt.Errorf("transition payroll record: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetCurrentRecord retargets the group pointer.
func (s *Store) SetCurrentRecord(ctx context.Context, groupID, recordID int64) error {
	res := s.db.WithContext(ctx).
		Model(&model.PayrollRecordGroup{}).
		Where("id = ?", groupID).
		Update("current_record_id", recordID)
	if res.Error != nil {
		return fmt.Errorf("set current record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("payroll record group", groupID)
	}
	return nil
}

// CreateSnapshot inserts the frozen payload. The unique index on
// record_id makes a second snapshot a Conflict.
func (s *Store) CreateSnapshot(ctx context.Context, snap *model.PayrollSnapshot) error {
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Conflictf("payroll snapshot", "record %d", snap.RecordID)
		}
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

// AppendHistory inserts an audit row.
func (s *Store) AppendHistory(ctx context.Context, h *model.PayrollHistory) error {
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("append payroll history: %w", err)
	}
	return nil
}

// HistoryForRecord returns the audit rows of one record, oldest first.
func (s *Store) HistoryForRecord(ctx context.Context, companyID, recordID int64) ([]model.PayrollHistory, error) {
	var rows []model.PayrollHistory
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND record_id = ?", companyID, recordID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load payroll history: %w", err)
	}
	return rows, nil
}

// Snapshot returns the frozen payload of a confirmed record.
func (s *Store) Snapshot(ctx context.Context, companyID, recordID int64) (*model.PayrollSnapshot, error) {
	var snap model.PayrollSnapshot
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND record_id = ?", companyID, recordID).
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("payroll snapshot", recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}

// ConfirmedRecordsInPeriod returns confirmed records with items for
// the exports, ordered by employee code via a join.
func (s *Store) ConfirmedRecordsInPeriod(ctx context.Context, companyID, periodID int64) ([]model.PayrollRecord, error) {
	var recs []model.PayrollRecord
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("display_order") }).
		Joins("JOIN employees ON employees.id = payroll_records.employee_id").
		Where("payroll_records.company_id = ? AND payroll_records.period_id = ? AND payroll_records.status = ?",
			companyID, periodID, model.RecordConfirmed).
		Order("employees.employee_code").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load confirmed records: %w", err)
	}
	return recs, nil
}

// RecordsInPeriod returns all records of a period regardless of
// status, for the monthly summary.
func (s *Store) RecordsInPeriod(ctx context.Context, companyID, periodID int64) ([]model.PayrollRecord, error) {
	var recs []model.PayrollRecord
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND period_id = ?", companyID, periodID).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load period records: %w", err)
	}
	return recs, nil
}

// CreateBankTransferExport records one generated Zengin file.
func (s *Store) CreateBankTransferExport(ctx context.Context, exp *model.BankTransferExport) error {
	if err := s.db.WithContext(ctx).Create(exp).Error; err != nil {
		return fmt.Errorf("create bank transfer export: %w", err)
	}
	return nil
}

// isUniqueViolation matches unique-constraint errors across the
// postgres and sqlite drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
