/*
Package payroll implements the payroll record state machine.

PURPOSE:
  Drives the draft -> confirmed -> cancelled lifecycle of payroll
  records, grouped per (company, employee, period). Cancellation forks
  a fresh draft into the same group at the next version, so the full
  version chain stays append-only.

INVARIANTS (verified at commit):
  1. Versions within a group are dense and monotone from 1.
  2. At most one record per group is draft at any time.
  3. total_earnings / total_deductions / net_pay equal the item sums.
  4. group.current_record points at the newest non-cancelled record.
  5. A snapshot is written exactly when a record is confirmed and is
     never updated afterwards.

CONCURRENCY:
  Status transitions use a conditional update (status = expected);
  zero rows affected means a concurrent transition won and the caller
  gets InvalidState. Everything inside one operation runs in a single
  transaction.
*/
package payroll

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kyuyo/payroll-engine/calc"
	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence the state machine needs. Implementations
// must make InTx transactional: either every write inside fn commits
// or none do.
type Store interface {
	// InTx runs fn inside one transaction, passing a Store bound to it.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// GroupFor returns the group for the key, creating it when missing.
	GroupFor(ctx context.Context, companyID, employeeID, periodID int64) (*model.PayrollRecordGroup, error)

	// DraftRecord returns the group's draft record with items, or nil.
	DraftRecord(ctx context.Context, groupID int64) (*model.PayrollRecord, error)

	// MaxVersion returns the highest version in the group, 0 when empty.
	MaxVersion(ctx context.Context, groupID int64) (int, error)

	// Record returns one record with its items, tenant-scoped.
	Record(ctx context.Context, companyID, recordID int64) (*model.PayrollRecord, error)

	// RecordsInGroup returns all records of a group, without items.
	RecordsInGroup(ctx context.Context, groupID int64) ([]model.PayrollRecord, error)

	// CreateRecord inserts the record and its items, assigning ids.
	CreateRecord(ctx context.Context, rec *model.PayrollRecord) error

	// TransitionRecord persists rec's status and transition fields only
	// when the stored status still equals expected. Returns false when
	// zero rows matched.
	TransitionRecord(ctx context.Context, rec *model.PayrollRecord, expected model.RecordStatus) (bool, error)

	// SetCurrentRecord retargets the group pointer.
	SetCurrentRecord(ctx context.Context, groupID, recordID int64) error

	// CreateSnapshot inserts the frozen payload. Fails with Conflict
	// when the record already has one.
	CreateSnapshot(ctx context.Context, snap *model.PayrollSnapshot) error

	// AppendHistory inserts an audit row.
	AppendHistory(ctx context.Context, h *model.PayrollHistory) error
}

// =============================================================================
// SERVICE
// =============================================================================

// Service exposes the state-machine operations.
type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewService builds the state machine over a store.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// CreateFromCalculation persists a calculation result as a new draft in
// the employee-period group. Idempotent at the group level: when a
// draft already exists it is returned unchanged and created is false.
func (s *Service) CreateFromCalculation(ctx context.Context, actor model.Actor, employeeID int64, period model.PayrollPeriod, res *calc.CalcResult) (rec *model.PayrollRecord, created bool, err error) {
	err = s.store.InTx(ctx, func(tx Store) error {
		group, err := tx.GroupFor(ctx, actor.CompanyID, employeeID, period.ID)
		if err != nil {
			return err
		}

		if existing, err := tx.DraftRecord(ctx, group.ID); err != nil {
			return err
		} else if existing != nil {
			rec = existing
			return nil
		}

		maxVer, err := tx.MaxVersion(ctx, group.ID)
		if err != nil {
			return err
		}

		newRec := &model.PayrollRecord{
			CompanyID:          actor.CompanyID,
			GroupID:            group.ID,
			EmployeeID:         employeeID,
			PeriodID:           period.ID,
			Version:            maxVer + 1,
			Status:             model.RecordDraft,
			PaymentDate:        period.PaymentDate,
			TotalEarnings:      res.TotalEarnings,
			TotalDeductions:    res.TotalDeductions,
			NetPay:             res.NetPay,
			CalculationDetails: &res.Details,
		}
		for _, it := range res.Items {
			newRec.Items = append(newRec.Items, model.PayrollRecordItem{
				ItemType:     it.ItemType,
				ItemCode:     it.ItemCode,
				ItemName:     it.ItemName,
				Amount:       it.Amount,
				IsTaxable:    it.IsTaxable,
				DisplayOrder: it.DisplayOrder,
			})
		}
		if err := verifyTotals(newRec); err != nil {
			return err
		}
		if err := tx.CreateRecord(ctx, newRec); err != nil {
			return err
		}
		if err := tx.SetCurrentRecord(ctx, group.ID, newRec.ID); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &model.PayrollHistory{
			CompanyID: actor.CompanyID,
			RecordID:  newRec.ID,
			Action:    model.ActionCalculated,
			NewValues: recordValues(newRec),
			ActorID:   actor.UserID,
		}); err != nil {
			return err
		}
		if err := verifyGroup(ctx, tx, group.ID); err != nil {
			return err
		}

		rec = newRec
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info().
			Int64("record_id", rec.ID).
			Int64("employee_id", employeeID).
			Int("version", rec.Version).
			Msg("payroll draft created")
	}
	return rec, created, nil
}

// Confirm transitions a draft to confirmed and freezes a snapshot.
func (s *Service) Confirm(ctx context.Context, actor model.Actor, recordID int64) (*model.PayrollRecord, error) {
	var confirmed *model.PayrollRecord
	err := s.store.InTx(ctx, func(tx Store) error {
		rec, err := tx.Record(ctx, actor.CompanyID, recordID)
		if err != nil {
			return err
		}
		if rec.Status != model.RecordDraft {
			return errs.InvalidStatef(string(model.RecordDraft), string(rec.Status))
		}
		if err := verifyTotals(rec); err != nil {
			return err
		}

		now := s.now()
		rec.Status = model.RecordConfirmed
		rec.ConfirmedAt = &now
		rec.ConfirmedBy = &actor.UserID
		ok, err := tx.TransitionRecord(ctx, rec, model.RecordDraft)
		if err != nil {
			return err
		}
		if !ok {
			return errs.InvalidStatef(string(model.RecordDraft), "concurrently changed")
		}

		if err := tx.CreateSnapshot(ctx, &model.PayrollSnapshot{
			CompanyID: actor.CompanyID,
			RecordID:  rec.ID,
			Data:      buildSnapshot(rec, now, actor.UserID),
		}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &model.PayrollHistory{
			CompanyID: actor.CompanyID,
			RecordID:  rec.ID,
			Action:    model.ActionConfirmed,
			OldValues: model.JSONMap{"status": string(model.RecordDraft)},
			NewValues: recordValues(rec),
			ActorID:   actor.UserID,
		}); err != nil {
			return err
		}
		confirmed = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("record_id", recordID).Msg("payroll record confirmed")
	return confirmed, nil
}

// Cancel transitions a confirmed record to cancelled and forks a new
// draft with identical items into the same group at version+1.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, recordID int64, reason string) (cancelled, fork *model.PayrollRecord, err error) {
	if reason == "" {
		return nil, nil, errs.Validationf("reason", "required")
	}
	err = s.store.InTx(ctx, func(tx Store) error {
		rec, err := tx.Record(ctx, actor.CompanyID, recordID)
		if err != nil {
			return err
		}
		if rec.Status != model.RecordConfirmed {
			return errs.InvalidStatef(string(model.RecordConfirmed), string(rec.Status))
		}

		now := s.now()
		rec.Status = model.RecordCancelled
		rec.CancelledAt = &now
		rec.CancelledBy = &actor.UserID
		rec.CancelReason = reason
		ok, err := tx.TransitionRecord(ctx, rec, model.RecordConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			return errs.InvalidStatef(string(model.RecordConfirmed), "concurrently changed")
		}

		maxVer, err := tx.MaxVersion(ctx, rec.GroupID)
		if err != nil {
			return err
		}
		newRec := &model.PayrollRecord{
			CompanyID:          rec.CompanyID,
			GroupID:            rec.GroupID,
			EmployeeID:         rec.EmployeeID,
			PeriodID:           rec.PeriodID,
			Version:            maxVer + 1,
			Status:             model.RecordDraft,
			PaymentDate:        rec.PaymentDate,
			TotalEarnings:      rec.TotalEarnings,
			TotalDeductions:    rec.TotalDeductions,
			NetPay:             rec.NetPay,
			CalculationDetails: rec.CalculationDetails,
		}
		for _, it := range rec.Items {
			newRec.Items = append(newRec.Items, model.PayrollRecordItem{
				ItemType:     it.ItemType,
				ItemCode:     it.ItemCode,
				ItemName:     it.ItemName,
				Amount:       it.Amount,
				IsTaxable:    it.IsTaxable,
				DisplayOrder: it.DisplayOrder,
			})
		}
		if err := tx.CreateRecord(ctx, newRec); err != nil {
			return err
		}
		if err := tx.SetCurrentRecord(ctx, rec.GroupID, newRec.ID); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &model.PayrollHistory{
			CompanyID: actor.CompanyID,
			RecordID:  rec.ID,
			Action:    model.ActionCancelled,
			OldValues: model.JSONMap{"status": string(model.RecordConfirmed)},
			NewValues: model.JSONMap{"status": string(model.RecordCancelled)},
			Reason:    reason,
			ActorID:   actor.UserID,
		}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &model.PayrollHistory{
			CompanyID:      actor.CompanyID,
			RecordID:       newRec.ID,
			Action:         model.ActionCreatedFromCxl,
			SourceRecordID: &rec.ID,
			NewValues:      model.JSONMap{"source_record_id": rec.ID, "version": newRec.Version},
			ActorID:        actor.UserID,
		}); err != nil {
			return err
		}
		if err := verifyGroup(ctx, tx, rec.GroupID); err != nil {
			return err
		}

		cancelled, fork = rec, newRec
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().
		Int64("cancelled_id", cancelled.ID).
		Int64("fork_id", fork.ID).
		Str("reason", reason).
		Msg("payroll record cancelled, draft forked")
	return cancelled, fork, nil
}

// =============================================================================
// INVARIANT CHECKS
// =============================================================================

// verifyTotals checks invariant 3. Violation is fatal and rolls back.
func verifyTotals(rec *model.PayrollRecord) error {
	var earnings, deductions int64
	for i := range rec.Items {
		it := &rec.Items[i]
		if it.Amount < 0 {
			return errs.Internalf("record %d: negative item %s", rec.ID, it.ItemCode)
		}
		switch it.ItemType {
		case model.ItemEarning:
			earnings += it.Amount
		case model.ItemDeduction:
			deductions += it.Amount
		default:
			return errs.Internalf("record %d: unknown item type %q", rec.ID, it.ItemType)
		}
	}
	if rec.TotalEarnings != earnings || rec.TotalDeductions != deductions || rec.NetPay != earnings-deductions {
		return errs.Internalf("record %d: totals diverge from items (%d/%d/%d vs %d/%d/%d)",
			rec.ID, rec.TotalEarnings, rec.TotalDeductions, rec.NetPay, earnings, deductions, earnings-deductions)
	}
	return nil
}

// verifyGroup checks invariants 1 and 2 over the whole group.
func verifyGroup(ctx context.Context, tx Store, groupID int64) error {
	records, err := tx.RecordsInGroup(ctx, groupID)
	if err != nil {
		return err
	}
	seen := make(map[int]bool, len(records))
	drafts := 0
	for i := range records {
		r := &records[i]
		if r.Version < 1 || seen[r.Version] {
			return errs.Internalf("group %d: version %d invalid or duplicated", groupID, r.Version)
		}
		seen[r.Version] = true
		if r.Status == model.RecordDraft {
			drafts++
		}
	}
	for v := 1; v <= len(records); v++ {
		if !seen[v] {
			return errs.Internalf("group %d: version chain has a gap at %d", groupID, v)
		}
	}
	if drafts > 1 {
		return errs.Internalf("group %d: %d draft records", groupID, drafts)
	}
	return nil
}

// buildSnapshot freezes the record header and items.
func buildSnapshot(rec *model.PayrollRecord, at time.Time, by int64) model.SnapshotData {
	snap := model.SnapshotData{
		Record: model.SnapshotRecord{
			RecordID:           rec.ID,
			EmployeeID:         rec.EmployeeID,
			Version:            rec.Version,
			PaymentDate:        rec.PaymentDate.Format("2006-01-02"),
			TotalEarnings:      rec.TotalEarnings,
			TotalDeductions:    rec.TotalDeductions,
			NetPay:             rec.NetPay,
			CalculationDetails: rec.CalculationDetails,
		},
		ConfirmedAt: at.Format(time.RFC3339),
		ConfirmedBy: by,
	}
	for i := range rec.Items {
		it := &rec.Items[i]
		snap.Items = append(snap.Items, model.SnapshotItem{
			ItemType:  it.ItemType,
			ItemCode:  it.ItemCode,
			ItemName:  it.ItemName,
			Amount:    it.Amount,
			IsTaxable: it.IsTaxable,
		})
	}
	return snap
}

func recordValues(rec *model.PayrollRecord) model.JSONMap {
	return model.JSONMap{
		"status":           string(rec.Status),
		"version":          rec.Version,
		"total_earnings":   rec.TotalEarnings,
		"total_deductions": rec.TotalDeductions,
		"net_pay":          rec.NetPay,
	}
}
