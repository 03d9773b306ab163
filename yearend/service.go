/*
Package yearend implements the year-end adjustment (年末調整) workflow.

PURPOSE:
  Drives the adjustment lifecycle:

    draft -> submitted -> approved -> confirmed
               |
               v
            returned -> submitted (resubmission)

  Confirmation computes adjustment_amount = annual_calculated_tax -
  annual_withheld_tax (negative = refund). A confirmed adjustment can
  generate exactly one withholding slip.

VISIBILITY:
  Non-admin actors may only touch adjustments for their own employee
  identity. Every transition appends a history row.
*/
package yearend

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence the workflow needs.
type Store interface {
	// InTx runs fn inside one transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Adjustment returns one adjustment, tenant-scoped.
	Adjustment(ctx context.Context, companyID, id int64) (*model.YearEndAdjustment, error)

	// AdjustmentByYear returns the unique adjustment for the employee
	// and year, or nil.
	AdjustmentByYear(ctx context.Context, companyID, employeeID int64, year int) (*model.YearEndAdjustment, error)

	// CreateAdjustment inserts a new adjustment, assigning its id.
	CreateAdjustment(ctx context.Context, adj *model.YearEndAdjustment) error

	// SaveAdjustment persists field changes only when the stored status
	// still equals expected. Returns false when zero rows matched.
	SaveAdjustment(ctx context.Context, adj *model.YearEndAdjustment, expected model.AdjustmentStatus) (bool, error)

	// Employee loads the employee master for slip generation.
	Employee(ctx context.Context, companyID, employeeID int64) (*model.Employee, error)

	// CreateSlip inserts the withholding slip. Fails with Conflict when
	// the adjustment already has one.
	CreateSlip(ctx context.Context, slip *model.WithholdingSlip) error

	// AppendHistory inserts an audit row.
	AppendHistory(ctx context.Context, h *model.YearEndHistory) error
}

// =============================================================================
// SERVICE
// =============================================================================

// Patch is the set of fields Update may change while the adjustment is
// editable. Nil pointers leave the stored value alone.
type Patch struct {
	BasicDeduction             *int64
	SpouseDeduction            *int64
	DependentDeduction         *int64
	DisabilityDeduction        *int64
	WidowDeduction             *int64
	WorkingStudentDeduction    *int64
	SocialInsurancePremium     *int64
	SmallBusinessMutualAid     *int64
	LifeInsurancePremium       *int64
	EarthquakeInsurancePremium *int64
	HousingLoanDeduction       *int64

	AnnualIncome        *int64
	AnnualWithheldTax   *int64
	AnnualCalculatedTax *int64
}

// Service exposes the workflow operations.
type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewService builds the workflow over a store.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// checkVisibility rejects non-admin access to other employees' data.
func checkVisibility(actor model.Actor, employeeID int64) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.EmployeeID == 0 || actor.EmployeeID != employeeID {
		return errs.ErrPermissionDenied
	}
	return nil
}

// Create opens a new draft adjustment, unique per (employee, year).
func (s *Service) Create(ctx context.Context, actor model.Actor, employeeID int64, year int, initial Patch) (*model.YearEndAdjustment, error) {
	if err := checkVisibility(actor, employeeID); err != nil {
		return nil, err
	}
	if year < 2000 || year > 2100 {
		return nil, errs.Validationf("target_year", "out of range: %d", year)
	}

	var adj *model.YearEndAdjustment
	err := s.store.InTx(ctx, func(tx Store) error {
		existing, err := tx.AdjustmentByYear(ctx, actor.CompanyID, employeeID, year)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.Conflictf("year-end adjustment", "employee %d year %d", employeeID, year)
		}

		adj = &model.YearEndAdjustment{
			CompanyID:  actor.CompanyID,
			EmployeeID: employeeID,
			TargetYear: year,
			Status:     model.AdjustmentDraft,
		}
		applyPatch(adj, initial)
		if err := tx.CreateAdjustment(ctx, adj); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, &model.YearEndHistory{
			CompanyID:    actor.CompanyID,
			AdjustmentID: adj.ID,
			Action:       model.ActionCreated,
			NewValues:    model.JSONMap{"status": string(model.AdjustmentDraft), "target_year": year},
			ActorID:      actor.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	return adj, nil
}

// Update patches fields. Allowed only while status is draft or
// returned.
func (s *Service) Update(ctx context.Context, actor model.Actor, id int64, patch Patch) (*model.YearEndAdjustment, error) {
	var updated *model.YearEndAdjustment
	err := s.store.InTx(ctx, func(tx Store) error {
		adj, err := tx.Adjustment(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if err := checkVisibility(actor, adj.EmployeeID); err != nil {
			return err
		}
		if adj.Status != model.AdjustmentDraft && adj.Status != model.AdjustmentReturned {
			return errs.InvalidStatef("draft or returned", string(adj.Status))
		}
		applyPatch(adj, patch)
		ok, err := tx.SaveAdjustment(ctx, adj, adj.Status)
		if err != nil {
			return err
		}
		if !ok {
			return errs.InvalidStatef(string(adj.Status), "concurrently changed")
		}
		updated = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Submit moves draft or returned to submitted.
func (s *Service) Submit(ctx context.Context, actor model.Actor, id int64) (*model.YearEndAdjustment, error) {
	return s.transition(ctx, actor, id, "submit", func(adj *model.YearEndAdjustment) (model.HistoryAction, error) {
		if adj.Status != model.AdjustmentDraft && adj.Status != model.AdjustmentReturned {
			return "", errs.InvalidStatef("draft or returned", string(adj.Status))
		}
		if err := checkVisibility(actor, adj.EmployeeID); err != nil {
			return "", err
		}
		now := s.now()
		adj.Status = model.AdjustmentSubmitted
		adj.SubmittedAt = &now
		return model.ActionSubmitted, nil
	}, "")
}

// Approve moves submitted to approved. Admin only.
func (s *Service) Approve(ctx context.Context, actor model.Actor, id int64) (*model.YearEndAdjustment, error) {
	if !actor.IsAdmin() {
		return nil, errs.ErrPermissionDenied
	}
	return s.transition(ctx, actor, id, "approve", func(adj *model.YearEndAdjustment) (model.HistoryAction, error) {
		if adj.Status != model.AdjustmentSubmitted {
			return "", errs.InvalidStatef(string(model.AdjustmentSubmitted), string(adj.Status))
		}
		now := s.now()
		adj.Status = model.AdjustmentApproved
		adj.ApprovedAt = &now
		adj.ApprovedBy = &actor.UserID
		return model.ActionApproved, nil
	}, "")
}

// Return sends a submitted adjustment back to the employee with a
// reason. Admin only.
func (s *Service) Return(ctx context.Context, actor model.Actor, id int64, reason string) (*model.YearEndAdjustment, error) {
	if !actor.IsAdmin() {
		return nil, errs.ErrPermissionDenied
	}
	if reason == "" {
		return nil, errs.Validationf("reason", "required")
	}
	return s.transition(ctx, actor, id, "return", func(adj *model.YearEndAdjustment) (model.HistoryAction, error) {
		if adj.Status != model.AdjustmentSubmitted {
			return "", errs.InvalidStatef(string(model.AdjustmentSubmitted), string(adj.Status))
		}
		now := s.now()
		adj.Status = model.AdjustmentReturned
		adj.ReturnedAt = &now
		adj.ReturnReason = reason
		return model.ActionReturned, nil
	}, reason)
}

// Confirm finalizes an approved adjustment: requires both annual tax
// figures and computes the adjustment amount. Admin only.
func (s *Service) Confirm(ctx context.Context, actor model.Actor, id int64) (*model.YearEndAdjustment, error) {
	if !actor.IsAdmin() {
		return nil, errs.ErrPermissionDenied
	}
	return s.transition(ctx, actor, id, "confirm", func(adj *model.YearEndAdjustment) (model.HistoryAction, error) {
		if adj.Status != model.AdjustmentApproved {
			return "", errs.InvalidStatef(string(model.AdjustmentApproved), string(adj.Status))
		}
		if adj.AnnualCalculatedTax == nil || adj.AnnualWithheldTax == nil {
			return "", errs.Validationf("annual_calculated_tax", "annual tax figures must be set before confirmation")
		}
		now := s.now()
		amount := *adj.AnnualCalculatedTax - *adj.AnnualWithheldTax
		adj.AdjustmentAmount = &amount
		adj.Status = model.AdjustmentConfirmed
		adj.ConfirmedAt = &now
		adj.ConfirmedBy = &actor.UserID
		return model.ActionConfirmed, nil
	}, "")
}

// GenerateWithholdingSlip builds and stores the frozen slip payload.
// Only on confirmed adjustments, at most once.
func (s *Service) GenerateWithholdingSlip(ctx context.Context, actor model.Actor, id int64) (*model.WithholdingSlip, error) {
	var slip *model.WithholdingSlip
	err := s.store.InTx(ctx, func(tx Store) error {
		adj, err := tx.Adjustment(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if err := checkVisibility(actor, adj.EmployeeID); err != nil {
			return err
		}
		if adj.Status != model.AdjustmentConfirmed {
			return errs.InvalidStatef(string(model.AdjustmentConfirmed), string(adj.Status))
		}
		emp, err := tx.Employee(ctx, actor.CompanyID, adj.EmployeeID)
		if err != nil {
			return err
		}

		slip = &model.WithholdingSlip{
			CompanyID:    adj.CompanyID,
			AdjustmentID: adj.ID,
			EmployeeID:   adj.EmployeeID,
			TargetYear:   adj.TargetYear,
			Data:         buildSlip(adj, emp),
			GeneratedBy:  actor.UserID,
		}
		if err := tx.CreateSlip(ctx, slip); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, &model.YearEndHistory{
			CompanyID:    adj.CompanyID,
			AdjustmentID: adj.ID,
			Action:       model.ActionSlipGenerated,
			NewValues:    model.JSONMap{"slip_id": slip.ID},
			ActorID:      actor.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("adjustment_id", id).Int64("slip_id", slip.ID).Msg("withholding slip generated")
	return slip, nil
}

// transition runs one guarded status change with its history row.
func (s *Service) transition(ctx context.Context, actor model.Actor, id int64, name string, apply func(*model.YearEndAdjustment) (model.HistoryAction, error), reason string) (*model.YearEndAdjustment, error) {
	var out *model.YearEndAdjustment
	err := s.store.InTx(ctx, func(tx Store) error {
		adj, err := tx.Adjustment(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		oldStatus := adj.Status
		action, err := apply(adj)
		if err != nil {
			return err
		}
		ok, err := tx.SaveAdjustment(ctx, adj, oldStatus)
		if err != nil {
			return err
		}
		if !ok {
			return errs.InvalidStatef(string(oldStatus), "concurrently changed")
		}

		newValues := model.JSONMap{"status": string(adj.Status)}
		if reason != "" {
			newValues["reason"] = reason
		}
		if err := tx.AppendHistory(ctx, &model.YearEndHistory{
			CompanyID:    adj.CompanyID,
			AdjustmentID: adj.ID,
			Action:       action,
			OldValues:    model.JSONMap{"status": string(oldStatus)},
			NewValues:    newValues,
			ActorID:      actor.UserID,
		}); err != nil {
			return err
		}
		out = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("adjustment_id", id).Str("op", name).Str("status", string(out.Status)).Msg("year-end transition")
	return out, nil
}

func applyPatch(adj *model.YearEndAdjustment, p Patch) {
	set := func(dst *int64, src *int64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&adj.BasicDeduction, p.BasicDeduction)
	set(&adj.SpouseDeduction, p.SpouseDeduction)
	set(&adj.DependentDeduction, p.DependentDeduction)
	set(&adj.DisabilityDeduction, p.DisabilityDeduction)
	set(&adj.WidowDeduction, p.WidowDeduction)
	set(&adj.WorkingStudentDeduction, p.WorkingStudentDeduction)
	set(&adj.SocialInsurancePremium, p.SocialInsurancePremium)
	set(&adj.SmallBusinessMutualAid, p.SmallBusinessMutualAid)
	set(&adj.LifeInsurancePremium, p.LifeInsurancePremium)
	set(&adj.EarthquakeInsurancePremium, p.EarthquakeInsurancePremium)
	set(&adj.HousingLoanDeduction, p.HousingLoanDeduction)
	if p.AnnualIncome != nil {
		adj.AnnualIncome = p.AnnualIncome
	}
	if p.AnnualWithheldTax != nil {
		adj.AnnualWithheldTax = p.AnnualWithheldTax
	}
	if p.AnnualCalculatedTax != nil {
		adj.AnnualCalculatedTax = p.AnnualCalculatedTax
	}
}

// buildSlip freezes the slip payload from the adjustment and the
// employee master.
func buildSlip(adj *model.YearEndAdjustment, emp *model.Employee) model.SlipData {
	data := model.SlipData{
		EmployeeName:     emp.FullName(),
		EmployeeNameKana: emp.FullNameKana(),
		Address:          emp.Address,
		TargetYear:       adj.TargetYear,
		AnnualIncome:     adj.AnnualIncome,
		AnnualWithheld:   adj.AnnualWithheldTax,
		AnnualCalculated: adj.AnnualCalculatedTax,
		AdjustmentAmount: adj.AdjustmentAmount,
		Deductions:       adj.DeclaredDeductions(),

		SocialInsuranceEnrolled:     emp.SocialInsuranceEnrolled,
		PensionInsuranceEnrolled:    emp.PensionInsuranceEnrolled,
		EmploymentInsuranceEnrolled: emp.EmploymentInsuranceEnrolled,
	}
	if emp.BirthDate != nil {
		data.BirthDate = emp.BirthDate.Format("2006-01-02")
	}
	return data
}
