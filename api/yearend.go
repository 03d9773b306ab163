/*
yearend.go - Year-end adjustment endpoints

PURPOSE:
  Drives the 年末調整 workflow over HTTP. Employees create and edit
  their own adjustments and submit them; admins approve, return,
  confirm, and generate withholding slips. Visibility for non-admins is
  enforced in the yearend service; the handlers only translate.
*/
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/yearend"
)

func (p adjustmentPatch) toPatch() yearend.Patch {
	return yearend.Patch{
		BasicDeduction:             p.BasicDeduction,
		SpouseDeduction:            p.SpouseDeduction,
		DependentDeduction:         p.DependentDeduction,
		DisabilityDeduction:        p.DisabilityDeduction,
		WidowDeduction:             p.WidowDeduction,
		WorkingStudentDeduction:    p.WorkingStudentDeduction,
		SocialInsurancePremium:     p.SocialInsurancePremium,
		SmallBusinessMutualAid:     p.SmallBusinessMutualAid,
		LifeInsurancePremium:       p.LifeInsurancePremium,
		EarthquakeInsurancePremium: p.EarthquakeInsurancePremium,
		HousingLoanDeduction:       p.HousingLoanDeduction,
		AnnualIncome:               p.AnnualIncome,
		AnnualWithheldTax:          p.AnnualWithheldTax,
		AnnualCalculatedTax:        p.AnnualCalculatedTax,
	}
}

// CreateAdjustment opens a draft adjustment for an employee-year.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var req adjustmentRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	employeeID := req.EmployeeID
	if employeeID == 0 {
		employeeID = actor.EmployeeID
	}
	adj, err := h.YearEnd.Create(r.Context(), actor, employeeID, req.TargetYear, req.toPatch())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, adj)
}

// ListAdjustments returns a year's adjustments. Non-admins see only
// their own.
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		h.writeDomainError(w, errs.Validationf("year", "must be an integer"))
		return
	}

	var employeeID *int64
	if !actor.IsAdmin() {
		if actor.EmployeeID == 0 {
			h.writeDomainError(w, errs.ErrPermissionDenied)
			return
		}
		employeeID = &actor.EmployeeID
	}
	adjustments, err := h.Store.AdjustmentsByYear(r.Context(), actor.CompanyID, year, employeeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adjustments)
}

func (h *Handler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	adj, err := h.Store.YearEnd().Adjustment(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !actor.IsAdmin() && adj.EmployeeID != actor.EmployeeID {
		h.writeDomainError(w, errs.ErrPermissionDenied)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

// UpdateAdjustment patches declared amounts while draft or returned.
func (h *Handler) UpdateAdjustment(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var patch adjustmentPatch
	if err := decode(r, &patch); err != nil {
		h.writeDomainError(w, err)
		return
	}
	adj, err := h.YearEnd.Update(r.Context(), actor, id, patch.toPatch())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

func (h *Handler) SubmitAdjustment(w http.ResponseWriter, r *http.Request) {
	h.adjustmentTransition(w, r, h.YearEnd.Submit)
}

func (h *Handler) ApproveAdjustment(w http.ResponseWriter, r *http.Request) {
	h.adjustmentTransition(w, r, h.YearEnd.Approve)
}

func (h *Handler) ConfirmAdjustment(w http.ResponseWriter, r *http.Request) {
	h.adjustmentTransition(w, r, h.YearEnd.Confirm)
}

// ReturnAdjustment sends a submission back with a reason.
func (h *Handler) ReturnAdjustment(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var req returnRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	adj, err := h.YearEnd.Return(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

// GenerateSlip creates the withholding slip for a confirmed adjustment.
func (h *Handler) GenerateSlip(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	slip, err := h.YearEnd.GenerateWithholdingSlip(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, slip)
}

func (h *Handler) GetSlip(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	slip, err := h.Store.SlipForAdjustment(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !actor.IsAdmin() && slip.EmployeeID != actor.EmployeeID {
		h.writeDomainError(w, errs.ErrPermissionDenied)
		return
	}
	writeJSON(w, http.StatusOK, slip)
}

func (h *Handler) GetAdjustmentHistory(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	rows, err := h.Store.AdjustmentHistory(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type adjustmentOp func(ctx context.Context, actor model.Actor, id int64) (*model.YearEndAdjustment, error)

// adjustmentTransition factors the id-only transition endpoints.
func (h *Handler) adjustmentTransition(w http.ResponseWriter, r *http.Request, op adjustmentOp) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	adj, err := op(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}
