/*
rates.go - Rate table maintenance and record listing

PURPOSE:
  Admin endpoints for the rows the rate book resolves against: insurance
  rates, withholding tax brackets, and commute non-taxable limits.
  Tenant admins create rows scoped to their own company; a super admin
  may omit company scoping to create a global row. Also lists the
  payroll records of a period.
*/
package api

import (
	"net/http"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// scopeCompanyID returns the company id to stamp on a new rate row.
// nil (global) only for super admins.
func scopeCompanyID(r *http.Request, requested *int64) *int64 {
	actor := actorFrom(r)
	if actor.Role == model.RoleSuperAdmin && requested == nil {
		return nil
	}
	id := actor.CompanyID
	return &id
}

// CreateInsuranceRate inserts one insurance rate row.
func (h *Handler) CreateInsuranceRate(w http.ResponseWriter, r *http.Request) {
	var rate model.InsuranceRate
	if err := decode(r, &rate); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !rate.InsuranceType.Valid() {
		h.writeDomainError(w, errs.Validationf("insurance_type", "unknown type %q", rate.InsuranceType))
		return
	}
	if rate.ValidFrom.IsZero() {
		h.writeDomainError(w, errs.Validationf("valid_from", "required"))
		return
	}
	rate.ID = 0
	rate.CompanyID = scopeCompanyID(r, rate.CompanyID)
	if err := h.Store.CreateInsuranceRate(r.Context(), &rate); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rate)
}

// CreateTaxBracket inserts one withholding table row.
func (h *Handler) CreateTaxBracket(w http.ResponseWriter, r *http.Request) {
	var row model.IncomeTaxTable
	if err := decode(r, &row); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !row.TableType.Valid() {
		h.writeDomainError(w, errs.Validationf("table_type", "unknown type %q", row.TableType))
		return
	}
	if row.ValidFrom.IsZero() {
		h.writeDomainError(w, errs.Validationf("valid_from", "required"))
		return
	}
	if row.IncomeTo != nil && *row.IncomeTo <= row.IncomeFrom {
		h.writeDomainError(w, errs.Validationf("income_to", "must exceed income_from"))
		return
	}
	row.ID = 0
	row.CompanyID = scopeCompanyID(r, row.CompanyID)
	if err := h.Store.CreateTaxBracket(r.Context(), &row); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// CreateCommuteLimit inserts one commute non-taxable limit row.
func (h *Handler) CreateCommuteLimit(w http.ResponseWriter, r *http.Request) {
	var limit model.CommuteTaxLimit
	if err := decode(r, &limit); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if limit.ValidFrom.IsZero() {
		h.writeDomainError(w, errs.Validationf("valid_from", "required"))
		return
	}
	limit.ID = 0
	limit.CompanyID = scopeCompanyID(r, limit.CompanyID)
	if err := h.Store.CreateCommuteLimit(r.Context(), &limit); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, limit)
}

// ListRecords returns every payroll record of a period.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	records, err := h.Store.RecordsInPeriod(r.Context(), actor.CompanyID, period.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// UpdateAllowanceType edits an allowance master row, including
// deactivation via is_active.
func (h *Handler) UpdateAllowanceType(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var at model.AllowanceType
	if err := decode(r, &at); err != nil {
		h.writeDomainError(w, err)
		return
	}
	at.ID = id
	at.CompanyID = actor.CompanyID
	if err := h.Store.SaveAllowanceType(r.Context(), &at); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, at)
}
