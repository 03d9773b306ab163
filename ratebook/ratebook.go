/*
Package ratebook resolves statutory rates and tax brackets.

PURPOSE:
  The rate book is the single read-only lookup service for insurance
  premium rates, income tax withholding brackets, and commute
  non-taxable limits. The calculation engines never query the store
  directly; they ask the book.

SELECTION RULES:
  1. Validity window [valid_from, valid_to] must cover the target date
     (nil valid_to = open-ended).
  2. A tenant-scoped row (company_id = caller's tenant) beats a global
     row (company_id = nil) with the same key.
  3. Within the winning scope, the greatest valid_from <= target date
     wins. Two rows tying on valid_from are a data error and surface
     as AmbiguousRate.

FAILURE SEMANTICS:
  A missing rate is NotFound, never fatal here. The insurance and tax
  engines decide: they omit the deduction line and record a note.
*/
package ratebook

import (
	"context"
	"fmt"
	"time"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// Source loads candidate rate rows. Implementations filter coarsely
// (type, prefecture, tenant-or-global); the book performs the final
// window and precedence selection.
type Source interface {
	// InsuranceRates returns rows of the given type visible to the
	// tenant: global rows plus rows scoped to companyID. Prefecture is
	// matched only when non-empty.
	InsuranceRates(ctx context.Context, companyID int64, insType model.InsuranceType, prefecture string) ([]model.InsuranceRate, error)

	// TaxBrackets returns rows of the given table type visible to the
	// tenant.
	TaxBrackets(ctx context.Context, companyID int64, tableType model.TaxTableType) ([]model.IncomeTaxTable, error)

	// CommuteLimits returns limit rows for the given method visible to
	// the tenant.
	CommuteLimits(ctx context.Context, companyID int64, method model.CommuteMethod) ([]model.CommuteTaxLimit, error)
}

// Book answers rate lookups for one tenant.
type Book struct {
	src       Source
	companyID int64
}

// New builds a Book scoped to the given tenant.
func New(src Source, companyID int64) *Book {
	return &Book{src: src, companyID: companyID}
}

// =============================================================================
// INSURANCE RATES
// =============================================================================

// FindInsuranceRate returns the effective rate row for the type and
// date. For health insurance the prefecture filters candidates; other
// types ignore it.
func (b *Book) FindInsuranceRate(ctx context.Context, insType model.InsuranceType, targetDate time.Time, prefecture string) (*model.InsuranceRate, error) {
	if insType != model.InsuranceHealth {
		prefecture = ""
	}
	rows, err := b.src.InsuranceRates(ctx, b.companyID, insType, prefecture)
	if err != nil {
		return nil, fmt.Errorf("load insurance rates: %w", err)
	}

	best, err := pickRate(rows, b.companyID, targetDate)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, errs.NotFoundf("insurance rate", fmt.Sprintf("%s/%s@%s", insType, prefecture, targetDate.Format("2006-01-02")))
	}
	return best, nil
}

// pickRate applies scope precedence and greatest-valid_from selection.
// Tenant rows are examined first; global rows only when no tenant row
// covers the date.
func pickRate(rows []model.InsuranceRate, companyID int64, date time.Time) (*model.InsuranceRate, error) {
	var best *model.InsuranceRate
	tied := false
	consider := func(scoped bool) {
		for i := range rows {
			r := &rows[i]
			rowScoped := r.CompanyID != nil && *r.CompanyID == companyID
			if rowScoped != scoped || !r.Covers(date) {
				continue
			}
			switch {
			case best == nil || r.ValidFrom.After(best.ValidFrom):
				best, tied = r, false
			case r.ValidFrom.Equal(best.ValidFrom):
				tied = true
			}
		}
	}
	consider(true)
	if best == nil {
		consider(false)
	}
	if tied {
		return nil, &errs.AmbiguousRateError{
			Table: "insurance_rates",
			Key:   fmt.Sprintf("%s valid_from=%s", best.InsuranceType, best.ValidFrom.Format("2006-01-02")),
		}
	}
	return best, nil
}

// =============================================================================
// INCOME TAX BRACKETS
// =============================================================================

// FindIncomeTax returns the withheld amount for the taxable income.
// The bracket must cover the date, contain the income in
// [income_from, income_to), and match the dependent count exactly.
func (b *Book) FindIncomeTax(ctx context.Context, tableType model.TaxTableType, taxableIncome int64, dependents int, targetDate time.Time) (int64, error) {
	rows, err := b.src.TaxBrackets(ctx, b.companyID, tableType)
	if err != nil {
		return 0, fmt.Errorf("load tax brackets: %w", err)
	}

	var best *model.IncomeTaxTable
	tied := false
	for pass := 0; pass < 2 && best == nil; pass++ {
		scoped := pass == 0
		for i := range rows {
			r := &rows[i]
			rowScoped := r.CompanyID != nil && *r.CompanyID == b.companyID
			if rowScoped != scoped || !r.Matches(taxableIncome, dependents, targetDate) {
				continue
			}
			switch {
			case best == nil || r.ValidFrom.After(best.ValidFrom):
				best, tied = r, false
			case r.ValidFrom.Equal(best.ValidFrom):
				tied = true
			}
		}
	}
	if best == nil {
		return 0, errs.NotFoundf("tax bracket", fmt.Sprintf("%s income=%d dependents=%d", tableType, taxableIncome, dependents))
	}
	if tied {
		return 0, &errs.AmbiguousRateError{
			Table: "income_tax_tables",
			Key:   fmt.Sprintf("%s income=%d dependents=%d", tableType, taxableIncome, dependents),
		}
	}
	return best.TaxAmount, nil
}

// =============================================================================
// COMMUTE NON-TAXABLE LIMITS
// =============================================================================

// FindCommuteNonTaxableLimit returns the monthly non-taxable cap for
// the commute method and one-way distance. Distance buckets follow the
// bracket pattern: [distance_from, distance_to).
func (b *Book) FindCommuteNonTaxableLimit(ctx context.Context, method model.CommuteMethod, distanceKm float64, targetDate time.Time) (int64, error) {
	rows, err := b.src.CommuteLimits(ctx, b.companyID, method)
	if err != nil {
		return 0, fmt.Errorf("load commute limits: %w", err)
	}

	var best *model.CommuteTaxLimit
	for i := range rows {
		r := &rows[i]
		if !r.Matches(method, distanceKm, targetDate) {
			continue
		}
		if best == nil || r.ValidFrom.After(best.ValidFrom) {
			best = r
		}
	}
	if best == nil {
		return 0, errs.NotFoundf("commute limit", fmt.Sprintf("%s distance=%.1fkm", method, distanceKm))
	}
	return best.MonthlyLimit, nil
}
