package calc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/ratebook"
)

// =============================================================================
// SOCIAL INSURANCE
// =============================================================================

// Care insurance (介護保険) is withheld from age 40 up to, but not
// including, 65.
const (
	careInsuranceMinAge = 40
	careInsuranceMaxAge = 65
)

// InsuranceEngine computes employee-side social insurance premiums.
// Each premium is floor(gross x employee_rate). A rate-book miss means
// the premium is simply absent, signalled by NotFound.
type InsuranceEngine struct {
	book    *ratebook.Book
	company *model.Company
}

// NewInsuranceEngine builds an engine for one company.
func NewInsuranceEngine(book *ratebook.Book, company *model.Company) *InsuranceEngine {
	return &InsuranceEngine{book: book, company: company}
}

func premium(gross int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(gross).Mul(rate).Floor().IntPart()
}

// Health returns the health premium and the care premium. Care is
// non-zero only when the age is in [40, 65), the company participates,
// and the rate row carries a care rate. age may be nil when the birth
// date is unknown; care is then zero.
func (e *InsuranceEngine) Health(ctx context.Context, gross int64, date time.Time, age *int) (health, care int64, err error) {
	rate, err := e.book.FindInsuranceRate(ctx, model.InsuranceHealth, date, e.company.Prefecture())
	if err != nil {
		return 0, 0, err
	}
	health = premium(gross, rate.EmployeeRate)

	if age != nil &&
		*age >= careInsuranceMinAge && *age < careInsuranceMaxAge &&
		e.company.CareInsuranceApplicable &&
		rate.CareInsuranceRate != nil {
		care = premium(gross, *rate.CareInsuranceRate)
	}
	return health, care, nil
}

// Pension returns the welfare pension premium.
func (e *InsuranceEngine) Pension(ctx context.Context, gross int64, date time.Time) (int64, error) {
	rate, err := e.book.FindInsuranceRate(ctx, model.InsurancePension, date, "")
	if err != nil {
		return 0, err
	}
	return premium(gross, rate.EmployeeRate), nil
}

// Employment returns the employment insurance premium.
func (e *InsuranceEngine) Employment(ctx context.Context, gross int64, date time.Time) (int64, error) {
	rate, err := e.book.FindInsuranceRate(ctx, model.InsuranceEmployment, date, "")
	if err != nil {
		return 0, err
	}
	return premium(gross, rate.EmployeeRate), nil
}

// IsRateMiss reports whether the error is a plain rate-book miss the
// caller may absorb as an omitted deduction.
func IsRateMiss(err error) bool { return errs.IsNotFound(err) }
