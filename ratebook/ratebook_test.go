package ratebook_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/ratebook"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// sliceSource serves fixed rows, ignoring the coarse filters the store
// would normally apply. The book must still select correctly.
type sliceSource struct {
	insurance []model.InsuranceRate
	tax       []model.IncomeTaxTable
	commute   []model.CommuteTaxLimit
}

func (s *sliceSource) InsuranceRates(_ context.Context, _ int64, insType model.InsuranceType, prefecture string) ([]model.InsuranceRate, error) {
	var out []model.InsuranceRate
	for _, r := range s.insurance {
		if r.InsuranceType != insType {
			continue
		}
		if prefecture != "" && r.Prefecture != prefecture {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *sliceSource) TaxBrackets(_ context.Context, _ int64, tableType model.TaxTableType) ([]model.IncomeTaxTable, error) {
	var out []model.IncomeTaxTable
	for _, r := range s.tax {
		if r.TableType == tableType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *sliceSource) CommuteLimits(_ context.Context, _ int64, method model.CommuteMethod) ([]model.CommuteTaxLimit, error) {
	var out []model.CommuteTaxLimit
	for _, r := range s.commute {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rate(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func i64(v int64) *int64 { return &v }

// =============================================================================
// INSURANCE RATE SELECTION
// =============================================================================

func TestFindInsuranceRate_TenantRowBeatsGlobalRow(t *testing.T) {
	// GIVEN: a tenant-scoped health rate and a global health rate for the
	//        same prefecture, both valid from 2024-04-01
	// WHEN: looking up health insurance for 2024-05-01
	// THEN: the tenant-scoped row wins

	src := &sliceSource{insurance: []model.InsuranceRate{
		{
			ID: 1, CompanyID: nil, InsuranceType: model.InsuranceHealth,
			Prefecture: "東京都", ValidFrom: date(2024, time.April, 1),
			EmployeeRate: rate("0.04985"), EmployerRate: rate("0.04985"),
		},
		{
			ID: 2, CompanyID: i64(7), InsuranceType: model.InsuranceHealth,
			Prefecture: "東京都", ValidFrom: date(2024, time.April, 1),
			EmployeeRate: rate("0.05100"), EmployerRate: rate("0.05100"),
		},
	}}
	book := ratebook.New(src, 7)

	got, err := book.FindInsuranceRate(context.Background(), model.InsuranceHealth, date(2024, time.May, 1), "東京都")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.True(t, got.EmployeeRate.Equal(rate("0.05100")))
}

func TestFindInsuranceRate_GreatestValidFromWins(t *testing.T) {
	// GIVEN: two global pension rows, valid from 2023 and 2024
	// WHEN: looking up for 2024-06-01
	// THEN: the 2024 row wins

	src := &sliceSource{insurance: []model.InsuranceRate{
		{ID: 1, InsuranceType: model.InsurancePension, ValidFrom: date(2023, time.April, 1), EmployeeRate: rate("0.09000")},
		{ID: 2, InsuranceType: model.InsurancePension, ValidFrom: date(2024, time.April, 1), EmployeeRate: rate("0.09150")},
	}}
	book := ratebook.New(src, 7)

	got, err := book.FindInsuranceRate(context.Background(), model.InsurancePension, date(2024, time.June, 1), "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
}

func TestFindInsuranceRate_ExpiredWindowExcluded(t *testing.T) {
	// GIVEN: a row whose valid_to has passed
	// WHEN: looking up after the window
	// THEN: NotFound

	to := date(2024, time.March, 31)
	src := &sliceSource{insurance: []model.InsuranceRate{
		{ID: 1, InsuranceType: model.InsuranceEmployment, ValidFrom: date(2023, time.April, 1), ValidTo: &to, EmployeeRate: rate("0.00600")},
	}}
	book := ratebook.New(src, 7)

	_, err := book.FindInsuranceRate(context.Background(), model.InsuranceEmployment, date(2024, time.May, 1), "")
	assert.True(t, errs.IsNotFound(err))
}

func TestFindInsuranceRate_TiedGlobalRowsAreAmbiguous(t *testing.T) {
	// GIVEN: two global health rows tying on valid_from
	// WHEN: looking up a covered date
	// THEN: AmbiguousRate

	src := &sliceSource{insurance: []model.InsuranceRate{
		{ID: 1, InsuranceType: model.InsuranceHealth, Prefecture: "東京都", ValidFrom: date(2024, time.April, 1), EmployeeRate: rate("0.04985")},
		{ID: 2, InsuranceType: model.InsuranceHealth, Prefecture: "東京都", ValidFrom: date(2024, time.April, 1), EmployeeRate: rate("0.04990")},
	}}
	book := ratebook.New(src, 7)

	_, err := book.FindInsuranceRate(context.Background(), model.InsuranceHealth, date(2024, time.May, 1), "東京都")
	require.Error(t, err)
	var ambErr *errs.AmbiguousRateError
	assert.ErrorAs(t, err, &ambErr)
}

func TestFindInsuranceRate_TenantOverrideSuppressesGlobalTie(t *testing.T) {
	// GIVEN: two tied global rows and one tenant row covering the date
	// WHEN: looking up
	// THEN: the tenant row wins; the global tie never surfaces

	src := &sliceSource{insurance: []model.InsuranceRate{
		{ID: 1, InsuranceType: model.InsuranceHealth, Prefecture: "東京都", ValidFrom: date(2024, time.April, 1), EmployeeRate: rate("0.04985")},
		{ID: 2, InsuranceType: model.InsuranceHealth, Prefecture: "東京都", ValidFrom: date(2024, time.April, 1), EmployeeRate: rate("0.04990")},
		{ID: 3, CompanyID: i64(7), InsuranceType: model.InsuranceHealth, Prefecture: "東京都", ValidFrom: date(2024, time.January, 1), EmployeeRate: rate("0.05000")},
	}}
	book := ratebook.New(src, 7)

	got, err := book.FindInsuranceRate(context.Background(), model.InsuranceHealth, date(2024, time.May, 1), "東京都")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
}

// =============================================================================
// INCOME TAX BRACKETS
// =============================================================================

func TestFindIncomeTax_BracketAndDependentsMatch(t *testing.T) {
	// GIVEN: a monthly_kou bracket 240000-260000 with dependents=1
	// WHEN: looking up taxable=255795, dependents=1
	// THEN: the bracket's tax amount is returned

	src := &sliceSource{tax: []model.IncomeTaxTable{
		{
			ID: 1, TableType: model.TableMonthlyKou, ValidFrom: date(2024, time.January, 1),
			IncomeFrom: 240000, IncomeTo: i64(260000), DependentsCount: 1, TaxAmount: 5740,
		},
	}}
	book := ratebook.New(src, 7)

	got, err := book.FindIncomeTax(context.Background(), model.TableMonthlyKou, 255795, 1, date(2024, time.May, 25))
	require.NoError(t, err)
	assert.Equal(t, int64(5740), got)
}

func TestFindIncomeTax_UpperBoundExclusive(t *testing.T) {
	// GIVEN: a bracket [240000, 260000)
	// WHEN: looking up exactly 260000
	// THEN: NotFound; the upper bound is exclusive

	src := &sliceSource{tax: []model.IncomeTaxTable{
		{
			ID: 1, TableType: model.TableMonthlyKou, ValidFrom: date(2024, time.January, 1),
			IncomeFrom: 240000, IncomeTo: i64(260000), DependentsCount: 1, TaxAmount: 5740,
		},
	}}
	book := ratebook.New(src, 7)

	_, err := book.FindIncomeTax(context.Background(), model.TableMonthlyKou, 260000, 1, date(2024, time.May, 25))
	assert.True(t, errs.IsNotFound(err))
}

func TestFindIncomeTax_DependentsMustMatchExactly(t *testing.T) {
	// GIVEN: a bracket for dependents=1
	// WHEN: looking up with dependents=2
	// THEN: NotFound

	src := &sliceSource{tax: []model.IncomeTaxTable{
		{
			ID: 1, TableType: model.TableMonthlyKou, ValidFrom: date(2024, time.January, 1),
			IncomeFrom: 240000, IncomeTo: i64(260000), DependentsCount: 1, TaxAmount: 5740,
		},
	}}
	book := ratebook.New(src, 7)

	_, err := book.FindIncomeTax(context.Background(), model.TableMonthlyKou, 250000, 2, date(2024, time.May, 25))
	assert.True(t, errs.IsNotFound(err))
}

func TestFindIncomeTax_OpenEndedUpperBracket(t *testing.T) {
	// GIVEN: a top bracket with nil income_to
	// WHEN: looking up a very large income
	// THEN: the open-ended bracket matches

	src := &sliceSource{tax: []model.IncomeTaxTable{
		{
			ID: 1, TableType: model.TableOtsu, ValidFrom: date(2024, time.January, 1),
			IncomeFrom: 1000000, IncomeTo: nil, DependentsCount: 0, TaxAmount: 380000,
		},
	}}
	book := ratebook.New(src, 7)

	got, err := book.FindIncomeTax(context.Background(), model.TableOtsu, 5000000, 0, date(2024, time.May, 25))
	require.NoError(t, err)
	assert.Equal(t, int64(380000), got)
}

// =============================================================================
// COMMUTE LIMITS
// =============================================================================

func TestFindCommuteNonTaxableLimit_DistanceBucket(t *testing.T) {
	// GIVEN: car-commute buckets [0,10) and [10,15)
	// WHEN: looking up 12km
	// THEN: the second bucket's limit

	ten, fifteen := 10.0, 15.0
	src := &sliceSource{commute: []model.CommuteTaxLimit{
		{ID: 1, Method: model.CommuteCar, DistanceFromKm: 0, DistanceToKm: &ten, MonthlyLimit: 4200, ValidFrom: date(2024, time.January, 1)},
		{ID: 2, Method: model.CommuteCar, DistanceFromKm: 10, DistanceToKm: &fifteen, MonthlyLimit: 7100, ValidFrom: date(2024, time.January, 1)},
	}}
	book := ratebook.New(src, 7)

	got, err := book.FindCommuteNonTaxableLimit(context.Background(), model.CommuteCar, 12.0, date(2024, time.May, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(7100), got)
}

func TestFindCommuteNonTaxableLimit_NoBucket(t *testing.T) {
	// GIVEN: no bucket rows
	// WHEN: looking up
	// THEN: NotFound

	book := ratebook.New(&sliceSource{}, 7)
	_, err := book.FindCommuteNonTaxableLimit(context.Background(), model.CommuteBicycle, 3.0, date(2024, time.May, 1))
	assert.True(t, errs.IsNotFound(err))
}
