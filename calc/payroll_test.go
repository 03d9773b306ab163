package calc_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo/payroll-engine/calc"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/ratebook"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

type fixedRates struct {
	insurance []model.InsuranceRate
	tax       []model.IncomeTaxTable
	commute   []model.CommuteTaxLimit
}

func (s *fixedRates) InsuranceRates(_ context.Context, _ int64, insType model.InsuranceType, prefecture string) ([]model.InsuranceRate, error) {
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

func (s *fixedRates) TaxBrackets(_ context.Context, _ int64, tableType model.TaxTableType) ([]model.IncomeTaxTable, error) {
	var out []model.IncomeTaxTable
	for _, r := range s.tax {
		if r.TableType == tableType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fixedRates) CommuteLimits(_ context.Context, _ int64, method model.CommuteMethod) ([]model.CommuteTaxLimit, error) {
	return s.commute, nil
}

type fixedMasters struct {
	attendance *model.AttendanceRecord
	allowances []model.EmployeeAllowance
	commute    *model.CommuteDetail
}

func (m *fixedMasters) Attendance(_ context.Context, _, _ int64, _ model.YearMonth) (*model.AttendanceRecord, error) {
	return m.attendance, nil
}

func (m *fixedMasters) ActiveAllowances(_ context.Context, _, _ int64, _ model.PayrollPeriod) ([]model.EmployeeAllowance, error) {
	return m.allowances, nil
}

func (m *fixedMasters) ActiveCommute(_ context.Context, _, _ int64, _ model.PayrollPeriod) (*model.CommuteDetail, error) {
	return m.commute, nil
}

func tokyoRates() *fixedRates {
	valid := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	return &fixedRates{
		insurance: []model.InsuranceRate{
			{InsuranceType: model.InsuranceHealth, Prefecture: "東京都", ValidFrom: valid, EmployeeRate: decimal.RequireFromString("0.04985")},
			{InsuranceType: model.InsurancePension, ValidFrom: valid, EmployeeRate: decimal.RequireFromString("0.09150")},
			{InsuranceType: model.InsuranceEmployment, ValidFrom: valid, EmployeeRate: decimal.RequireFromString("0.00600")},
		},
		tax: []model.IncomeTaxTable{
			{TableType: model.TableMonthlyKou, ValidFrom: valid, IncomeFrom: 240000, IncomeTo: i64(260000), DependentsCount: 1, TaxAmount: 5740},
		},
	}
}

func i64(v int64) *int64 { return &v }

func testCompany() *model.Company {
	return &model.Company{
		ID:                        7,
		ClosingDay:                31,
		PaymentDay:                25,
		PaymentMonthOffset:        1,
		HealthInsurancePrefecture: "東京都",
		CareInsuranceApplicable:   true,
	}
}

func testPeriod(c *model.Company) model.PayrollPeriod {
	return model.PeriodForMonth(c, model.NewYearMonth(2024, time.May))
}

func newCalculator(rates *fixedRates, masters calc.Masters, company *model.Company) *calc.Calculator {
	book := ratebook.New(rates, company.ID)
	return calc.NewCalculator(masters, calc.NewInsuranceEngine(book, company), calc.NewTaxEngine(book), company)
}

func findItem(t *testing.T, items []model.PayrollRecordItem, code string) model.PayrollRecordItem {
	t.Helper()
	for _, it := range items {
		if it.ItemCode == code {
			return it
		}
	}
	t.Fatalf("item %s not found", code)
	return model.PayrollRecordItem{}
}

func hasItem(items []model.PayrollRecordItem, code string) bool {
	for _, it := range items {
		if it.ItemCode == code {
			return true
		}
	}
	return false
}

// =============================================================================
// FULL CALCULATION
// =============================================================================

func TestCalculate_MonthlyEmployeeNoOvertime(t *testing.T) {
	// GIVEN: monthly salary 300,000, dependents=1, all insurances, Tokyo
	//        rates, monthly_kou bracket 240,000-260,000 -> 5,740
	// WHEN: calculating the month
	// THEN: gross 300,000; social 44,205; taxable 255,795; tax 5,740;
	//       net 250,055

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001",
		LastName: "山田", FirstName: "太郎",
		SalaryType:     model.SalaryMonthly,
		SalarySettings: model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:    model.TaxKou, DependentsCount: 1,
		SocialInsuranceEnrolled: true, PensionInsuranceEnrolled: true, EmploymentInsuranceEnrolled: true,
	}
	calcr := newCalculator(tokyoRates(), &fixedMasters{
		attendance: &model.AttendanceRecord{EmployeeID: 1, YearMonth: model.NewYearMonth(2024, time.May), WorkDays: 20, TotalWorkMinutes: 9600},
	}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	assert.Equal(t, int64(300000), res.Details.GrossSalary)
	assert.Equal(t, int64(14955), findItem(t, res.Items, calc.CodeHealthInsurance).Amount)
	assert.Equal(t, int64(27450), findItem(t, res.Items, calc.CodePensionInsurance).Amount)
	assert.Equal(t, int64(1800), findItem(t, res.Items, calc.CodeEmploymentInsurance).Amount)
	assert.Equal(t, int64(44205), res.Details.SocialInsuranceTotal)
	assert.Equal(t, int64(255795), res.Details.TaxableEarnings)
	assert.Equal(t, int64(5740), findItem(t, res.Items, calc.CodeIncomeTax).Amount)
	assert.Equal(t, int64(300000), res.TotalEarnings)
	assert.Equal(t, int64(49945), res.TotalDeductions)
	assert.Equal(t, int64(250055), res.NetPay)
}

func TestCalculate_AbsenceDeductionUsesStatutoryWorkDays(t *testing.T) {
	// GIVEN: monthly salary 300,000, 2 absence days, 22 statutory work
	//        days on the attendance record
	// THEN: deduction = floor(300,000/22) x 2 = 27,272, base 272,728;
	//       without the field the divisor falls back to 20

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001", LastName: "山田", FirstName: "太郎",
		SalaryType:     model.SalaryMonthly,
		SalarySettings: model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:    model.TaxKou,
	}

	calcr := newCalculator(tokyoRates(), &fixedMasters{
		attendance: &model.AttendanceRecord{
			EmployeeID: 1, YearMonth: model.NewYearMonth(2024, time.May),
			WorkDays: 20, AbsenceDays: 2, StatutoryWorkDays: 22,
		},
	}, company)
	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)
	assert.Equal(t, int64(272728), findItem(t, res.Items, calc.CodeBaseSalary).Amount)

	calcr = newCalculator(tokyoRates(), &fixedMasters{
		attendance: &model.AttendanceRecord{
			EmployeeID: 1, YearMonth: model.NewYearMonth(2024, time.May),
			WorkDays: 20, AbsenceDays: 2,
		},
	}, company)
	res, err = calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)
	assert.Equal(t, int64(270000), findItem(t, res.Items, calc.CodeBaseSalary).Amount)
}

func TestCalculate_AbsenceDeductionClampsToZero(t *testing.T) {
	// GIVEN: monthly salary 100,000 with 25 absence days
	// WHEN: calculating
	// THEN: base salary clamps to 0 with a note, not negative

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001", LastName: "山田", FirstName: "太郎",
		SalaryType:     model.SalaryMonthly,
		SalarySettings: model.SalarySettings{MonthlySalary: 100000},
		TaxCategory:    model.TaxKou,
	}
	calcr := newCalculator(tokyoRates(), &fixedMasters{
		attendance: &model.AttendanceRecord{EmployeeID: 1, YearMonth: model.NewYearMonth(2024, time.May), AbsenceDays: 25},
	}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	assert.Zero(t, findItem(t, res.Items, calc.CodeBaseSalary).Amount)
	assert.NotEmpty(t, res.Details.Notes)
}

func TestCalculate_HourlyEmployee(t *testing.T) {
	// GIVEN: hourly rate 1,500, 9,630 work minutes
	// WHEN: calculating
	// THEN: base salary = floor(1500*9630/60) = 240,750

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E002", LastName: "鈴木", FirstName: "花子",
		SalaryType:     model.SalaryHourly,
		SalarySettings: model.SalarySettings{HourlyRate: 1500},
		TaxCategory:    model.TaxOtsu,
	}
	calcr := newCalculator(tokyoRates(), &fixedMasters{
		attendance: &model.AttendanceRecord{EmployeeID: 1, YearMonth: model.NewYearMonth(2024, time.May), WorkDays: 18, TotalWorkMinutes: 9630},
	}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	assert.Equal(t, int64(240750), findItem(t, res.Items, calc.CodeBaseSalary).Amount)
	assert.Equal(t, int64(240750), res.Details.BaseSalary)
	assert.Equal(t, int64(1500), res.Details.BaseHourlyRate)
}

func TestCalculate_MissingAttendanceMeansZeroMinutes(t *testing.T) {
	// GIVEN: no attendance record for the month
	// WHEN: calculating a monthly employee
	// THEN: full monthly salary, zero work days recorded

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001", LastName: "山田", FirstName: "太郎",
		SalaryType:     model.SalaryMonthly,
		SalarySettings: model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:    model.TaxKou, DependentsCount: 1,
	}
	calcr := newCalculator(tokyoRates(), &fixedMasters{}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	assert.Equal(t, int64(300000), findItem(t, res.Items, calc.CodeBaseSalary).Amount)
	assert.Zero(t, res.Details.WorkDays)
}

func TestCalculate_RateMissOmitsDeductionLine(t *testing.T) {
	// GIVEN: no employment insurance rate row
	// WHEN: calculating an enrolled employee
	// THEN: no employment line at all, and a note is recorded

	rates := tokyoRates()
	rates.insurance = rates.insurance[:2] // drop employment
	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001", LastName: "山田", FirstName: "太郎",
		SalaryType:     model.SalaryMonthly,
		SalarySettings: model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:    model.TaxKou, DependentsCount: 1,
		SocialInsuranceEnrolled: true, PensionInsuranceEnrolled: true, EmploymentInsuranceEnrolled: true,
	}
	calcr := newCalculator(rates, &fixedMasters{}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	assert.False(t, hasItem(res.Items, calc.CodeEmploymentInsurance))
	assert.NotEmpty(t, res.Details.Notes)
}

func TestCalculate_CommuteNonTaxablePortion(t *testing.T) {
	// GIVEN: commute cost 20,000 with a 15,000 non-taxable limit
	// WHEN: calculating
	// THEN: the full cost is an earning; only 15,000 is excluded from
	//       the taxable base

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001", LastName: "山田", FirstName: "太郎",
		SalaryType:     model.SalaryMonthly,
		SalarySettings: model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:    model.TaxKou, DependentsCount: 1,
	}
	limit := int64(15000)
	calcr := newCalculator(tokyoRates(), &fixedMasters{
		commute: &model.CommuteDetail{
			EmployeeID: 1, MonthlyCost: 20000, NonTaxableLimit: &limit,
			EffectiveFrom: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	commuteItem := findItem(t, res.Items, calc.CodeCommute)
	assert.Equal(t, int64(20000), commuteItem.Amount)
	assert.False(t, commuteItem.IsTaxable)
	assert.Equal(t, int64(15000), res.Details.CommuteNonTaxable)
	assert.Equal(t, int64(320000), res.Details.GrossSalary)
	assert.Equal(t, int64(305000), res.Details.TaxableEarnings)
}

func TestCalculate_ItemFlagsPropagate(t *testing.T) {
	// GIVEN: an allowance whose type is taxable but exempt from both
	//        insurance bases, plus commute and insurance lines
	// WHEN: calculating
	// THEN: allowance items carry their type's three flags; base salary
	//       is true/true/true, commute false/true/true, deductions all
	//       false

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001", LastName: "山田", FirstName: "太郎",
		SalaryType:              model.SalaryMonthly,
		SalarySettings:          model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:             model.TaxKou, DependentsCount: 1,
		SocialInsuranceEnrolled: true,
	}
	limit := int64(15000)
	calcr := newCalculator(tokyoRates(), &fixedMasters{
		allowances: []model.EmployeeAllowance{{
			EmployeeID: 1, Amount: 10000,
			AllowanceType: &model.AllowanceType{
				Code: "remote_work", Name: "在宅勤務手当", IsActive: true,
				IsTaxable: true, IsSocialInsuranceTarget: false, IsEmploymentInsuranceTarget: false,
			},
		}},
		commute: &model.CommuteDetail{
			EmployeeID: 1, MonthlyCost: 10000, NonTaxableLimit: &limit,
			EffectiveFrom: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	base := findItem(t, res.Items, calc.CodeBaseSalary)
	assert.True(t, base.IsTaxable)
	assert.True(t, base.IsSocialInsuranceTarget)
	assert.True(t, base.IsEmploymentInsuranceTarget)

	allowance := findItem(t, res.Items, "remote_work")
	assert.True(t, allowance.IsTaxable)
	assert.False(t, allowance.IsSocialInsuranceTarget)
	assert.False(t, allowance.IsEmploymentInsuranceTarget)

	commute := findItem(t, res.Items, calc.CodeCommute)
	assert.False(t, commute.IsTaxable)
	assert.True(t, commute.IsSocialInsuranceTarget)
	assert.True(t, commute.IsEmploymentInsuranceTarget)

	health := findItem(t, res.Items, calc.CodeHealthInsurance)
	assert.False(t, health.IsTaxable)
	assert.False(t, health.IsSocialInsuranceTarget)
	assert.False(t, health.IsEmploymentInsuranceTarget)
}

func TestCalculate_ResidentTaxFixedAmount(t *testing.T) {
	// GIVEN: resident_tax_monthly = 12,000
	// WHEN: calculating
	// THEN: a fixed resident tax deduction appears

	company := testCompany()
	emp := &model.Employee{
		ID: 1, CompanyID: 7, EmployeeCode: "E001", LastName: "山田", FirstName: "太郎",
		SalaryType:         model.SalaryMonthly,
		SalarySettings:     model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:        model.TaxKou,
		DependentsCount:    1,
		ResidentTaxMonthly: 12000,
	}
	calcr := newCalculator(tokyoRates(), &fixedMasters{}, company)

	res, err := calcr.Calculate(context.Background(), emp, testPeriod(company))
	require.NoError(t, err)

	assert.Equal(t, int64(12000), findItem(t, res.Items, calc.CodeResidentTax).Amount)
}

// =============================================================================
// INSURANCE ENGINE
// =============================================================================

func TestInsurance_CareGatedByAge(t *testing.T) {
	// GIVEN: a health rate with a care component
	// WHEN: computing for ages 39, 40, 64, 65
	// THEN: care applies only in [40, 65)

	careRate := decimal.RequireFromString("0.00800")
	rates := &fixedRates{insurance: []model.InsuranceRate{{
		InsuranceType: model.InsuranceHealth, Prefecture: "東京都",
		ValidFrom:         time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		EmployeeRate:      decimal.RequireFromString("0.04985"),
		CareInsuranceRate: &careRate,
	}}}
	company := testCompany()
	book := ratebook.New(rates, company.ID)
	engine := calc.NewInsuranceEngine(book, company)
	at := time.Date(2024, time.May, 25, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		age      int
		wantCare bool
	}{
		{39, false}, {40, true}, {64, true}, {65, false},
	} {
		age := tc.age
		_, care, err := engine.Health(context.Background(), 300000, at, &age)
		require.NoError(t, err)
		if tc.wantCare {
			assert.Equal(t, int64(2400), care, "age %d", tc.age)
		} else {
			assert.Zero(t, care, "age %d", tc.age)
		}
	}
}

func TestInsurance_CareRequiresCompanyFlag(t *testing.T) {
	// GIVEN: company with care_insurance_applicable = false
	// WHEN: computing for an in-range age
	// THEN: care is zero

	careRate := decimal.RequireFromString("0.00800")
	rates := &fixedRates{insurance: []model.InsuranceRate{{
		InsuranceType: model.InsuranceHealth, Prefecture: "東京都",
		ValidFrom:         time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		EmployeeRate:      decimal.RequireFromString("0.04985"),
		CareInsuranceRate: &careRate,
	}}}
	company := testCompany()
	company.CareInsuranceApplicable = false
	engine := calc.NewInsuranceEngine(ratebook.New(rates, company.ID), company)

	age := 45
	_, care, err := engine.Health(context.Background(), 300000, time.Date(2024, time.May, 25, 0, 0, 0, 0, time.UTC), &age)
	require.NoError(t, err)
	assert.Zero(t, care)
}

// =============================================================================
// TAX ENGINE
// =============================================================================

func TestTax_OtsuFallbackRate(t *testing.T) {
	// GIVEN: no otsu bracket covers the income
	// WHEN: calculating
	// THEN: floor(taxable * 0.0358), flagged off-table

	engine := calc.NewTaxEngine(ratebook.New(&fixedRates{}, 7))

	tax, offTable, err := engine.CalculateIncomeTax(context.Background(), 255795, model.TaxOtsu, 0, time.Date(2024, time.May, 25, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	assert.True(t, offTable)
	assert.Equal(t, int64(9157), tax, "floor(255795*0.0358)")
}

func TestTax_KouOffTableWithholdsZero(t *testing.T) {
	// GIVEN: no monthly_kou bracket covers the income
	// WHEN: calculating
	// THEN: zero tax, flagged off-table

	engine := calc.NewTaxEngine(ratebook.New(&fixedRates{}, 7))

	tax, offTable, err := engine.CalculateIncomeTax(context.Background(), 255795, model.TaxKou, 1, time.Date(2024, time.May, 25, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	assert.True(t, offTable)
	assert.Zero(t, tax)
}

func TestTax_NonPositiveTaxableIsZero(t *testing.T) {
	// GIVEN: zero taxable income
	// WHEN: calculating
	// THEN: zero tax without any lookup

	engine := calc.NewTaxEngine(ratebook.New(&fixedRates{}, 7))

	tax, offTable, err := engine.CalculateIncomeTax(context.Background(), 0, model.TaxKou, 0, time.Now(), true)
	require.NoError(t, err)
	assert.False(t, offTable)
	assert.Zero(t, tax)
}
