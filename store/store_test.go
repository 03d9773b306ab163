package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo/payroll-engine/calc"
	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/payroll"
	"github.com/kyuyo/payroll-engine/ratebook"
	"github.com/kyuyo/payroll-engine/store"
)

// openStore migrates a fresh in-memory database. cache=shared keeps the
// database alive across pooled connections.
func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("file::memory:?cache=shared")
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	return s
}

func seedTenant(t *testing.T, s *store.Store, ctx context.Context) (*model.Company, *model.Employee, *model.PayrollPeriod) {
	t.Helper()

	company := &model.Company{
		Name:       "テスト株式会社",
		ClosingDay: 31, PaymentDay: 25, PaymentMonthOffset: 1,
		CareInsuranceApplicable: true,
	}
	require.NoError(t, s.CreateCompany(ctx, company))

	emp := &model.Employee{
		CompanyID:    company.ID,
		EmployeeCode: "E001",
		LastName:     "山田", FirstName: "太郎",
		SalaryType:      model.SalaryMonthly,
		SalarySettings:  model.SalarySettings{MonthlySalary: 300000},
		TaxCategory:     model.TaxKou,
		DependentsCount: 1,
		SocialInsuranceEnrolled:     true,
		PensionInsuranceEnrolled:    true,
		EmploymentInsuranceEnrolled: true,
	}
	require.NoError(t, s.CreateEmployee(ctx, emp))

	validFrom := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, rate := range []model.InsuranceRate{
		{InsuranceType: model.InsuranceHealth, Prefecture: "東京都", ValidFrom: validFrom,
			EmployeeRate: decimal.RequireFromString("0.04985"), EmployerRate: decimal.RequireFromString("0.04985")},
		{InsuranceType: model.InsurancePension, ValidFrom: validFrom,
			EmployeeRate: decimal.RequireFromString("0.09150"), EmployerRate: decimal.RequireFromString("0.09150")},
		{InsuranceType: model.InsuranceEmployment, ValidFrom: validFrom,
			EmployeeRate: decimal.RequireFromString("0.00600"), EmployerRate: decimal.RequireFromString("0.00950")},
	} {
		r := rate
		require.NoError(t, s.CreateInsuranceRate(ctx, &r))
	}
	upper := int64(260000)
	require.NoError(t, s.CreateTaxBracket(ctx, &model.IncomeTaxTable{
		TableType: model.TableMonthlyKou, ValidFrom: validFrom,
		IncomeFrom: 240000, IncomeTo: &upper, DependentsCount: 1, TaxAmount: 5740,
	}))

	require.NoError(t, s.UpsertAttendance(ctx, &model.AttendanceRecord{
		CompanyID: company.ID, EmployeeID: emp.ID,
		YearMonth: model.NewYearMonth(2024, time.May),
		WorkDays:  20, TotalWorkMinutes: 9600,
	}))

	period, err := s.EnsurePeriod(ctx, company, model.NewYearMonth(2024, time.May))
	require.NoError(t, err)
	return company, emp, period
}

func calculate(t *testing.T, s *store.Store, company *model.Company, emp *model.Employee, period *model.PayrollPeriod) *calc.CalcResult {
	t.Helper()
	book := ratebook.New(s, company.ID)
	calculator := calc.NewCalculator(s, calc.NewInsuranceEngine(book, company), calc.NewTaxEngine(book), company)
	res, err := calculator.Calculate(context.Background(), emp, *period)
	require.NoError(t, err)
	return res
}

func TestStore_FullPayrollLifecycle(t *testing.T) {
	// GIVEN: a seeded tenant with rates, a tax bracket, and attendance
	// WHEN: calculating, confirming, then cancelling through the real store
	// THEN: amounts, snapshot, history, and the forked draft all persist

	ctx := context.Background()
	s := openStore(t)
	company, emp, period := seedTenant(t, s, ctx)
	actor := model.Actor{UserID: 1, CompanyID: company.ID, Role: model.RoleAdmin}
	svc := payroll.NewService(s, zerolog.Nop())

	res := calculate(t, s, company, emp, period)
	assert.Equal(t, int64(300000), res.TotalEarnings)
	assert.Equal(t, int64(49945), res.TotalDeductions)
	assert.Equal(t, int64(250055), res.NetPay)

	rec, created, err := svc.CreateFromCalculation(ctx, actor, emp.ID, *period, res)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 1, rec.Version)

	// Idempotent while the draft exists
	again, created, err := svc.CreateFromCalculation(ctx, actor, emp.ID, *period, res)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, again.ID)

	confirmed, err := svc.Confirm(ctx, actor, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordConfirmed, confirmed.Status)

	snap, err := s.Snapshot(ctx, company.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250055), snap.Data.Record.NetPay)
	assert.NotEmpty(t, snap.Data.Items)

	cancelled, fork, err := svc.Cancel(ctx, actor, rec.ID, "誤計算")
	require.NoError(t, err)
	assert.Equal(t, model.RecordCancelled, cancelled.Status)
	assert.Equal(t, 2, fork.Version)
	assert.Equal(t, model.RecordDraft, fork.Status)
	assert.Equal(t, rec.NetPay, fork.NetPay)

	group, err := s.GroupFor(ctx, company.ID, emp.ID, period.ID)
	require.NoError(t, err)
	require.NotNil(t, group.CurrentRecordID)
	assert.Equal(t, fork.ID, *group.CurrentRecordID)

	history, err := s.HistoryForRecord(ctx, company.ID, rec.ID)
	require.NoError(t, err)
	actions := make([]model.HistoryAction, len(history))
	for i, hr := range history {
		actions[i] = hr.Action
	}
	assert.Equal(t, []model.HistoryAction{model.ActionCalculated, model.ActionConfirmed, model.ActionCancelled}, actions)
}

func TestStore_SingleDraftIndex(t *testing.T) {
	// GIVEN: a group that already holds a draft
	// WHEN: inserting a second draft directly
	// THEN: the partial unique index rejects it with Conflict

	ctx := context.Background()
	s := openStore(t)
	company, emp, period := seedTenant(t, s, ctx)

	group, err := s.GroupFor(ctx, company.ID, emp.ID, period.ID)
	require.NoError(t, err)

	first := &model.PayrollRecord{
		CompanyID: company.ID, GroupID: group.ID, EmployeeID: emp.ID, PeriodID: period.ID,
		Version: 1, Status: model.RecordDraft, PaymentDate: period.PaymentDate,
	}
	require.NoError(t, s.CreateRecord(ctx, first))

	second := &model.PayrollRecord{
		CompanyID: company.ID, GroupID: group.ID, EmployeeID: emp.ID, PeriodID: period.ID,
		Version: 2, Status: model.RecordDraft, PaymentDate: period.PaymentDate,
	}
	err = s.CreateRecord(ctx, second)
	assert.True(t, errs.IsConflict(err))
}

func TestStore_TransitionIsConditional(t *testing.T) {
	// GIVEN: a confirmed record
	// WHEN: transitioning with a stale expected status
	// THEN: zero rows match and the stored status is untouched

	ctx := context.Background()
	s := openStore(t)
	company, emp, period := seedTenant(t, s, ctx)

	group, err := s.GroupFor(ctx, company.ID, emp.ID, period.ID)
	require.NoError(t, err)
	rec := &model.PayrollRecord{
		CompanyID: company.ID, GroupID: group.ID, EmployeeID: emp.ID, PeriodID: period.ID,
		Version: 1, Status: model.RecordConfirmed, PaymentDate: period.PaymentDate,
	}
	require.NoError(t, s.CreateRecord(ctx, rec))

	rec.Status = model.RecordCancelled
	ok, err := s.TransitionRecord(ctx, rec, model.RecordDraft)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := s.Record(ctx, company.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordConfirmed, stored.Status)
}

func TestStore_PeriodDerivation(t *testing.T) {
	// GIVEN: a company closing on the 31st and paying on the 25th of the
	//        next month
	// WHEN: ensuring the 2024-02 period
	// THEN: the closing date clamps to Feb 29 and payment lands Mar 25;
	//       a second call returns the same row

	ctx := context.Background()
	s := openStore(t)
	company := &model.Company{Name: "C", ClosingDay: 31, PaymentDay: 25, PaymentMonthOffset: 1}
	require.NoError(t, s.CreateCompany(ctx, company))

	p1, err := s.EnsurePeriod(ctx, company, model.NewYearMonth(2024, time.February))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), p1.EndDate)
	assert.Equal(t, time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC), p1.PaymentDate)

	p2, err := s.EnsurePeriod(ctx, company, model.NewYearMonth(2024, time.February))
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
}

func TestStore_RateScopePrecedence(t *testing.T) {
	// GIVEN: a global pension rate and a tenant override
	// WHEN: resolving through the rate book
	// THEN: the tenant row wins

	ctx := context.Background()
	s := openStore(t)
	company := &model.Company{Name: "C", ClosingDay: 31, PaymentDay: 25, PaymentMonthOffset: 1}
	require.NoError(t, s.CreateCompany(ctx, company))

	validFrom := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateInsuranceRate(ctx, &model.InsuranceRate{
		InsuranceType: model.InsurancePension, ValidFrom: validFrom,
		EmployeeRate: decimal.RequireFromString("0.09150"), EmployerRate: decimal.RequireFromString("0.09150"),
	}))
	require.NoError(t, s.CreateInsuranceRate(ctx, &model.InsuranceRate{
		CompanyID:     &company.ID,
		InsuranceType: model.InsurancePension, ValidFrom: validFrom,
		EmployeeRate: decimal.RequireFromString("0.09000"), EmployerRate: decimal.RequireFromString("0.09000"),
	}))

	book := ratebook.New(s, company.ID)
	rate, err := book.FindInsuranceRate(ctx, model.InsurancePension, time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.True(t, rate.EmployeeRate.Equal(decimal.RequireFromString("0.09000")))
}
