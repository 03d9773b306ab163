package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo/payroll-engine/calc"
	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/payroll"
	"github.com/kyuyo/payroll-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService() (*payroll.Service, *memory.Store) {
	st := memory.New()
	return payroll.NewService(st, zerolog.Nop()), st
}

func adminActor() model.Actor {
	return model.Actor{UserID: 99, CompanyID: 7, Role: model.RoleAdmin}
}

func testPeriod() model.PayrollPeriod {
	return model.PayrollPeriod{
		ID:          1,
		CompanyID:   7,
		YearMonth:   model.NewYearMonth(2024, time.May),
		PeriodType:  model.PeriodMonthly,
		StartDate:   time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC),
		PaymentDate: time.Date(2024, time.June, 25, 0, 0, 0, 0, time.UTC),
	}
}

func sampleResult() *calc.CalcResult {
	return &calc.CalcResult{
		Items: []model.PayrollRecordItem{
			{ItemType: model.ItemEarning, ItemCode: calc.CodeBaseSalary, ItemName: "基本給", Amount: 300000, IsTaxable: true, DisplayOrder: 10},
			{ItemType: model.ItemDeduction, ItemCode: calc.CodeIncomeTax, ItemName: "所得税", Amount: 5740, DisplayOrder: 20},
		},
		Details:         model.CalculationDetails{SalaryType: model.SalaryMonthly, GrossSalary: 300000},
		TotalEarnings:   300000,
		TotalDeductions: 5740,
		NetPay:          294260,
	}
}

func historyActions(st *memory.Store) []model.HistoryAction {
	var out []model.HistoryAction
	for _, h := range st.History {
		out = append(out, h.Action)
	}
	return out
}

// =============================================================================
// CREATE FROM CALCULATION
// =============================================================================

func TestCreateFromCalculation_NewDraft(t *testing.T) {
	// GIVEN: an empty group
	// WHEN: persisting a calculation result
	// THEN: a version-1 draft is created, group points at it, one
	//       calculated history row

	svc, st := newTestService()

	rec, created, err := svc.CreateFromCalculation(context.Background(), adminActor(), 1, testPeriod(), sampleResult())
	require.NoError(t, err)
	require.True(t, created)

	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, model.RecordDraft, rec.Status)
	assert.Equal(t, int64(294260), rec.NetPay)

	group := st.Groups[rec.GroupID]
	require.NotNil(t, group.CurrentRecordID)
	assert.Equal(t, rec.ID, *group.CurrentRecordID)
	assert.Equal(t, []model.HistoryAction{model.ActionCalculated}, historyActions(st))
}

func TestCreateFromCalculation_IdempotentWhenDraftExists(t *testing.T) {
	// GIVEN: a group that already holds a draft
	// WHEN: persisting a second calculation result
	// THEN: the existing draft is returned unchanged, nothing new created

	svc, st := newTestService()
	actor := adminActor()

	first, created, err := svc.CreateFromCalculation(context.Background(), actor, 1, testPeriod(), sampleResult())
	require.NoError(t, err)
	require.True(t, created)

	other := sampleResult()
	other.Items[0].Amount = 999999
	other.TotalEarnings = 999999
	other.NetPay = 999999 - 5740

	second, created, err := svc.CreateFromCalculation(context.Background(), actor, 1, testPeriod(), other)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(294260), second.NetPay, "existing draft unchanged")
	assert.Len(t, st.History, 1, "no extra history row")
}

func TestCreateFromCalculation_TotalsMismatchIsFatal(t *testing.T) {
	// GIVEN: a result whose totals diverge from its items
	// WHEN: persisting
	// THEN: Internal error, nothing written

	svc, st := newTestService()
	res := sampleResult()
	res.NetPay = 1

	_, _, err := svc.CreateFromCalculation(context.Background(), adminActor(), 1, testPeriod(), res)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInternal)
	assert.Empty(t, st.Records)
}

// =============================================================================
// CONFIRM
// =============================================================================

func TestConfirm_DraftBecomesConfirmedWithSnapshot(t *testing.T) {
	// GIVEN: a draft record
	// WHEN: confirming
	// THEN: status=confirmed, stamped, snapshot frozen with matching
	//       totals and items

	svc, st := newTestService()
	actor := adminActor()
	rec, _, err := svc.CreateFromCalculation(context.Background(), actor, 1, testPeriod(), sampleResult())
	require.NoError(t, err)

	confirmed, err := svc.Confirm(context.Background(), actor, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, model.RecordConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, actor.UserID, *confirmed.ConfirmedBy)

	snap := st.Snapshots[rec.ID]
	require.NotNil(t, snap)
	assert.Equal(t, int64(294260), snap.Data.Record.NetPay)
	assert.Len(t, snap.Data.Items, 2)
	assert.Equal(t, []model.HistoryAction{model.ActionCalculated, model.ActionConfirmed}, historyActions(st))
}

func TestConfirm_NonDraftRejected(t *testing.T) {
	// GIVEN: an already-confirmed record
	// WHEN: confirming again
	// THEN: InvalidState naming the current status

	svc, _ := newTestService()
	actor := adminActor()
	rec, _, err := svc.CreateFromCalculation(context.Background(), actor, 1, testPeriod(), sampleResult())
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), actor, rec.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), actor, rec.ID)
	require.Error(t, err)
	var stateErr *errs.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, string(model.RecordConfirmed), stateErr.Current)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_ForksNewDraft(t *testing.T) {
	// GIVEN: a confirmed v1 record
	// WHEN: cancelling with reason 誤計算
	// THEN: v1 cancelled with reason, a v2 draft with identical items,
	//       group retargeted, two history rows appended

	svc, st := newTestService()
	actor := adminActor()
	rec, _, err := svc.CreateFromCalculation(context.Background(), actor, 1, testPeriod(), sampleResult())
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), actor, rec.ID)
	require.NoError(t, err)

	cancelled, fork, err := svc.Cancel(context.Background(), actor, rec.ID, "誤計算")
	require.NoError(t, err)

	assert.Equal(t, model.RecordCancelled, cancelled.Status)
	assert.Equal(t, "誤計算", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	assert.Equal(t, 2, fork.Version)
	assert.Equal(t, model.RecordDraft, fork.Status)
	require.Len(t, fork.Items, 2)
	assert.Equal(t, cancelled.Items[0].Amount, fork.Items[0].Amount)
	assert.Equal(t, cancelled.NetPay, fork.NetPay)

	group := st.Groups[rec.GroupID]
	assert.Equal(t, fork.ID, *group.CurrentRecordID)

	actions := historyActions(st)
	require.Len(t, actions, 4)
	assert.Equal(t, model.ActionCancelled, actions[2])
	assert.Equal(t, model.ActionCreatedFromCxl, actions[3])

	last := st.History[3]
	require.NotNil(t, last.SourceRecordID)
	assert.Equal(t, cancelled.ID, *last.SourceRecordID)

	// the v1 snapshot survives cancellation
	assert.NotNil(t, st.Snapshots[rec.ID])
}

func TestCancel_DraftRejected(t *testing.T) {
	// GIVEN: a draft record
	// WHEN: cancelling
	// THEN: InvalidState; only confirmed records can be cancelled

	svc, _ := newTestService()
	actor := adminActor()
	rec, _, err := svc.CreateFromCalculation(context.Background(), actor, 1, testPeriod(), sampleResult())
	require.NoError(t, err)

	_, _, err = svc.Cancel(context.Background(), actor, rec.ID, "理由")
	assert.True(t, errs.IsInvalidState(err))
}

func TestCancel_RequiresReason(t *testing.T) {
	// GIVEN: any record
	// WHEN: cancelling without a reason
	// THEN: validation error

	svc, _ := newTestService()
	_, _, err := svc.Cancel(context.Background(), adminActor(), 1, "")
	assert.True(t, errs.IsValidation(err))
}

func TestCancelThenRecalculate_VersionsStayDense(t *testing.T) {
	// GIVEN: v1 confirmed then cancelled (forking v2 draft)
	// WHEN: confirming v2, cancelling v2
	// THEN: v3 draft appears; versions 1..3 all present exactly once

	svc, st := newTestService()
	actor := adminActor()
	rec, _, err := svc.CreateFromCalculation(context.Background(), actor, 1, testPeriod(), sampleResult())
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), actor, rec.ID)
	require.NoError(t, err)
	_, fork, err := svc.Cancel(context.Background(), actor, rec.ID, "誤計算")
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), actor, fork.ID)
	require.NoError(t, err)
	_, fork2, err := svc.Cancel(context.Background(), actor, fork.ID, "再修正")
	require.NoError(t, err)

	assert.Equal(t, 3, fork2.Version)
	versions := map[int]int{}
	for _, r := range st.Records {
		versions[r.Version]++
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, versions)
}
