package export_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/export"
	"github.com/kyuyo/payroll-engine/model"
)

func decodeShiftJIS(t *testing.T, b []byte) string {
	t.Helper()
	out, _, err := transform.String(japanese.ShiftJIS.NewDecoder(), string(b))
	require.NoError(t, err)
	return out
}

// =============================================================================
// ZENGIN
// =============================================================================

func TestBuildZengin_TrailerTotals(t *testing.T) {
	// GIVEN: two payees with net pay 250,055 and 198,000
	// WHEN: building the transfer file
	// THEN: trailer is "8" + "000002" + "000000448055" + 101 spaces

	payees := []export.ZenginPayee{
		{BankName: "MIZUHO", BranchName: "HONTEN", AccountType: model.AccountSavings, AccountNumber: "1234567", HolderKana: "ヤマダタロウ", Amount: 250055},
		{BankName: "MUFG", BranchName: "SHIBUYA", AccountType: model.AccountChecking, AccountNumber: "7654321", HolderKana: "スズキハナコ", Amount: 198000},
	}
	raw, summary, err := export.BuildZengin("KABUSHIKIGAISHA TEST", time.Date(2024, time.June, 25, 0, 0, 0, 0, time.UTC), payees)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RecordCount)
	assert.Equal(t, int64(448055), summary.TotalAmount)

	content := decodeShiftJIS(t, raw)
	lines := strings.Split(strings.TrimSuffix(content, "\r\n"), "\r\n")
	require.Len(t, lines, 5, "header, 2 data, trailer, end")

	trailer := lines[3]
	assert.Equal(t, "8"+"000002"+"000000448055"+strings.Repeat(" ", 101), trailer)
	assert.Len(t, []rune(trailer), 120)
}

func TestBuildZengin_RecordLayout(t *testing.T) {
	// GIVEN: a single payee
	// WHEN: building
	// THEN: every record is 120 characters; header carries type 21 and
	//       MMDD payment date; data record carries the zero-padded amount

	payees := []export.ZenginPayee{
		{BankName: "MIZUHO", BranchName: "HONTEN", AccountType: model.AccountSavings, AccountNumber: "1234567", HolderKana: "ヤマダタロウ", Amount: 250055},
	}
	raw, _, err := export.BuildZengin("TEST", time.Date(2024, time.June, 25, 0, 0, 0, 0, time.UTC), payees)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(decodeShiftJIS(t, raw), "\r\n"), "\r\n")
	for i, line := range lines {
		assert.Len(t, []rune(line), 120, "line %d", i)
	}

	header := lines[0]
	assert.Equal(t, "1210", header[:4])
	assert.Contains(t, header, "0625")

	data := lines[1]
	assert.Equal(t, "2", data[:1])
	assert.Contains(t, data, "0000250055")
	assert.Contains(t, data, "1", "savings account class")
}

func TestBuildZengin_HolderFallsBackToName(t *testing.T) {
	// GIVEN: a payee without an explicit account holder
	// WHEN: building
	// THEN: last+first name fills the holder field

	payees := []export.ZenginPayee{
		{BankName: "MIZUHO", BranchName: "HONTEN", AccountType: model.AccountSavings, AccountNumber: "1234567", LastName: "YAMADA", FirstName: "TARO", Amount: 1000},
	}
	raw, _, err := export.BuildZengin("TEST", time.Date(2024, time.June, 25, 0, 0, 0, 0, time.UTC), payees)
	require.NoError(t, err)

	assert.Contains(t, decodeShiftJIS(t, raw), "YAMADATARO")
}

func TestBuildZengin_NoPayees(t *testing.T) {
	// GIVEN: no confirmed records
	// WHEN: building
	// THEN: NotFound

	_, _, err := export.BuildZengin("TEST", time.Now(), nil)
	assert.True(t, errs.IsNotFound(err))
}

// =============================================================================
// JOURNAL
// =============================================================================

func confirmedRecord(items ...model.PayrollRecordItem) model.PayrollRecord {
	return model.PayrollRecord{Status: model.RecordConfirmed, Items: items}
}

func TestAggregateItems_SumsByCodeConfirmedOnly(t *testing.T) {
	// GIVEN: two confirmed records and one draft sharing item codes
	// WHEN: aggregating
	// THEN: confirmed amounts sum per (type, code); the draft is ignored

	records := []model.PayrollRecord{
		confirmedRecord(
			model.PayrollRecordItem{ItemType: model.ItemEarning, ItemCode: "base_salary", ItemName: "基本給", Amount: 300000},
			model.PayrollRecordItem{ItemType: model.ItemDeduction, ItemCode: "income_tax", ItemName: "所得税", Amount: 5740},
		),
		confirmedRecord(
			model.PayrollRecordItem{ItemType: model.ItemEarning, ItemCode: "base_salary", ItemName: "基本給", Amount: 280000},
		),
		{Status: model.RecordDraft, Items: []model.PayrollRecordItem{
			{ItemType: model.ItemEarning, ItemCode: "base_salary", Amount: 999999},
		}},
	}

	aggs := export.AggregateItems(records)
	require.Len(t, aggs, 2)
	assert.Equal(t, int64(5740), aggs[0].Total, "deductions sort before earnings")
	assert.Equal(t, int64(580000), aggs[1].Total)
}

func TestBuildJournalCSV_MappedAndFallbackRows(t *testing.T) {
	// GIVEN: a mapped earning and an unmapped deduction
	// WHEN: rendering the journal
	// THEN: the mapped row carries its account on the debit side; the
	//       unmapped deduction falls back to 預り金 on the credit side

	aggs := []export.ItemAggregate{
		{ItemType: model.ItemEarning, ItemCode: "base_salary", ItemName: "基本給", Total: 580000},
		{ItemType: model.ItemDeduction, ItemCode: "income_tax", ItemName: "所得税", Total: 5740},
	}
	mappings := []model.AccountingMapping{
		{ItemType: model.ItemEarning, ItemCode: "base_salary", AccountCode: "6001", AccountName: "給料手当"},
	}

	raw, err := export.BuildJournalCSV(aggs, mappings)
	require.NoError(t, err)

	content := string(raw)
	assert.True(t, strings.HasPrefix(content, "\xEF\xBB\xBF"), "BOM")
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(content, "\xEF\xBB\xBF")), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "借方科目コード,借方科目名,貸方科目コード,貸方科目名,金額,摘要", strings.TrimSpace(lines[0]))
	assert.Equal(t, "6001,給料手当,,,580000,基本給", strings.TrimSpace(lines[1]))
	assert.Equal(t, ",,預り金,預り金,5740,所得税", strings.TrimSpace(lines[2]))
}

// =============================================================================
// LEDGER
// =============================================================================

func TestBuildLedgerCSV_GrandTotalRow(t *testing.T) {
	// GIVEN: two employees
	// WHEN: rendering the ledger
	// THEN: per-employee rows plus a 合計 row summing each column

	entries := []export.LedgerEntry{
		{EmployeeCode: "E001", EmployeeName: "山田 太郎", Department: "営業部", TotalEarnings: 300000, TotalDeductions: 49945, NetPay: 250055},
		{EmployeeCode: "E002", EmployeeName: "鈴木 花子", Department: "", TotalEarnings: 220000, TotalDeductions: 22000, NetPay: 198000},
	}

	raw, err := export.BuildLedgerCSV(entries)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(string(raw), "\xEF\xBB\xBF")), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "社員コード,氏名,部署,支給額合計,控除額合計,差引支給額", strings.TrimSpace(lines[0]))
	assert.Equal(t, "E001,山田 太郎,営業部,300000,49945,250055", strings.TrimSpace(lines[1]))
	assert.Equal(t, "合計,,,520000,71945,448055", strings.TrimSpace(lines[3]))
}

func TestBuildLedgerWorkbook_Renders(t *testing.T) {
	// GIVEN: one entry
	// WHEN: rendering the workbook
	// THEN: a non-empty xlsx payload comes back

	raw, err := export.BuildLedgerWorkbook("2024-05 賃金台帳", []export.LedgerEntry{
		{EmployeeCode: "E001", EmployeeName: "山田 太郎", TotalEarnings: 300000, TotalDeductions: 49945, NetPay: 250055},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "PK", string(raw[:2]), "xlsx is a zip container")
}
