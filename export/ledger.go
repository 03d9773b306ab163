package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// PAYROLL LEDGER
// =============================================================================

// LedgerEntry is one employee's row in the 賃金台帳 for a month.
type LedgerEntry struct {
	EmployeeCode    string
	EmployeeName    string
	Department      string
	TotalEarnings   int64
	TotalDeductions int64
	NetPay          int64
}

// LedgerTotals is the grand-total row.
type LedgerTotals struct {
	Earnings   int64
	Deductions int64
	NetPay     int64
}

// SumLedger computes the grand totals.
func SumLedger(entries []LedgerEntry) LedgerTotals {
	var t LedgerTotals
	for _, e := range entries {
		t.Earnings += e.TotalEarnings
		t.Deductions += e.TotalDeductions
		t.NetPay += e.NetPay
	}
	return t
}

var ledgerHeader = []string{"社員コード", "氏名", "部署", "支給額合計", "控除額合計", "差引支給額"}

// BuildLedgerCSV renders the ledger with a trailing 合計 row.
func BuildLedgerCSV(entries []LedgerEntry) ([]byte, error) {
	totals := SumLedger(entries)

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(ledgerHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.Write([]string{
			e.EmployeeCode, e.EmployeeName, e.Department,
			strconv.FormatInt(e.TotalEarnings, 10),
			strconv.FormatInt(e.TotalDeductions, 10),
			strconv.FormatInt(e.NetPay, 10),
		}); err != nil {
			return nil, err
		}
	}
	if err := w.Write([]string{
		"合計", "", "",
		strconv.FormatInt(totals.Earnings, 10),
		strconv.FormatInt(totals.Deductions, 10),
		strconv.FormatInt(totals.NetPay, 10),
	}); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write ledger csv: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildLedgerWorkbook renders the same ledger as an Excel workbook for
// offices that post-process the sheet.
func BuildLedgerWorkbook(title string, entries []LedgerEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "賃金台帳"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return nil, err
	}
	for col, h := range ledgerHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	row := 3
	writeRow := func(values []any) error {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		row++
		return nil
	}

	for _, e := range entries {
		if err := writeRow([]any{e.EmployeeCode, e.EmployeeName, e.Department, e.TotalEarnings, e.TotalDeductions, e.NetPay}); err != nil {
			return nil, err
		}
	}
	totals := SumLedger(entries)
	if err := writeRow([]any{"合計", "", "", totals.Earnings, totals.Deductions, totals.NetPay}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write ledger workbook: %w", err)
	}
	return buf.Bytes(), nil
}
