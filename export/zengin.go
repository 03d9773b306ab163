/*
Package export renders confirmed payroll data into external formats.

PURPOSE:
  Three outputs, all pure functions over already-loaded confirmed
  records: the Zengin fixed-width bank-transfer file, the accounting
  journal CSV, and the payroll ledger (CSV and Excel workbook).

FORMATS:
  - Zengin: 120 characters per record, CRLF terminators, Shift-JIS.
    Text fields are left-justified and space-padded; numeric fields
    are zero-padded on the left.
  - CSVs: UTF-8 with a BOM so spreadsheet software detects Japanese
    column headers correctly.
*/
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// ZENGIN BANK TRANSFER FILE
// =============================================================================

const zenginRecordLen = 120

// ZenginPayee is one data record's worth of transfer destination.
type ZenginPayee struct {
	BankName      string
	BranchName    string
	AccountType   model.AccountType
	AccountNumber string
	HolderKana    string // falls back to LastName+FirstName when empty
	LastName      string
	FirstName     string
	Amount        int64
}

// ZenginSummary reports what the trailer recorded, for the export
// audit row.
type ZenginSummary struct {
	RecordCount int
	TotalAmount int64
}

// truncPad cuts s to width characters and left-justifies with spaces.
// Widths count characters, not encoded bytes, matching bank-side
// expectations for half-width content.
func truncPad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		r = r[:width]
	}
	return string(r) + strings.Repeat(" ", width-len(r))
}

// zeroPad renders n right-justified in width digits.
func zeroPad(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// BuildZengin renders the general transfer (総合振込) file. Records:
// header "1", one data record "2" per payee, trailer "8", end "9".
func BuildZengin(companyName string, paymentDate time.Time, payees []ZenginPayee) ([]byte, ZenginSummary, error) {
	if len(payees) == 0 {
		return nil, ZenginSummary{}, errs.NotFoundf("confirmed payroll records", "bank transfer")
	}

	var lines []string

	var header strings.Builder
	header.WriteString("1")                      // record class
	header.WriteString("21")                     // general transfer
	header.WriteString("0")                      // JIS code class
	header.WriteString(strings.Repeat(" ", 10))  // requester code
	header.WriteString(truncPad(companyName, 40))
	header.WriteString(paymentDate.Format("0102"))
	header.WriteString(strings.Repeat(" ", 15)) // sending bank
	header.WriteString(strings.Repeat(" ", 15)) // sending branch
	header.WriteString(strings.Repeat(" ", 4))  // account class
	header.WriteString(strings.Repeat(" ", 7))  // account number
	header.WriteString(strings.Repeat(" ", 17)) // filler
	lines = append(lines, fixLen(header.String()))

	var total int64
	for _, p := range payees {
		holder := p.HolderKana
		if holder == "" {
			holder = p.LastName + p.FirstName
		}
		accountClass := "2"
		if p.AccountType == model.AccountSavings {
			accountClass = "1"
		}

		var data strings.Builder
		data.WriteString("2")
		data.WriteString(strings.Repeat(" ", 4)) // bank code
		data.WriteString(truncPad(p.BankName, 15))
		data.WriteString(strings.Repeat(" ", 3)) // branch code
		data.WriteString(truncPad(p.BranchName, 15))
		data.WriteString(strings.Repeat(" ", 4)) // filler
		data.WriteString(accountClass)
		data.WriteString(truncPad(p.AccountNumber, 7))
		data.WriteString(truncPad(holder, 30))
		data.WriteString(zeroPad(p.Amount, 10))
		data.WriteString("0") // new transfer code
		data.WriteString(strings.Repeat(" ", 20))
		lines = append(lines, fixLen(data.String()))
		total += p.Amount
	}

	trailer := "8" + zeroPad(int64(len(payees)), 6) + zeroPad(total, 12) + strings.Repeat(" ", 101)
	lines = append(lines, fixLen(trailer))
	lines = append(lines, fixLen("9"))

	content := strings.Join(lines, "\r\n") + "\r\n"
	encoded, err := encodeShiftJIS(content)
	if err != nil {
		return nil, ZenginSummary{}, fmt.Errorf("encode zengin file: %w", err)
	}
	return encoded, ZenginSummary{RecordCount: len(payees), TotalAmount: total}, nil
}

// fixLen clamps a record to exactly 120 characters.
func fixLen(s string) string {
	return truncPad(s, zenginRecordLen)
}

// encodeShiftJIS converts UTF-8 text to Shift-JIS bytes. Unencodable
// runes are replaced rather than failing the whole file.
func encodeShiftJIS(s string) ([]byte, error) {
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()))
	if _, err := w.Write([]byte(s)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
