/*
reports.go - Export endpoints

PURPOSE:
  Serves the downloadable artifacts of a pay period:
    - payroll ledger (賃金台帳) as CSV or Excel
    - accounting journal CSV for the bookkeeping system
    - Zengin bank transfer file (Shift-JIS fixed-length records)
    - monthly summary JSON for the dashboard

  Ledger and journal cover confirmed records only. Generating a bank
  transfer file appends an audit row with its record count and total.
*/
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/export"
	"github.com/kyuyo/payroll-engine/model"
)

func (h *Handler) periodFromQuery(r *http.Request) (*model.PayrollPeriod, error) {
	actor := actorFrom(r)
	id, err := strconv.ParseInt(r.URL.Query().Get("period_id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, errs.Validationf("period_id", "must be a positive integer")
	}
	return h.Store.Period(r.Context(), actor.CompanyID, id)
}

// employeeIndex maps employee ids to their master rows.
func (h *Handler) employeeIndex(r *http.Request) (map[int64]model.Employee, error) {
	actor := actorFrom(r)
	employees, err := h.Store.Employees(r.Context(), actor.CompanyID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}
	return byID, nil
}

func serveFile(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// =============================================================================
// PAYROLL LEDGER
// =============================================================================

// PayrollLedger renders the 賃金台帳 for a period. ?format=xlsx selects
// the Excel workbook; CSV is the default.
func (h *Handler) PayrollLedger(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	records, err := h.Store.ConfirmedRecordsInPeriod(r.Context(), actor.CompanyID, period.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	byID, err := h.employeeIndex(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	entries := make([]export.LedgerEntry, 0, len(records))
	for _, rec := range records {
		emp := byID[rec.EmployeeID]
		entries = append(entries, export.LedgerEntry{
			EmployeeCode:    emp.EmployeeCode,
			EmployeeName:    emp.FullName(),
			Department:      emp.Department,
			TotalEarnings:   rec.TotalEarnings,
			TotalDeductions: rec.TotalDeductions,
			NetPay:          rec.NetPay,
		})
	}

	ymCompact := fmt.Sprintf("%04d%02d", period.YearMonth.Year(), int(period.YearMonth.Month()))
	if r.URL.Query().Get("format") == "xlsx" {
		title := fmt.Sprintf("%s 賃金台帳", period.YearMonth)
		body, err := export.BuildLedgerWorkbook(title, entries)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		serveFile(w,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			fmt.Sprintf("payroll_ledger_%s.xlsx", ymCompact), body)
		return
	}

	body, err := export.BuildLedgerCSV(entries)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	serveFile(w, "text/csv; charset=utf-8", fmt.Sprintf("payroll_ledger_%s.csv", ymCompact), body)
}

// =============================================================================
// ACCOUNTING JOURNAL
// =============================================================================

// AccountingJournal renders the period's journal CSV from confirmed
// records and the tenant's account mappings.
func (h *Handler) AccountingJournal(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	records, err := h.Store.ConfirmedRecordsInPeriod(r.Context(), actor.CompanyID, period.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	mappings, err := h.Store.AccountingMappings(r.Context(), actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	body, err := export.BuildJournalCSV(export.AggregateItems(records), mappings)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	filename := fmt.Sprintf("accounting_journal_%04d%02d.csv", period.YearMonth.Year(), int(period.YearMonth.Month()))
	serveFile(w, "text/csv; charset=utf-8", filename, body)
}

// =============================================================================
// BANK TRANSFER
// =============================================================================

// BankTransfer builds the Zengin file for the period's confirmed net
// pays and records the export.
func (h *Handler) BankTransfer(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	ctx := r.Context()
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	company, err := h.Store.Company(ctx, actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	records, err := h.Store.ConfirmedRecordsInPeriod(ctx, actor.CompanyID, period.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	byID, err := h.employeeIndex(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	payees := make([]export.ZenginPayee, 0, len(records))
	for _, rec := range records {
		emp, ok := byID[rec.EmployeeID]
		if !ok || emp.AccountNumber == "" {
			continue
		}
		payees = append(payees, export.ZenginPayee{
			BankName:      emp.BankName,
			BranchName:    emp.BranchName,
			AccountType:   emp.AccountType,
			AccountNumber: emp.AccountNumber,
			HolderKana:    emp.AccountHolderKana,
			LastName:      emp.LastNameKana,
			FirstName:     emp.FirstNameKana,
			Amount:        rec.NetPay,
		})
	}

	companyName := company.NameKana
	if companyName == "" {
		companyName = company.Name
	}
	body, summary, err := export.BuildZengin(companyName, period.PaymentDate, payees)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	filename := fmt.Sprintf("bank_transfer_%04d%02d.txt", period.YearMonth.Year(), int(period.YearMonth.Month()))
	if err := h.Store.CreateBankTransferExport(ctx, &model.BankTransferExport{
		CompanyID:   actor.CompanyID,
		PeriodID:    period.ID,
		FileName:    filename,
		RecordCount: summary.RecordCount,
		TotalAmount: summary.TotalAmount,
		GeneratedBy: actor.UserID,
	}); err != nil {
		h.writeDomainError(w, err)
		return
	}

	serveFile(w, "text/plain; charset=Shift_JIS", filename, body)
}

// =============================================================================
// MONTHLY SUMMARY
// =============================================================================

// MonthlySummary aggregates a period's records per status. Sums cover
// confirmed records only.
func (h *Handler) MonthlySummary(w http.ResponseWriter, r *http.Request) {
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

	resp := monthlySummaryResponse{
		PeriodID:    period.ID,
		YearMonth:   period.YearMonth.String(),
		PaymentDate: period.PaymentDate,
	}
	employees := make(map[int64]struct{})
	for _, rec := range records {
		employees[rec.EmployeeID] = struct{}{}
		switch rec.Status {
		case model.RecordConfirmed:
			resp.ConfirmedCount++
			resp.TotalEarnings += rec.TotalEarnings
			resp.TotalDeductions += rec.TotalDeductions
			resp.TotalNetPay += rec.NetPay
		case model.RecordDraft:
			resp.DraftCount++
		case model.RecordCancelled:
			resp.CancelledCount++
		}
	}
	resp.EmployeeCount = len(employees)
	writeJSON(w, http.StatusOK, resp)
}
