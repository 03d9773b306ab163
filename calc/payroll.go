package calc

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// ITEM CODES
// =============================================================================

// Line item codes. Allowance items carry the allowance type's own code.
const (
	CodeBaseSalary           = "base_salary"
	CodeWithinStatutoryOT    = "overtime_within_statutory"
	CodeStatutoryOT          = "overtime_statutory"
	CodeOver60hPremium       = "overtime_over_60h"
	CodeNightPremium         = "night_premium"
	CodeStatutoryHoliday     = "holiday_statutory"
	CodeNonStatutoryHoliday  = "holiday_non_statutory"
	CodeNightOvertime        = "night_overtime"
	CodeNightHoliday         = "night_holiday"
	CodeNightOTHoliday       = "night_overtime_holiday"
	CodeCommute              = "commute_allowance"
	CodeHealthInsurance      = "health_insurance"
	CodeCareInsurance        = "care_insurance"
	CodePensionInsurance     = "pension_insurance"
	CodeEmploymentInsurance  = "employment_insurance"
	CodeIncomeTax            = "income_tax"
	CodeResidentTax          = "resident_tax"
)

// statutoryWorkDaysDefault divides the monthly salary for absence
// deductions when the attendance record carries no statutory_work_days.
const statutoryWorkDaysDefault = 20

// =============================================================================
// CALCULATOR
// =============================================================================

// Masters loads the per-employee reference data a calculation needs.
// Implementations must read inside the caller's transaction so rate
// rows and masters come from one consistent snapshot.
type Masters interface {
	// Attendance returns the month's record, or nil when none exists.
	Attendance(ctx context.Context, companyID, employeeID int64, ym model.YearMonth) (*model.AttendanceRecord, error)

	// ActiveAllowances returns allowances overlapping [start, end] whose
	// type is active, with AllowanceType populated.
	ActiveAllowances(ctx context.Context, companyID, employeeID int64, period model.PayrollPeriod) ([]model.EmployeeAllowance, error)

	// ActiveCommute returns the commute detail covering the period, or
	// nil. When several overlap, the greatest effective_from wins, then
	// the greatest id.
	ActiveCommute(ctx context.Context, companyID, employeeID int64, period model.PayrollPeriod) (*model.CommuteDetail, error)
}

// CalcResult is the outcome of one payroll calculation, ready to be
// persisted as a draft record by the state machine.
type CalcResult struct {
	Items   []model.PayrollRecordItem
	Details model.CalculationDetails

	TotalEarnings   int64
	TotalDeductions int64
	NetPay          int64
}

// Calculator assembles one employee's payroll for one period.
type Calculator struct {
	masters   Masters
	insurance *InsuranceEngine
	tax       *TaxEngine
	company   *model.Company
}

// NewCalculator wires the engines for one company.
func NewCalculator(masters Masters, insurance *InsuranceEngine, tax *TaxEngine, company *model.Company) *Calculator {
	return &Calculator{masters: masters, insurance: insurance, tax: tax, company: company}
}

// Calculate runs the full calculation. Deduction lines whose rate
// lookup misses are omitted, with a note on the details.
func (c *Calculator) Calculate(ctx context.Context, emp *model.Employee, period model.PayrollPeriod) (*CalcResult, error) {
	if err := emp.Validate(); err != nil {
		return nil, err
	}

	res := &CalcResult{}
	details := &res.Details
	details.SalaryType = emp.SalaryType

	order := 0
	addItem := func(itemType model.ItemType, code, name string, amount int64, taxable, social, employment bool) error {
		if amount < 0 {
			return errs.Internalf("negative %s item %s: %d", itemType, code, amount)
		}
		order += 10
		res.Items = append(res.Items, model.PayrollRecordItem{
			ItemType:                    itemType,
			ItemCode:                    code,
			ItemName:                    name,
			Amount:                      amount,
			IsTaxable:                   taxable,
			IsSocialInsuranceTarget:     social,
			IsEmploymentInsuranceTarget: employment,
			DisplayOrder:                order,
		})
		return nil
	}
	note := func(format string, args ...any) {
		details.Notes = append(details.Notes, fmt.Sprintf(format, args...))
	}

	// 1. Attendance; absent means all-zero minutes and zero work days.
	att, err := c.masters.Attendance(ctx, emp.CompanyID, emp.ID, period.YearMonth)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	if att == nil {
		att = &model.AttendanceRecord{EmployeeID: emp.ID, YearMonth: period.YearMonth}
	}
	details.WorkDays = att.WorkDays
	details.TotalWorkMinutes = att.TotalWorkMinutes

	// 2. Base salary by salary type.
	baseSalary := c.baseSalary(emp, att, note)
	details.BaseSalary = baseSalary
	if err := addItem(model.ItemEarning, CodeBaseSalary, "基本給", baseSalary, true, true, true); err != nil {
		return nil, err
	}

	// 3. Base hourly rate for the premium calculation.
	baseHourly := baseHourlyRate(emp, baseSalary)
	details.BaseHourlyRate = baseHourly

	// 4. Overtime premiums; zero components produce no item.
	ot := ComputeOvertime(baseHourly, att.Minutes())
	for _, line := range []struct {
		code, name string
		amount     int64
	}{
		{CodeWithinStatutoryOT, "残業手当(法定内)", ot.WithinStatutoryPay},
		{CodeStatutoryOT, "残業手当", ot.StatutoryOvertimePay},
		{CodeOver60hPremium, "残業手当(60時間超)", ot.Over60hPremiumPay},
		{CodeNightPremium, "深夜手当", ot.NightPremiumPay},
		{CodeStatutoryHoliday, "休日手当(法定)", ot.StatutoryHolidayPay},
		{CodeNonStatutoryHoliday, "休日手当(法定外)", ot.NonStatutoryHolidayPay},
		{CodeNightOvertime, "深夜残業手当", ot.NightOvertimePay},
		{CodeNightHoliday, "深夜休日手当", ot.NightHolidayPay},
		{CodeNightOTHoliday, "深夜残業休日手当", ot.NightOvertimeHolidayPay},
	} {
		if line.amount == 0 {
			continue
		}
		if err := addItem(model.ItemEarning, line.code, line.name, line.amount, true, true, true); err != nil {
			return nil, err
		}
	}

	// 5. Recurring allowances.
	allowances, err := c.masters.ActiveAllowances(ctx, emp.CompanyID, emp.ID, period)
	if err != nil {
		return nil, fmt.Errorf("load allowances: %w", err)
	}
	for i := range allowances {
		a := &allowances[i]
		if a.AllowanceType == nil || !a.AllowanceType.IsActive {
			continue
		}
		at := a.AllowanceType
		if err := addItem(model.ItemEarning, at.Code, at.Name, a.Amount, at.IsTaxable, at.IsSocialInsuranceTarget, at.IsEmploymentInsuranceTarget); err != nil {
			return nil, err
		}
	}

	// 6. Commute allowance; the non-taxable portion is tracked
	//    separately for the taxable base.
	commute, err := c.masters.ActiveCommute(ctx, emp.CompanyID, emp.ID, period)
	if err != nil {
		return nil, fmt.Errorf("load commute: %w", err)
	}
	if commute != nil && commute.MonthlyCost > 0 {
		details.CommuteNonTaxable = commute.NonTaxablePortion()
		if err := addItem(model.ItemEarning, CodeCommute, "通勤手当", commute.MonthlyCost, false, true, true); err != nil {
			return nil, err
		}
	}

	// 7. Gross salary.
	var gross int64
	for i := range res.Items {
		gross += res.Items[i].Amount
	}
	details.GrossSalary = gross

	// 8. Social insurance, in order: health, care, pension, employment.
	//    A rate miss omits the line and leaves a note.
	var socialTotal int64
	payDate := period.PaymentDate
	if emp.SocialInsuranceEnrolled {
		health, care, err := c.insurance.Health(ctx, gross, payDate, emp.AgeOn(payDate))
		switch {
		case IsRateMiss(err):
			note("health insurance rate not found for %s", payDate.Format("2006-01-02"))
		case err != nil:
			return nil, err
		default:
			if health > 0 {
				if err := addItem(model.ItemDeduction, CodeHealthInsurance, "健康保険料", health, false, false, false); err != nil {
					return nil, err
				}
				socialTotal += health
			}
			if care > 0 {
				if err := addItem(model.ItemDeduction, CodeCareInsurance, "介護保険料", care, false, false, false); err != nil {
					return nil, err
				}
				socialTotal += care
			}
		}
	}
	if emp.PensionInsuranceEnrolled {
		pension, err := c.insurance.Pension(ctx, gross, payDate)
		switch {
		case IsRateMiss(err):
			note("pension rate not found for %s", payDate.Format("2006-01-02"))
		case err != nil:
			return nil, err
		default:
			if pension > 0 {
				if err := addItem(model.ItemDeduction, CodePensionInsurance, "厚生年金保険料", pension, false, false, false); err != nil {
					return nil, err
				}
				socialTotal += pension
			}
		}
	}
	if emp.EmploymentInsuranceEnrolled {
		employment, err := c.insurance.Employment(ctx, gross, payDate)
		switch {
		case IsRateMiss(err):
			note("employment insurance rate not found for %s", payDate.Format("2006-01-02"))
		case err != nil:
			return nil, err
		default:
			if employment > 0 {
				if err := addItem(model.ItemDeduction, CodeEmploymentInsurance, "雇用保険料", employment, false, false, false); err != nil {
					return nil, err
				}
				socialTotal += employment
			}
		}
	}
	details.SocialInsuranceTotal = socialTotal

	// 9. Taxable base.
	taxable := gross - details.CommuteNonTaxable - socialTotal
	if taxable < 0 {
		taxable = 0
	}
	details.TaxableEarnings = taxable

	// 10. Income tax; the monthly table applies only to monthly salary.
	incomeTax, offTable, err := c.tax.CalculateIncomeTax(ctx, taxable, emp.TaxCategory, emp.DependentsCount, payDate, emp.SalaryType == model.SalaryMonthly)
	if err != nil {
		return nil, err
	}
	if offTable {
		note("taxable income %d outside %s tax table", taxable, emp.TaxCategory)
	}
	details.IncomeTax = incomeTax
	if incomeTax > 0 {
		if err := addItem(model.ItemDeduction, CodeIncomeTax, "所得税", incomeTax, false, false, false); err != nil {
			return nil, err
		}
	}

	// 11. Resident tax, fixed monthly amount.
	if emp.ResidentTaxMonthly > 0 {
		if err := addItem(model.ItemDeduction, CodeResidentTax, "住民税", emp.ResidentTaxMonthly, false, false, false); err != nil {
			return nil, err
		}
	}

	// 12. Totals.
	details.EmployeeAge = emp.AgeOn(payDate)
	for i := range res.Items {
		switch res.Items[i].ItemType {
		case model.ItemEarning:
			res.TotalEarnings += res.Items[i].Amount
		case model.ItemDeduction:
			res.TotalDeductions += res.Items[i].Amount
		}
	}
	res.NetPay = res.TotalEarnings - res.TotalDeductions
	return res, nil
}

// baseSalary computes step 2. A monthly salary driven negative by
// absence deductions is clamped to zero with a note.
func (c *Calculator) baseSalary(emp *model.Employee, att *model.AttendanceRecord, note func(string, ...any)) int64 {
	s := emp.SalarySettings
	switch emp.SalaryType {
	case model.SalaryMonthly:
		base := s.MonthlySalary
		if att.AbsenceDays > 0 {
			days := int64(att.StatutoryWorkDays)
			if days <= 0 {
				days = statutoryWorkDaysDefault
			}
			perDay := base / days
			base -= perDay * int64(att.AbsenceDays)
			if base < 0 {
				note("absence deduction exceeded monthly salary; clamped to 0")
				base = 0
			}
		}
		return base
	case model.SalaryDaily:
		return s.DailyRate * int64(att.WorkDays)
	case model.SalaryHourly:
		return decimal.NewFromInt(s.HourlyRate).
			Mul(decimal.NewFromInt(int64(att.TotalWorkMinutes))).
			Div(decimal.NewFromInt(60)).
			Floor().IntPart()
	default:
		return s.BaseAmount + s.CommissionAmount
	}
}

// baseHourlyRate computes step 3, the rate the premium engine prices
// minutes at.
func baseHourlyRate(emp *model.Employee, baseSalary int64) int64 {
	s := emp.SalarySettings
	switch emp.SalaryType {
	case model.SalaryMonthly:
		return s.MonthlySalary / int64(s.PrescribedHours())
	case model.SalaryDaily:
		return s.DailyRate / 8
	case model.SalaryHourly:
		return s.HourlyRate
	default:
		return baseSalary / int64(s.PrescribedHours())
	}
}
