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
// INCOME TAX WITHHOLDING
// =============================================================================

// offTableRate is the flat fallback applied to otsu and hei income
// that falls outside every bracket. Temporary policy pending a sourced
// table extension.
var offTableRate = decimal.NewFromFloat(0.0358)

// TaxEngine computes the monthly income tax withholding.
type TaxEngine struct {
	book *ratebook.Book
}

// NewTaxEngine builds a tax engine over the given rate book.
func NewTaxEngine(book *ratebook.Book) *TaxEngine {
	return &TaxEngine{book: book}
}

// tableFor maps the employee's withholding category to a table type.
func tableFor(category model.TaxCategory, isMonthly bool) model.TaxTableType {
	switch category {
	case model.TaxOtsu:
		return model.TableOtsu
	case model.TaxHei:
		return model.TableHei
	default:
		if isMonthly {
			return model.TableMonthlyKou
		}
		return model.TableDailyKou
	}
}

// CalculateIncomeTax returns the withheld amount for the taxable base.
// When no bracket matches: otsu/hei fall back to floor(taxable x
// 0.0358); kou withholds zero and offTable reports the miss.
func (e *TaxEngine) CalculateIncomeTax(ctx context.Context, taxable int64, category model.TaxCategory, dependents int, date time.Time, isMonthly bool) (tax int64, offTable bool, err error) {
	if taxable <= 0 {
		return 0, false, nil
	}

	tableType := tableFor(category, isMonthly)
	amount, err := e.book.FindIncomeTax(ctx, tableType, taxable, dependents, date)
	switch {
	case err == nil:
		return amount, false, nil
	case errs.IsNotFound(err):
		if category == model.TaxOtsu || category == model.TaxHei {
			return decimal.NewFromInt(taxable).Mul(offTableRate).Floor().IntPart(), true, nil
		}
		return 0, true, nil
	default:
		return 0, false, err
	}
}
