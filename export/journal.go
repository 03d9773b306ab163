package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/kyuyo/payroll-engine/model"
)

// =============================================================================
// ACCOUNTING JOURNAL CSV
// =============================================================================

// Fallback labels when an item has no accounting mapping.
const (
	fallbackEarningAccount   = "給与手当"
	fallbackDeductionAccount = "預り金"
)

// utf8BOM makes spreadsheet software recognize the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ItemAggregate is the sum of one (item_type, item_code) across all
// confirmed records of a period.
type ItemAggregate struct {
	ItemType model.ItemType
	ItemCode string
	ItemName string
	Total    int64
}

// AggregateItems folds confirmed records' items by (type, code). The
// first seen item name labels the group. Output order is type then
// code.
func AggregateItems(records []model.PayrollRecord) []ItemAggregate {
	type key struct {
		t model.ItemType
		c string
	}
	sums := make(map[key]*ItemAggregate)
	for i := range records {
		if records[i].Status != model.RecordConfirmed {
			continue
		}
		for _, it := range records[i].Items {
			k := key{it.ItemType, it.ItemCode}
			agg, ok := sums[k]
			if !ok {
				agg = &ItemAggregate{ItemType: it.ItemType, ItemCode: it.ItemCode, ItemName: it.ItemName}
				sums[k] = agg
			}
			agg.Total += it.Amount
		}
	}
	out := make([]ItemAggregate, 0, len(sums))
	for _, agg := range sums {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemType != out[j].ItemType {
			return out[i].ItemType < out[j].ItemType
		}
		return out[i].ItemCode < out[j].ItemCode
	})
	return out
}

// BuildJournalCSV renders the journal. Earnings write the debit side,
// deductions the credit side; unmapped items fall back to the standard
// labels.
func BuildJournalCSV(aggregates []ItemAggregate, mappings []model.AccountingMapping) ([]byte, error) {
	type key struct {
		t model.ItemType
		c string
	}
	byKey := make(map[key]*model.AccountingMapping, len(mappings))
	for i := range mappings {
		m := &mappings[i]
		byKey[key{m.ItemType, m.ItemCode}] = m
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"借方科目コード", "借方科目名", "貸方科目コード", "貸方科目名", "金額", "摘要"}); err != nil {
		return nil, err
	}

	for _, agg := range aggregates {
		var row []string
		m := byKey[key{agg.ItemType, agg.ItemCode}]
		amount := strconv.FormatInt(agg.Total, 10)
		switch {
		case m != nil && agg.ItemType == model.ItemEarning:
			row = []string{m.AccountCode, m.AccountName, "", "", amount, agg.ItemName}
		case m != nil:
			row = []string{"", "", m.AccountCode, m.AccountName, amount, agg.ItemName}
		case agg.ItemType == model.ItemEarning:
			row = []string{fallbackEarningAccount, fallbackEarningAccount, "", "", amount, agg.ItemName}
		default:
			row = []string{"", "", fallbackDeductionAccount, fallbackDeductionAccount, amount, agg.ItemName}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write journal csv: %w", err)
	}
	return buf.Bytes(), nil
}
