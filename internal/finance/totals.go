// Package finance derives totals, goal progress and chart data from the
// transaction list. Every function here is pure.
package finance

import (
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/currency"
)

// Aggregate converts every transaction into target using the rate table and
// sums income and expenses. No rounding is applied. The table may be anchored
// at a currency other than target.
func Aggregate(txs []core.Transaction, target string, table currency.Table) core.Totals {
	totals := core.Totals{
		Currency: target,
		Income:   decimal.Zero,
		Expenses: decimal.Zero,
	}
	for _, t := range txs {
		res := table.Convert(t.Amount, t.Currency, target)
		if res.Degraded() {
			totals.Unconverted++
		}
		if t.IsIncome() {
			totals.Income = totals.Income.Add(res.Amount)
		} else {
			totals.Expenses = totals.Expenses.Add(res.Amount)
		}
	}
	totals.Balance = totals.Income.Sub(totals.Expenses)
	return totals
}

// ByCategory sums converted amounts per (type, category), largest first.
func ByCategory(txs []core.Transaction, target string, table currency.Table) []core.CategoryAmount {
	type key struct {
		typ  core.TransactionType
		name string
	}
	sums := make(map[key]decimal.Decimal)
	for _, t := range txs {
		k := key{t.Type, t.Category}
		res := table.Convert(t.Amount, t.Currency, target)
		sums[k] = sums[k].Add(res.Amount)
	}

	out := make([]core.CategoryAmount, 0, len(sums))
	for k, v := range sums {
		out = append(out, core.CategoryAmount{Name: k.name, Type: k.typ, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}
