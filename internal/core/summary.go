package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Summary is a compact overview of a set of transactions.
type Summary struct {
	Credits    decimal.Decimal
	Expenses   decimal.Decimal
	ByCategory []CategoryAmount // sorted by name
}

// Net is credits minus expenses.
func (s Summary) Net() decimal.Decimal {
	return s.Credits.Sub(s.Expenses)
}

// Summarize totals txs by type and by category. Amounts are summed as stored.
func Summarize(txs []Transaction) Summary {
	s := Summary{Credits: decimal.Zero, Expenses: decimal.Zero}
	byCat := make(map[string]decimal.Decimal)
	for _, t := range txs {
		switch t.Type {
		case Credit:
			s.Credits = s.Credits.Add(t.Amount)
		case Expense:
			s.Expenses = s.Expenses.Add(t.Amount)
		}
		byCat[t.Category] = byCat[t.Category].Add(t.Amount)
	}
	for name, amount := range byCat {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool { return s.ByCategory[i].Name < s.ByCategory[j].Name })
	return s
}
