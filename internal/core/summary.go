package core

import "github.com/shopspring/decimal"

// Totals is the income/expense/balance aggregate in a single currency.
type Totals struct {
	Currency string          `json:"currency"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
	// Unconverted counts transactions whose amount could not be converted
	// with a real rate and were summed at face value.
	Unconverted int `json:"unconverted"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Type   TransactionType `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}
