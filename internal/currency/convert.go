// Package currency converts amounts between currencies using a rate table
// anchored at a single base currency.
package currency

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rates maps a currency code to the number of units of that currency worth
// one unit of the table's base currency.
type Rates map[string]decimal.Decimal

// Table is a rate snapshot fetched for Base at FetchedAt.
type Table struct {
	Base      string    `json:"base"`
	Rates     Rates     `json:"rates"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// IsEmpty reports whether the table carries no rates at all.
func (t Table) IsEmpty() bool {
	return len(t.Rates) == 0
}

// Convert converts amount between two currencies using this table. A table
// with no recorded base is assumed to be anchored at to.
func (t Table) Convert(amount decimal.Decimal, from, to string) Result {
	base := t.Base
	if base == "" {
		base = to
	}
	return Convert(amount, from, to, t.Rates, base)
}

// Status describes how a conversion result was obtained.
type Status int

const (
	// Identity means source and target currency were the same.
	Identity Status = iota
	// Converted means every factor involved came from the rate table.
	Converted
	// NoRates means the table was empty and the amount was returned unchanged.
	NoRates
	// MissingRate means at least one currency was absent from the table and a
	// factor of 1 was assumed for it.
	MissingRate
)

func (s Status) String() string {
	switch s {
	case Identity:
		return "identity"
	case Converted:
		return "converted"
	case NoRates:
		return "no_rates"
	case MissingRate:
		return "missing_rate"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is a converted amount together with how it was derived.
type Result struct {
	Amount decimal.Decimal
	Status Status
}

// Degraded reports whether the amount is not a faithful conversion.
func (r Result) Degraded() bool {
	return r.Status == NoRates || r.Status == MissingRate
}

// Convert converts amount from one currency to another through base.
//
// The conversion never fails: with an empty table the amount is returned
// unchanged, and a currency missing from the table (or with a zero rate)
// is treated as having a factor of 1. Result.Status records either case.
func Convert(amount decimal.Decimal, from, to string, rates Rates, base string) Result {
	if from == "" || to == "" || from == to {
		return Result{Amount: amount, Status: Identity}
	}
	if len(rates) == 0 {
		return Result{Amount: amount, Status: NoRates}
	}

	missing := false
	factor := func(code string) decimal.Decimal {
		r, ok := rates[code]
		if !ok || !r.IsPositive() {
			missing = true
			return decimal.NewFromInt(1)
		}
		return r
	}

	var out decimal.Decimal
	switch {
	case from == base:
		out = amount.Mul(factor(to))
	case to == base:
		out = amount.Div(factor(from))
	default:
		out = amount.Div(factor(from)).Mul(factor(to))
	}

	status := Converted
	if missing {
		status = MissingRate
	}
	return Result{Amount: out, Status: status}
}
