package finance

import (
	"math"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Slice is one wedge of the income/expense pie.
type Slice struct {
	Type       core.TransactionType `json:"type"`
	Amount     decimal.Decimal      `json:"amount"`
	Percent    float64              `json:"percent"`
	StartAngle float64              `json:"startAngle"`
	EndAngle   float64              `json:"endAngle"`
}

// Pie is the income/expense split. Empty is set when there is nothing to draw.
type Pie struct {
	Empty  bool    `json:"empty"`
	Slices []Slice `json:"slices"`
}

// Split turns totals into pie wedges. Angles are in radians, start at the
// top of the circle (-π/2) and run clockwise with income first. Zero-sized
// wedges are omitted.
func Split(t core.Totals) Pie {
	total := t.Income.Add(t.Expenses)
	if !total.IsPositive() {
		return Pie{Empty: true}
	}

	pie := Pie{}
	angle := -math.Pi / 2
	for _, part := range []struct {
		typ    core.TransactionType
		amount decimal.Decimal
	}{
		{core.Income, t.Income},
		{core.Expense, t.Expenses},
	} {
		if !part.amount.IsPositive() {
			continue
		}
		share, _ := part.amount.Div(total).Float64()
		sweep := share * 2 * math.Pi
		pie.Slices = append(pie.Slices, Slice{
			Type:       part.typ,
			Amount:     part.amount,
			Percent:    share * 100,
			StartAngle: angle,
			EndAngle:   angle + sweep,
		})
		angle += sweep
	}
	return pie
}
