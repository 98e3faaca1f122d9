package finance

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// GoalState distinguishes the three ways a goal can be rendered.
type GoalState string

const (
	GoalUnset      GoalState = "unset"
	GoalInProgress GoalState = "in_progress"
	GoalAchieved   GoalState = "achieved"
)

var hundred = decimal.NewFromInt(100)

// GoalStatus is the progress toward a savings goal. Numeric fields are only
// meaningful when State is not GoalUnset.
type GoalStatus struct {
	State       GoalState       `json:"state"`
	Target      decimal.Decimal `json:"target"`
	Deadline    core.Date       `json:"deadline"`
	SavedSoFar  decimal.Decimal `json:"savedSoFar"`
	Remaining   decimal.Decimal `json:"remaining"`
	DaysLeft    int             `json:"daysLeft"`
	DailyNeeded decimal.Decimal `json:"dailyNeeded"`
	Percent     decimal.Decimal `json:"percent"`
}

// Achieved reports whether nothing remains to be saved.
func (s GoalStatus) Achieved() bool {
	return s.State == GoalAchieved
}

// DeadlineReached reports whether no whole day is left before the deadline.
func (s GoalStatus) DeadlineReached() bool {
	return s.State != GoalUnset && s.DaysLeft == 0
}

// DailyDisplay is the per-day saving rounded up to the cent.
func (s GoalStatus) DailyDisplay() decimal.Decimal {
	return core.CeilCents(s.DailyNeeded)
}

// EvaluateGoal computes progress toward goal given the current balance in
// the goal's currency. A nil goal, or one with a non-positive target,
// yields GoalUnset.
func EvaluateGoal(goal *core.Goal, balance decimal.Decimal, today core.Date) GoalStatus {
	if goal == nil || !goal.Target.IsPositive() || goal.Deadline.IsZero() {
		return GoalStatus{State: GoalUnset}
	}

	saved := decimal.Max(balance, decimal.Zero)
	remaining := decimal.Max(goal.Target.Sub(saved), decimal.Zero)
	daysLeft := today.DaysUntil(goal.Deadline)
	if daysLeft < 0 {
		daysLeft = 0
	}

	daily := remaining
	if daysLeft > 0 {
		daily = remaining.Div(decimal.NewFromInt(int64(daysLeft)))
	}

	percent := saved.Div(goal.Target).Mul(hundred)
	percent = decimal.Min(decimal.Max(percent, decimal.Zero), hundred)

	state := GoalInProgress
	if !remaining.IsPositive() {
		state = GoalAchieved
	}

	return GoalStatus{
		State:       state,
		Target:      goal.Target,
		Deadline:    goal.Deadline,
		SavedSoFar:  saved,
		Remaining:   remaining,
		DaysLeft:    daysLeft,
		DailyNeeded: daily,
		Percent:     percent,
	}
}
