package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const dateLayout = "2006-01-02"

type (
	TransactionType string

	// Date is a calendar date without time of day, normalized to midnight UTC.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID       string          `json:"id"`
		Type     TransactionType `json:"type"`
		Amount   decimal.Decimal `json:"amount"`
		Category string          `json:"category"`
		Date     Date            `json:"date"`
		Currency string          `json:"currency"`
	}

	// Goal is a savings target expressed in the default currency.
	Goal struct {
		Target   decimal.Decimal `json:"target"`
		Deadline Date            `json:"deadline"`
	}
)

var (
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCategory   = errors.New("empty category")
	ErrCategoryTooLong = errors.New("category too long (max 100 characters)")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrEmptyID         = errors.New("empty transaction id")
	ErrInvalidGoal     = errors.New("invalid goal")
)

// NewTransactionID returns a fresh opaque identifier for a transaction.
func NewTransactionID() string {
	return "txn_" + uuid.NewString()
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf strips the time of day from t, keeping the calendar date of t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current local calendar date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// DaysUntil returns the number of whole calendar days from d to other.
// Negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(data))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Category) > 100 {
		return ErrCategoryTooLong
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !IsSupportedCurrency(t.Currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, t.Currency)
	}
	return nil
}

// IsIncome reports whether the transaction adds to the balance.
func (t Transaction) IsIncome() bool {
	return t.Type == Income
}

// MarshalJSON writes the amount as a JSON number rather than decimal's quoted string.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return json.Marshal(struct {
		plain
		Amount json.Number `json:"amount"`
	}{plain(t), json.Number(t.Amount.String())})
}

func (g Goal) Validate() error {
	if !g.Target.IsPositive() {
		return fmt.Errorf("%w: target must be greater than zero", ErrInvalidGoal)
	}
	if g.Deadline.IsZero() {
		return fmt.Errorf("%w: missing deadline", ErrInvalidGoal)
	}
	return nil
}

func (g Goal) MarshalJSON() ([]byte, error) {
	type plain Goal
	return json.Marshal(struct {
		plain
		Target json.Number `json:"target"`
	}{plain(g), json.Number(g.Target.String())})
}
