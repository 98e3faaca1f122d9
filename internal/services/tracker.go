package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/finance"
	applog "fintrack/internal/log"
	"fintrack/internal/rates"
	"fintrack/internal/storage"
	"fintrack/internal/transfer"
)

// RateSource supplies the current rate table and refreshes it on demand.
type RateSource interface {
	Table() currency.Table
	Refresh(ctx context.Context, base string) error
}

// EventPublisher is told about every ledger mutation.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, operation string, count int) error
}

// TrackerOptions carries the optional collaborators of a Tracker.
type TrackerOptions struct {
	Rates  RateSource
	Events EventPublisher
	Now    func() time.Time
}

// Tracker is the application state: the ledger, the goal, the preferences
// and the rate table, plus the operations the UI performs on them.
type Tracker struct {
	Transactions *TransactionStore
	Goals        *GoalStore
	Prefs        *PreferenceStore

	rates  RateSource
	events EventPublisher
	now    func() time.Time
}

func NewTracker(txs *TransactionStore, goals *GoalStore, prefs *PreferenceStore, opts TrackerOptions) *Tracker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		Transactions: txs,
		Goals:        goals,
		Prefs:        prefs,
		rates:        opts.Rates,
		events:       opts.Events,
		now:          now,
	}
}

// NewTrackerFromKV wires the three stores over a single KV.
func NewTrackerFromKV(kv storage.KV, locale string, opts TrackerOptions) *Tracker {
	return NewTracker(NewTransactionStore(kv), NewGoalStore(kv), NewPreferenceStore(kv, locale), opts)
}

// Load reads preferences first so that transactions missing a currency can
// be defaulted.
func (t *Tracker) Load(ctx context.Context) error {
	if err := t.Prefs.Load(ctx); err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if err := t.Transactions.Load(ctx, t.Prefs.DefaultCurrency()); err != nil {
		return err
	}
	if err := t.Goals.Load(ctx); err != nil {
		return err
	}
	return nil
}

func (t *Tracker) DefaultCurrency() string {
	return t.Prefs.DefaultCurrency()
}

func (t *Tracker) RateTable() currency.Table {
	if t.rates == nil {
		return currency.Table{}
	}
	return t.rates.Table()
}

// TransactionInput is a transaction as entered, before it has an id.
// An empty Currency means the last-used entry currency.
type TransactionInput struct {
	Type     core.TransactionType
	Amount   decimal.Decimal
	Category string
	Date     core.Date
	Currency string
}

func (t *Tracker) build(id string, in TransactionInput) core.Transaction {
	code := in.Currency
	if code == "" {
		code = t.Prefs.Get().EntryCurrency
	}
	return core.Transaction{
		ID:       id,
		Type:     in.Type,
		Amount:   in.Amount,
		Category: in.Category,
		Date:     in.Date,
		Currency: code,
	}
}

// AddTransaction records a new transaction under a fresh id and remembers its
// currency for the next entry.
func (t *Tracker) AddTransaction(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	tx := t.build(core.NewTransactionID(), in)
	if err := t.Transactions.Add(ctx, tx); err != nil {
		return core.Transaction{}, err
	}
	if tx.Currency != t.Prefs.Get().EntryCurrency {
		if err := t.Prefs.SetEntryCurrency(ctx, tx.Currency); err != nil {
			slog.WarnContext(ctx, "Failed to remember entry currency",
				applog.FieldComponent, applog.ComponentLedger, applog.FieldError, err.Error())
		}
	}
	t.logTx(ctx, "Transaction added", tx)
	t.publish(ctx, applog.OpCreate)
	return tx, nil
}

// UpdateTransaction replaces the transaction stored under id. An empty
// Currency keeps the one already recorded.
func (t *Tracker) UpdateTransaction(ctx context.Context, id string, in TransactionInput) (core.Transaction, error) {
	existing, ok := t.Transactions.Get(id)
	if !ok {
		return core.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if in.Currency == "" {
		in.Currency = existing.Currency
	}
	tx := t.build(id, in)
	if err := t.Transactions.Update(ctx, id, tx); err != nil {
		return core.Transaction{}, err
	}
	t.logTx(ctx, "Transaction updated", tx)
	t.publish(ctx, applog.OpUpdate)
	return tx, nil
}

func (t *Tracker) RemoveTransaction(ctx context.Context, id string) error {
	if err := t.Transactions.Remove(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction removed",
		applog.FieldComponent, applog.ComponentLedger, applog.FieldTxID, id)
	t.publish(ctx, applog.OpDelete)
	return nil
}

func (t *Tracker) ClearTransactions(ctx context.Context) error {
	if err := t.Transactions.Clear(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "All transactions cleared", applog.FieldComponent, applog.ComponentLedger)
	t.publish(ctx, applog.OpClear)
	return nil
}

// Row is a listed transaction with its amount in the default currency.
type Row struct {
	Transaction      core.Transaction `json:"transaction"`
	Display          string           `json:"display"`
	Converted        *decimal.Decimal `json:"converted,omitempty"`
	ConvertedDisplay string           `json:"convertedDisplay,omitempty"`
	Conversion       currency.Status  `json:"conversion"`
}

// ListTransactions lists the ledger newest first, restricted to filter when
// it is not empty.
func (t *Tracker) ListTransactions(filter string) []Row {
	def := t.DefaultCurrency()
	table := t.RateTable()
	txs := t.Transactions.List(filter)

	rows := make([]Row, len(txs))
	for i, tx := range txs {
		row := Row{Transaction: tx, Display: core.FormatAmount(tx.Amount, tx.Currency)}
		res := table.Convert(tx.Amount, tx.Currency, def)
		row.Conversion = res.Status
		if tx.Currency != def {
			amt := res.Amount
			row.Converted = &amt
			row.ConvertedDisplay = core.FormatAmount(amt, def)
		}
		rows[i] = row
	}
	return rows
}

// RatesInfo describes the rate table in use.
type RatesInfo struct {
	Base      string     `json:"base,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Available bool       `json:"available"`
}

// TotalsDisplay are the totals formatted for the default currency.
type TotalsDisplay struct {
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Balance  string `json:"balance"`
}

// Summary is everything the dashboard shows.
type Summary struct {
	Totals     core.Totals           `json:"totals"`
	Display    TotalsDisplay         `json:"display"`
	Chart      finance.Pie           `json:"chart"`
	Categories []core.CategoryAmount `json:"categories"`
	Goal       finance.GoalStatus    `json:"goal"`
	DailyGoal  string                `json:"dailyGoal,omitempty"`
	Rates      RatesInfo             `json:"rates"`
	Currencies []string              `json:"usedCurrencies"`
}

func (t *Tracker) Summary() Summary {
	def := t.DefaultCurrency()
	table := t.RateTable()
	txs := t.Transactions.All()

	totals := finance.Aggregate(txs, def, table)
	goal := finance.EvaluateGoal(t.Goals.Get(), totals.Balance, core.DateOf(t.now()))

	s := Summary{
		Totals: totals,
		Display: TotalsDisplay{
			Income:   core.FormatAmount(totals.Income, def),
			Expenses: core.FormatAmount(totals.Expenses, def),
			Balance:  core.FormatAmount(totals.Balance, def),
		},
		Chart:      finance.Split(totals),
		Categories: finance.ByCategory(txs, def, table),
		Goal:       goal,
		Rates:      RatesInfo{Base: table.Base, Available: !table.IsEmpty()},
		Currencies: t.Transactions.UsedCurrencies(),
	}
	if goal.State == finance.GoalInProgress {
		s.DailyGoal = core.FormatAmount(goal.DailyDisplay(), def)
	}
	if !table.FetchedAt.IsZero() {
		at := table.FetchedAt
		s.Rates.UpdatedAt = &at
	}
	return s
}

// Convert converts amount with the current table.
func (t *Tracker) Convert(amount decimal.Decimal, from, to string) currency.Result {
	return t.RateTable().Convert(amount, from, to)
}

func (t *Tracker) SetGoal(ctx context.Context, goal core.Goal) error {
	if err := t.Goals.Set(ctx, goal); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Goal set",
		applog.FieldComponent, applog.ComponentGoal,
		applog.FieldAmount, goal.Target.String(),
		"deadline", goal.Deadline.String())
	t.publish(ctx, applog.OpGoal)
	return nil
}

func (t *Tracker) ClearGoal(ctx context.Context) error {
	if err := t.Goals.Clear(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Goal cleared", applog.FieldComponent, applog.ComponentGoal)
	t.publish(ctx, applog.OpGoal)
	return nil
}

// PreferencesUpdate changes only the non-nil fields.
type PreferencesUpdate struct {
	Theme           *string
	DefaultCurrency *string
	EntryCurrency   *string
	FilterCurrency  *string
	Onboarded       *bool
}

// UpdatePreferences applies u field by field. A changed default currency
// starts a rate refresh for the new base in the background.
func (t *Tracker) UpdatePreferences(ctx context.Context, u PreferencesUpdate) (Preferences, error) {
	if u.Theme != nil {
		if err := t.Prefs.SetTheme(ctx, *u.Theme); err != nil {
			return t.Prefs.Get(), err
		}
	}
	if u.EntryCurrency != nil {
		if err := t.Prefs.SetEntryCurrency(ctx, *u.EntryCurrency); err != nil {
			return t.Prefs.Get(), err
		}
	}
	if u.FilterCurrency != nil {
		if err := t.Prefs.SetFilterCurrency(ctx, *u.FilterCurrency); err != nil {
			return t.Prefs.Get(), err
		}
	}
	if u.Onboarded != nil {
		if err := t.Prefs.SetOnboarded(ctx, *u.Onboarded); err != nil {
			return t.Prefs.Get(), err
		}
	}
	if u.DefaultCurrency != nil {
		before := t.DefaultCurrency()
		if err := t.Prefs.SetDefaultCurrency(ctx, *u.DefaultCurrency); err != nil {
			return t.Prefs.Get(), err
		}
		if after := t.DefaultCurrency(); after != before && t.rates != nil {
			slog.InfoContext(ctx, "Default currency changed, refreshing rates",
				applog.FieldComponent, applog.ComponentRates, applog.FieldBase, after)
			go t.RefreshRates(context.WithoutCancel(ctx))
		}
	}
	return t.Prefs.Get(), nil
}

// RefreshRates refreshes the table for the current default currency. A
// response overtaken by another currency change is not an error.
func (t *Tracker) RefreshRates(ctx context.Context) error {
	if t.rates == nil {
		return nil
	}
	err := t.rates.Refresh(ctx, t.DefaultCurrency())
	if errors.Is(err, rates.ErrStaleResponse) {
		return nil
	}
	return err
}

// Export captures the current state as a transfer document.
func (t *Tracker) Export() transfer.Document {
	return transfer.NewDocument(t.Transactions.All(), t.Goals.Get(), t.DefaultCurrency(), t.now())
}

// Import replaces the ledger with doc's transactions and, when present, its
// goal. The default currency is left alone.
func (t *Tracker) Import(ctx context.Context, doc transfer.Document) error {
	if err := t.Transactions.ReplaceAll(ctx, doc.Transactions, t.DefaultCurrency()); err != nil {
		return err
	}
	if doc.Goal != nil {
		if err := t.Goals.Set(ctx, *doc.Goal); err != nil {
			return fmt.Errorf("import goal: %w", err)
		}
	}
	slog.InfoContext(ctx, "Data imported",
		applog.FieldComponent, applog.ComponentTransfer,
		applog.FieldCount, len(doc.Transactions),
		"with_goal", doc.Goal != nil)
	t.publish(ctx, applog.OpImport)
	return nil
}

// Snapshot reloads everything from storage and exports it. Used by processes
// that share the store but not the in-memory state.
func (t *Tracker) Snapshot(ctx context.Context) (transfer.Document, error) {
	if err := t.Load(ctx); err != nil {
		return transfer.Document{}, err
	}
	return t.Export(), nil
}

func (t *Tracker) publish(ctx context.Context, op string) {
	if t.events == nil {
		return
	}
	if err := t.events.PublishLedgerChanged(ctx, op, t.Transactions.Len()); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOperation, op,
			applog.FieldError, err.Error())
	}
}

func (t *Tracker) logTx(ctx context.Context, msg string, tx core.Transaction) {
	fields := applog.NewFields().
		WithComponent(applog.ComponentLedger).
		WithTransaction(tx.ID, string(tx.Type), tx.Amount.String(), tx.Currency, tx.Category)
	slog.InfoContext(ctx, msg, fields.ToSlice()...)
}
