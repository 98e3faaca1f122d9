package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/finance"
	"fintrack/internal/rates"
	"fintrack/internal/storage"
	"fintrack/internal/transfer"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, rs RateSource, pub EventPublisher) *Tracker {
	t.Helper()
	tr := NewTrackerFromKV(storage.NewMemoryKV(), "en-US", TrackerOptions{
		Rates:  rs,
		Events: pub,
		Now:    func() time.Time { return fixedNow },
	})
	mustLoad(t, tr)
	return tr
}

func input(typ core.TransactionType, amount, code string) TransactionInput {
	return TransactionInput{
		Type:     typ,
		Amount:   dec(amount),
		Category: "General",
		Date:     core.NewDate(2025, 5, 20),
		Currency: code,
	}
}

func TestTrackerSummaryScenario(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, nil, nil)

	_, err := tr.AddTransaction(ctx, input(core.Income, "100", "USD"))
	require.NoError(t, err)
	_, err = tr.AddTransaction(ctx, input(core.Expense, "40", "USD"))
	require.NoError(t, err)

	s := tr.Summary()
	require.True(t, s.Totals.Income.Equal(dec("100")))
	require.True(t, s.Totals.Expenses.Equal(dec("40")))
	require.True(t, s.Totals.Balance.Equal(dec("60")))
	require.False(t, s.Rates.Available)
	require.Equal(t, finance.GoalUnset, s.Goal.State)
	require.Len(t, s.Chart.Slices, 2)
	require.Contains(t, s.Display.Balance, "60.00")
}

func TestTrackerConvertsIntoDefault(t *testing.T) {
	ctx := context.Background()
	rs := &stubRates{table: currency.Table{Base: "USD", Rates: currency.Rates{"USD": dec("1"), "EUR": dec("0.9")}, FetchedAt: fixedNow}}
	tr := newTestTracker(t, rs, nil)

	_, err := tr.AddTransaction(ctx, input(core.Income, "10", "EUR"))
	require.NoError(t, err)

	s := tr.Summary()
	require.Equal(t, "11.11", s.Totals.Income.StringFixed(2))
	require.NotNil(t, s.Rates.UpdatedAt)

	rows := tr.ListTransactions("")
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Converted)
	require.Equal(t, "11.11", rows[0].Converted.StringFixed(2))
	require.Equal(t, currency.Converted, rows[0].Conversion)
}

func TestTrackerAddUsesAndRemembersEntryCurrency(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, nil, nil)

	tx, err := tr.AddTransaction(ctx, input(core.Expense, "5", ""))
	require.NoError(t, err)
	require.Equal(t, "USD", tx.Currency)
	require.True(t, strings.HasPrefix(tx.ID, "txn_"))

	_, err = tr.AddTransaction(ctx, input(core.Expense, "5", "GBP"))
	require.NoError(t, err)
	require.Equal(t, "GBP", tr.Prefs.Get().EntryCurrency)
}

func TestTrackerUpdateUnknown(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	_, err := tr.UpdateTransaction(context.Background(), "missing", input(core.Expense, "5", "USD"))
	require.ErrorIs(t, err, ErrTransactionNotFound)
	require.Equal(t, 0, tr.Transactions.Len())
}

func TestTrackerPublishesMutations(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	tr := newTestTracker(t, nil, pub)

	tx, err := tr.AddTransaction(ctx, input(core.Expense, "5", "USD"))
	require.NoError(t, err)
	_, err = tr.UpdateTransaction(ctx, tx.ID, input(core.Expense, "6", "USD"))
	require.NoError(t, err)
	require.NoError(t, tr.RemoveTransaction(ctx, tx.ID))
	require.NoError(t, tr.ClearTransactions(ctx))

	require.Equal(t, []string{"create", "update", "delete", "clear"}, pub.ops)
}

func TestTrackerUpdateKeepsStoredCurrency(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, nil, nil)

	tx, err := tr.AddTransaction(ctx, input(core.Expense, "5", "EUR"))
	require.NoError(t, err)
	_, err = tr.AddTransaction(ctx, input(core.Expense, "7", "GBP"))
	require.NoError(t, err)
	require.Equal(t, "GBP", tr.Prefs.Get().EntryCurrency)

	updated, err := tr.UpdateTransaction(ctx, tx.ID, input(core.Expense, "6", ""))
	require.NoError(t, err)
	require.Equal(t, "EUR", updated.Currency)

	stored, ok := tr.Transactions.Get(tx.ID)
	require.True(t, ok)
	require.Equal(t, "EUR", stored.Currency)
	require.Equal(t, "6", stored.Amount.String())
}

func TestTrackerPublishesGoalChanges(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	tr := newTestTracker(t, nil, pub)

	require.NoError(t, tr.SetGoal(ctx, core.Goal{Target: dec("1000"), Deadline: core.NewDate(2025, 6, 11)}))
	require.NoError(t, tr.ClearGoal(ctx))

	require.Equal(t, []string{"goal", "goal"}, pub.ops)
}

func TestTrackerGoal(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, nil, nil)
	_, err := tr.AddTransaction(ctx, input(core.Income, "400", "USD"))
	require.NoError(t, err)

	require.NoError(t, tr.SetGoal(ctx, core.Goal{Target: dec("1000"), Deadline: core.NewDate(2025, 6, 11)}))
	s := tr.Summary()
	require.Equal(t, finance.GoalInProgress, s.Goal.State)
	require.Equal(t, 10, s.Goal.DaysLeft)
	require.Contains(t, s.DailyGoal, "60.00")

	require.NoError(t, tr.ClearGoal(ctx))
	require.Equal(t, finance.GoalUnset, tr.Summary().Goal.State)
}

func TestTrackerDefaultCurrencyChangeRefreshesRates(t *testing.T) {
	rs := &stubRates{}
	tr := newTestTracker(t, rs, nil)

	eur := "EUR"
	prefs, err := tr.UpdatePreferences(context.Background(), PreferencesUpdate{DefaultCurrency: &eur})
	require.NoError(t, err)
	require.Equal(t, "EUR", prefs.DefaultCurrency)

	require.Eventually(t, func() bool {
		got := rs.refreshed()
		return len(got) == 1 && got[0] == "EUR"
	}, time.Second, 5*time.Millisecond)
}

func TestTrackerRefreshRatesIgnoresStale(t *testing.T) {
	rs := &stubRates{err: rates.ErrStaleResponse}
	tr := newTestTracker(t, rs, nil)
	require.NoError(t, tr.RefreshRates(context.Background()))

	rs.err = rates.ErrUnavailable
	require.ErrorIs(t, tr.RefreshRates(context.Background()), rates.ErrUnavailable)
}

func TestTrackerImportDefaultsCurrency(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, nil, nil)
	eur := "EUR"
	_, err := tr.UpdatePreferences(ctx, PreferencesUpdate{DefaultCurrency: &eur})
	require.NoError(t, err)

	doc, err := transfer.Decode(strings.NewReader(`{
		"transactions": [{"id":"t1","type":"income","amount":50,"category":"Gift","date":"2025-03-01"}],
		"goal": {"target": 300, "deadline": "2025-12-01"},
		"defaultCurrency": "JPY"
	}`))
	require.NoError(t, err)
	require.NoError(t, tr.Import(ctx, doc))

	got, ok := tr.Transactions.Get("t1")
	require.True(t, ok)
	require.Equal(t, "EUR", got.Currency)
	require.Equal(t, "EUR", tr.DefaultCurrency())
	require.NotNil(t, tr.Goals.Get())
}

func TestTrackerImportInvalidLeavesStore(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t, nil, nil)
	_, err := tr.AddTransaction(ctx, input(core.Income, "1", "USD"))
	require.NoError(t, err)

	doc := transfer.Document{Transactions: []core.Transaction{{ID: "x", Type: "bogus", Amount: dec("1"), Category: "c", Date: core.NewDate(2025, 1, 1)}}}
	require.ErrorIs(t, tr.Import(ctx, doc), core.ErrInvalidType)
	require.Equal(t, 1, tr.Transactions.Len())
}

func TestTrackerExportAndSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	writer := NewTrackerFromKV(kv, "", TrackerOptions{Now: func() time.Time { return fixedNow }})
	mustLoad(t, writer)
	_, err := writer.AddTransaction(ctx, input(core.Expense, "7", "USD"))
	require.NoError(t, err)

	doc := writer.Export()
	require.Len(t, doc.Transactions, 1)
	require.Equal(t, "USD", doc.DefaultCurrency)
	require.True(t, doc.ExportDate.Equal(fixedNow))

	reader := NewTrackerFromKV(kv, "", TrackerOptions{Now: func() time.Time { return fixedNow }})
	snap, err := reader.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Transactions, 1)
}
