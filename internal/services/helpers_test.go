package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/storage"
)

var errDiskFull = errors.New("disk full")

// flakyKV wraps a MemoryKV and fails every Set while failing is true.
type flakyKV struct {
	*storage.MemoryKV
	mu      sync.Mutex
	failing bool
}

func newFlakyKV() *flakyKV {
	return &flakyKV{MemoryKV: storage.NewMemoryKV()}
}

func (f *flakyKV) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errDiskFull
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleTx(id, amount, code string, date core.Date) core.Transaction {
	return core.Transaction{
		ID:       id,
		Type:     core.Expense,
		Amount:   dec(amount),
		Category: "Food",
		Date:     date,
		Currency: code,
	}
}

type stubRates struct {
	mu      sync.Mutex
	table   currency.Table
	err     error
	refresh []string
}

func (s *stubRates) Table() currency.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

func (s *stubRates) Refresh(_ context.Context, base string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = append(s.refresh, base)
	return s.err
}

func (s *stubRates) refreshed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refresh...)
}

type recordingPublisher struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordingPublisher) PublishLedgerChanged(_ context.Context, op string, _ int) error {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
	return nil
}

func mustLoad(t *testing.T, tr *Tracker) {
	t.Helper()
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
