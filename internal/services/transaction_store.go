package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateID         = errors.New("duplicate transaction id")
)

// TransactionStore holds the ledger in memory and writes the full list
// through to the KV store on every mutation. A mutation whose write fails
// leaves the in-memory list untouched.
type TransactionStore struct {
	kv storage.KV

	mu  sync.RWMutex
	txs []core.Transaction
}

func NewTransactionStore(kv storage.KV) *TransactionStore {
	return &TransactionStore{kv: kv}
}

// Load replaces the in-memory list with the persisted one. Records without a
// currency get defaultCurrency; records that still fail validation are
// dropped and logged.
func (s *TransactionStore) Load(ctx context.Context, defaultCurrency string) error {
	var stored []core.Transaction
	if _, err := storage.GetJSON(ctx, s.kv, storage.KeyTransactions, &stored); err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	loaded := make([]core.Transaction, 0, len(stored))
	seen := make(map[string]struct{}, len(stored))
	for _, tx := range stored {
		if tx.Currency == "" {
			tx.Currency = defaultCurrency
		}
		if _, dup := seen[tx.ID]; dup {
			slog.WarnContext(ctx, "Dropping duplicate persisted transaction",
				applog.FieldComponent, applog.ComponentLedger, applog.FieldTxID, tx.ID)
			continue
		}
		if err := tx.Validate(); err != nil {
			slog.WarnContext(ctx, "Dropping invalid persisted transaction",
				applog.FieldComponent, applog.ComponentLedger,
				applog.FieldTxID, tx.ID,
				applog.FieldError, err.Error())
			continue
		}
		seen[tx.ID] = struct{}{}
		loaded = append(loaded, tx)
	}

	s.mu.Lock()
	s.txs = loaded
	s.mu.Unlock()

	slog.InfoContext(ctx, "Transactions loaded",
		applog.FieldComponent, applog.ComponentLedger, applog.FieldCount, len(loaded))
	return nil
}

// Add appends tx. The caller supplies the id.
func (s *TransactionStore) Add(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(tx.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
	}
	next := append(s.snapshot(), tx)
	return s.commit(ctx, next)
}

// Update overwrites the transaction with the given id. It never inserts.
func (s *TransactionStore) Update(ctx context.Context, id string, tx core.Transaction) error {
	tx.ID = id
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	next := s.snapshot()
	next[i] = tx
	return s.commit(ctx, next)
}

func (s *TransactionStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	next := make([]core.Transaction, 0, len(s.txs)-1)
	next = append(next, s.txs[:i]...)
	next = append(next, s.txs[i+1:]...)
	return s.commit(ctx, next)
}

// ReplaceAll swaps the whole ledger, as done by import. Records without a
// currency get defaultCurrency. Either every record is accepted or none is.
func (s *TransactionStore) ReplaceAll(ctx context.Context, txs []core.Transaction, defaultCurrency string) error {
	next := make([]core.Transaction, len(txs))
	seen := make(map[string]struct{}, len(txs))
	for i, tx := range txs {
		if tx.Currency == "" {
			tx.Currency = defaultCurrency
		}
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		if _, dup := seen[tx.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
		}
		seen[tx.ID] = struct{}{}
		next[i] = tx
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, next)
}

func (s *TransactionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, []core.Transaction{})
}

func (s *TransactionStore) Get(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.txs[i], true
	}
	return core.Transaction{}, false
}

// All returns a copy of the ledger in insertion order.
func (s *TransactionStore) All() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// List returns the transactions in filterCurrency (all when empty), newest
// date first and, within a day, by id descending.
func (s *TransactionStore) List(filterCurrency string) []core.Transaction {
	filterCurrency = strings.ToUpper(strings.TrimSpace(filterCurrency))

	s.mu.RLock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if filterCurrency == "" || tx.Currency == filterCurrency {
			out = append(out, tx)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// UsedCurrencies returns the distinct currencies in the ledger, sorted.
func (s *TransactionStore) UsedCurrencies() []string {
	s.mu.RLock()
	set := make(map[string]struct{})
	for _, tx := range s.txs {
		set[tx.Currency] = struct{}{}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s *TransactionStore) indexOf(id string) int {
	for i := range s.txs {
		if s.txs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *TransactionStore) snapshot() []core.Transaction {
	out := make([]core.Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}

// commit persists next and only then makes it current. Callers hold mu.
func (s *TransactionStore) commit(ctx context.Context, next []core.Transaction) error {
	if err := storage.SetJSON(ctx, s.kv, storage.KeyTransactions, next); err != nil {
		return fmt.Errorf("persist transactions: %w", err)
	}
	s.txs = next
	return nil
}
