package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/currency"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

var (
	// ErrUnavailable means the fetch failed and nothing was persisted to fall back on.
	ErrUnavailable = errors.New("exchange rates unavailable")
	// ErrStaleResponse means the default currency changed while the fetch was in flight.
	ErrStaleResponse = errors.New("rate response for superseded base discarded")
)

type persistedTable struct {
	Base  string         `json:"base"`
	Rates currency.Rates `json:"rates"`
}

// Cache holds the current rate table. Concurrent refreshes for the same base
// share one fetch.
type Cache struct {
	kv          storage.KV
	fetcher     Fetcher
	currentBase func() string
	now         func() time.Time
	group       singleflight.Group

	mu    sync.RWMutex
	table currency.Table
}

// NewCache builds a cache; currentBase reports the default currency at the
// moment a response arrives.
func NewCache(kv storage.KV, fetcher Fetcher, currentBase func() string) *Cache {
	return &Cache{
		kv:          kv,
		fetcher:     fetcher,
		currentBase: currentBase,
		now:         time.Now,
	}
}

// Table returns the current table, possibly empty.
func (c *Cache) Table() currency.Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table
}

// Load restores the persisted table, if any, without fetching.
func (c *Cache) Load(ctx context.Context) error {
	t, ok, err := c.persisted(ctx)
	if err != nil {
		return err
	}
	if ok {
		c.set(t)
	}
	return nil
}

// Refresh fetches the table for base. On fetch failure the last persisted
// table is used if there is one. A response is discarded if base is no longer
// the current default by the time it arrives.
func (c *Cache) Refresh(ctx context.Context, base string) error {
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentRates)

	v, err, _ := c.group.Do(base, func() (any, error) {
		return c.fetcher.Fetch(ctx, base)
	})
	if err != nil {
		logger.WarnContext(ctx, "Rate fetch failed, falling back to persisted table",
			applog.FieldBase, base, applog.FieldError, err.Error())
		t, ok, perr := c.persisted(ctx)
		if perr != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, perr)
		}
		if !ok {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.set(t)
		return nil
	}

	if current := c.currentBase(); current != base {
		logger.WarnContext(ctx, "Discarding rate response for superseded base",
			applog.FieldBase, base, "current_base", current)
		return ErrStaleResponse
	}

	rates := v.(currency.Rates)
	t := currency.Table{Base: base, Rates: rates, FetchedAt: c.now().UTC()}
	c.set(t)

	if err := storage.SetJSON(ctx, c.kv, storage.KeyRates, persistedTable{Base: t.Base, Rates: t.Rates}); err != nil {
		return fmt.Errorf("persist rates: %w", err)
	}
	if err := c.kv.Set(ctx, storage.KeyRatesUpdatedAt, t.FetchedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("persist rates timestamp: %w", err)
	}

	logger.InfoContext(ctx, "Exchange rates updated",
		applog.FieldBase, base, applog.FieldCount, len(rates))
	return nil
}

func (c *Cache) set(t currency.Table) {
	c.mu.Lock()
	c.table = t
	c.mu.Unlock()
}

// persisted reads the stored table. Both the table and its timestamp must be
// present for it to count.
func (c *Cache) persisted(ctx context.Context) (currency.Table, bool, error) {
	var p persistedTable
	ok, err := storage.GetJSON(ctx, c.kv, storage.KeyRates, &p)
	if err != nil || !ok || len(p.Rates) == 0 {
		return currency.Table{}, false, err
	}
	raw, ok, err := c.kv.Get(ctx, storage.KeyRatesUpdatedAt)
	if err != nil || !ok {
		return currency.Table{}, false, err
	}
	fetchedAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		slog.WarnContext(ctx, "Discarding malformed rates timestamp",
			applog.FieldComponent, applog.ComponentRates, applog.FieldError, err.Error())
		return currency.Table{}, false, nil
	}
	return currency.Table{Base: p.Base, Rates: p.Rates, FetchedAt: fetchedAt}, true, nil
}
