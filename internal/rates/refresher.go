package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "fintrack/internal/log"
)

// Refresher re-fetches the rate table on a fixed interval. A failed attempt
// is logged and left for the next tick.
type Refresher struct {
	cache    *Cache
	base     func() string
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRefresher(cache *Cache, base func() string, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Refresher{cache: cache, base: base, interval: interval}
}

// Start refreshes once immediately and then every interval.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("rate refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)

	slog.InfoContext(ctx, "Rate refresher started",
		applog.FieldComponent, applog.ComponentRates, "interval", r.interval)
	return nil
}

// Stop signals the loop and waits for it, or for ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Rate refresher stopped", applog.FieldComponent, applog.ComponentRates)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	err := r.cache.Refresh(ctx, r.base())
	if err != nil && !errors.Is(err, ErrStaleResponse) {
		slog.WarnContext(ctx, "Scheduled rate refresh failed",
			applog.FieldComponent, applog.ComponentRates, applog.FieldError, err.Error())
	}
}
