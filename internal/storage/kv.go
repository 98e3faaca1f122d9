// Package storage persists the tracker's state as string values under fixed
// keys. Structured values are stored as JSON.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	applog "fintrack/internal/log"
)

// Keys of every persisted value.
const (
	KeyTransactions    = "transactions"
	KeyTheme           = "theme"
	KeyEntryCurrency   = "entry_currency"
	KeyDefaultCurrency = "default_currency"
	KeyFilterCurrency  = "filter_currency"
	KeyGoal            = "goal"
	KeyOnboarded       = "onboarded"
	KeyRates           = "rates"
	KeyRatesUpdatedAt  = "rates_updated_at"
)

// KV is a durable string key-value store. Set must not return before the
// value is durable.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value at key into v. It reports false when the key is
// missing or holds malformed JSON; the latter is logged and otherwise treated
// as missing. Only store failures are returned as errors.
func GetJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok || raw == "" || raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		applog.FromContext(ctx).WithComponent(applog.ComponentStorage).WarnContext(ctx,
			"Discarding malformed persisted value",
			applog.FieldKey, key,
			applog.FieldError, err.Error())
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// GetString returns the value at key or def when missing.
func GetString(ctx context.Context, kv KV, key, def string) (string, error) {
	v, ok, err := kv.Get(ctx, key)
	if err != nil {
		return def, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}
