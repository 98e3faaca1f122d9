package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func TestPreferenceStoreDefaults(t *testing.T) {
	p := NewPreferenceStore(storage.NewMemoryKV(), "en-GB")
	require.NoError(t, p.Load(context.Background()))

	got := p.Get()
	require.Equal(t, ThemeDark, got.Theme)
	require.Equal(t, "GBP", got.DefaultCurrency)
	require.Equal(t, "GBP", got.EntryCurrency)
	require.Empty(t, got.FilterCurrency)
	require.False(t, got.Onboarded)
}

func TestPreferenceStorePersists(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	p := NewPreferenceStore(kv, "")
	require.NoError(t, p.Load(ctx))

	require.NoError(t, p.SetTheme(ctx, ThemeLight))
	require.NoError(t, p.SetDefaultCurrency(ctx, "eur"))
	require.NoError(t, p.SetEntryCurrency(ctx, "JPY"))
	require.NoError(t, p.SetFilterCurrency(ctx, "EUR"))
	require.NoError(t, p.SetOnboarded(ctx, true))

	again := NewPreferenceStore(kv, "")
	require.NoError(t, again.Load(ctx))
	require.Equal(t, Preferences{
		Theme:           ThemeLight,
		DefaultCurrency: "EUR",
		EntryCurrency:   "JPY",
		FilterCurrency:  "EUR",
		Onboarded:       true,
	}, again.Get())

	require.NoError(t, p.SetFilterCurrency(ctx, "all"))
	require.Empty(t, p.Get().FilterCurrency)
}

func TestPreferenceStoreRejects(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(storage.NewMemoryKV(), "")
	require.NoError(t, p.Load(ctx))

	require.ErrorIs(t, p.SetTheme(ctx, "purple"), ErrInvalidTheme)
	require.ErrorIs(t, p.SetDefaultCurrency(ctx, "XYZ"), core.ErrInvalidCurrency)
	require.ErrorIs(t, p.SetDefaultCurrency(ctx, "PLN"), core.ErrInvalidCurrency)
	require.Equal(t, "USD", p.DefaultCurrency())
}

func TestPreferenceStoreIgnoresUnsupportedPersisted(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, storage.KeyDefaultCurrency, "???"))
	require.NoError(t, kv.Set(ctx, storage.KeyTheme, "neon"))

	p := NewPreferenceStore(kv, "ja-JP")
	require.NoError(t, p.Load(ctx))
	require.Equal(t, "JPY", p.DefaultCurrency())
	require.Equal(t, ThemeDark, p.Get().Theme)
}
