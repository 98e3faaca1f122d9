package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

var ErrInvalidTheme = errors.New("invalid theme")

// Preferences are the independently persisted UI scalars. FilterCurrency is
// empty when every currency is shown.
type Preferences struct {
	Theme           string `json:"theme"`
	DefaultCurrency string `json:"defaultCurrency"`
	EntryCurrency   string `json:"entryCurrency"`
	FilterCurrency  string `json:"filterCurrency"`
	Onboarded       bool   `json:"onboarded"`
}

// PreferenceStore reads and writes Preferences one key at a time.
type PreferenceStore struct {
	kv     storage.KV
	locale string

	mu    sync.RWMutex
	prefs Preferences
}

// NewPreferenceStore uses locale to guess the default currency when none has
// been saved yet.
func NewPreferenceStore(kv storage.KV, locale string) *PreferenceStore {
	return &PreferenceStore{kv: kv, locale: locale}
}

// Load reads every preference, substituting defaults for missing or invalid
// values.
func (p *PreferenceStore) Load(ctx context.Context) error {
	get := func(key, def string) (string, error) {
		return storage.GetString(ctx, p.kv, key, def)
	}

	theme, err := get(storage.KeyTheme, ThemeDark)
	if err != nil {
		return err
	}
	if theme != ThemeLight {
		theme = ThemeDark
	}

	def, err := get(storage.KeyDefaultCurrency, "")
	if err != nil {
		return err
	}
	if !core.IsSupportedCurrency(def) {
		def = core.GuessCurrency(p.locale)
	}

	entry, err := get(storage.KeyEntryCurrency, "")
	if err != nil {
		return err
	}
	if !core.IsSupportedCurrency(entry) {
		entry = def
	}

	filter, err := get(storage.KeyFilterCurrency, "")
	if err != nil {
		return err
	}
	if !core.IsSupportedCurrency(filter) {
		filter = ""
	}

	onboardedRaw, err := get(storage.KeyOnboarded, "false")
	if err != nil {
		return err
	}
	onboarded, _ := strconv.ParseBool(onboardedRaw)

	p.mu.Lock()
	p.prefs = Preferences{
		Theme:           theme,
		DefaultCurrency: def,
		EntryCurrency:   entry,
		FilterCurrency:  filter,
		Onboarded:       onboarded,
	}
	p.mu.Unlock()
	return nil
}

func (p *PreferenceStore) Get() Preferences {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prefs
}

func (p *PreferenceStore) DefaultCurrency() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prefs.DefaultCurrency
}

func (p *PreferenceStore) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeDark && theme != ThemeLight {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	return p.set(ctx, storage.KeyTheme, theme, func(pr *Preferences) { pr.Theme = theme })
}

func (p *PreferenceStore) SetDefaultCurrency(ctx context.Context, code string) error {
	code, err := supported(code)
	if err != nil {
		return err
	}
	return p.set(ctx, storage.KeyDefaultCurrency, code, func(pr *Preferences) { pr.DefaultCurrency = code })
}

func (p *PreferenceStore) SetEntryCurrency(ctx context.Context, code string) error {
	code, err := supported(code)
	if err != nil {
		return err
	}
	return p.set(ctx, storage.KeyEntryCurrency, code, func(pr *Preferences) { pr.EntryCurrency = code })
}

// SetFilterCurrency narrows listings to one currency; "" or "all" clears it.
func (p *PreferenceStore) SetFilterCurrency(ctx context.Context, code string) error {
	if code == "" || code == "all" {
		return p.set(ctx, storage.KeyFilterCurrency, "", func(pr *Preferences) { pr.FilterCurrency = "" })
	}
	code, err := supported(code)
	if err != nil {
		return err
	}
	return p.set(ctx, storage.KeyFilterCurrency, code, func(pr *Preferences) { pr.FilterCurrency = code })
}

func (p *PreferenceStore) SetOnboarded(ctx context.Context, seen bool) error {
	return p.set(ctx, storage.KeyOnboarded, strconv.FormatBool(seen), func(pr *Preferences) { pr.Onboarded = seen })
}

func (p *PreferenceStore) set(ctx context.Context, key, value string, apply func(*Preferences)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.kv.Set(ctx, key, value); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	apply(&p.prefs)
	return nil
}

func supported(code string) (string, error) {
	code, err := core.NormalizeCurrency(code)
	if err != nil {
		return "", err
	}
	if !core.IsSupportedCurrency(code) {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidCurrency, code)
	}
	return code, nil
}
