package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/currency"
	applog "fintrack/internal/log"
)

// ErrInvalidBase rejects anything that is not a three-letter code.
var ErrInvalidBase = errors.New("invalid currency code, please provide a 3-letter currency code")

// Quote is what the rate service answers for one base.
type Quote struct {
	Base     string
	Rates    currency.Rates
	Cached   bool
	Fallback bool
	At       time.Time
}

// ProviderConfig configures the upstream-backed rate provider.
type ProviderConfig struct {
	UpstreamURL string // rates for base B are at UpstreamURL + "/" + B
	Timeout     time.Duration
	CacheTTL    time.Duration
	CacheSize   int
}

// Provider answers rate requests from an upstream API, caching each base for
// CacheTTL and substituting a built-in table when the upstream fails.
type Provider struct {
	cfg        ProviderConfig
	httpClient *http.Client
	cache      *cache.LRUCache[currency.Rates]
	now        func() time.Time
}

func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache.NewLRUCache[currency.Rates](cfg.CacheSize, cfg.CacheTTL),
		now:        time.Now,
	}
}

// Cache exposes the underlying LRU so it can be registered for cleanup.
func (p *Provider) Cache() *cache.LRUCache[currency.Rates] {
	return p.cache
}

// Quote returns rates for base. It only fails for a malformed base.
func (p *Provider) Quote(ctx context.Context, base string) (Quote, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if len(base) != 3 {
		return Quote{}, ErrInvalidBase
	}

	if rates, ok := p.cache.Get(base); ok {
		return Quote{Base: base, Rates: rates, Cached: true, At: p.now()}, nil
	}

	rates, err := p.fetchUpstream(ctx, base)
	if err != nil {
		slog.WarnContext(ctx, "Upstream rate fetch failed, serving fallback rates",
			applog.FieldComponent, applog.ComponentRates,
			applog.FieldBase, base,
			applog.FieldError, err.Error())
		return Quote{Base: base, Rates: FallbackRates(base), Fallback: true, At: p.now()}, nil
	}

	p.cache.Set(base, rates)
	return Quote{Base: base, Rates: rates, At: p.now()}, nil
}

// Fetch lets a Provider serve as the app's Fetcher without an HTTP hop. The
// built-in table is never handed out as fresh rates: an upstream failure is
// reported so the caller keeps its last persisted table.
func (p *Provider) Fetch(ctx context.Context, base string) (currency.Rates, error) {
	q, err := p.Quote(ctx, base)
	if err != nil {
		return nil, err
	}
	if q.Fallback {
		return nil, fmt.Errorf("%w: upstream unavailable for %s", ErrServiceFailure, q.Base)
	}
	return q.Rates, nil
}

type upstreamResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	Rates           map[string]decimal.Decimal `json:"rates"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

func (p *Provider) fetchUpstream(ctx context.Context, base string) (currency.Rates, error) {
	url := strings.TrimRight(p.cfg.UpstreamURL, "/") + "/" + base
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var body upstreamResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	if body.Result != "" && body.Result != "success" {
		return nil, fmt.Errorf("upstream result %q: %s", body.Result, body.ErrorType)
	}

	raw := body.Rates
	if len(raw) == 0 {
		raw = body.ConversionRates
	}
	if len(raw) == 0 {
		return nil, errors.New("unexpected upstream response format")
	}

	rates := make(currency.Rates, len(raw)+1)
	for code, f := range raw {
		rates[code] = f
	}
	rates[base] = decimal.NewFromInt(1)
	return rates, nil
}
