// Package rates fetches, caches and serves exchange-rate tables.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/currency"
)

// ErrServiceFailure covers every unsuccessful rate-service answer.
var ErrServiceFailure = errors.New("rate service failure")

// Fetcher returns the rate table for base: 1 base = rates[c] units of c.
type Fetcher interface {
	Fetch(ctx context.Context, base string) (currency.Rates, error)
}

// ServiceResponse is the body of GET /api/rates.
type ServiceResponse struct {
	Success   bool                       `json:"success"`
	Base      string                     `json:"base,omitempty"`
	Rates     map[string]decimal.Decimal `json:"rates,omitempty"`
	Cached    bool                       `json:"cached,omitempty"`
	Fallback  bool                       `json:"fallback,omitempty"`
	Warning   string                     `json:"warning,omitempty"`
	Timestamp *time.Time                 `json:"timestamp,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// Client calls a rate service speaking ServiceResponse.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient targets endpoint, e.g. http://localhost:8081/api/rates.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch treats transport errors, non-2xx statuses and success:false alike.
func (c *Client) Fetch(ctx context.Context, base string) (currency.Rates, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse rate service url: %w", err)
	}
	q := u.Query()
	q.Set("base", base)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrServiceFailure, resp.StatusCode)
	}

	var body ServiceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrServiceFailure, err)
	}
	if !body.Success {
		msg := body.Error
		if msg == "" {
			msg = "failed to fetch rates"
		}
		return nil, fmt.Errorf("%w: %s", ErrServiceFailure, msg)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("%w: empty rate table", ErrServiceFailure)
	}
	return currency.Rates(body.Rates), nil
}
