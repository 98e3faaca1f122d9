package http

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/rates"
)

type currenciesResponse struct {
	Currencies []string `json:"currencies"`
	Default    string   `json:"default,omitempty"`
	Used       []string `json:"used"`
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	resp := currenciesResponse{Currencies: core.Currencies, Used: []string{}}
	if s.tracker != nil {
		resp.Default = s.tracker.DefaultCurrency()
		if used := s.tracker.Transactions.UsedCurrencies(); used != nil {
			resp.Used = used
		}
	}
	NewJSONResponse().Body(resp).Write(w)
}

const fallbackWarning = "Using fallback exchange rates"

// handleRates is the rate service: rates for ?base= (USD when absent),
// served from cache, upstream or the built-in fallback table.
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		ErrorResponse(http.StatusServiceUnavailable, "rate service not configured").Write(w)
		return
	}

	base := r.URL.Query().Get("base")
	if base == "" {
		base = "USD"
	}
	q, err := s.quotes.Quote(r.Context(), base)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rates.ErrInvalidBase) {
			status = http.StatusBadRequest
		}
		NewJSONResponse().Status(status).
			Body(rates.ServiceResponse{Success: false, Error: err.Error()}).
			Write(w)
		return
	}

	at := q.At.UTC()
	resp := rates.ServiceResponse{
		Success:   true,
		Base:      q.Base,
		Rates:     q.Rates,
		Cached:    q.Cached,
		Fallback:  q.Fallback,
		Timestamp: &at,
	}
	if q.Fallback {
		resp.Warning = fallbackWarning
	}
	NewJSONResponse().Body(resp).Write(w)
}

// handleRefreshRates refreshes the app's table for the default currency now.
func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.RefreshRates(r.Context()); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate refresh failed",
			applog.FieldComponent, applog.ComponentRates,
			applog.FieldError, err.Error())
		ErrorResponse(http.StatusBadGateway, "rate refresh failed: "+err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(s.tracker.Summary().Rates).Write(w)
}

type convertResponse struct {
	Amount  decimal.Decimal `json:"amount"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Result  decimal.Decimal `json:"result"`
	Display string          `json:"display"`
	Status  string          `json:"status"`
}

// handleConvert previews a conversion with the current rate table.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	amount, err := core.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		UnprocessableEntityError("amount must be a number greater than zero").Write(w)
		return
	}
	def := s.tracker.DefaultCurrency()
	from, err := ParseCurrencyParam(r, "from", def)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	to, err := ParseCurrencyParam(r, "to", def)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}

	res := s.tracker.Convert(amount, from, to)
	NewJSONResponse().Body(convertResponse{
		Amount:  amount,
		From:    from,
		To:      to,
		Result:  res.Amount.Round(2),
		Display: core.FormatAmount(res.Amount, to),
		Status:  res.Status.String(),
	}).Write(w)
}
