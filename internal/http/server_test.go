package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fintrack/internal/currency"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/rates"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

var testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fixedRates struct {
	mu    sync.Mutex
	table currency.Table
	err   error
	calls int
}

func (f *fixedRates) Table() currency.Table {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table
}

func (f *fixedRates) Refresh(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func usdTable() currency.Table {
	return currency.Table{
		Base: "USD",
		Rates: currency.Rates{
			"USD": decimal.NewFromInt(1),
			"EUR": decimal.RequireFromString("0.5"),
			"GBP": decimal.RequireFromString("0.8"),
		},
		FetchedAt: testNow.Add(-10 * time.Minute),
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

type testEnv struct {
	srv     *Server
	tracker *services.Tracker
	rates   *fixedRates
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	kv := storage.NewMemoryKV()
	fr := &fixedRates{table: usdTable()}
	tracker := services.NewTrackerFromKV(kv, "en-US", services.TrackerOptions{
		Rates: fr,
		Now:   func() time.Time { return testNow },
	})
	require.NoError(t, tracker.Load(context.Background()))

	deps := Deps{Tracker: tracker, Store: kv}
	if mutate != nil {
		mutate(&deps)
	}
	srv := NewServer(":0", deps)
	srv.now = func() time.Time { return testNow }
	t.Cleanup(func() { srv.limiter.Stop() })
	return &testEnv{srv: srv, tracker: tracker, rates: fr}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (e *testEnv) create(t *testing.T, typ, amount, category, date, code string) map[string]any {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"type": typ, "amount": amount, "category": category, "date": date, "currency": code,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeMap(t, rr)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	rr = env.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	require.Equal(t, "ready", body["status"])
	ratesInfo := body["rates"].(map[string]any)
	require.Equal(t, "USD", ratesInfo["base"])
	require.Equal(t, true, ratesInfo["available"])
	require.EqualValues(t, 600, ratesInfo["ageSeconds"])

	down := newTestEnv(t, func(d *Deps) { d.Store = failingPinger{} })
	rr = down.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "unreachable", decodeMap(t, rr)["store"])
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/currencies", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.True(t, strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_"))
	require.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	body := decodeMap(t, rr)
	require.Len(t, body["currencies"], 22)
	require.Equal(t, "USD", body["default"])
	require.Empty(t, body["used"])
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	tx := env.create(t, "expense", "12,50", "  Food ", "2024-03-01", "eur")
	id := tx["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "EUR", tx["currency"])
	require.Equal(t, "Food", tx["category"])
	require.EqualValues(t, 12.5, tx["amount"])

	// The entry currency is remembered for the next transaction.
	require.Equal(t, "EUR", env.tracker.Prefs.Get().EntryCurrency)

	env.create(t, "income", "100", "Salary", "2024-02-28", "USD")

	rr := env.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeMap(t, rr)
	require.EqualValues(t, 2, list["count"])
	rows := list["transactions"].([]any)
	first := rows[0].(map[string]any)
	require.Equal(t, id, first["transaction"].(map[string]any)["id"], "newest date first")
	require.Equal(t, "25", first["converted"])
	require.Equal(t, "converted", first["conversion"])
	second := rows[1].(map[string]any)
	require.NotContains(t, second, "converted", "default-currency rows carry no conversion")

	rr = env.do(t, http.MethodGet, "/api/transactions?currency=eur", nil)
	require.EqualValues(t, 1, decodeMap(t, rr)["count"])

	rr = env.do(t, http.MethodGet, "/api/transactions/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/transactions/"+id, map[string]any{
		"type": "expense", "amount": 20, "category": "Groceries", "date": "2024-03-01", "currency": "EUR",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "Groceries", decodeMap(t, rr)["category"])

	rr = env.do(t, http.MethodPut, "/api/transactions/txn_missing", map[string]any{
		"type": "expense", "amount": 1, "category": "X", "date": "2024-03-01",
	})
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, 2, env.tracker.Transactions.Len(), "update never inserts")

	rr = env.do(t, http.MethodDelete, "/api/transactions/"+id, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/transactions/"+id, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, decodeMap(t, rr)["error"], "not found")

	rr = env.do(t, http.MethodDelete, "/api/transactions", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 0, env.tracker.Transactions.Len())
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	valid := func() map[string]any {
		return map[string]any{"type": "income", "amount": "10", "category": "Gift", "date": "2024-03-01"}
	}

	tests := []struct {
		name     string
		body     any
		status   int
		contains string
	}{
		{"malformed json", `{"type":`, http.StatusBadRequest, "invalid JSON"},
		{"empty body", "", http.StatusBadRequest, "empty"},
		{"missing type", func() map[string]any { b := valid(); delete(b, "type"); return b }(), http.StatusUnprocessableEntity, "type is required"},
		{"bad type", func() map[string]any { b := valid(); b["type"] = "transfer"; return b }(), http.StatusUnprocessableEntity, "type must be one of"},
		{"negative amount", func() map[string]any { b := valid(); b["amount"] = "-3"; return b }(), http.StatusUnprocessableEntity, "invalid amount"},
		{"zero amount", func() map[string]any { b := valid(); b["amount"] = 0; return b }(), http.StatusUnprocessableEntity, "invalid amount"},
		{"blank category", func() map[string]any { b := valid(); b["category"] = "   "; return b }(), http.StatusUnprocessableEntity, "category is required"},
		{"bad date", func() map[string]any { b := valid(); b["date"] = "2024-13-01"; return b }(), http.StatusUnprocessableEntity, "date must be a date"},
		{"bad currency", func() map[string]any { b := valid(); b["currency"] = "EURO"; return b }(), http.StatusUnprocessableEntity, "currency must be 3 characters"},
		{"unsupported currency", func() map[string]any { b := valid(); b["currency"] = "XYZ"; return b }(), http.StatusUnprocessableEntity, "invalid currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/transactions", tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			require.Contains(t, decodeMap(t, rr)["error"], tt.contains)
		})
	}
	require.Equal(t, 0, env.tracker.Transactions.Len())
}

func TestSummaryAndGoal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, "income", "100", "Salary", "2024-02-01", "USD")
	env.create(t, "expense", "12.5", "Food", "2024-02-02", "EUR")

	rr := env.do(t, http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sum := decodeMap(t, rr)
	totals := sum["totals"].(map[string]any)
	require.Equal(t, "100", totals["income"])
	require.Equal(t, "25", totals["expenses"])
	require.Equal(t, "75", totals["balance"])
	require.Equal(t, "unset", sum["goal"].(map[string]any)["state"])
	require.ElementsMatch(t, []any{"EUR", "USD"}, sum["usedCurrencies"])

	rr = env.do(t, http.MethodPut, "/api/goal", map[string]any{"target": 0, "deadline": "2024-12-31"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/goal", map[string]any{"target": "1000", "deadline": "2024-03-11"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	goal := decodeMap(t, rr)
	status := goal["status"].(map[string]any)
	require.Equal(t, "in_progress", status["state"])
	require.EqualValues(t, 10, status["daysLeft"])
	require.Equal(t, "92.5", status["dailyNeeded"])
	require.NotEmpty(t, goal["dailyGoal"])

	rr = env.do(t, http.MethodDelete, "/api/goal", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/goal", nil)
	goal = decodeMap(t, rr)
	require.Nil(t, goal["goal"])
	require.Equal(t, "unset", goal["status"].(map[string]any)["state"])
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/preferences", nil)
	prefs := decodeMap(t, rr)
	require.Equal(t, "dark", prefs["theme"])
	require.Equal(t, "USD", prefs["defaultCurrency"])

	rr = env.do(t, http.MethodPut, "/api/preferences", map[string]any{"theme": "light", "onboarded": true, "filterCurrency": "gbp"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	prefs = decodeMap(t, rr)
	require.Equal(t, "light", prefs["theme"])
	require.Equal(t, true, prefs["onboarded"])
	require.Equal(t, "GBP", prefs["filterCurrency"])

	rr = env.do(t, http.MethodPut, "/api/preferences", map[string]any{"filterCurrency": "ALL"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "", decodeMap(t, rr)["filterCurrency"])

	rr = env.do(t, http.MethodPut, "/api/preferences", map[string]any{"theme": "blue"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/preferences", map[string]any{"defaultCurrency": "eur"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "EUR", env.tracker.DefaultCurrency())
	require.Eventually(t, func() bool {
		env.rates.mu.Lock()
		defer env.rates.mu.Unlock()
		return env.rates.calls == 1
	}, time.Second, 5*time.Millisecond, "default currency change refreshes rates")
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, "income", "250", "Salary", "2024-02-01", "USD")
	env.create(t, "expense", "40", "Travel", "2024-02-03", "GBP")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/goal",
		map[string]any{"target": 500, "deadline": "2024-06-30"}).Code)

	rr := env.do(t, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `attachment; filename="finance-tracker-2024-03-01.json"`, rr.Header().Get("Content-Disposition"))
	exported := rr.Body.String()

	other := newTestEnv(t, nil)
	other.create(t, "expense", "1", "Old", "2023-01-01", "USD")
	rr = other.do(t, http.MethodPost, "/api/import", exported)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeMap(t, rr)
	require.EqualValues(t, 2, res["imported"])
	require.Equal(t, true, res["goal"])
	require.Equal(t, 2, other.tracker.Transactions.Len(), "import replaces the ledger")
	require.NotNil(t, other.tracker.Goals.Get())

	rr = other.do(t, http.MethodPost, "/api/import", `{"transactions": {"a": 1}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, 2, other.tracker.Transactions.Len(), "rejected import keeps data")

	rr = other.do(t, http.MethodPost, "/api/import", `{"transactions": [{"type":"expense","amount":5,"category":"","date":"2024-01-01"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, 2, other.tracker.Transactions.Len())
}

func TestRatesEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/EUR" {
			_, _ = w.Write([]byte(`{"result":"success","rates":{"USD":1.08,"GBP":0.86}}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	provider := rates.NewProvider(rates.ProviderConfig{UpstreamURL: upstream.URL, Timeout: time.Second})
	env := newTestEnv(t, func(d *Deps) { d.Quotes = provider })

	rr := env.do(t, http.MethodGet, "/api/rates?base=eur", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp rates.ServiceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "EUR", resp.Base)
	require.False(t, resp.Fallback)
	require.True(t, resp.Rates["EUR"].Equal(decimal.NewFromInt(1)))

	rr = env.do(t, http.MethodGet, "/api/rates?base=EUR", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Cached)

	rr = env.do(t, http.MethodGet, "/api/rates", nil)
	resp = rates.ServiceResponse{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "USD", resp.Base, "base defaults to USD")
	require.True(t, resp.Fallback)
	require.Equal(t, fallbackWarning, resp.Warning)

	rr = env.do(t, http.MethodGet, "/api/rates?base=EURO", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeMap(t, rr)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["error"], "3-letter")

	noQuotes := newTestEnv(t, nil)
	require.Equal(t, http.StatusServiceUnavailable, noQuotes.do(t, http.MethodGet, "/api/rates", nil).Code)
}

func TestRefreshRates(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/api/rates/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "USD", decodeMap(t, rr)["base"])

	env.rates.mu.Lock()
	env.rates.err = rates.ErrUnavailable
	env.rates.mu.Unlock()
	rr = env.do(t, http.MethodPost, "/api/rates/refresh", nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestConvert(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/convert?amount=10&from=eur&to=USD", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	require.Equal(t, "20", body["result"])
	require.Equal(t, "converted", body["status"])

	rr = env.do(t, http.MethodGet, "/api/convert?amount=10&from=USD", nil)
	require.Equal(t, "identity", decodeMap(t, rr)["status"], "to defaults to the default currency")

	rr = env.do(t, http.MethodGet, "/api/convert?amount=10&from=USD&to=JPY", nil)
	require.Equal(t, "missing_rate", decodeMap(t, rr)["status"])

	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodGet, "/api/convert?amount=0&from=USD&to=EUR", nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/convert?amount=5&from=EU&to=USD", nil).Code)
}

func TestRateLimitAndMethods(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.RateLimit = ratelimit.Config{RequestsPerMinute: 2, Methods: []string{http.MethodPost}}
	})
	for i := 0; i < 2; i++ {
		env.create(t, "income", "1", "Tips", "2024-03-01", "USD")
	}
	rr := env.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"type": "income", "amount": "1", "category": "Tips", "date": "2024-03-01",
	})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Contains(t, decodeMap(t, rr)["error"], "rate limit")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/transactions", nil).Code)
	require.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodPatch, "/api/transactions", nil).Code)
}

func TestShutdownIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))
	require.NoError(t, env.srv.Shutdown(ctx))
}
