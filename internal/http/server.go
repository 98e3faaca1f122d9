package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/rates"
	"fintrack/internal/services"
)

// QuoteProvider answers the rate-service endpoint.
type QuoteProvider interface {
	Quote(ctx context.Context, base string) (rates.Quote, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API serves from. Quotes and Store may be
// nil; the matching endpoints then answer 503.
type Deps struct {
	Tracker   *services.Tracker
	Quotes    QuoteProvider
	Store     Pinger
	Logger    *applog.Logger
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	tracker  *services.Tracker
	quotes   QuoteProvider
	store    Pinger
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	if deps.RateLimit.RequestsPerMinute == 0 {
		deps.RateLimit = ratelimit.DefaultConfig()
	}

	s := &Server{
		tracker:  deps.Tracker,
		quotes:   deps.Quotes,
		store:    deps.Store,
		logger:   logger.WithComponent(applog.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(),
		now:      time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("GET /api/rates", s.handleRates)
	mux.HandleFunc("POST /api/rates/refresh", s.handleRefreshRates)
	mux.HandleFunc("GET /api/convert", s.handleConvert)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions", s.handleClearTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/goal", s.handleGetGoal)
	mux.HandleFunc("PUT /api/goal", s.handlePutGoal)
	mux.HandleFunc("DELETE /api/goal", s.handleDeleteGoal)

	mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.handlePutPreferences)

	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// middleware wraps h with, from the outside in: tracing, security headers,
// probe detection and rate limiting of mutating requests.
func (s *Server) middleware(h http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(h)

	inspected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := s.detector.Inspect(r); reason != "" {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				"reason", reason)
		}
		limited.ServeHTTP(w, r)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	return s.tracer.Middleware(headers.Middleware(inspected))
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Rates  struct {
		Base       string `json:"base,omitempty"`
		Available  bool   `json:"available"`
		AgeSeconds *int64 `json:"ageSeconds,omitempty"`
	} `json:"rates"`
}

// handleReady checks the store and reports how old the rate table is. A
// missing rate table does not make the service unready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ready", Store: "ok"}
	status := http.StatusOK

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Store ping failed", applog.FieldError, err.Error())
			resp.Status, resp.Store = "unavailable", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	if s.tracker != nil {
		table := s.tracker.RateTable()
		resp.Rates.Base = table.Base
		resp.Rates.Available = !table.IsEmpty()
		if !table.FetchedAt.IsZero() {
			age := int64(s.now().Sub(table.FetchedAt).Seconds())
			resp.Rates.AgeSeconds = &age
		}
	}

	NewJSONResponse().Status(status).Body(resp).Write(w)
}
