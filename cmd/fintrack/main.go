package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
	"fintrack/internal/rates"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentApp)

	logger.Info("Starting fintrack",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locale", cfg.Locale)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", applog.FieldError, err)
		os.Exit(1)
	}

	provider := rates.NewProvider(rates.ProviderConfig{
		UpstreamURL: cfg.Rates.UpstreamURL,
		Timeout:     cfg.Rates.Timeout,
		CacheTTL:    cfg.Rates.CacheTTL,
	})
	cacheManager := cache.NewManager()
	cacheManager.Register(provider.Cache())
	cacheManager.StartCleanup(10 * time.Minute)

	// The ledger refreshes from a remote rate service when one is configured,
	// otherwise straight from the in-process provider.
	var fetcher rates.Fetcher = provider
	if cfg.Rates.ServiceURL != "" {
		fetcher = rates.NewClient(cfg.Rates.ServiceURL, cfg.Rates.Timeout)
		logger.Info("Using remote rate service", "url", cfg.Rates.ServiceURL)
	}

	prefs := services.NewPreferenceStore(res.KV, cfg.Locale)
	rateCache := rates.NewCache(res.KV, fetcher, prefs.DefaultCurrency)
	tracker := services.NewTracker(
		services.NewTransactionStore(res.KV),
		services.NewGoalStore(res.KV),
		prefs,
		services.TrackerOptions{Rates: rateCache, Events: res.EventPublisher()},
	)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := tracker.Load(loadCtx); err != nil {
		loadCancel()
		logger.Error("Failed to load ledger", applog.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}
	if err := rateCache.Load(loadCtx); err != nil {
		logger.Warn("Persisted rates unavailable, starting from fallback table", applog.FieldError, err)
	}
	loadCancel()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Tracker: tracker,
		Quotes:  provider,
		Store:   res.KV,
		Logger:  logger,
	})
	refresher := rates.NewRefresher(rateCache, tracker.DefaultCurrency, cfg.Rates.RefreshInterval)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", applog.FieldError, err)
		}
		if err := refresher.Stop(shutdownCtx); err != nil {
			logger.Warn("Rate refresher stop failed", applog.FieldError, err)
		}
		cacheManager.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	})

	if err := refresher.Start(ctx); err != nil {
		logger.Error("Failed to start rate refresher", applog.FieldError, err)
		os.Exit(1)
	}

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
