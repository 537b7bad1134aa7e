package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/config"
	"github.com/boddenberg/finanzas-bfa-go/internal/handler"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/cache"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/localstore"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("local_db", cfg.LocalDBPath),
		zap.String("export_timezone", cfg.ExportTimezone),
	)

	for _, key := range cfg.Invalid {
		logger.Warn("ignoring unparsable setting, using default", zap.String("key", key))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTelEnabled, cfg.OTLPEndpoint, "finanzas-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	categoryCache := cache.New[string](cfg.CacheTTL)
	defer categoryCache.Stop()

	// --- Local installation store ---
	kv, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		logger.Fatal("failed to open local store", zap.String("path", cfg.LocalDBPath), zap.Error(err))
	}
	defer kv.Close()
	savingsStore := localstore.NewSavingsStore(kv, logger)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase", logger)

	// --- Supabase ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		cfg.ReceiptsBucket,
		cb,
		resilienceCfg,
		logger,
	)
	logger.Info("using Supabase as data backend",
		zap.String("supabase_url", cfg.SupabaseURL),
		zap.String("bucket", cfg.ReceiptsBucket),
	)

	// --- Services ---
	categorySvc := service.NewCategoryService(supabaseClient, categoryCache, metrics, logger)
	interceptor := service.NewSavingsInterceptor(categorySvc, savingsStore, supabaseClient, metrics, logger)

	var tokens *service.TokenVerifier
	if cfg.SupabaseJWTSecret != "" {
		tokens = service.NewTokenVerifier(cfg.SupabaseJWTSecret)
	} else {
		logger.Warn("SUPABASE_JWT_SECRET not set, /v1 routes unavailable")
	}

	services := handler.Services{
		Categories:   categorySvc,
		Transactions: service.NewTransactionService(supabaseClient, supabaseClient, interceptor, cfg.BaseCurrency, logger),
		Savings:      service.NewSavingsService(savingsStore, supabaseClient, logger),
		Dashboard:    service.NewDashboardService(supabaseClient, savingsStore, metrics, logger),
		Files:        service.NewFileService(supabaseClient, logger),
		Export:       service.NewExportService(supabaseClient, cfg.ExportTimezone, logger),
		Bizum:        service.NewBizumService(supabaseClient, metrics, logger),
		Tokens:       tokens,
		Checks: map[string]handler.Pinger{
			"supabase":   supabaseClient,
			"localstore": kv,
		},
	}

	// --- Router ---
	router := handler.NewRouter(services, cfg.CORSAllowedOrigins, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
