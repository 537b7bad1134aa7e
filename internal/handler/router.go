package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger is a dependency probed by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the business services exposed over HTTP.
type Services struct {
	Categories   *service.CategoryService
	Transactions *service.TransactionService
	Savings      *service.SavingsService
	Dashboard    *service.DashboardService
	Files        *service.FileService
	Export       *service.ExportService
	Bizum        *service.BizumService
	Tokens       *service.TokenVerifier

	// Checks maps a dependency name to its health probe.
	Checks map[string]Pinger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, allowedOrigins []string, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Checks, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/savings", savingsMetricsHandler(metrics))

		if svc.Tokens == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, domain.CodeInternal, "auth not configured: SUPABASE_JWT_SECRET missing")
			}))
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(svc.Tokens, logger))

			// Categories
			r.Get("/categories", listCategoriesHandler(svc.Categories, logger))
			r.Post("/categories", createCategoryHandler(svc.Categories, logger))

			// Transactions
			r.Get("/transactions", listTransactionsHandler(svc.Transactions, logger))
			r.Post("/transactions", createTransactionHandler(svc.Transactions, logger))
			r.Patch("/transactions/{transactionId}", updateTransactionHandler(svc.Transactions, logger))
			r.Delete("/transactions/{transactionId}", deleteTransactionHandler(svc.Transactions, logger))

			// Dashboard & savings
			r.Get("/dashboard", dashboardHandler(svc.Dashboard, logger))
			r.Get("/savings", savingsSummaryHandler(svc.Savings, logger))
			r.Get("/savings/config", savingsConfigHandler(svc.Savings, logger))
			r.Put("/savings/config", updateSavingsConfigHandler(svc.Savings, logger))

			// Receipt files
			r.Get("/files", listFilesHandler(svc.Files, logger))
			r.Post("/files", uploadFileHandler(svc.Files, logger))
			r.Delete("/files/{name}", deleteFileHandler(svc.Files, logger))

			// Export
			r.Get("/export/transactions.csv", exportTransactionsHandler(svc.Export, logger))

			// Bizum
			r.Get("/bizum/recipients/{code}", lookupBizumRecipientHandler(svc.Bizum, logger))
			r.Post("/bizum/transfers", sendBizumHandler(svc.Bizum, logger))
			r.Get("/profile/bizum-code", myBizumCodeHandler(svc.Bizum, logger))
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(checks map[string]Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		for name, p := range checks {
			start := time.Now()
			err := p.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: name, Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func savingsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSavingsSnapshot())
	}
}
