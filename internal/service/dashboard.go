package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var dashboardTracer = otel.Tracer("service/dashboard")

const recentTransactions = 5

// DashboardService aggregates the owner's balance and recent activity.
type DashboardService struct {
	txs     port.TransactionStore
	config  port.SavingsConfigStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewDashboardService(txs port.TransactionStore, config port.SavingsConfigStore, metrics *observability.Metrics, logger *zap.Logger) *DashboardService {
	return &DashboardService{txs: txs, config: config, metrics: metrics, logger: logger}
}

// Summary computes the dashboard for the owner.
func (s *DashboardService) Summary(ctx context.Context, ownerID string) (*domain.DashboardSummary, error) {
	ctx, span := dashboardTracer.Start(ctx, "DashboardService.Summary")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("dashboard", time.Since(start))
	}()

	var (
		txs []domain.Transaction
		cfg domain.SavingsConfig
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := s.txs.ListTransactions(gCtx, ownerID)
		if err != nil {
			s.logger.Error("failed to fetch transactions",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
			s.metrics.IncrExternalError("transactions")
			return fmt.Errorf("transactions fetch: %w", err)
		}
		txs = t
		return nil
	})

	g.Go(func() error {
		c, err := s.config.Get(gCtx, ownerID)
		if err != nil {
			return fmt.Errorf("savings config: %w", err)
		}
		cfg = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := summarize(txs)
	sum.Savings = cfg
	return sum, nil
}

func summarize(txs []domain.Transaction) *domain.DashboardSummary {
	var income, expense float64
	for _, tx := range txs {
		switch tx.Type() {
		case domain.TypeIncome:
			income += tx.Amount
		case domain.TypeExpense:
			expense += tx.Amount
		}
	}
	income, expense = round2(income), round2(expense)

	sum := &domain.DashboardSummary{
		Balance:      round2(income - expense),
		TotalIncome:  income,
		TotalExpense: expense,
	}
	if volume := income + expense; volume > 0 {
		sum.IncomePct = int(math.Round(income / volume * 100))
		sum.ExpensePct = int(math.Round(expense / volume * 100))
	}

	n := min(len(txs), recentTransactions)
	sum.Recent = append([]domain.Transaction{}, txs[:n]...)
	return sum
}
