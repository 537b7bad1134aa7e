package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var savingsTracer = otel.Tracer("service/savings")

var errEmptyInsert = errors.New("insert returned no rows")

// Savings rule names, used as the "rule" metric label.
const (
	RuleRoundUp   = "round_up"
	RuleRetention = "retention"
)

// InterceptorState is a step of the savings interceptor run.
type InterceptorState string

const (
	StateIdle                InterceptorState = "idle"
	StateMainWritten         InterceptorState = "main_written"
	StateEvaluatingRounding  InterceptorState = "evaluating_rounding"
	StateEvaluatingRetention InterceptorState = "evaluating_retention"
	StateDone                InterceptorState = "done"
)

// Outcome is the result of evaluating one rule against a transaction.
type Outcome struct {
	Rule   string
	State  InterceptorState // state the rule was evaluated in
	Result string           // observability.Outcome*
	Amount float64          // auxiliary amount, 0 unless applied
	Err    error
}

// CategoryResolver resolves the savings category of an owner.
type CategoryResolver interface {
	FindOrCreateSavingsCategory(ctx context.Context, ownerID string) (string, error)
	InvalidateSavingsCategory(ownerID string)
}

// SavingsInterceptor applies the automated savings rules after a main
// transaction was persisted. It never fails the caller.
type SavingsInterceptor struct {
	categories CategoryResolver
	config     port.SavingsConfigStore
	txs        port.TransactionStore
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewSavingsInterceptor creates the interceptor.
func NewSavingsInterceptor(categories CategoryResolver, config port.SavingsConfigStore, txs port.TransactionStore, metrics *observability.Metrics, logger *zap.Logger) *SavingsInterceptor {
	return &SavingsInterceptor{
		categories: categories,
		config:     config,
		txs:        txs,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run evaluates the round-up and retention rules for the freshly written
// main transaction. Both rules are always evaluated; a failure in one
// does not stop the other and is reported only through the outcomes.
func (i *SavingsInterceptor) Run(ctx context.Context, ownerID string, main *domain.Transaction) []Outcome {
	ctx, span := savingsTracer.Start(ctx, "SavingsInterceptor.Run")
	defer span.End()

	span.AddEvent(string(StateMainWritten), trace.WithAttributes(attribute.String("transaction.id", main.ID)))

	cfg, err := i.config.Get(ctx, ownerID)
	if err != nil {
		i.logger.Error("savings config unavailable", zap.String("transaction_id", main.ID), zap.Error(err))
		out := []Outcome{
			{Rule: RuleRoundUp, State: StateEvaluatingRounding, Result: observability.OutcomeFailed, Err: err},
			{Rule: RuleRetention, State: StateEvaluatingRetention, Result: observability.OutcomeFailed, Err: err},
		}
		for _, o := range out {
			i.metrics.RecordSavings(o.Rule, o.Result, 0)
		}
		span.AddEvent(string(StateDone))
		return out
	}

	span.AddEvent(string(StateEvaluatingRounding))
	roundUp := i.evaluate(ctx, ownerID, main, RuleRoundUp, StateEvaluatingRounding,
		roundUpAmount(cfg, main), "Round-up: "+main.Description)

	span.AddEvent(string(StateEvaluatingRetention))
	retention := i.evaluate(ctx, ownerID, main, RuleRetention, StateEvaluatingRetention,
		retentionAmount(cfg, main), fmt.Sprintf("Automatic retention (%d%%)", cfg.RetentionPercentage))

	span.AddEvent(string(StateDone))
	return []Outcome{roundUp, retention}
}

func (i *SavingsInterceptor) evaluate(ctx context.Context, ownerID string, main *domain.Transaction, rule string, state InterceptorState, amount float64, description string) Outcome {
	out := Outcome{Rule: rule, State: state, Result: observability.OutcomeSkipped}
	if amount <= 0 {
		i.metrics.RecordSavings(rule, out.Result, 0)
		return out
	}

	if err := i.apply(ctx, ownerID, main, amount, description); err != nil {
		out.Result = observability.OutcomeFailed
		out.Err = err
		i.metrics.RecordSavings(rule, out.Result, 0)
		i.logger.Error("savings rule failed",
			zap.String("rule", rule),
			zap.String("owner_id", ownerID),
			zap.String("transaction_id", main.ID),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return out
	}

	out.Result = observability.OutcomeApplied
	out.Amount = amount
	i.metrics.RecordSavings(rule, out.Result, amount)
	i.logger.Info("savings rule applied",
		zap.String("rule", rule),
		zap.String("owner_id", ownerID),
		zap.String("transaction_id", main.ID),
		zap.Float64("amount", amount),
	)
	return out
}

// apply writes the auxiliary transaction and bumps the cached invested
// amount. A failed cache update is logged; the auxiliary row is already
// the authoritative record.
func (i *SavingsInterceptor) apply(ctx context.Context, ownerID string, main *domain.Transaction, amount float64, description string) error {
	categoryID, err := i.categories.FindOrCreateSavingsCategory(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("resolve savings category: %w", err)
	}

	_, err = i.txs.InsertTransaction(ctx, ownerID, &domain.NewTransaction{
		Amount:      amount,
		Description: description,
		Date:        main.Date,
		CategoryID:  categoryID,
		Currency:    main.Currency,
	})
	if err != nil {
		// The cached id may point at a category deleted by cleanup.
		i.categories.InvalidateSavingsCategory(ownerID)
		return fmt.Errorf("insert savings transaction: %w", err)
	}

	if _, err := i.config.AddInvested(ctx, ownerID, amount); err != nil {
		i.logger.Warn("invested amount not updated",
			zap.String("owner_id", ownerID),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
	}
	return nil
}

// roundUpAmount returns the distance to the next whole unit for enabled
// expense transactions, or 0.
func roundUpAmount(cfg domain.SavingsConfig, tx *domain.Transaction) float64 {
	if !cfg.RoundingEnabled || tx.Type() != domain.TypeExpense || !(tx.Amount > 0) {
		return 0
	}
	return round2(math.Ceil(tx.Amount) - tx.Amount)
}

// retentionAmount returns the retained share of enabled income
// transactions, or 0.
func retentionAmount(cfg domain.SavingsConfig, tx *domain.Transaction) float64 {
	if !cfg.RetentionEnabled || tx.Type() != domain.TypeIncome || !(tx.Amount > 0) {
		return 0
	}
	return round2(tx.Amount * float64(cfg.RetentionPercentage) / 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ============================================================
// Savings page
// ============================================================

// Funds is the static catalog shown on the savings page.
var Funds = []domain.FundInfo{
	{ID: domain.FundSP500, Name: "S&P 500 Index", Return: "+12.4%", Color: "#10b981", Risk: "Medio"},
	{ID: domain.FundTech, Name: "Global Tech ETF", Return: "+24.8%", Color: "#6366f1", Risk: "Alto"},
	{ID: domain.FundGreen, Name: "Green Energy", Return: "+8.2%", Color: "#f59e0b", Risk: "Bajo"},
}

// SavingsService serves the savings page: configuration, balance and
// the savings history.
type SavingsService struct {
	config port.SavingsConfigStore
	txs    port.TransactionStore
	logger *zap.Logger
}

// NewSavingsService creates the savings page service.
func NewSavingsService(config port.SavingsConfigStore, txs port.TransactionStore, logger *zap.Logger) *SavingsService {
	return &SavingsService{config: config, txs: txs, logger: logger}
}

// Summary returns the configuration, the savings balance computed from
// the savings category transactions, and their history. The cached
// invested amount is reconciled with the computed balance.
func (s *SavingsService) Summary(ctx context.Context, ownerID string) (*domain.SavingsSummary, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.Summary")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}

	all, err := s.txs.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	history := []domain.Transaction{}
	balance := 0.0
	for _, tx := range all {
		if IsSavingsCategory(tx.Category) {
			history = append(history, tx)
			balance = round2(balance + tx.Amount)
		}
	}

	cfg, err := s.config.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cfg.InvestedAmount != balance {
		reconciled, err := s.config.Set(ctx, ownerID, domain.SavingsConfigPatch{InvestedAmount: &balance})
		if err != nil {
			s.logger.Warn("invested amount reconcile failed",
				zap.String("owner_id", ownerID),
				zap.Float64("cached", cfg.InvestedAmount),
				zap.Float64("balance", balance),
				zap.Error(err),
			)
			cfg.InvestedAmount = balance
		} else {
			s.logger.Info("invested amount reconciled",
				zap.String("owner_id", ownerID),
				zap.Float64("cached", cfg.InvestedAmount),
				zap.Float64("balance", balance),
			)
			cfg = reconciled
		}
	}

	span.SetAttributes(attribute.Int("savings.history", len(history)))

	return &domain.SavingsSummary{
		Config:  cfg,
		Balance: balance,
		History: history,
		Funds:   Funds,
	}, nil
}

// Config returns the owner's savings configuration.
func (s *SavingsService) Config(ctx context.Context, ownerID string) (domain.SavingsConfig, error) {
	if ownerID == "" {
		return domain.SavingsConfig{}, &domain.ErrNotAuthenticated{}
	}
	return s.config.Get(ctx, ownerID)
}

// UpdateConfig merges patch into the owner's stored configuration.
func (s *SavingsService) UpdateConfig(ctx context.Context, ownerID string, patch domain.SavingsConfigPatch) (domain.SavingsConfig, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.UpdateConfig")
	defer span.End()

	if ownerID == "" {
		return domain.SavingsConfig{}, &domain.ErrNotAuthenticated{}
	}
	cfg, err := s.config.Set(ctx, ownerID, patch)
	if err != nil {
		return domain.SavingsConfig{}, err
	}

	s.logger.Info("savings config updated",
		zap.String("owner_id", ownerID),
		zap.Bool("rounding", cfg.RoundingEnabled),
		zap.Bool("retention", cfg.RetentionEnabled),
		zap.Int("retention_pct", cfg.RetentionPercentage),
	)
	return cfg, nil
}
