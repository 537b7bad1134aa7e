package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var txTracer = otel.Tracer("service/transactions")

// UncategorisedLabel is the category filter value matching transactions
// without a category.
const UncategorisedLabel = "General"

// TransactionService creates, lists, updates and deletes transactions.
// Creation runs the savings interceptor after the main write.
type TransactionService struct {
	txs          port.TransactionStore
	categories   port.CategoryStore
	interceptor  *SavingsInterceptor
	baseCurrency string
	logger       *zap.Logger
}

// NewTransactionService creates the transaction writer. baseCurrency is
// applied to transactions created without one.
func NewTransactionService(txs port.TransactionStore, categories port.CategoryStore, interceptor *SavingsInterceptor, baseCurrency string, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		txs:          txs,
		categories:   categories,
		interceptor:  interceptor,
		baseCurrency: baseCurrency,
		logger:       logger,
	}
}

// Create validates and persists a transaction, then applies the automated
// savings rules. The returned transaction is the main one regardless of
// the rules' outcome.
func (s *TransactionService) Create(ctx context.Context, ownerID string, in *domain.NewTransaction) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.Create")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	if in.CategoryID == "" {
		return nil, &domain.ErrValidation{Field: "category_id", Message: "required"}
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Date.IsZero() {
		in.Date = time.Now().UTC()
	}
	if in.Currency == "" {
		in.Currency = s.baseCurrency
	}

	if _, err := s.categories.GetCategory(ctx, ownerID, in.CategoryID); err != nil {
		if domain.IsNotFound(err) {
			return nil, &domain.ErrValidation{Field: "category_id", Message: "unknown category"}
		}
		return nil, err
	}

	tx, err := s.txs.InsertTransaction(ctx, ownerID, in)
	if err != nil {
		s.logger.Error("failed to create transaction", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("transaction.id", tx.ID))

	s.logger.Info("transaction created",
		zap.String("owner_id", ownerID),
		zap.String("transaction_id", tx.ID),
		zap.String("type", string(tx.Type())),
	)

	if s.interceptor != nil {
		s.interceptor.Run(ctx, ownerID, tx)
	}
	return tx, nil
}

// List returns the owner's transactions newest first, narrowed by filter.
func (s *TransactionService) List(ctx context.Context, ownerID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.List")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}

	all, err := s.txs.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := applyFilter(all, filter)
	span.SetAttributes(attribute.Int("transactions.count", len(out)))
	return out, nil
}

func applyFilter(txs []domain.Transaction, f domain.TransactionFilter) []domain.Transaction {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.Transaction, 0, len(txs))

	for _, tx := range txs {
		categoryName := UncategorisedLabel
		if tx.Category != nil {
			categoryName = tx.Category.Name
		}

		if search != "" &&
			!strings.Contains(strings.ToLower(tx.Description), search) &&
			!(tx.Category != nil && strings.Contains(strings.ToLower(tx.Category.Name), search)) {
			continue
		}
		if f.Category != "" && f.Category != categoryName {
			continue
		}
		if f.Date != "" && tx.Date.UTC().Format(time.DateOnly) != f.Date {
			continue
		}

		out = append(out, tx)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Update applies upd to the owner's transaction.
func (s *TransactionService) Update(ctx context.Context, ownerID, transactionID string, upd *domain.TransactionUpdate) (*domain.Transaction, error) {
	ctx, span := txTracer.Start(ctx, "TransactionService.Update")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}
	if upd.Empty() {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}
	if upd.Amount != nil {
		if err := validateAmount(*upd.Amount); err != nil {
			return nil, err
		}
	}

	return s.txs.UpdateTransaction(ctx, ownerID, transactionID, upd)
}

// Delete removes the owner's transaction.
func (s *TransactionService) Delete(ctx context.Context, ownerID, transactionID string) error {
	ctx, span := txTracer.Start(ctx, "TransactionService.Delete")
	defer span.End()

	if ownerID == "" {
		return &domain.ErrNotAuthenticated{}
	}

	if err := s.txs.DeleteTransaction(ctx, ownerID, transactionID); err != nil {
		return err
	}
	s.logger.Info("transaction deleted",
		zap.String("owner_id", ownerID),
		zap.String("transaction_id", transactionID),
	)
	return nil
}

// MaxAmount is the largest amount a single transaction may carry.
const MaxAmount = 1_000_000_000

func validateAmount(a float64) error {
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 {
		return &domain.ErrValidation{Field: "amount", Message: "must be a positive number"}
	}
	if a > MaxAmount {
		return &domain.ErrValidation{Field: "amount", Message: fmt.Sprintf("must not exceed %d", MaxAmount)}
	}
	return nil
}
