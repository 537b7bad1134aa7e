// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service
// layer from the hosted backend and the local key-value store.
package port

import (
	"context"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
)

// CategoryStore persists categories in the remote backend.
// Every method is scoped to the given owner.
type CategoryStore interface {
	ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error)
	GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error)
	InsertCategories(ctx context.Context, ownerID string, cats []domain.NewCategory) ([]domain.Category, error)
	DeleteCategories(ctx context.Context, ownerID string, ids []string) error
}

// TransactionStore persists transactions in the remote backend.
// Reads and writes return rows joined with their category.
type TransactionStore interface {
	ListTransactions(ctx context.Context, ownerID string) ([]domain.Transaction, error)
	InsertTransaction(ctx context.Context, ownerID string, tx *domain.NewTransaction) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, ownerID, transactionID string, upd *domain.TransactionUpdate) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, ownerID, transactionID string) error
}

// ObjectStorage is the per-owner file namespace of the backend.
type ObjectStorage interface {
	Upload(ctx context.Context, path, contentType string, data []byte) error
	List(ctx context.Context, prefix string, limit, offset int) ([]domain.StoredFile, error)
	PublicURL(path string) string
	Remove(ctx context.Context, paths []string) error
}

// ProfileStore reads user profiles and runs Bizum payments.
type ProfileStore interface {
	LookupByBizumCode(ctx context.Context, code string) (*domain.BizumRecipient, error)
	GetBizumCode(ctx context.Context, ownerID string) (string, error)
	// SendBizum runs the transfer as the user owning accessToken.
	SendBizum(ctx context.Context, accessToken string, t *domain.BizumTransfer) error
}

// SavingsConfigStore is the durable local store for the savings settings.
// Each owner has an independent configuration and invested amount.
type SavingsConfigStore interface {
	Get(ctx context.Context, ownerID string) (domain.SavingsConfig, error)
	Set(ctx context.Context, ownerID string, patch domain.SavingsConfigPatch) (domain.SavingsConfig, error)
	AddInvested(ctx context.Context, ownerID string, delta float64) (domain.SavingsConfig, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
