// Package service holds the business workflows of the finance BFA:
// category resolution, transaction writes with automated savings, the
// savings and dashboard summaries, receipt files and CSV export.
package service

import (
	"context"
	"strings"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var categoryTracer = otel.Tracer("service/categories")

const (
	// SavingsCategoryName is the expense category receiving every
	// automated savings transaction.
	SavingsCategoryName = "Ahorro e Inversión"
	SavingsCategoryIcon = "piggy-bank"

	savingsCacheName = "savings_category"

	// seedThreshold is the category count at or below which the default
	// catalog is (re)applied.
	seedThreshold = 2
)

// DefaultCategories is the catalog applied to a fresh account.
var DefaultCategories = []domain.NewCategory{
	{Name: "Alimentación", Type: domain.TypeExpense, Icon: "utensils"},
	{Name: "Transporte", Type: domain.TypeExpense, Icon: "bus"},
	{Name: "Vivienda", Type: domain.TypeExpense, Icon: "home"},
	{Name: "Entretenimiento", Type: domain.TypeExpense, Icon: "film"},
	{Name: "Salud", Type: domain.TypeExpense, Icon: "heart"},
	{Name: "Educación", Type: domain.TypeExpense, Icon: "book"},
	{Name: "Compras", Type: domain.TypeExpense, Icon: "shopping-bag"},
	{Name: "Servicios", Type: domain.TypeExpense, Icon: "wifi"},
	{Name: "Restaurantes", Type: domain.TypeExpense, Icon: "coffee"},
	{Name: "Viajes", Type: domain.TypeExpense, Icon: "map"},
	{Name: "Otros Gastos", Type: domain.TypeExpense, Icon: "circle"},
	{Name: "Freelance", Type: domain.TypeIncome, Icon: "laptop"},
	{Name: "Nómina", Type: domain.TypeIncome, Icon: "briefcase"},
	{Name: "Inversiones", Type: domain.TypeIncome, Icon: "trending-up"},
	{Name: "Regalos", Type: domain.TypeIncome, Icon: "gift"},
	{Name: "Otros Ingresos", Type: domain.TypeIncome, Icon: "plus-circle"},
}

// IsSavingsCategory reports whether c is the automated savings category.
func IsSavingsCategory(c *domain.Category) bool {
	return c != nil && c.Name == SavingsCategoryName && c.Type == domain.TypeExpense
}

// CategoryService lists, repairs and seeds an owner's categories and
// resolves the savings category for the interceptor.
type CategoryService struct {
	store   port.CategoryStore
	cache   port.Cache[string]
	metrics *observability.Metrics
	logger  *zap.Logger

	flight singleflight.Group
}

// NewCategoryService creates the category service. cache holds the
// resolved savings category id per owner.
func NewCategoryService(store port.CategoryStore, cache port.Cache[string], metrics *observability.Metrics, logger *zap.Logger) *CategoryService {
	return &CategoryService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// ListCategories returns the owner's categories ordered by name. Duplicate
// (name, type) pairs are deleted first, and the default catalog is seeded
// when the owner has almost no categories.
func (s *CategoryService) ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.ListCategories")
	defer span.End()

	if ownerID == "" {
		return []domain.Category{}, nil
	}
	span.SetAttributes(attribute.String("owner.id", ownerID))

	cats, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if dups := duplicateIDs(cats); len(dups) > 0 {
		if err := s.store.DeleteCategories(ctx, ownerID, dups); err != nil {
			s.logger.Error("category cleanup failed",
				zap.String("owner_id", ownerID),
				zap.Int("duplicates", len(dups)),
				zap.Error(err),
			)
		} else {
			s.metrics.AddDuplicatesRemoved(len(dups))
			s.logger.Info("duplicate categories removed",
				zap.String("owner_id", ownerID),
				zap.Int("count", len(dups)),
			)
		}

		cats, err = s.store.ListCategories(ctx, ownerID)
		if err != nil {
			return nil, err
		}
	}

	if len(cats) > seedThreshold {
		return cats, nil
	}

	v, err, shared := s.flight.Do("seed:"+ownerID, func() (any, error) {
		return s.seed(ctx, ownerID)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("seed.shared", shared))
	return v.([]domain.Category), nil
}

// seed inserts the catalog entries whose name is not taken yet and
// returns the re-read list. The list is read again first so a caller
// arriving after a finished run does not insert from a stale snapshot.
func (s *CategoryService) seed(ctx context.Context, ownerID string) ([]domain.Category, error) {
	existing, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(existing) > seedThreshold {
		return existing, nil
	}

	taken := make(map[string]bool, len(existing))
	for _, c := range existing {
		taken[c.Name] = true
	}

	var missing []domain.NewCategory
	for _, c := range DefaultCategories {
		if !taken[c.Name] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return existing, nil
	}

	if _, err := s.store.InsertCategories(ctx, ownerID, missing); err != nil {
		s.logger.Error("category seeding failed",
			zap.String("owner_id", ownerID),
			zap.Int("missing", len(missing)),
			zap.Error(err),
		)
	} else {
		s.metrics.IncrCategorySeed()
		s.logger.Info("default categories seeded",
			zap.String("owner_id", ownerID),
			zap.Int("inserted", len(missing)),
		)
	}

	return s.store.ListCategories(ctx, ownerID)
}

// duplicateIDs returns the ids of every category whose (name, type)
// already appeared earlier in cats.
func duplicateIDs(cats []domain.Category) []string {
	seen := make(map[string]bool, len(cats))
	var ids []string
	for _, c := range cats {
		if seen[c.Key()] {
			ids = append(ids, c.ID)
			continue
		}
		seen[c.Key()] = true
	}
	return ids
}

// CreateCategory inserts a single category for the owner.
func (s *CategoryService) CreateCategory(ctx context.Context, ownerID string, in domain.NewCategory) (*domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.CreateCategory")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}
	if !in.Type.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "must be 'income' or 'expense'"}
	}

	created, err := s.store.InsertCategories(ctx, ownerID, []domain.NewCategory{in})
	if err != nil {
		s.logger.Error("failed to create category", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	if len(created) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase-categories", Err: errEmptyInsert}
	}
	return &created[0], nil
}

// FindOrCreateSavingsCategory returns the id of the owner's savings
// category, creating it on first use.
func (s *CategoryService) FindOrCreateSavingsCategory(ctx context.Context, ownerID string) (string, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.FindOrCreateSavingsCategory")
	defer span.End()

	if ownerID == "" {
		return "", &domain.ErrNotAuthenticated{}
	}

	key := savingsCacheKey(ownerID)
	if id, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit(savingsCacheName)
		return id, nil
	}
	s.metrics.IncrCacheMiss(savingsCacheName)

	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.resolveSavingsCategory(ctx, ownerID)
	})
	if err != nil {
		return "", err
	}

	id := v.(string)
	s.cache.Set(key, id)
	return id, nil
}

func (s *CategoryService) resolveSavingsCategory(ctx context.Context, ownerID string) (string, error) {
	cats, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return "", err
	}
	for i := range cats {
		if IsSavingsCategory(&cats[i]) {
			return cats[i].ID, nil
		}
	}

	created, err := s.store.InsertCategories(ctx, ownerID, []domain.NewCategory{{
		Name: SavingsCategoryName,
		Type: domain.TypeExpense,
		Icon: SavingsCategoryIcon,
	}})
	if err != nil {
		return "", err
	}
	if len(created) == 0 {
		return "", &domain.ErrExternalService{Service: "supabase-categories", Err: errEmptyInsert}
	}

	s.logger.Info("savings category created",
		zap.String("owner_id", ownerID),
		zap.String("category_id", created[0].ID),
	)
	return created[0].ID, nil
}

// InvalidateSavingsCategory drops the cached savings category id.
func (s *CategoryService) InvalidateSavingsCategory(ownerID string) {
	s.cache.Delete(savingsCacheKey(ownerID))
}

func savingsCacheKey(ownerID string) string {
	return "savings:" + ownerID
}
