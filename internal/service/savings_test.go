package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/cache"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/localstore"
	"github.com/boddenberg/finanzas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const owner = "user-1"

type harness struct {
	cats        *fakeCategoryStore
	txs         *fakeTransactionStore
	cfg         *fakeConfigStore
	metrics     *observability.Metrics
	categories  *service.CategoryService
	interceptor *service.SavingsInterceptor
	writer      *service.TransactionService

	food   domain.Category
	salary domain.Category
}

func newHarness(t *testing.T, cfg domain.SavingsConfig) *harness {
	t.Helper()

	c := cache.New[string](time.Minute)
	t.Cleanup(c.Stop)

	h := &harness{
		cats:    &fakeCategoryStore{},
		cfg:     newFakeConfigStore(cfg),
		metrics: observability.NewMetrics(),
	}
	h.txs = newFakeTransactionStore(h.cats)
	h.food = h.cats.add("Alimentación", domain.TypeExpense)
	h.salary = h.cats.add("Nómina", domain.TypeIncome)

	logger := zap.NewNop()
	h.categories = service.NewCategoryService(h.cats, c, h.metrics, logger)
	h.interceptor = service.NewSavingsInterceptor(h.categories, h.cfg, h.txs, h.metrics, logger)
	h.writer = service.NewTransactionService(h.txs, h.cats, h.interceptor, "EUR", logger)
	return h
}

func (h *harness) create(t *testing.T, amount float64, desc string, cat domain.Category) *domain.Transaction {
	t.Helper()
	tx, err := h.writer.Create(context.Background(), owner, &domain.NewTransaction{
		Amount:      amount,
		Description: desc,
		Date:        time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC),
		CategoryID:  cat.ID,
	})
	require.NoError(t, err)
	return tx
}

func enabledConfig() domain.SavingsConfig {
	cfg := domain.DefaultSavingsConfig()
	cfg.RoundingEnabled = true
	cfg.RetentionEnabled = true
	return cfg
}

func TestInterceptor_RoundUpOnExpense(t *testing.T) {
	h := newHarness(t, enabledConfig())

	main := h.create(t, 12.50, "Coffee", h.food)

	aux := h.txs.withPrefix("Round-up: ")
	require.Len(t, aux, 1)
	assert.Equal(t, "Round-up: Coffee", aux[0].Description)
	assert.Equal(t, 0.50, aux[0].Amount)
	assert.Equal(t, main.Date, aux[0].Date)
	assert.Equal(t, "EUR", aux[0].Currency)
	require.NotNil(t, aux[0].Category)
	assert.Equal(t, service.SavingsCategoryName, aux[0].Category.Name)
	assert.Equal(t, domain.TypeExpense, aux[0].Category.Type)

	cfg, _ := h.cfg.Get(context.Background(), owner)
	assert.Equal(t, 0.50, cfg.InvestedAmount)
}

func TestInterceptor_RoundUpWholeAmountSkipped(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.create(t, 20.00, "Taxi", h.food)

	assert.Equal(t, 1, h.txs.count())
	assert.Empty(t, h.cats.byName(service.SavingsCategoryName), "savings category must not be created")
	cfg, _ := h.cfg.Get(context.Background(), owner)
	assert.Zero(t, cfg.InvestedAmount)
}

func TestInterceptor_RoundUpFloatingPoint(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.create(t, 3.30, "Bread", h.food)

	aux := h.txs.withPrefix("Round-up: ")
	require.Len(t, aux, 1)
	assert.Equal(t, 0.70, aux[0].Amount)
}

func TestInterceptor_RetentionOnIncome(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.create(t, 1000, "March salary", h.salary)

	aux := h.txs.withPrefix("Automatic retention")
	require.Len(t, aux, 1)
	assert.Equal(t, "Automatic retention (10%)", aux[0].Description)
	assert.Equal(t, 100.0, aux[0].Amount)
	assert.Empty(t, h.txs.withPrefix("Round-up: "), "round-up never applies to income")

	cfg, _ := h.cfg.Get(context.Background(), owner)
	assert.Equal(t, 100.0, cfg.InvestedAmount)
}

func TestInterceptor_RetentionRoundsToZero(t *testing.T) {
	h := newHarness(t, enabledConfig())

	tx := h.create(t, 0.04, "Cashback", h.salary)

	assert.Equal(t, 1, h.txs.count())
	outcomes := h.interceptor.Run(context.Background(), owner, tx)
	require.Len(t, outcomes, 2)
	assert.Equal(t, observability.OutcomeSkipped, outcomes[1].Result)
	assert.Zero(t, outcomes[1].Amount)
}

func TestInterceptor_RulesDisabled(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())

	h.create(t, 12.50, "Coffee", h.food)
	h.create(t, 1000, "Salary", h.salary)

	assert.Equal(t, 2, h.txs.count())
	cfg, _ := h.cfg.Get(context.Background(), owner)
	assert.Zero(t, cfg.InvestedAmount)
}

func TestInterceptor_EvaluatesBothRules(t *testing.T) {
	h := newHarness(t, enabledConfig())

	tx := h.create(t, 12.50, "Coffee", h.food)
	outcomes := h.interceptor.Run(context.Background(), owner, tx)

	require.Len(t, outcomes, 2)
	assert.Equal(t, service.RuleRoundUp, outcomes[0].Rule)
	assert.Equal(t, service.StateEvaluatingRounding, outcomes[0].State)
	assert.Equal(t, observability.OutcomeApplied, outcomes[0].Result)
	assert.Equal(t, service.RuleRetention, outcomes[1].Rule)
	assert.Equal(t, service.StateEvaluatingRetention, outcomes[1].State)
	assert.Equal(t, observability.OutcomeSkipped, outcomes[1].Result)
}

func TestInterceptor_AuxiliaryFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.txs.failInsert = func(in *domain.NewTransaction) error {
		if strings.HasPrefix(in.Description, "Round-up: ") {
			return errBackend
		}
		return nil
	}

	main, err := h.writer.Create(context.Background(), owner, &domain.NewTransaction{
		Amount:      12.50,
		Description: "Coffee",
		CategoryID:  h.food.ID,
	})

	require.NoError(t, err)
	require.NotNil(t, main)
	assert.Equal(t, 12.50, main.Amount)
	assert.Equal(t, 1, h.txs.count(), "main transaction stays visible")

	cfg, _ := h.cfg.Get(context.Background(), owner)
	assert.Zero(t, cfg.InvestedAmount)
	assert.EqualValues(t, 1, h.metrics.GetSavingsSnapshot().Failed)
}

func TestInterceptor_CategoryResolutionFailure(t *testing.T) {
	h := newHarness(t, enabledConfig())
	tx := h.create(t, 20, "Taxi", h.food)
	h.cats.listErr = errBackend

	tx.Amount = 4.20
	outcomes := h.interceptor.Run(context.Background(), owner, tx)

	require.Len(t, outcomes, 2)
	assert.Equal(t, observability.OutcomeFailed, outcomes[0].Result)
	assert.True(t, errors.Is(outcomes[0].Err, errBackend))
}

func TestInterceptor_ConfigUnavailable(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.cfg.getErr = errBackend

	tx := h.create(t, 12.50, "Coffee", h.food)

	assert.Equal(t, "Coffee", tx.Description)
	assert.Equal(t, 1, h.txs.count())
	assert.EqualValues(t, 2, h.metrics.GetSavingsSnapshot().Failed)
}

func TestInterceptor_InvestedMatchesAuxiliarySum(t *testing.T) {
	h := newHarness(t, enabledConfig())

	for _, a := range []float64{12.50, 3.30, 7.99, 20, 0.01} {
		h.create(t, a, "expense", h.food)
	}
	for _, a := range []float64{1000, 333.33, 0.04} {
		h.create(t, a, "income", h.salary)
	}

	var sum float64
	for _, tx := range h.txs.withPrefix("") {
		if service.IsSavingsCategory(tx.Category) {
			sum += tx.Amount
		}
	}
	cfg, _ := h.cfg.Get(context.Background(), owner)
	assert.InDelta(t, sum, cfg.InvestedAmount, 0.001)
	// 0.50 + 0.70 + 0.01 + 0.99 + 100 + 33.33
	assert.InDelta(t, 135.53, cfg.InvestedAmount, 0.001)
}

func TestInterceptor_SavingsCategoryCreatedOnce(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.create(t, 12.50, "Coffee", h.food)
	h.create(t, 7.25, "Lunch", h.food)
	h.create(t, 500, "Freelance", h.salary)

	assert.Len(t, h.cats.byName(service.SavingsCategoryName), 1)
	assert.Len(t, h.txs.withPrefix("Round-up: "), 2)
	assert.Len(t, h.txs.withPrefix("Automatic retention"), 1)
}

func TestInterceptor_KeepsMainCurrency(t *testing.T) {
	h := newHarness(t, enabledConfig())

	_, err := h.writer.Create(context.Background(), owner, &domain.NewTransaction{
		Amount:      9.40,
		Description: "Souvenir",
		CategoryID:  h.food.ID,
		Currency:    "GBP",
	})
	require.NoError(t, err)

	aux := h.txs.withPrefix("Round-up: ")
	require.Len(t, aux, 1)
	assert.Equal(t, "GBP", aux[0].Currency)
}

func TestInterceptor_RetentionPercentage(t *testing.T) {
	cfg := enabledConfig()
	cfg.RetentionPercentage = 25
	h := newHarness(t, cfg)

	h.create(t, 80, "Gift", h.salary)

	aux := h.txs.withPrefix("Automatic retention")
	require.Len(t, aux, 1)
	assert.Equal(t, "Automatic retention (25%)", aux[0].Description)
	assert.Equal(t, 20.0, aux[0].Amount)
}

func TestInterceptor_Metrics(t *testing.T) {
	h := newHarness(t, enabledConfig())

	h.create(t, 12.50, "Coffee", h.food)
	h.create(t, 1000, "Salary", h.salary)

	snap := h.metrics.GetSavingsSnapshot()
	assert.EqualValues(t, 1, snap.RoundUpApplied)
	assert.EqualValues(t, 1, snap.RetentionApplied)
	assert.Zero(t, snap.Failed)
	assert.InDelta(t, 100.50, snap.AmountSaved, 0.001)
}

func TestInterceptor_ConfigIsPerOwner(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	kv, err := localstore.Open(filepath.Join(t.TempDir(), "finanzas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	store := localstore.NewSavingsStore(kv, zap.NewNop())
	interceptor := service.NewSavingsInterceptor(h.categories, store, h.txs, h.metrics, zap.NewNop())
	writer := service.NewTransactionService(h.txs, h.cats, interceptor, "EUR", zap.NewNop())
	savings := service.NewSavingsService(store, h.txs, zap.NewNop())
	ctx := context.Background()

	on := true
	_, err = savings.UpdateConfig(ctx, "owner-a", domain.SavingsConfigPatch{RoundingEnabled: &on})
	require.NoError(t, err)

	_, err = writer.Create(ctx, "owner-b", &domain.NewTransaction{Amount: 12.50, Description: "Coffee", CategoryID: h.food.ID})
	require.NoError(t, err)
	assert.Empty(t, h.txs.withPrefix("Round-up: "), "owner-a's toggle must not apply to owner-b")

	_, err = writer.Create(ctx, "owner-a", &domain.NewTransaction{Amount: 7.25, Description: "Lunch", CategoryID: h.food.ID})
	require.NoError(t, err)
	aux := h.txs.withPrefix("Round-up: ")
	require.Len(t, aux, 1)
	assert.Equal(t, "owner-a", aux[0].UserID)

	a, err := savings.Config(ctx, "owner-a")
	require.NoError(t, err)
	b, err := savings.Config(ctx, "owner-b")
	require.NoError(t, err)
	assert.True(t, a.RoundingEnabled)
	assert.Equal(t, 0.75, a.InvestedAmount)
	assert.False(t, b.RoundingEnabled)
	assert.Zero(t, b.InvestedAmount)
}

// --- Savings page ---

func TestSavingsSummary_ReconcilesInvestedAmount(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.create(t, 12.50, "Coffee", h.food)
	h.create(t, 1000, "Salary", h.salary)

	// Drift the cached total.
	drift := 42.0
	_, err := h.cfg.Set(context.Background(), owner, domain.SavingsConfigPatch{InvestedAmount: &drift})
	require.NoError(t, err)

	svc := service.NewSavingsService(h.cfg, h.txs, zap.NewNop())
	sum, err := svc.Summary(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, 100.50, sum.Balance)
	assert.Equal(t, 100.50, sum.Config.InvestedAmount)
	assert.Len(t, sum.History, 2)
	assert.Len(t, sum.Funds, 3)

	cfg, _ := h.cfg.Get(context.Background(), owner)
	assert.Equal(t, 100.50, cfg.InvestedAmount)
}

func TestSavingsSummary_NoReconcileWhenInSync(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.create(t, 12.50, "Coffee", h.food)
	sets := h.cfg.sets

	svc := service.NewSavingsService(h.cfg, h.txs, zap.NewNop())
	sum, err := svc.Summary(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, 0.50, sum.Balance)
	assert.Equal(t, sets, h.cfg.sets)
}

func TestSavingsSummary_RequiresOwner(t *testing.T) {
	h := newHarness(t, enabledConfig())
	svc := service.NewSavingsService(h.cfg, h.txs, zap.NewNop())

	_, err := svc.Summary(context.Background(), "")

	var authErr *domain.ErrNotAuthenticated
	assert.ErrorAs(t, err, &authErr)
}

func TestSavingsConfig_RequiresOwner(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	svc := service.NewSavingsService(h.cfg, h.txs, zap.NewNop())

	var authErr *domain.ErrNotAuthenticated
	_, err := svc.Config(context.Background(), "")
	assert.ErrorAs(t, err, &authErr)
	_, err = svc.UpdateConfig(context.Background(), "", domain.SavingsConfigPatch{})
	assert.ErrorAs(t, err, &authErr)
}

func TestSavingsUpdateConfig(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	svc := service.NewSavingsService(h.cfg, h.txs, zap.NewNop())

	on := true
	pct := 30
	fund := domain.FundTech
	cfg, err := svc.UpdateConfig(context.Background(), owner, domain.SavingsConfigPatch{
		RoundingEnabled:     &on,
		RetentionPercentage: &pct,
		SelectedFund:        &fund,
	})
	require.NoError(t, err)
	assert.True(t, cfg.RoundingEnabled)
	assert.False(t, cfg.RetentionEnabled)
	assert.Equal(t, 30, cfg.RetentionPercentage)
	require.NotNil(t, cfg.SelectedFund)
	assert.Equal(t, domain.FundTech, *cfg.SelectedFund)

	bad := 75
	_, err = svc.UpdateConfig(context.Background(), owner, domain.SavingsConfigPatch{RetentionPercentage: &bad})
	var valErr *domain.ErrValidation
	assert.ErrorAs(t, err, &valErr)

	got, err := svc.Config(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
