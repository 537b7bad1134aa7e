package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTransaction_Validation(t *testing.T) {
	h := newHarness(t, enabledConfig())

	tests := []struct {
		name    string
		owner   string
		in      domain.NewTransaction
		wantErr any
	}{
		{"no owner", "", domain.NewTransaction{Amount: 1, CategoryID: h.food.ID}, &domain.ErrNotAuthenticated{}},
		{"zero amount", owner, domain.NewTransaction{Amount: 0, CategoryID: h.food.ID}, &domain.ErrValidation{}},
		{"negative amount", owner, domain.NewTransaction{Amount: -5, CategoryID: h.food.ID}, &domain.ErrValidation{}},
		{"NaN amount", owner, domain.NewTransaction{Amount: math.NaN(), CategoryID: h.food.ID}, &domain.ErrValidation{}},
		{"infinite amount", owner, domain.NewTransaction{Amount: math.Inf(1), CategoryID: h.food.ID}, &domain.ErrValidation{}},
		{"huge amount", owner, domain.NewTransaction{Amount: 1e307, CategoryID: h.salary.ID}, &domain.ErrValidation{}},
		{"just over the cap", owner, domain.NewTransaction{Amount: service.MaxAmount + 0.01, CategoryID: h.food.ID}, &domain.ErrValidation{}},
		{"missing category", owner, domain.NewTransaction{Amount: 5}, &domain.ErrValidation{}},
		{"unknown category", owner, domain.NewTransaction{Amount: 5, CategoryID: "nope"}, &domain.ErrValidation{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			_, err := h.writer.Create(context.Background(), tt.owner, &in)
			require.Error(t, err)
			switch tt.wantErr.(type) {
			case *domain.ErrNotAuthenticated:
				var e *domain.ErrNotAuthenticated
				assert.ErrorAs(t, err, &e)
			case *domain.ErrValidation:
				var e *domain.ErrValidation
				assert.ErrorAs(t, err, &e)
			}
		})
	}
	assert.Zero(t, h.txs.count(), "nothing persisted")
}

func TestCreateTransaction_Defaults(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())

	before := time.Now().Add(-time.Second)
	tx, err := h.writer.Create(context.Background(), owner, &domain.NewTransaction{
		Amount:      42,
		Description: "  Groceries ",
		CategoryID:  h.food.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, "Groceries", tx.Description)
	assert.Equal(t, "EUR", tx.Currency)
	assert.True(t, tx.Date.After(before))
	require.NotNil(t, tx.Category)
	assert.Equal(t, domain.TypeExpense, tx.Type())
}

func TestCreateTransaction_BackendFailure(t *testing.T) {
	h := newHarness(t, enabledConfig())
	h.txs.failInsert = func(*domain.NewTransaction) error { return errBackend }

	_, err := h.writer.Create(context.Background(), owner, &domain.NewTransaction{Amount: 5, CategoryID: h.food.ID})

	assert.ErrorIs(t, err, errBackend)
}

func TestListTransactions_Filters(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	day1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	for _, in := range []domain.NewTransaction{
		{Amount: 10, Description: "Mercadona", CategoryID: h.food.ID, Date: day1},
		{Amount: 2000, Description: "Payroll", CategoryID: h.salary.ID, Date: day1},
		{Amount: 8, Description: "Lunch menu", CategoryID: h.food.ID, Date: day2},
	} {
		in := in
		_, err := h.writer.Create(context.Background(), owner, &in)
		require.NoError(t, err)
	}

	all, err := h.writer.List(context.Background(), owner, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byText, err := h.writer.List(context.Background(), owner, domain.TransactionFilter{Search: "MERCA"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "Mercadona", byText[0].Description)

	byCategoryText, err := h.writer.List(context.Background(), owner, domain.TransactionFilter{Search: "nómi"})
	require.NoError(t, err)
	assert.Len(t, byCategoryText, 1)

	byCategory, err := h.writer.List(context.Background(), owner, domain.TransactionFilter{Category: "Alimentación"})
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)

	byDate, err := h.writer.List(context.Background(), owner, domain.TransactionFilter{Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	limited, err := h.writer.List(context.Background(), owner, domain.TransactionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "Lunch menu", limited[0].Description, "newest first")
}

func TestListTransactions_Uncategorised(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	h.txs.txs = []domain.Transaction{
		{ID: "a", Amount: 1, Description: "loose"},
		{ID: "b", Amount: 2, Description: "food", Category: &h.food},
	}

	out, err := h.writer.List(context.Background(), owner, domain.TransactionFilter{Category: "General"})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestListTransactions_RequiresOwner(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())

	_, err := h.writer.List(context.Background(), "", domain.TransactionFilter{})

	var e *domain.ErrNotAuthenticated
	assert.ErrorAs(t, err, &e)
}

func TestUpdateTransaction(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	tx := h.create(t, 10, "Old", h.food)

	desc := "New"
	amount := 11.5
	updated, err := h.writer.Update(context.Background(), owner, tx.ID, &domain.TransactionUpdate{
		Description: &desc,
		Amount:      &amount,
	})

	require.NoError(t, err)
	assert.Equal(t, "New", updated.Description)
	assert.Equal(t, 11.5, updated.Amount)
}

func TestUpdateTransaction_Validation(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	tx := h.create(t, 10, "Old", h.food)

	_, err := h.writer.Update(context.Background(), owner, tx.ID, &domain.TransactionUpdate{})
	var valErr *domain.ErrValidation
	assert.ErrorAs(t, err, &valErr)

	neg := -1.0
	_, err = h.writer.Update(context.Background(), owner, tx.ID, &domain.TransactionUpdate{Amount: &neg})
	assert.ErrorAs(t, err, &valErr)

	desc := "x"
	_, err = h.writer.Update(context.Background(), owner, "missing", &domain.TransactionUpdate{Description: &desc})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestDeleteTransaction(t *testing.T) {
	h := newHarness(t, domain.DefaultSavingsConfig())
	tx := h.create(t, 10, "Gone", h.food)

	require.NoError(t, h.writer.Delete(context.Background(), owner, tx.ID))
	assert.Zero(t, h.txs.count())

	var e *domain.ErrNotAuthenticated
	assert.ErrorAs(t, h.writer.Delete(context.Background(), "", tx.ID), &e)
}
