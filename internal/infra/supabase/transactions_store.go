package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Transactions store: list, insert, update, delete
// ============================================================

// withCategory embeds the category row through the category_id foreign key.
const withCategory = "select=*,category:categories(*)"

func (c *Client) ListTransactions(ctx context.Context, ownerID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	var rows []domain.Transaction
	err := c.execute(ctx, "supabase/transactions", true, func() error {
		path := fmt.Sprintf("transactions?%s&user_id=%s&order=date.desc", withCategory, eq(ownerID))
		body, err := c.doGet(ctx, path)
		if err != nil {
			return err
		}
		rows = []domain.Transaction{}
		if isEmptyResult(body) {
			return nil
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) InsertTransaction(ctx context.Context, ownerID string, tx *domain.NewTransaction) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.Float64("transaction.amount", tx.Amount),
	)

	row := map[string]any{
		"user_id":     ownerID,
		"amount":      tx.Amount,
		"description": tx.Description,
		"date":        tx.Date.Format(time.RFC3339Nano),
		"category_id": tx.CategoryID,
	}
	if tx.Currency != "" {
		row["currency"] = tx.Currency
	}
	if tx.FileURL != "" {
		row["file_url"] = tx.FileURL
	}

	var results []domain.Transaction
	err := c.execute(ctx, "supabase/transactions", false, func() error {
		body, err := c.doPost(ctx, "transactions?"+withCategory, row)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &results); err != nil {
			return fmt.Errorf("decode transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result returned from transactions insert")
	}
	return &results[0], nil
}

func (c *Client) UpdateTransaction(ctx context.Context, ownerID, transactionID string, upd *domain.TransactionUpdate) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	row := map[string]any{}
	if upd.Amount != nil {
		row["amount"] = *upd.Amount
	}
	if upd.Description != nil {
		row["description"] = *upd.Description
	}
	if upd.CategoryID != nil {
		row["category_id"] = *upd.CategoryID
	}
	if upd.Date != nil {
		row["date"] = upd.Date.Format(time.RFC3339Nano)
	}

	var results []domain.Transaction
	err := c.execute(ctx, "supabase/transactions", false, func() error {
		path := fmt.Sprintf("transactions?%s&user_id=%s&id=%s", withCategory, eq(ownerID), eq(transactionID))
		body, err := c.doPatch(ctx, path, row)
		if err != nil {
			return err
		}
		results = nil
		if isEmptyResult(body) {
			return nil
		}
		if err := json.Unmarshal(body, &results); err != nil {
			return fmt.Errorf("decode updated transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	return &results[0], nil
}

func (c *Client) DeleteTransaction(ctx context.Context, ownerID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	return c.execute(ctx, "supabase/transactions", false, func() error {
		return c.doDelete(ctx, fmt.Sprintf("transactions?user_id=%s&id=%s", eq(ownerID), eq(transactionID)))
	})
}
