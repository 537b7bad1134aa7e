package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Categories store: list, get, insert, delete-by-id-list
// ============================================================

func (c *Client) ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCategories")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	var rows []domain.Category
	err := c.execute(ctx, "supabase/categories", true, func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("categories?user_id=%s&order=name.asc", eq(ownerID)))
		if err != nil {
			return err
		}
		rows = []domain.Category{}
		if isEmptyResult(body) {
			return nil
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode categories: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCategory")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", categoryID))

	var rows []domain.Category
	err := c.execute(ctx, "supabase/categories", true, func() error {
		path := fmt.Sprintf("categories?user_id=%s&id=%s&limit=1", eq(ownerID), eq(categoryID))
		body, err := c.doGet(ctx, path)
		if err != nil {
			return err
		}
		rows = nil
		if isEmptyResult(body) {
			return nil
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "category", ID: categoryID}
	}
	return &rows[0], nil
}

func (c *Client) InsertCategories(ctx context.Context, ownerID string, cats []domain.NewCategory) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertCategories")
	defer span.End()
	span.SetAttributes(attribute.Int("categories.count", len(cats)))

	if len(cats) == 0 {
		return []domain.Category{}, nil
	}

	payload := make([]map[string]any, 0, len(cats))
	for _, cat := range cats {
		row := map[string]any{
			"user_id": ownerID,
			"name":    cat.Name,
			"type":    cat.Type,
		}
		if cat.Icon != "" {
			row["icon"] = cat.Icon
		}
		payload = append(payload, row)
	}

	var results []domain.Category
	err := c.execute(ctx, "supabase/categories", false, func() error {
		body, err := c.doPost(ctx, "categories", payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &results); err != nil {
			return fmt.Errorf("decode inserted categories: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result returned from categories insert")
	}
	return results, nil
}

func (c *Client) DeleteCategories(ctx context.Context, ownerID string, ids []string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCategories")
	defer span.End()
	span.SetAttributes(attribute.Int("categories.count", len(ids)))

	if len(ids) == 0 {
		return nil
	}
	return c.execute(ctx, "supabase/categories", false, func() error {
		return c.doDelete(ctx, fmt.Sprintf("categories?user_id=%s&id=%s", eq(ownerID), in(ids)))
	})
}
