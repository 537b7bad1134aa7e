package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Profiles store: Bizum code lookup and the send_bizum RPC
// ============================================================

type profileRow struct {
	ID        string  `json:"id"`
	FullName  *string `json:"full_name"`
	BizumCode *string `json:"bizum_code"`
}

func (c *Client) LookupByBizumCode(ctx context.Context, code string) (*domain.BizumRecipient, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LookupByBizumCode")
	defer span.End()
	span.SetAttributes(attribute.String("bizum.code", code))

	row, err := c.profile(ctx, "bizum_code", code)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &domain.ErrNotFound{Resource: "bizum code", ID: code}
	}
	rec := &domain.BizumRecipient{ID: row.ID, Code: code}
	if row.FullName != nil {
		rec.FullName = *row.FullName
	}
	return rec, nil
}

func (c *Client) GetBizumCode(ctx context.Context, ownerID string) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBizumCode")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	row, err := c.profile(ctx, "id", ownerID)
	if err != nil {
		return "", err
	}
	if row == nil || row.BizumCode == nil || *row.BizumCode == "" {
		return "", &domain.ErrNotFound{Resource: "bizum code of profile", ID: ownerID}
	}
	return *row.BizumCode, nil
}

// profile returns the single profile whose column equals value, or nil.
func (c *Client) profile(ctx context.Context, column, value string) (*profileRow, error) {
	var rows []profileRow
	err := c.execute(ctx, "supabase/profiles", true, func() error {
		path := fmt.Sprintf("profiles?select=id,full_name,bizum_code&%s=%s&limit=1", column, eq(value))
		body, err := c.doGet(ctx, path)
		if err != nil {
			return err
		}
		rows = nil
		if isEmptyResult(body) {
			return nil
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode profile: %w", err)
		}
		return nil
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// SendBizum calls the send_bizum RPC with the caller's access token so the
// function debits the authenticated user. It is never retried.
func (c *Client) SendBizum(ctx context.Context, accessToken string, t *domain.BizumTransfer) error {
	ctx, span := tracer.Start(ctx, "Supabase.SendBizum")
	defer span.End()
	span.SetAttributes(
		attribute.String("bizum.recipient", t.RecipientCode),
		attribute.Float64("bizum.amount", t.Amount),
	)

	args := map[string]any{
		"recipient_code": t.RecipientCode,
		"amount":         t.Amount,
		"currency":       t.Currency,
		"concept":        t.Concept,
	}
	return c.execute(ctx, "supabase/bizum", false, func() error {
		_, err := c.doRPC(ctx, "send_bizum", accessToken, args)
		return err
	})
}
