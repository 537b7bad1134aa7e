package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Storage API: upload, list, public URL, remove
// ============================================================

type storageObject struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	CreatedAt string         `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

// escapePath escapes each segment of an object path.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (c *Client) Upload(ctx context.Context, path, contentType string, data []byte) error {
	ctx, span := tracer.Start(ctx, "Supabase.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("storage.path", path),
		attribute.Int("storage.size", len(data)),
	)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	target := c.storageURL(fmt.Sprintf("object/%s/%s", c.bucket, escapePath(path)))
	return c.execute(ctx, "supabase/storage", false, func() error {
		_, err := c.doRequest(ctx, http.MethodPost, target, bytes.NewReader(data), map[string]string{
			"Content-Type": contentType,
			"x-upsert":     "false",
		})
		return err
	})
}

func (c *Client) List(ctx context.Context, prefix string, limit, offset int) ([]domain.StoredFile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListObjects")
	defer span.End()
	span.SetAttributes(attribute.String("storage.prefix", prefix))

	payload, err := json.Marshal(map[string]any{
		"prefix": prefix,
		"limit":  limit,
		"offset": offset,
		"sortBy": map[string]string{"column": "name", "order": "asc"},
	})
	if err != nil {
		return nil, err
	}

	var objects []storageObject
	err = c.execute(ctx, "supabase/storage", true, func() error {
		body, err := c.doRequest(ctx, http.MethodPost, c.storageURL("object/list/"+c.bucket), bytes.NewReader(payload), map[string]string{
			"Content-Type": "application/json",
		})
		if err != nil {
			return err
		}
		objects = nil
		if isEmptyResult(body) {
			return nil
		}
		if err := json.Unmarshal(body, &objects); err != nil {
			return fmt.Errorf("decode storage objects: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	files := make([]domain.StoredFile, 0, len(objects))
	for _, o := range objects {
		files = append(files, domain.StoredFile{
			ID:        o.ID,
			Name:      o.Name,
			CreatedAt: o.CreatedAt,
			Metadata:  o.Metadata,
		})
	}
	return files, nil
}

// PublicURL returns the public download URL of an object. No request is made.
func (c *Client) PublicURL(path string) string {
	return c.storageURL(fmt.Sprintf("object/public/%s/%s", c.bucket, escapePath(path)))
}

func (c *Client) Remove(ctx context.Context, paths []string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RemoveObjects")
	defer span.End()
	span.SetAttributes(attribute.Int("storage.count", len(paths)))

	payload, err := json.Marshal(map[string]any{"prefixes": paths})
	if err != nil {
		return err
	}
	return c.execute(ctx, "supabase/storage", false, func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, c.storageURL("object/"+c.bucket), bytes.NewReader(payload), map[string]string{
			"Content-Type": "application/json",
		})
		return err
	})
}

// Ping checks that the REST endpoint answers. Used by /healthz.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	return c.execute(ctx, "supabase/rest", false, func() error {
		_, err := c.doGet(ctx, "categories?select=id&limit=1")
		return err
	})
}
