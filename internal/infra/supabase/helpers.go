package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// ============================================================
// PostgREST helpers for GET, POST, PATCH, DELETE, RPC
// ============================================================

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, c.restURL(path), nil, map[string]string{
		"Accept": "application/json",
	})
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.doRequest(ctx, http.MethodPost, c.restURL(path), bytes.NewReader(jsonBody), map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "return=representation",
	})
}

func (c *Client) doPatch(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.doRequest(ctx, http.MethodPatch, c.restURL(path), bytes.NewReader(jsonBody), map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "return=representation",
	})
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, c.restURL(path), nil, map[string]string{
		"Content-Type": "application/json",
	})
	return err
}

// doRPC calls a Postgres function as the user owning accessToken.
func (c *Client) doRPC(ctx context.Context, fn, accessToken string, args any) ([]byte, error) {
	jsonBody, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return c.doRequest(ctx, http.MethodPost, c.restURL("rpc/"+fn), bytes.NewReader(jsonBody), map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + accessToken,
	})
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// eq builds a PostgREST equality filter value.
func eq(v string) string {
	return "eq." + url.QueryEscape(v)
}

// in builds a PostgREST in-list filter value: in.("a","b").
func in(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + url.QueryEscape(strings.Join(quoted, ",")) + ")"
}

func isEmptyResult(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || string(trimmed) == "[]"
}
