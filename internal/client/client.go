// Package client provides a Go SDK for talking to a KoruDelta node,
// wrapping the causal-KV, vector, query/view, and cluster HTTP surface
// internal/api exposes behind a clean Go API, in the register of the
// teacher's original client.go.
//
// This client talks to a single node. It does not implement
// reconciliation or cluster routing itself — the node it talks to does.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client represents a connection to ONE KoruDelta node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Client. baseURL looks like "http://localhost:8080".
// timeout protects every call from hanging forever; zero means 10s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VersionedValue mirrors the JSON shape of a KV response.
type VersionedValue struct {
	WriteID         string `json:"write_id"`
	DistinctionID   string `json:"distinction_id"`
	Namespace       string `json:"namespace"`
	Key             string `json:"key"`
	TimestampNS     int64  `json:"timestamp_ns"`
	PreviousWriteID string `json:"previous_write_id,omitempty"`
	HasPrevious     bool   `json:"has_previous"`
	Tombstone       bool   `json:"tombstone"`
	Value           []byte `json:"value"`
}

// Put stores value at (ns, key).
func (c *Client) Put(ctx context.Context, ns, key string, value []byte) (*VersionedValue, error) {
	var result VersionedValue
	if err := c.do(ctx, http.MethodPut, kvPath(ns, key), value, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get retrieves the current value at (ns, key).
func (c *Client) Get(ctx context.Context, ns, key string) (*VersionedValue, error) {
	var result VersionedValue
	if err := c.doJSON(ctx, http.MethodGet, kvPath(ns, key), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAt retrieves the value visible at timestamp t (unix nanoseconds).
func (c *Client) GetAt(ctx context.Context, ns, key string, t int64) (*VersionedValue, error) {
	path := fmt.Sprintf("%s/at?t=%d", kvPath(ns, key), t)
	var result VersionedValue
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History retrieves every version of (ns, key), newest first.
func (c *Client) History(ctx context.Context, ns, key string) ([]VersionedValue, error) {
	var result struct {
		History []VersionedValue `json:"history"`
	}
	if err := c.doJSON(ctx, http.MethodGet, kvPath(ns, key)+"/history", nil, &result); err != nil {
		return nil, err
	}
	return result.History, nil
}

// Delete soft-deletes (ns, key).
func (c *Client) Delete(ctx context.Context, ns, key string) (*VersionedValue, error) {
	var result VersionedValue
	if err := c.doJSON(ctx, http.MethodDelete, kvPath(ns, key), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Embed associates a vector with (ns, key).
func (c *Client) Embed(ctx context.Context, ns, key string, vector []float32, model string, metadata map[string]any) error {
	body := map[string]any{"vector": vector, "model": model, "metadata": metadata}
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/vector/%s/%s", url.PathEscape(ns), url.PathEscape(key)), body, nil)
}

// DeleteEmbed removes (ns, key)'s vector.
func (c *Client) DeleteEmbed(ctx context.Context, ns, key string) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/vector/%s/%s", url.PathEscape(ns), url.PathEscape(key)), nil, nil)
}

// SimilarHit is one ranked match.
type SimilarHit struct {
	Namespace  string  `json:"Namespace"`
	Key        string  `json:"Key"`
	Similarity float32 `json:"Similarity"`
}

// Similar searches for the k nearest embedded vectors to query, scoped
// to ns if non-empty. If at is non-nil, searches as of that timestamp
// (unix nanoseconds) instead of the current embedding set.
func (c *Client) Similar(ctx context.Context, ns string, query []float32, k, efSearch int, threshold float64, at *int64) ([]SimilarHit, error) {
	body := map[string]any{
		"namespace": ns, "vector": query, "k": k,
		"ef_search": efSearch, "threshold": threshold, "at": at,
	}
	var result struct {
		Hits []SimilarHit `json:"hits"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/vector/similar", body, &result); err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// Query executes a filter-query. filter/sort are passed through
// verbatim as the server-side query.Filter/query.SortSpec JSON shape.
func (c *Client) Query(ctx context.Context, ns string, filter, sort any, limit, offset int, countOnly bool) (json.RawMessage, error) {
	body := map[string]any{
		"Namespace": ns, "Filter": filter, "Sort": sort,
		"Limit": limit, "Offset": offset, "CountOnly": countOnly,
	}
	var result json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/query", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateView persists a named view definition.
func (c *Client) CreateView(ctx context.Context, view any) error {
	return c.doJSON(ctx, http.MethodPost, "/views", view, nil)
}

// RefreshView re-executes a view's query and materializes the result.
func (c *Client) RefreshView(ctx context.Context, name string) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/views/%s/refresh", url.PathEscape(name)), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// QueryView returns a view's last materialized result set.
func (c *Client) QueryView(ctx context.Context, name string) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/views/%s/query", url.PathEscape(name)), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteView removes a view definition.
func (c *Client) DeleteView(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, "/views/"+url.PathEscape(name), nil, nil)
}

// JoinCluster registers a peer into this node's membership.
func (c *Client) JoinCluster(ctx context.Context, nodeID, address string) error {
	body := map[string]string{"id": nodeID, "address": address}
	return c.doJSON(ctx, http.MethodPost, "/cluster/join", body, nil)
}

// LeaveCluster removes a peer from this node's membership.
func (c *Client) LeaveCluster(ctx context.Context, nodeID string) error {
	body := map[string]string{"id": nodeID}
	return c.doJSON(ctx, http.MethodPost, "/cluster/leave", body, nil)
}

func kvPath(ns, key string) string {
	return fmt.Sprintf("/kv/%s/%s", url.PathEscape(ns), url.PathEscape(key))
}

// doJSON marshals body (if non-nil) as the request JSON and decodes the
// response JSON into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		raw = data
	}
	return c.do(ctx, method, path, raw, out)
}

func (c *Client) do(ctx context.Context, method, path string, rawBody []byte, out any) error {
	var reqBody io.Reader
	if rawBody != nil {
		reqBody = bytes.NewReader(rawBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if rawBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a key, view, or identity does not exist.
var ErrNotFound = fmt.Errorf("not found")

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts HTTP error responses into Go errors.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
