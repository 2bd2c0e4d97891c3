// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package bitable

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/metrics"
)

// maxErrorBodySize caps how much of a failed response body is read for
// error reporting.
const maxErrorBodySize = 64 * 1024

// tokenExpiryMargin refreshes the tenant token this long before the
// server-reported expiry.
const tokenExpiryMargin = 5 * time.Minute

// Record is one physical table row: its record id plus the raw
// polymorphic field cells.
type Record struct {
	RecordID string
	Fields   map[string]any
}

// RecordUpdate addresses one row for a batch update.
type RecordUpdate struct {
	RecordID string
	Fields   map[string]any
}

// SearchOptions tunes one paginated scan. Zero values fall back to the
// client configuration.
type SearchOptions struct {
	// PageSize overrides the configured page size (clamped to the API
	// maximum).
	PageSize int

	// Limit caps the total rows returned. Zero means the configured
	// scan-limit safety valve applies.
	Limit int
}

// Store is the record store surface the core depends on. *Client
// implements it; tests substitute fakes.
type Store interface {
	SearchRecords(ctx context.Context, ref TableRef, filter *Filter, opts SearchOptions) ([]Record, error)
	BatchCreate(ctx context.Context, ref TableRef, rows []map[string]any) ([]string, error)
	BatchUpdate(ctx context.Context, ref TableRef, updates []RecordUpdate) error
	BatchDelete(ctx context.Context, ref TableRef, recordIDs []string) error
}

// Client talks to the bitable HTTP API. All calls are paced by a shared
// token-bucket limiter; the tenant access token is cached and refreshed
// ahead of expiry.
type Client struct {
	cfg    *config.BitableConfig
	client *http.Client
	lim    *rate.Limiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	wikiTokens  map[string]string
}

// NewClient creates a bitable client from validated configuration.
func NewClient(cfg *config.BitableConfig) *Client {
	return &Client{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
		lim:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		wikiTokens: make(map[string]string),
	}
}

// apiResponse is the uniform envelope of every bitable API reply.
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`

	// Token endpoint fields.
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// requestJSON performs one rate-limited API call and decodes the
// envelope. A non-zero envelope code is an error even on HTTP 200.
func (c *Client) requestJSON(ctx context.Context, method, rawURL string, token string, payload any) (*apiResponse, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readBodyForError(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("api error: code=%d msg=%s", envelope.Code, envelope.Msg)
	}
	return &envelope, nil
}

// readBodyForError reads at most maxErrorBodySize bytes for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}

// accessToken returns a valid tenant access token, exchanging app
// credentials when the cached token is missing or near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	tokenURL := c.cfg.BaseURL + "/open-apis/auth/v3/tenant_access_token/internal"
	payload := map[string]string{"app_id": c.cfg.AppID, "app_secret": c.cfg.AppSecret}
	envelope, err := c.requestJSON(ctx, http.MethodPost, tokenURL, "", payload)
	if err != nil {
		return "", fmt.Errorf("tenant token exchange failed: %w", err)
	}
	if envelope.TenantAccessToken == "" {
		return "", fmt.Errorf("tenant token missing in response")
	}

	c.token = envelope.TenantAccessToken
	expiry := time.Duration(envelope.Expire) * time.Second
	if expiry > tokenExpiryMargin {
		expiry -= tokenExpiryMargin
	}
	c.tokenExpiry = time.Now().Add(expiry)
	return c.token, nil
}

// resolveAppToken fills in ref.AppToken, resolving wiki-node URLs to
// their underlying bitable app token on first use.
func (c *Client) resolveAppToken(ctx context.Context, ref *TableRef) error {
	if ref.AppToken != "" {
		return nil
	}
	if ref.WikiToken == "" {
		return fmt.Errorf("bitable url %q carries neither app token nor wiki token", ref.RawURL)
	}

	c.mu.Lock()
	cached := c.wikiTokens[ref.WikiToken]
	c.mu.Unlock()
	if cached != "" {
		ref.AppToken = cached
		return nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	nodeURL := fmt.Sprintf("%s/open-apis/wiki/v2/spaces/get_node?token=%s", c.cfg.BaseURL, url.QueryEscape(ref.WikiToken))
	envelope, err := c.requestJSON(ctx, http.MethodGet, nodeURL, token, nil)
	if err != nil {
		return fmt.Errorf("wiki node lookup failed: %w", err)
	}

	var data struct {
		Node struct {
			ObjType  string `json:"obj_type"`
			ObjToken string `json:"obj_token"`
		} `json:"node"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("failed to decode wiki node: %w", err)
	}
	if data.Node.ObjType != "bitable" {
		return fmt.Errorf("wiki node obj_type is %q, not bitable", data.Node.ObjType)
	}
	if data.Node.ObjToken == "" {
		return fmt.Errorf("wiki node obj_token missing")
	}

	c.mu.Lock()
	c.wikiTokens[ref.WikiToken] = data.Node.ObjToken
	c.mu.Unlock()
	ref.AppToken = data.Node.ObjToken
	return nil
}

// SearchRecords scans the table with the given filter, following the
// has_more/page_token pagination sequentially until the limit, the scan
// safety valve, or the last page is reached.
func (c *Client) SearchRecords(ctx context.Context, ref TableRef, filter *Filter, opts SearchOptions) ([]Record, error) {
	start := time.Now()

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.cfg.PageSize
	}
	if pageSize > config.MaxPageSize {
		pageSize = config.MaxPageSize
	}
	limit := opts.Limit
	if limit <= 0 || limit > c.cfg.ScanLimit {
		limit = c.cfg.ScanLimit
	}
	if limit < pageSize {
		pageSize = limit
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, c.observe("search", start, err)
	}
	if err := c.resolveAppToken(ctx, &ref); err != nil {
		return nil, c.observe("search", start, err)
	}

	var records []Record
	pageToken := ""
	for {
		query := url.Values{"page_size": {strconv.Itoa(pageSize)}}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}
		searchURL := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/search?%s",
			c.cfg.BaseURL, ref.AppToken, ref.TableID, query.Encode())

		var body map[string]any
		if filter != nil {
			body = map[string]any{"filter": filter}
		}

		envelope, err := c.requestJSON(ctx, http.MethodPost, searchURL, token, body)
		if err != nil {
			return nil, c.observe("search", start, fmt.Errorf("search records failed: %w", err))
		}

		var data struct {
			Items []struct {
				RecordID string         `json:"record_id"`
				Fields   map[string]any `json:"fields"`
			} `json:"items"`
			HasMore   bool   `json:"has_more"`
			PageToken string `json:"page_token"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, c.observe("search", start, fmt.Errorf("failed to decode search page: %w", err))
		}

		for _, item := range data.Items {
			records = append(records, Record{RecordID: item.RecordID, Fields: item.Fields})
		}
		metrics.RecordStorePagesScanned.Inc()

		if len(records) >= limit {
			records = records[:limit]
			logging.Ctx(ctx).Warn().
				Str("table", ref.TableID).
				Int("limit", limit).
				Msg("search truncated at scan limit")
			break
		}
		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}

	return records, c.observe("search", start, nil)
}

// BatchCreate inserts rows in configured-size chunks and returns the new
// record ids in input order.
func (c *Client) BatchCreate(ctx context.Context, ref TableRef, rows []map[string]any) ([]string, error) {
	start := time.Now()
	if len(rows) == 0 {
		return nil, nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, c.observe("batch_create", start, err)
	}
	if err := c.resolveAppToken(ctx, &ref); err != nil {
		return nil, c.observe("batch_create", start, err)
	}

	createURL := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/batch_create",
		c.cfg.BaseURL, ref.AppToken, ref.TableID)

	recordIDs := make([]string, 0, len(rows))
	for _, chunk := range chunkRows(rows, c.cfg.BatchSize) {
		payload := map[string]any{"records": wrapFields(chunk)}
		envelope, err := c.requestJSON(ctx, http.MethodPost, createURL, token, payload)
		if err != nil {
			return recordIDs, c.observe("batch_create", start, fmt.Errorf("batch create failed: %w", err))
		}
		var data struct {
			Records []struct {
				RecordID string `json:"record_id"`
			} `json:"records"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return recordIDs, c.observe("batch_create", start, fmt.Errorf("failed to decode create response: %w", err))
		}
		for _, rec := range data.Records {
			recordIDs = append(recordIDs, rec.RecordID)
		}
	}
	return recordIDs, c.observe("batch_create", start, nil)
}

// BatchUpdate applies field updates in configured-size chunks.
func (c *Client) BatchUpdate(ctx context.Context, ref TableRef, updates []RecordUpdate) error {
	start := time.Now()
	if len(updates) == 0 {
		return nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return c.observe("batch_update", start, err)
	}
	if err := c.resolveAppToken(ctx, &ref); err != nil {
		return c.observe("batch_update", start, err)
	}

	updateURL := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/batch_update",
		c.cfg.BaseURL, ref.AppToken, ref.TableID)

	for i := 0; i < len(updates); i += c.cfg.BatchSize {
		end := min(i+c.cfg.BatchSize, len(updates))
		chunk := make([]map[string]any, 0, end-i)
		for _, u := range updates[i:end] {
			chunk = append(chunk, map[string]any{"record_id": u.RecordID, "fields": u.Fields})
		}
		if _, err := c.requestJSON(ctx, http.MethodPost, updateURL, token, map[string]any{"records": chunk}); err != nil {
			return c.observe("batch_update", start, fmt.Errorf("batch update failed: %w", err))
		}
	}
	return c.observe("batch_update", start, nil)
}

// BatchDelete removes rows by record id in configured-size chunks.
func (c *Client) BatchDelete(ctx context.Context, ref TableRef, recordIDs []string) error {
	start := time.Now()
	if len(recordIDs) == 0 {
		return nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return c.observe("batch_delete", start, err)
	}
	if err := c.resolveAppToken(ctx, &ref); err != nil {
		return c.observe("batch_delete", start, err)
	}

	deleteURL := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/batch_delete",
		c.cfg.BaseURL, ref.AppToken, ref.TableID)

	for i := 0; i < len(recordIDs); i += c.cfg.BatchSize {
		end := min(i+c.cfg.BatchSize, len(recordIDs))
		payload := map[string]any{"records": recordIDs[i:end]}
		if _, err := c.requestJSON(ctx, http.MethodPost, deleteURL, token, payload); err != nil {
			return c.observe("batch_delete", start, fmt.Errorf("batch delete failed: %w", err))
		}
	}
	return c.observe("batch_delete", start, nil)
}

// observe records per-operation metrics and passes the error through.
func (c *Client) observe(op string, start time.Time, err error) error {
	metrics.RecordStoreRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.RecordStoreRequests.WithLabelValues(op, outcome).Inc()
	return err
}

func chunkRows(rows []map[string]any, size int) [][]map[string]any {
	if size <= 0 {
		return [][]map[string]any{rows}
	}
	var chunks [][]map[string]any
	for i := 0; i < len(rows); i += size {
		chunks = append(chunks, rows[i:min(i+size, len(rows))])
	}
	return chunks
}

func wrapFields(rows []map[string]any) []map[string]any {
	wrapped := make([]map[string]any, 0, len(rows))
	for _, fields := range rows {
		wrapped = append(wrapped, map[string]any{"fields": fields})
	}
	return wrapped
}
