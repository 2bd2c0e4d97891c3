// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package bitable

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/copycatch/copycatch/internal/config"
)

// newTestServer builds an httptest server speaking the bitable envelope
// protocol, delegating table endpoints to handle.
func newTestServer(t *testing.T, handle http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"code": 0, "msg": "ok",
			"tenant_access_token": "t-test-token",
			"expire":              7200,
		})
	})
	mux.HandleFunc("/", handle)
	return httptest.NewServer(mux)
}

func writeJSON(t *testing.T, w http.ResponseWriter, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func testClient(baseURL string) *Client {
	return NewClient(&config.BitableConfig{
		BaseURL:        baseURL,
		AppID:          "cli_test",
		AppSecret:      "secret",
		PageSize:       2,
		ScanLimit:      100,
		BatchSize:      2,
		RequestTimeout: 5 * time.Second,
		RatePerSecond:  1000,
		Burst:          1000,
	})
}

func testRef() TableRef {
	return TableRef{AppToken: "bascnTest", TableID: "tblTest"}
}

func TestSearchRecordsPagination(t *testing.T) {
	pages := []map[string]any{
		{
			"items": []map[string]any{
				{"record_id": "rec1", "fields": map[string]any{"TaskID": 1}},
				{"record_id": "rec2", "fields": map[string]any{"TaskID": 2}},
			},
			"has_more":   true,
			"page_token": "page2",
		},
		{
			"items": []map[string]any{
				{"record_id": "rec3", "fields": map[string]any{"TaskID": 3}},
			},
			"has_more":   false,
			"page_token": "",
		},
	}

	var auth string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/records/search") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		page := 0
		if r.URL.Query().Get("page_token") == "page2" {
			page = 1
		}
		writeJSON(t, w, map[string]any{"code": 0, "msg": "ok", "data": pages[page]})
	})
	defer srv.Close()

	client := testClient(srv.URL)
	records, err := client.SearchRecords(context.Background(), testRef(), nil, SearchOptions{})
	if err != nil {
		t.Fatalf("SearchRecords() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if records[2].RecordID != "rec3" {
		t.Errorf("records[2].RecordID = %q", records[2].RecordID)
	}
	if auth != "Bearer t-test-token" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestSearchRecordsScanLimit(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Always claims more pages; the scan limit must stop the loop.
		writeJSON(t, w, map[string]any{"code": 0, "msg": "ok", "data": map[string]any{
			"items": []map[string]any{
				{"record_id": "recA", "fields": map[string]any{}},
				{"record_id": "recB", "fields": map[string]any{}},
			},
			"has_more":   true,
			"page_token": "next",
		}})
	})
	defer srv.Close()

	client := testClient(srv.URL)
	records, err := client.SearchRecords(context.Background(), testRef(), nil, SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("SearchRecords() error = %v", err)
	}
	if len(records) != 5 {
		t.Errorf("len(records) = %d, want 5 (limit)", len(records))
	}
}

func TestSearchRecordsFilterBody(t *testing.T) {
	var got struct {
		Filter *Filter `json:"filter"`
	}
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode filter body: %v", err)
		}
		writeJSON(t, w, map[string]any{"code": 0, "msg": "ok", "data": map[string]any{"items": []any{}}})
	})
	defer srv.Close()

	client := testClient(srv.URL)
	filter := And(Is("BizType", "drama"), Is("Date", "1767225600000"))
	if _, err := client.SearchRecords(context.Background(), testRef(), filter, SearchOptions{}); err != nil {
		t.Fatalf("SearchRecords() error = %v", err)
	}
	if got.Filter == nil || got.Filter.Conjunction != "and" || len(got.Filter.Conditions) != 2 {
		t.Errorf("server saw filter %+v", got.Filter)
	}
	if got.Filter.Conditions[0].FieldName != "BizType" || got.Filter.Conditions[0].Operator != "is" {
		t.Errorf("first condition = %+v", got.Filter.Conditions[0])
	}
}

func TestBatchCreateChunksAndCollectsIDs(t *testing.T) {
	var batchSizes []int
	var created int
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/records/batch_create") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			Records []struct {
				Fields map[string]any `json:"fields"`
			} `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		batchSizes = append(batchSizes, len(payload.Records))
		out := make([]map[string]any, 0, len(payload.Records))
		for range payload.Records {
			created++
			out = append(out, map[string]any{"record_id": fmt.Sprintf("rec%d", created)})
		}
		writeJSON(t, w, map[string]any{"code": 0, "msg": "ok", "data": map[string]any{"records": out}})
	})
	defer srv.Close()

	client := testClient(srv.URL)
	rows := []map[string]any{
		{"GroupID": "g1"}, {"GroupID": "g2"}, {"GroupID": "g3"},
	}
	ids, err := client.BatchCreate(context.Background(), testRef(), rows)
	if err != nil {
		t.Fatalf("BatchCreate() error = %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}
	// BatchSize=2: one full chunk then the remainder.
	if len(batchSizes) != 2 || batchSizes[0] != 2 || batchSizes[1] != 1 {
		t.Errorf("batch sizes = %v, want [2 1]", batchSizes)
	}
}

func TestBatchDeletePayload(t *testing.T) {
	var deleted []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/records/batch_delete") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			Records []string `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		deleted = append(deleted, payload.Records...)
		writeJSON(t, w, map[string]any{"code": 0, "msg": "ok", "data": map[string]any{}})
	})
	defer srv.Close()

	client := testClient(srv.URL)
	if err := client.BatchDelete(context.Background(), testRef(), []string{"recX", "recY", "recZ"}); err != nil {
		t.Fatalf("BatchDelete() error = %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("deleted = %v, want 3 ids", deleted)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"code": 1254001, "msg": "table not found"})
	})
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.SearchRecords(context.Background(), testRef(), nil, SearchOptions{})
	if err == nil {
		t.Fatal("SearchRecords() = nil error, want envelope error")
	}
	if !strings.Contains(err.Error(), "1254001") {
		t.Errorf("error = %v, want code mention", err)
	}
}

func TestWikiTokenResolution(t *testing.T) {
	var nodeLookups int
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/wiki/v2/spaces/get_node"):
			nodeLookups++
			writeJSON(t, w, map[string]any{"code": 0, "msg": "ok", "data": map[string]any{
				"node": map[string]any{"obj_type": "bitable", "obj_token": "bascnResolved"},
			}})
		case strings.Contains(r.URL.Path, "/apps/bascnResolved/"):
			writeJSON(t, w, map[string]any{"code": 0, "msg": "ok", "data": map[string]any{"items": []any{}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	defer srv.Close()

	client := testClient(srv.URL)
	ref := TableRef{WikiToken: "wikcnTest", TableID: "tblTest"}
	for range 2 {
		if _, err := client.SearchRecords(context.Background(), ref, nil, SearchOptions{}); err != nil {
			t.Fatalf("SearchRecords() error = %v", err)
		}
	}
	// Resolution result is cached across calls.
	if nodeLookups != 1 {
		t.Errorf("node lookups = %d, want 1", nodeLookups)
	}
}
