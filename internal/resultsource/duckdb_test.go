// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package resultsource

import (
	"strings"
	"testing"

	"github.com/copycatch/copycatch/internal/config"
)

func TestValidateIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		ident   string
		wantErr bool
	}{
		{"plain", "capture_results", false},
		{"mixed case and digits", "Results2026", false},
		{"empty", "", true},
		{"quote injection", `results"; DROP TABLE x; --`, true},
		{"space", "capture results", true},
		{"dot qualified", "main.capture_results", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateIdentifier(tc.ident)
			if tc.wantErr && err == nil {
				t.Fatalf("validateIdentifier(%q) accepted", tc.ident)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("validateIdentifier(%q): %v", tc.ident, err)
			}
		})
	}
}

func TestDecodeRowFallbackItemID(t *testing.T) {
	src := &DuckDBSource{fields: config.EvidenceFields{
		TaskID:    "task_id",
		ItemID:    "item_id",
		Duration:  "duration",
		UserID:    "user_id",
		UserName:  "user_name",
		UserAlias: "user_alias",
	}}

	rowA := map[string]any{
		"task_id": int64(1), "item_id": nil, "duration": 12.5,
		"user_id": "u-1", "user_name": "Alice", "user_alias": "",
	}
	rowB := map[string]any{
		"task_id": int64(1), "item_id": nil, "duration": 90.0,
		"user_id": "u-2", "user_name": "Bob", "user_alias": "",
	}

	a := src.decodeRow(rowA)
	b := src.decodeRow(rowB)

	if a.ItemID == "" || b.ItemID == "" {
		t.Fatalf("expected synthesized item ids, got %q / %q", a.ItemID, b.ItemID)
	}
	if !strings.HasPrefix(a.ItemID, "row:") {
		t.Errorf("expected row: prefix, got %q", a.ItemID)
	}
	if a.ItemID == b.ItemID {
		t.Errorf("distinct rows share item id %q", a.ItemID)
	}
	if again := src.decodeRow(rowA); again.ItemID != a.ItemID {
		t.Errorf("fallback item id is not stable: %q vs %q", again.ItemID, a.ItemID)
	}
}

func TestDecodeRowKeepsNativeItemID(t *testing.T) {
	src := &DuckDBSource{fields: config.EvidenceFields{
		TaskID: "task_id", ItemID: "item_id", Duration: "duration",
		UserID: "user_id", UserName: "user_name", UserAlias: "user_alias",
	}}

	row := src.decodeRow(map[string]any{
		"task_id": int64(2), "item_id": "item-77", "duration": 30.0,
		"user_id": "", "user_name": "", "user_alias": "",
	})
	if row.ItemID != "item-77" {
		t.Errorf("expected native item id item-77, got %q", row.ItemID)
	}
}
