// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package resultsource

import (
	"context"
	"slices"
	"testing"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/config"
)

type fakeStore struct {
	records []bitable.Record
}

func (f *fakeStore) SearchRecords(_ context.Context, _ bitable.TableRef, filter *bitable.Filter, _ bitable.SearchOptions) ([]bitable.Record, error) {
	if filter == nil {
		return f.records, nil
	}
	wanted := make(map[string]struct{})
	for _, cond := range filter.Conditions {
		if len(cond.Value) > 0 {
			wanted[cond.Value[0]] = struct{}{}
		}
	}
	var out []bitable.Record
	for _, rec := range f.records {
		if _, ok := wanted[bitable.ValueString(rec.Fields["task_id"])]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) BatchCreate(context.Context, bitable.TableRef, []map[string]any) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) BatchUpdate(context.Context, bitable.TableRef, []bitable.RecordUpdate) error {
	return nil
}

func (f *fakeStore) BatchDelete(context.Context, bitable.TableRef, []string) error {
	return nil
}

func evidenceFields() config.EvidenceFields {
	return config.EvidenceFields{
		TaskID:    "task_id",
		ItemID:    "item_id",
		Duration:  "duration",
		UserID:    "user_id",
		UserName:  "user_name",
		UserAlias: "user_alias",
	}
}

func TestBitableSourceFetchByTaskIDs(t *testing.T) {
	store := &fakeStore{records: []bitable.Record{
		{RecordID: "rec1", Fields: map[string]any{
			"task_id":  int64(1),
			"item_id":  "video-1",
			"duration": 45.5,
			"user_id":  "u1",
			"cdn_url":  "https://cdn.example.com/video-1",
		}},
		{RecordID: "rec2", Fields: map[string]any{
			"task_id": int64(2),
			// No item id: falls back to a record-derived one.
			"duration": int64(30),
		}},
		{RecordID: "rec3", Fields: map[string]any{"item_id": "orphan"}},
	}}
	source := NewBitableSource(store, bitable.TableRef{TableID: "tbl"}, evidenceFields())

	rows, err := source.FetchByTaskIDs(context.Background(), []int64{1, 2, 2, 0, 404})
	if err != nil {
		t.Fatalf("FetchByTaskIDs() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].TaskID != 1 || rows[0].ItemID != "video-1" || rows[0].Duration != 45.5 {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[0].Extra["cdn_url"] != "https://cdn.example.com/video-1" {
		t.Errorf("Extra = %v, want cdn_url pass-through", rows[0].Extra)
	}
	if rows[1].ItemID != "record:rec2" {
		t.Errorf("rows[1].ItemID = %q, want stable fallback id", rows[1].ItemID)
	}
}

func TestBitableSourceEmptyInput(t *testing.T) {
	source := NewBitableSource(&fakeStore{}, bitable.TableRef{TableID: "tbl"}, evidenceFields())
	rows, err := source.FetchByTaskIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchByTaskIDs() error = %v", err)
	}
	if rows != nil {
		t.Errorf("rows = %v, want nil", rows)
	}
}

func TestDedupIDs(t *testing.T) {
	got := dedupIDs([]int64{3, 1, 3, 0, -2, 2, 1})
	if !slices.Equal(got, []int64{3, 1, 2}) {
		t.Errorf("dedupIDs() = %v, want [3 1 2]", got)
	}
}
