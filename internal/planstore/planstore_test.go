// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package planstore

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/models"
)

// fakeStore is a stateful in-memory record store: creates, updates and
// deletes are visible to subsequent searches, so multi-pass flows like
// dedupe idempotence run end to end.
type fakeStore struct {
	records map[string]map[string]any
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]map[string]any)}
}

func (f *fakeStore) SearchRecords(_ context.Context, _ bitable.TableRef, filter *bitable.Filter, _ bitable.SearchOptions) ([]bitable.Record, error) {
	var ids []string
	for id := range f.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []bitable.Record
	for _, id := range ids {
		fields := f.records[id]
		if filter == nil || matchFilter(fields, filter) {
			out = append(out, bitable.Record{RecordID: id, Fields: fields})
		}
	}
	return out, nil
}

func matchFilter(fields map[string]any, filter *bitable.Filter) bool {
	for _, cond := range filter.Conditions {
		match := len(cond.Value) > 0 && bitable.ValueString(fields[cond.FieldName]) == cond.Value[0]
		if filter.Conjunction == "or" && match {
			return true
		}
		if filter.Conjunction != "or" && !match {
			return false
		}
	}
	return filter.Conjunction != "or"
}

func (f *fakeStore) BatchCreate(_ context.Context, _ bitable.TableRef, rows []map[string]any) ([]string, error) {
	var ids []string
	for _, row := range rows {
		f.nextID++
		id := fmt.Sprintf("rec%03d", f.nextID)
		f.records[id] = row
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) BatchUpdate(_ context.Context, _ bitable.TableRef, updates []bitable.RecordUpdate) error {
	for _, u := range updates {
		existing, ok := f.records[u.RecordID]
		if !ok {
			return fmt.Errorf("record %s not found", u.RecordID)
		}
		for k, v := range u.Fields {
			existing[k] = v
		}
	}
	return nil
}

func (f *fakeStore) BatchDelete(_ context.Context, _ bitable.TableRef, recordIDs []string) error {
	for _, id := range recordIDs {
		delete(f.records, id)
	}
	return nil
}

func planFields() config.PlanFields {
	return config.PlanFields{
		App:        "App",
		BizType:    "BizType",
		GroupID:    "GroupID",
		Status:     "Status",
		TaskIDs:    "TaskIDs",
		DramaInfo:  "DramaInfo",
		Date:       "Date",
		RetryCount: "RetryCount",
		LastError:  "LastError",
		Records:    "Records",
		UserInfo:   "UserInfo",
		StartAt:    "StartAt",
		EndAt:      "EndAt",
		UpdateAt:   "UpdateAt",
	}
}

func newTestStore(fake *fakeStore) *Store {
	s := New(fake, bitable.TableRef{TableID: "tbl"}, planFields())
	s.now = func() time.Time { return time.UnixMilli(1767225600000) }
	return s
}

const testDay = int64(1767139200000)

// seedPlan writes a raw plan row straight into the fake store.
func seedPlan(fake *fakeStore, groupID string, updateAt int64, buckets map[string][]int64) string {
	raw, _ := json.Marshal(buckets)
	fake.nextID++
	id := fmt.Sprintf("rec%03d", fake.nextID)
	fake.records[id] = map[string]any{
		"BizType":    "drama_infringement",
		"GroupID":    groupID,
		"Status":     "pending",
		"TaskIDs":    string(raw),
		"Date":       testDay,
		"RetryCount": int64(0),
		"UpdateAt":   updateAt,
	}
	return id
}

func draft(groupID string, taskIDs ...int64) models.PlanDraft {
	return models.PlanDraft{
		BizType:  "drama_infringement",
		GroupID:  groupID,
		Day:      testDay,
		TaskIDs:  taskIDs,
		AppLabel: "com.example.app",
		ContextInfo: map[string]any{
			"book_id": "book-1",
			"name":    "Drama One",
		},
	}
}

func TestCanonicalDeterminism(t *testing.T) {
	rows := []*models.WebhookPlan{
		{RecordID: "recB", UpdateAt: 100},
		{RecordID: "recA", UpdateAt: 200},
		{RecordID: "recC", UpdateAt: 200},
		{RecordID: "recD", UpdateAt: 50},
	}
	// UpdateAt 200 wins; among the tied rows recA is lexicographically
	// smallest. Every permutation returns the same winner.
	for i := 0; i < 10; i++ {
		shuffled := slices.Clone(rows)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := Canonical(shuffled); got.RecordID != "recA" {
			t.Fatalf("Canonical() = %s, want recA (permutation %d)", got.RecordID, i)
		}
	}
	if Canonical(nil) != nil {
		t.Error("Canonical(nil) != nil")
	}
}

func TestUpsertCreatesPendingPlan(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	result, err := s.Upsert(context.Background(), []models.PlanDraft{draft("g1", 3, 1, 2, 1)})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if result.Created != 1 || result.Updated != 0 {
		t.Fatalf("result = %+v, want 1 created", result)
	}

	canonical, _, err := s.FetchByKey(context.Background(), models.PlanKey{
		BizType: "drama_infringement", GroupID: "g1", Day: testDay,
	})
	if err != nil {
		t.Fatalf("FetchByKey() error = %v", err)
	}
	if canonical == nil {
		t.Fatal("created plan not found")
	}
	if canonical.Status != models.PlanStatusPending || canonical.RetryCount != 0 {
		t.Errorf("plan = status %q retry %d, want pending/0", canonical.Status, canonical.RetryCount)
	}
	if got := canonical.TaskIDs(); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("TaskIDs = %v, want [1 2 3] (sorted, deduplicated)", got)
	}
	if canonical.App != "com.example.app" {
		t.Errorf("App = %q", canonical.App)
	}
}

func TestUpsertMergesTaskIDsAndResets(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	seedID := seedPlan(fake, "g1", 100, map[string][]int64{models.BucketSuccess: {1, 2}})
	fake.records[seedID]["Status"] = "error"
	fake.records[seedID]["RetryCount"] = int64(3)

	result, err := s.Upsert(context.Background(), []models.PlanDraft{draft("g1", 2, 9)})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if result.Updated != 1 || result.Created != 0 {
		t.Fatalf("result = %+v, want 1 updated", result)
	}

	canonical, _, _ := s.FetchByKey(context.Background(), models.PlanKey{
		BizType: "drama_infringement", GroupID: "g1", Day: testDay,
	})
	// New evidence re-arms delivery.
	if canonical.Status != models.PlanStatusPending || canonical.RetryCount != 0 {
		t.Errorf("plan = status %q retry %d, want pending/0 after task set change", canonical.Status, canonical.RetryCount)
	}
	if got := canonical.TaskIDs(); !slices.Equal(got, []int64{1, 2, 9}) {
		t.Errorf("TaskIDs = %v, want [1 2 9]", got)
	}
	// Previously classified ids keep their bucket; only the new id is
	// pending.
	if got := canonical.TaskBuckets[models.BucketSuccess]; !slices.Equal(got, []int64{1, 2}) {
		t.Errorf("success bucket = %v, want [1 2]", got)
	}
	if got := canonical.TaskBuckets[models.BucketPending]; !slices.Equal(got, []int64{9}) {
		t.Errorf("pending bucket = %v, want [9]", got)
	}
}

func TestUpsertNoChangeSkips(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	d := draft("g1", 1, 2)
	if _, err := s.Upsert(context.Background(), []models.PlanDraft{d}); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	result, err := s.Upsert(context.Background(), []models.PlanDraft{d})
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if result.Skipped != 1 || result.Created != 0 || result.Updated != 0 {
		t.Errorf("result = %+v, want 1 skipped", result)
	}
}

func TestUpsertContextChangeWithoutReset(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	seedID := seedPlan(fake, "g1", 100, map[string][]int64{models.BucketSuccess: {1}})
	fake.records[seedID]["Status"] = "success"

	d := draft("g1", 1)
	d.ContextInfo = map[string]any{"book_id": "book-1", "name": "Renamed Drama"}
	if _, err := s.Upsert(context.Background(), []models.PlanDraft{d}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	canonical, _, _ := s.FetchByKey(context.Background(), models.PlanKey{
		BizType: "drama_infringement", GroupID: "g1", Day: testDay,
	})
	if canonical.DramaInfo["name"] != "Renamed Drama" {
		t.Errorf("DramaInfo = %v", canonical.DramaInfo)
	}
	// Same task set: a context-only change must not reopen the plan.
	if canonical.Status != models.PlanStatusSuccess {
		t.Errorf("Status = %q, want success preserved", canonical.Status)
	}
}

func TestUpsertValidation(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	result, err := s.Upsert(context.Background(), []models.PlanDraft{
		{GroupID: "g1", Day: testDay, TaskIDs: []int64{1}},           // no biz type
		{BizType: "x", GroupID: "g2", TaskIDs: []int64{1}},           // no day
		{BizType: "x", GroupID: "g3", Day: testDay},                  // no task ids
		{BizType: "x", GroupID: "g4", Day: testDay, TaskIDs: []int64{1}},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(result.Errors) != 3 {
		t.Errorf("Errors = %v, want 3 per-item errors", result.Errors)
	}
	if result.Created != 1 {
		t.Errorf("Created = %d, want the valid draft applied", result.Created)
	}
}

func TestUpsertUpdatesCanonicalRowOnly(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	seedPlan(fake, "g1", 100, map[string][]int64{models.BucketPending: {1}})
	newer := seedPlan(fake, "g1", 200, map[string][]int64{models.BucketPending: {1}})

	if _, err := s.Upsert(context.Background(), []models.PlanDraft{draft("g1", 1, 5)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	// Only the newer (canonical) row gained the new task id.
	var buckets map[string][]int64
	if err := json.Unmarshal([]byte(fake.records[newer]["TaskIDs"].(string)), &buckets); err != nil {
		t.Fatalf("decode canonical TaskIDs cell: %v", err)
	}
	if !slices.Contains(buckets[models.BucketPending], int64(5)) {
		t.Errorf("canonical pending bucket = %v, want it to contain 5", buckets[models.BucketPending])
	}
}

func TestDedupeCollapsesAndIsIdempotent(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	older := seedPlan(fake, "g1", 100, map[string][]int64{models.BucketPending: {1}})
	newer := seedPlan(fake, "g1", 200, map[string][]int64{models.BucketPending: {1}})
	seedPlan(fake, "g2", 100, map[string][]int64{models.BucketPending: {2}})

	result, err := s.Dedupe(context.Background(), DedupeFilter{BizType: "drama_infringement"}, false)
	if err != nil {
		t.Fatalf("Dedupe() error = %v", err)
	}
	if result.Scanned != 3 || result.GroupedKeys != 2 || result.DuplicateKeys != 1 || result.Deleted != 1 {
		t.Errorf("result = %+v, want scanned=3 grouped=2 duplicates=1 deleted=1", result)
	}
	if _, exists := fake.records[older]; exists {
		t.Error("older duplicate still present, want deleted")
	}
	if _, exists := fake.records[newer]; !exists {
		t.Error("canonical row deleted, want survivor")
	}

	// Second sweep over the clean store deletes nothing.
	again, err := s.Dedupe(context.Background(), DedupeFilter{BizType: "drama_infringement"}, false)
	if err != nil {
		t.Fatalf("second Dedupe() error = %v", err)
	}
	if again.DuplicateKeys != 0 || again.Deleted != 0 {
		t.Errorf("second sweep = %+v, want no duplicates and no deletions", again)
	}
}

func TestDedupeDryRun(t *testing.T) {
	fake := newFakeStore()
	s := newTestStore(fake)

	seedPlan(fake, "g1", 100, map[string][]int64{models.BucketPending: {1}})
	seedPlan(fake, "g1", 200, map[string][]int64{models.BucketPending: {1}})

	result, err := s.Dedupe(context.Background(), DedupeFilter{}, true)
	if err != nil {
		t.Fatalf("Dedupe() error = %v", err)
	}
	if result.Deleted != 1 || !result.DryRun {
		t.Errorf("result = %+v, want would-delete=1 dry-run", result)
	}
	if len(fake.records) != 2 {
		t.Errorf("records = %d after dry run, want 2 untouched", len(fake.records))
	}
	if len(result.Sample) != 1 {
		t.Errorf("Sample = %v, want one entry", result.Sample)
	}
}
