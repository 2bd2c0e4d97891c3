// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package planstore owns the durable WebhookPlan records: the codec
// between plans and physical table rows, the canonical-row selection
// rule shared by every reader, the idempotent upserter and the
// duplicate-collapsing sweep. The backing store cannot enforce key
// uniqueness, so every reader here converges on one deterministic row
// per key and the sweep eventually removes the rest.
package planstore

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/models"
)

// Store reads and writes the plan table.
type Store struct {
	store  bitable.Store
	ref    bitable.TableRef
	fields config.PlanFields

	// now is swapped in tests.
	now func() time.Time
}

// New binds a record store to the plan table.
func New(store bitable.Store, ref bitable.TableRef, fields config.PlanFields) *Store {
	return &Store{store: store, ref: ref, fields: fields, now: time.Now}
}

// decode maps one physical row to a WebhookPlan. Rows without a group
// id are not plans.
func (s *Store) decode(rec bitable.Record) (*models.WebhookPlan, bool) {
	get := func(name string) string {
		if name == "" {
			return ""
		}
		return bitable.ValueString(rec.Fields[name])
	}
	getInt := func(name string) int64 {
		if name == "" {
			return 0
		}
		return bitable.ValueInt(rec.Fields[name])
	}

	groupID := get(s.fields.GroupID)
	if groupID == "" {
		return nil, false
	}

	plan := &models.WebhookPlan{
		RecordID:   rec.RecordID,
		App:        get(s.fields.App),
		BizType:    get(s.fields.BizType),
		GroupID:    groupID,
		Status:     models.PlanStatus(get(s.fields.Status)),
		Day:        getInt(s.fields.Date),
		RetryCount: int(getInt(s.fields.RetryCount)),
		LastError:  get(s.fields.LastError),
		StartAt:    getInt(s.fields.StartAt),
		EndAt:      getInt(s.fields.EndAt),
		UpdateAt:   getInt(s.fields.UpdateAt),
	}
	if plan.Status == "" {
		plan.Status = models.PlanStatusPending
	}

	plan.TaskBuckets = decodeJSONCell[map[string][]int64](get(s.fields.TaskIDs))
	plan.DramaInfo = decodeJSONCell[map[string]any](get(s.fields.DramaInfo))
	plan.Records = decodeJSONCell[map[string]int](get(s.fields.Records))
	if raw := get(s.fields.UserInfo); raw != "" {
		var user models.UserInfo
		if err := json.Unmarshal([]byte(raw), &user); err == nil {
			plan.UserInfo = user
		}
	}
	return plan, true
}

// decodeJSONCell parses a JSON text cell, returning the zero map on any
// parse problem. Plan rows are hand-editable in the table UI; a mangled
// cell must not poison a whole scan.
func decodeJSONCell[T any](raw string) T {
	var out T
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		var zero T
		return zero
	}
	return out
}

// Mutation is one partial update to a plan row. Nil fields are left
// untouched; UpdateAt is always stamped.
type Mutation struct {
	App         *string
	Status      *models.PlanStatus
	TaskBuckets map[string][]int64
	DramaInfo   map[string]any
	RetryCount  *int
	LastError   *string
	Records     map[string]int
	UserInfo    *models.UserInfo
	StartAt     *int64
	EndAt       *int64
}

// mutationFields maps a mutation to physical cells. JSON columns are
// encoded with the same codec the decoder uses.
func (s *Store) mutationFields(m Mutation) map[string]any {
	fields := make(map[string]any)
	set := func(name string, value any) {
		if name != "" {
			fields[name] = value
		}
	}
	if m.App != nil {
		set(s.fields.App, *m.App)
	}
	if m.Status != nil {
		set(s.fields.Status, string(*m.Status))
	}
	if m.TaskBuckets != nil {
		set(s.fields.TaskIDs, encodeJSONCell(m.TaskBuckets))
	}
	if m.DramaInfo != nil {
		set(s.fields.DramaInfo, encodeJSONCell(m.DramaInfo))
	}
	if m.RetryCount != nil {
		set(s.fields.RetryCount, *m.RetryCount)
	}
	if m.LastError != nil {
		set(s.fields.LastError, *m.LastError)
	}
	if m.Records != nil {
		set(s.fields.Records, encodeJSONCell(m.Records))
	}
	if m.UserInfo != nil {
		set(s.fields.UserInfo, encodeJSONCell(*m.UserInfo))
	}
	if m.StartAt != nil {
		set(s.fields.StartAt, *m.StartAt)
	}
	if m.EndAt != nil {
		set(s.fields.EndAt, *m.EndAt)
	}
	if len(fields) > 0 {
		set(s.fields.UpdateAt, s.now().UnixMilli())
	}
	return fields
}

// createFields maps a full new plan row to physical cells.
func (s *Store) createFields(plan *models.WebhookPlan) map[string]any {
	fields := make(map[string]any)
	set := func(name string, value any) {
		if name != "" {
			fields[name] = value
		}
	}
	set(s.fields.App, plan.App)
	set(s.fields.BizType, plan.BizType)
	set(s.fields.GroupID, plan.GroupID)
	set(s.fields.Status, string(plan.Status))
	set(s.fields.TaskIDs, encodeJSONCell(plan.TaskBuckets))
	set(s.fields.Date, plan.Day)
	set(s.fields.RetryCount, plan.RetryCount)
	set(s.fields.UpdateAt, s.now().UnixMilli())
	if plan.DramaInfo != nil {
		set(s.fields.DramaInfo, encodeJSONCell(plan.DramaInfo))
	}
	return fields
}

func encodeJSONCell(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// keyFilter builds the scan filter for one (bizType, day) partition.
func (s *Store) keyFilter(bizType string, day int64) *bitable.Filter {
	var conds []bitable.Condition
	if bizType != "" && s.fields.BizType != "" {
		conds = append(conds, bitable.Is(s.fields.BizType, bizType))
	}
	if day > 0 && s.fields.Date != "" {
		conds = append(conds, bitable.Is(s.fields.Date, strconv.FormatInt(day, 10)))
	}
	return bitable.And(conds...)
}

// Update applies one mutation to a plan row.
func (s *Store) Update(ctx context.Context, recordID string, m Mutation) error {
	fields := s.mutationFields(m)
	if len(fields) == 0 {
		return nil
	}
	return s.store.BatchUpdate(ctx, s.ref, []bitable.RecordUpdate{{RecordID: recordID, Fields: fields}})
}
