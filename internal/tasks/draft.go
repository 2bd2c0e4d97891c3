// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package tasks

import (
	"context"
	"fmt"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/models"
)

// UpdateDraft carries the optional fields of one task update. Nil/zero
// fields are left untouched in the store. Extra holds passthrough cells
// addressed by physical column name, for columns the typed field map
// does not cover.
type UpdateDraft struct {
	// TaskID addresses the row when RecordID is empty.
	TaskID   int64
	RecordID string

	Status     models.TaskStatus
	GroupID    string
	StartAt    *int64
	EndAt      *int64
	RetryCount *int

	Extra map[string]any
}

// UpdateResult summarizes one update batch.
type UpdateResult struct {
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Update applies the drafts. Drafts without a record id are resolved by
// task id first in one batched lookup. Per-draft problems accumulate as
// errors without aborting the batch; a store write failure aborts.
func (r *Registry) Update(ctx context.Context, drafts []UpdateDraft) (*UpdateResult, error) {
	result := &UpdateResult{}
	if len(drafts) == 0 {
		return result, nil
	}

	var unresolved []int64
	for _, d := range drafts {
		if d.RecordID == "" && d.TaskID > 0 {
			unresolved = append(unresolved, d.TaskID)
		}
	}
	resolved := map[int64]models.Task{}
	if len(unresolved) > 0 {
		var err error
		resolved, err = r.FetchByIDs(ctx, unresolved)
		if err != nil {
			return result, err
		}
	}

	updates := make([]bitable.RecordUpdate, 0, len(drafts))
	for _, d := range drafts {
		recordID := d.RecordID
		if recordID == "" {
			task, ok := resolved[d.TaskID]
			if !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("task %d: no registry row", d.TaskID))
				continue
			}
			recordID = task.RecordID
		}
		fields := r.updateFields(d)
		if len(fields) == 0 {
			result.Skipped++
			continue
		}
		updates = append(updates, bitable.RecordUpdate{RecordID: recordID, Fields: fields})
	}

	if len(updates) > 0 {
		if err := r.store.BatchUpdate(ctx, r.ref, updates); err != nil {
			return result, fmt.Errorf("update tasks: %w", err)
		}
	}
	result.Updated = len(updates)
	return result, nil
}

// updateFields maps a draft's set fields to physical cells. Columns the
// deployment's field map leaves unnamed are silently dropped.
func (r *Registry) updateFields(d UpdateDraft) map[string]any {
	fields := make(map[string]any)
	set := func(name string, value any) {
		if name != "" {
			fields[name] = value
		}
	}
	if d.Status != "" {
		set(r.fields.Status, string(d.Status))
	}
	if d.GroupID != "" {
		set(r.fields.GroupID, d.GroupID)
	}
	if d.StartAt != nil {
		set(r.fields.StartAt, *d.StartAt)
	}
	if d.EndAt != nil {
		set(r.fields.EndAt, *d.EndAt)
	}
	if d.RetryCount != nil {
		set(r.fields.RetryCount, *d.RetryCount)
	}
	for name, value := range d.Extra {
		if name != "" && value != nil {
			fields[name] = value
		}
	}
	return fields
}

// CreateDraft carries the fields of one new task row. Extra is a
// passthrough sub-map keyed by physical column name.
type CreateDraft struct {
	TaskID     int64
	App        string
	Scene      string
	BookID     string
	Status     models.TaskStatus
	GroupID    string
	UserID     string
	UserName   string
	UserAlias  string
	CaptureDay any

	Extra map[string]any
}

// Create inserts new task rows and returns their record ids in input
// order.
func (r *Registry) Create(ctx context.Context, drafts []CreateDraft) ([]string, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	rows := make([]map[string]any, 0, len(drafts))
	for i, d := range drafts {
		if d.TaskID <= 0 {
			return nil, fmt.Errorf("draft %d: task id is required", i)
		}
		rows = append(rows, r.createFields(d))
	}
	ids, err := r.store.BatchCreate(ctx, r.ref, rows)
	if err != nil {
		return ids, fmt.Errorf("create tasks: %w", err)
	}
	return ids, nil
}

func (r *Registry) createFields(d CreateDraft) map[string]any {
	fields := make(map[string]any)
	set := func(name string, value any) {
		if name == "" {
			return
		}
		if s, ok := value.(string); ok && s == "" {
			return
		}
		fields[name] = value
	}
	set(r.fields.TaskID, d.TaskID)
	set(r.fields.App, d.App)
	set(r.fields.Scene, d.Scene)
	set(r.fields.BookID, d.BookID)
	set(r.fields.Status, string(d.Status))
	set(r.fields.GroupID, d.GroupID)
	set(r.fields.UserID, d.UserID)
	set(r.fields.UserName, d.UserName)
	set(r.fields.UserAlias, d.UserAlias)
	if d.CaptureDay != nil {
		set(r.fields.CaptureDay, d.CaptureDay)
	}
	for name, value := range d.Extra {
		if name != "" && value != nil {
			fields[name] = value
		}
	}
	return fields
}
