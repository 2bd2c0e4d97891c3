// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package tasks reads and writes the crawl-task registry table. Tasks
// are owned by the external crawl scheduler; Copycatch reads them to
// resolve capture evidence and to classify plan readiness, and writes
// them only through the explicit draft types in this package.
package tasks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
)

// maxFilterValues bounds the conditions in one "or" id filter; the
// search endpoint rejects larger condition sets.
const maxFilterValues = 50

// Registry is the task-table accessor. All physical column names come
// from the field map resolved at startup.
type Registry struct {
	store  bitable.Store
	ref    bitable.TableRef
	fields config.TaskFields
}

// NewRegistry binds a record store to the task table.
func NewRegistry(store bitable.Store, ref bitable.TableRef, fields config.TaskFields) *Registry {
	return &Registry{store: store, ref: ref, fields: fields}
}

// FetchFilter selects tasks by exact-match columns. Empty values are
// omitted from the filter.
type FetchFilter struct {
	App    string
	Scene  string
	Status string
	Day    string
}

// FetchByFilter returns all tasks matching the filter, up to limit rows
// (0 means the configured scan limit applies).
func (r *Registry) FetchByFilter(ctx context.Context, f FetchFilter, limit int) ([]models.Task, error) {
	var conds []bitable.Condition
	add := func(fieldName, value string) {
		if fieldName != "" && value != "" {
			conds = append(conds, bitable.Is(fieldName, value))
		}
	}
	add(r.fields.App, f.App)
	add(r.fields.Scene, f.Scene)
	add(r.fields.Status, f.Status)
	add(r.fields.CaptureDay, f.Day)

	records, err := r.store.SearchRecords(ctx, r.ref, bitable.And(conds...), bitable.SearchOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(records))
	skipped := 0
	for _, rec := range records {
		task, ok := r.decode(rec)
		if !ok {
			skipped++
			continue
		}
		tasks = append(tasks, task)
	}
	if skipped > 0 {
		logging.Ctx(ctx).Debug().
			Int("skipped", skipped).
			Int("decoded", len(tasks)).
			Msg("task rows without a task id skipped")
	}
	return tasks, nil
}

// FetchByIDs resolves the given task ids to registry rows. Ids are
// deduplicated; ids with no matching row are simply absent from the
// result map. When the same id maps to several physical rows the first
// row returned by the store wins.
func (r *Registry) FetchByIDs(ctx context.Context, ids []int64) (map[int64]models.Task, error) {
	result := make(map[int64]models.Task, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	if r.fields.TaskID == "" {
		return nil, fmt.Errorf("task id field name is not configured")
	}

	seen := make(map[int64]struct{}, len(ids))
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		values = append(values, strconv.FormatInt(id, 10))
	}

	for start := 0; start < len(values); start += maxFilterValues {
		chunk := values[start:min(start+maxFilterValues, len(values))]
		filter := bitable.IDFilter(r.fields.TaskID, chunk)
		if filter == nil {
			continue
		}
		records, err := r.store.SearchRecords(ctx, r.ref, filter, bitable.SearchOptions{PageSize: len(chunk)})
		if err != nil {
			return nil, fmt.Errorf("resolve task ids: %w", err)
		}
		for _, rec := range records {
			task, ok := r.decode(rec)
			if !ok {
				continue
			}
			if _, exists := result[task.TaskID]; exists {
				continue
			}
			result[task.TaskID] = task
		}
	}
	return result, nil
}

// decode maps one physical row to a Task. Rows without a positive task
// id are not tasks.
func (r *Registry) decode(rec bitable.Record) (models.Task, bool) {
	get := func(name string) string {
		if name == "" {
			return ""
		}
		return bitable.ValueString(rec.Fields[name])
	}

	id := bitable.ValueInt(rec.Fields[r.fields.TaskID])
	if id <= 0 {
		return models.Task{}, false
	}
	return models.Task{
		TaskID:     id,
		App:        get(r.fields.App),
		BookID:     get(r.fields.BookID),
		Scene:      get(r.fields.Scene),
		Status:     models.ParseTaskStatus(get(r.fields.Status)),
		GroupID:    get(r.fields.GroupID),
		UserID:     get(r.fields.UserID),
		UserName:   get(r.fields.UserName),
		UserAlias:  get(r.fields.UserAlias),
		CaptureDay: get(r.fields.CaptureDay),
		RecordID:   rec.RecordID,
	}, true
}
