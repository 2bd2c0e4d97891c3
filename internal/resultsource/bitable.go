// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package resultsource

import (
	"context"
	"fmt"
	"strconv"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/models"
)

// maxFilterValues bounds one "or" filter against the evidence table.
const maxFilterValues = 50

// BitableSource reads evidence rows from the hosted evidence table.
type BitableSource struct {
	store  bitable.Store
	ref    bitable.TableRef
	fields config.EvidenceFields
}

// NewBitableSource binds a record store to the evidence table.
func NewBitableSource(store bitable.Store, ref bitable.TableRef, fields config.EvidenceFields) *BitableSource {
	return &BitableSource{store: store, ref: ref, fields: fields}
}

// FetchByTaskIDs fetches evidence rows in chunked filtered scans.
func (s *BitableSource) FetchByTaskIDs(ctx context.Context, taskIDs []int64) ([]models.CaptureRow, error) {
	ids := dedupIDs(taskIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	if s.fields.TaskID == "" {
		return nil, fmt.Errorf("evidence task id field name is not configured")
	}

	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, strconv.FormatInt(id, 10))
	}

	var rows []models.CaptureRow
	for start := 0; start < len(values); start += maxFilterValues {
		chunk := values[start:min(start+maxFilterValues, len(values))]
		filter := bitable.IDFilter(s.fields.TaskID, chunk)
		if filter == nil {
			continue
		}
		records, err := s.store.SearchRecords(ctx, s.ref, filter, bitable.SearchOptions{})
		if err != nil {
			return nil, fmt.Errorf("fetch evidence rows: %w", err)
		}
		for _, rec := range records {
			if row, ok := s.decode(rec); ok {
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

func (s *BitableSource) decode(rec bitable.Record) (models.CaptureRow, bool) {
	get := func(name string) string {
		if name == "" {
			return ""
		}
		return bitable.ValueString(rec.Fields[name])
	}

	taskID := bitable.ValueInt(rec.Fields[s.fields.TaskID])
	if taskID <= 0 {
		return models.CaptureRow{}, false
	}
	row := models.CaptureRow{
		TaskID:    taskID,
		ItemID:    get(s.fields.ItemID),
		Duration:  bitable.ValueFloat(rec.Fields[s.fields.Duration]),
		UserID:    get(s.fields.UserID),
		UserName:  get(s.fields.UserName),
		UserAlias: get(s.fields.UserAlias),
	}
	if row.ItemID == "" {
		// A stable fallback id keeps distinct-item dedup working for
		// sources that cannot supply a native item id.
		row.ItemID = fmt.Sprintf("record:%s", rec.RecordID)
	}

	mapped := map[string]struct{}{
		s.fields.TaskID: {}, s.fields.ItemID: {}, s.fields.Duration: {},
		s.fields.UserID: {}, s.fields.UserName: {}, s.fields.UserAlias: {},
	}
	for name, value := range rec.Fields {
		if _, ok := mapped[name]; ok {
			continue
		}
		if normalized := bitable.ValueString(value); normalized != "" {
			if row.Extra == nil {
				row.Extra = make(map[string]any)
			}
			row.Extra[name] = normalized
		}
	}
	return row, true
}
