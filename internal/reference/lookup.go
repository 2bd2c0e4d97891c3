// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package reference resolves media-item ids to their reference metadata
// (display name, total duration, episode count). The authoritative data
// lives in a bitable table; an optional local BadgerDB cache fronts it
// so repeated runs within the TTL avoid re-hitting the store.
package reference

import (
	"context"
	"fmt"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/models"
)

// maxFilterValues bounds the conditions in one "or" filter against the
// reference table.
const maxFilterValues = 50

// Lookup resolves book ids to reference metadata. Ids without metadata
// are absent from the result map, never defaulted.
type Lookup interface {
	FetchByBookIDs(ctx context.Context, bookIDs []string) (map[string]models.ReferenceMedia, error)
}

// Table is the bitable-backed authoritative lookup.
type Table struct {
	store  bitable.Store
	ref    bitable.TableRef
	fields config.ReferenceFields
}

// NewTable binds a record store to the reference-media table.
func NewTable(store bitable.Store, ref bitable.TableRef, fields config.ReferenceFields) *Table {
	return &Table{store: store, ref: ref, fields: fields}
}

// FetchByBookIDs fetches metadata for the given ids in chunked filtered
// scans. When the same book id maps to several physical rows the first
// row wins.
func (t *Table) FetchByBookIDs(ctx context.Context, bookIDs []string) (map[string]models.ReferenceMedia, error) {
	result := make(map[string]models.ReferenceMedia, len(bookIDs))
	if len(bookIDs) == 0 {
		return result, nil
	}
	if t.fields.BookID == "" {
		return nil, fmt.Errorf("reference book id field name is not configured")
	}

	seen := make(map[string]struct{}, len(bookIDs))
	values := make([]string, 0, len(bookIDs))
	for _, id := range bookIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		values = append(values, id)
	}

	for start := 0; start < len(values); start += maxFilterValues {
		chunk := values[start:min(start+maxFilterValues, len(values))]
		filter := bitable.IDFilter(t.fields.BookID, chunk)
		if filter == nil {
			continue
		}
		records, err := t.store.SearchRecords(ctx, t.ref, filter, bitable.SearchOptions{PageSize: len(chunk)})
		if err != nil {
			return nil, fmt.Errorf("fetch reference media: %w", err)
		}
		for _, rec := range records {
			media, ok := t.decode(rec)
			if !ok {
				continue
			}
			if _, exists := result[media.BookID]; exists {
				continue
			}
			result[media.BookID] = media
		}
	}
	return result, nil
}

func (t *Table) decode(rec bitable.Record) (models.ReferenceMedia, bool) {
	get := func(name string) string {
		if name == "" {
			return ""
		}
		return bitable.ValueString(rec.Fields[name])
	}

	bookID := get(t.fields.BookID)
	if bookID == "" {
		return models.ReferenceMedia{}, false
	}
	return models.ReferenceMedia{
		BookID:        bookID,
		Name:          get(t.fields.Name),
		TotalDuration: bitable.ValueFloat(rec.Fields[t.fields.TotalDuration]),
		Episodes:      int(bitable.ValueInt(rec.Fields[t.fields.Episodes])),
		Category:      get(t.fields.Category),
		Priority:      get(t.fields.Priority),
	}, true
}
