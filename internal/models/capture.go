// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package models

// CaptureRow is one observed media item from the capture evidence store.
// Rows are immutable once read; all grouping and aggregation happens on
// in-memory copies.
type CaptureRow struct {
	TaskID int64 `json:"task_id"`

	// ItemID identifies the captured item. When the source cannot supply
	// a native item id it carries a stable fallback id instead, so
	// distinct-item deduplication still works.
	ItemID string `json:"item_id"`

	// Duration is the captured playback duration in seconds. Zero means
	// the capture saw the item but could not measure it; a later
	// re-observation may backfill the value.
	Duration float64 `json:"duration"`

	UserAlias string `json:"user_alias"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`

	// Extra carries pass-through columns that are delivered verbatim in
	// the outbound payload but never interpreted by the core.
	Extra map[string]any `json:"extra,omitempty"`
}

// ReferenceMedia is external metadata for one media item, keyed by book
// id. TotalDuration <= 0 marks the reference as unusable for ratio math.
type ReferenceMedia struct {
	BookID        string  `json:"book_id"`
	Name          string  `json:"name"`
	TotalDuration float64 `json:"total_duration"`
	Episodes      int     `json:"episodes"`
	Category      string  `json:"category"`
	Priority      string  `json:"priority"`
}

// ContextInfo returns the reference metadata as the loosely-shaped
// context object embedded in plan records and webhook payloads.
func (r ReferenceMedia) ContextInfo() map[string]any {
	info := map[string]any{
		"book_id":        r.BookID,
		"name":           r.Name,
		"total_duration": r.TotalDuration,
		"episodes":       r.Episodes,
	}
	if r.Category != "" {
		info["category"] = r.Category
	}
	if r.Priority != "" {
		info["priority"] = r.Priority
	}
	return info
}
