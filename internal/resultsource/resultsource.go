// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package resultsource reads capture evidence rows by task id. Two
// bindings exist: a DuckDB evidence database (crawl exports) and the
// hosted bitable evidence table. Both are read-only.
package resultsource

import (
	"context"

	"github.com/copycatch/copycatch/internal/models"
)

// Source fetches capture rows for a set of task ids. Rows for unknown
// ids are simply absent; order is unspecified.
type Source interface {
	FetchByTaskIDs(ctx context.Context, taskIDs []int64) ([]models.CaptureRow, error)
}

// dedupIDs drops non-positive and repeated ids, preserving first-seen
// order.
func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
