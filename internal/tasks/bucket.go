// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package tasks

import (
	"slices"

	"github.com/copycatch/copycatch/internal/models"
)

// BucketByStatus classifies task ids into status buckets. Ids with no
// resolved registry row land in the reserved missing bucket, never
// dropped: the union of all buckets always equals the deduplicated
// input set. Ids within each bucket are sorted.
func BucketByStatus(ids []int64, resolved map[int64]models.Task) map[string][]int64 {
	buckets := make(map[string][]int64)
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		bucket := models.BucketMissing
		if task, ok := resolved[id]; ok {
			bucket = string(task.Status)
		}
		buckets[bucket] = append(buckets[bucket], id)
	}
	for _, ids := range buckets {
		slices.Sort(ids)
	}
	return buckets
}

// Ready reports whether a plan with these buckets can be dispatched: at
// least one task resolved, and no task in a non-terminal bucket.
// Missing and unknown count as non-terminal.
func Ready(buckets map[string][]int64) bool {
	resolved := 0
	for bucket, ids := range buckets {
		if len(ids) == 0 {
			continue
		}
		switch bucket {
		case models.BucketSuccess, models.BucketFailed, models.BucketError:
			resolved += len(ids)
		default:
			return false
		}
	}
	return resolved > 0
}
