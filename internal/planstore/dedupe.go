// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package planstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/metrics"
	"github.com/copycatch/copycatch/internal/models"
)

// sampleLimit caps the deleted-row sample echoed in the dedupe result.
const sampleLimit = 20

// DedupeFilter narrows a dedupe sweep. Zero values widen the scan.
type DedupeFilter struct {
	BizType string
	Day     int64
}

// DedupeResult summarizes one sweep.
type DedupeResult struct {
	Scanned       int      `json:"scanned"`
	GroupedKeys   int      `json:"grouped_keys"`
	DuplicateKeys int      `json:"duplicate_keys"`
	Deleted       int      `json:"deleted"`
	DryRun        bool     `json:"dry_run,omitempty"`
	Sample        []string `json:"sample,omitempty"`
}

// Dedupe collapses duplicate plan rows: for every key with more than
// one physical row, the canonical row survives and the rest are
// deleted. A second sweep over an already-clean store finds no
// duplicates and deletes nothing. Dry-run computes the full result
// without deleting.
func (s *Store) Dedupe(ctx context.Context, filter DedupeFilter, dryRun bool) (*DedupeResult, error) {
	plans, err := s.FetchPartition(ctx, filter.BizType, filter.Day)
	if err != nil {
		return nil, err
	}

	byKey := make(map[models.PlanKey][]*models.WebhookPlan)
	var order []models.PlanKey
	for _, plan := range plans {
		key := plan.Key()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], plan)
	}

	result := &DedupeResult{
		Scanned:     len(plans),
		GroupedKeys: len(byKey),
		DryRun:      dryRun,
	}

	var doomed []string
	for _, key := range order {
		rows := byKey[key]
		if len(rows) < 2 {
			continue
		}
		result.DuplicateKeys++
		canonical := Canonical(rows)
		for _, row := range rows {
			if row.RecordID == canonical.RecordID {
				continue
			}
			doomed = append(doomed, row.RecordID)
			if len(result.Sample) < sampleLimit {
				result.Sample = append(result.Sample, fmt.Sprintf("%s (%s)", row.RecordID, key))
			}
		}
	}
	slices.Sort(doomed)

	if dryRun || len(doomed) == 0 {
		result.Deleted = len(doomed)
		logging.Ctx(ctx).Info().
			Int("scanned", result.Scanned).
			Int("duplicate_keys", result.DuplicateKeys).
			Int("would_delete", len(doomed)).
			Bool("dry_run", dryRun).
			Msg("plan dedupe computed")
		return result, nil
	}

	if err := s.store.BatchDelete(ctx, s.ref, doomed); err != nil {
		return result, fmt.Errorf("delete duplicate plans: %w", err)
	}
	result.Deleted = len(doomed)
	metrics.PlansDeduplicated.Add(float64(len(doomed)))

	logging.Ctx(ctx).Info().
		Int("scanned", result.Scanned).
		Int("duplicate_keys", result.DuplicateKeys).
		Int("deleted", result.Deleted).
		Msg("plan dedupe completed")
	return result, nil
}
