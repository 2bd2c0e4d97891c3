// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package planstore

import (
	"context"
	"fmt"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/models"
)

// Canonical picks the authoritative row among duplicates sharing one
// key: highest UpdateAt wins, ties broken by lexicographically smallest
// record id. The result is independent of input order; upsert, dedupe
// and dispatch all route reads through this one rule so they never
// disagree on which row is real.
func Canonical(rows []*models.WebhookPlan) *models.WebhookPlan {
	var best *models.WebhookPlan
	for _, row := range rows {
		if row == nil {
			continue
		}
		if best == nil ||
			row.UpdateAt > best.UpdateAt ||
			(row.UpdateAt == best.UpdateAt && row.RecordID < best.RecordID) {
			best = row
		}
	}
	return best
}

// FetchByKey returns every physical row for the key plus the canonical
// one. A nil canonical means no row exists.
func (s *Store) FetchByKey(ctx context.Context, key models.PlanKey) (canonical *models.WebhookPlan, all []*models.WebhookPlan, err error) {
	var conds []bitable.Condition
	if s.fields.GroupID != "" {
		conds = append(conds, bitable.Is(s.fields.GroupID, key.GroupID))
	}
	if key.BizType != "" && s.fields.BizType != "" {
		conds = append(conds, bitable.Is(s.fields.BizType, key.BizType))
	}
	records, err := s.store.SearchRecords(ctx, s.ref, bitable.And(conds...), bitable.SearchOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch plan %s: %w", key, err)
	}
	for _, rec := range records {
		plan, ok := s.decode(rec)
		if !ok || plan.Key() != key {
			continue
		}
		all = append(all, plan)
	}
	return Canonical(all), all, nil
}

// FetchPartition scans one (bizType, day) partition and returns every
// decoded plan row, duplicates included. Either filter component may be
// zero to widen the scan.
func (s *Store) FetchPartition(ctx context.Context, bizType string, day int64) ([]*models.WebhookPlan, error) {
	records, err := s.store.SearchRecords(ctx, s.ref, s.keyFilter(bizType, day), bitable.SearchOptions{})
	if err != nil {
		return nil, fmt.Errorf("scan plans bizType=%q day=%d: %w", bizType, day, err)
	}
	plans := make([]*models.WebhookPlan, 0, len(records))
	for _, rec := range records {
		if plan, ok := s.decode(rec); ok {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}
