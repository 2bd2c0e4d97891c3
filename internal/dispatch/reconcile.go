// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
	"github.com/copycatch/copycatch/internal/planstore"
)

// nowMS is the millisecond clock, overridable in tests.
var nowMS = func() int64 { return time.Now().UnixMilli() }

// ReconcileResult summarizes one reconcile sweep over a partition.
type ReconcileResult struct {
	BizType   string    `json:"biz_type"`
	Day       int64     `json:"day"`
	Scanned   int       `json:"scanned"`
	Processed int       `json:"processed"`
	Reports   []*Report `json:"reports"`
	Errors    []string  `json:"errors,omitempty"`
}

// Reconcile scans one (bizType, day) partition for plans still in a
// non-terminal status and runs the state machine on each composite key.
// Duplicate rows collapse to their canonical representative; a failing
// plan does not stop the sweep.
func (o *Orchestrator) Reconcile(ctx context.Context, bizType string, day int64) (*ReconcileResult, error) {
	result := &ReconcileResult{BizType: bizType, Day: day}
	log := logging.Ctx(ctx).With().Str("biz_type", bizType).Int64("day", day).Logger()

	rows, err := o.plans.FetchPartition(ctx, bizType, day)
	if err != nil {
		return nil, err
	}
	result.Scanned = len(rows)

	byKey := make(map[models.PlanKey][]*models.WebhookPlan)
	keys := make([]models.PlanKey, 0, len(rows))
	for _, row := range rows {
		key := row.Key()
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], row)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		canonical := planstore.Canonical(byKey[key])
		if canonical == nil || canonical.Status.Terminal() {
			continue
		}
		result.Processed++
		report, err := o.processCanonical(ctx, key, canonical)
		if err != nil {
			result.Errors = append(result.Errors, key.String()+": "+err.Error())
			log.Error().Err(err).Str("plan", key.String()).Msg("reconcile: plan processing failed")
			continue
		}
		result.Reports = append(result.Reports, report)
	}

	log.Info().
		Int("scanned", result.Scanned).
		Int("processed", result.Processed).
		Int("errors", len(result.Errors)).
		Msg("reconcile sweep finished")
	return result, nil
}
