// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package planstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/metrics"
	"github.com/copycatch/copycatch/internal/models"
)

// UpsertResult summarizes one upsert batch.
type UpsertResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Upsert merges the drafts into the plan table by composite key. One
// partition scan per distinct (bizType, day) bounds request volume;
// existing rows receive field-level diffs, missing rows are created
// pending. A task-set change resets status to pending and retries to
// zero: new evidence invalidates prior terminal outcomes. Task ids only
// ever accumulate.
func (s *Store) Upsert(ctx context.Context, drafts []models.PlanDraft) (*UpsertResult, error) {
	result := &UpsertResult{}
	merged := mergeDrafts(drafts, result)
	if len(merged) == 0 {
		return result, nil
	}

	type partition struct {
		bizType string
		day     int64
	}
	partitions := make(map[partition]struct{})
	for _, d := range merged {
		partitions[partition{d.BizType, d.Day}] = struct{}{}
	}

	existing := make(map[models.PlanKey][]*models.WebhookPlan)
	for p := range partitions {
		plans, err := s.FetchPartition(ctx, p.bizType, p.day)
		if err != nil {
			return result, err
		}
		for _, plan := range plans {
			existing[plan.Key()] = append(existing[plan.Key()], plan)
		}
	}

	var creates []map[string]any
	var updates []bitable.RecordUpdate
	for _, draft := range merged {
		canonical := Canonical(existing[draft.Key()])
		if canonical == nil {
			creates = append(creates, s.createFields(&models.WebhookPlan{
				App:         draft.AppLabel,
				BizType:     draft.BizType,
				GroupID:     draft.GroupID,
				Status:      models.PlanStatusPending,
				TaskBuckets: map[string][]int64{models.BucketPending: sortedDedup(draft.TaskIDs)},
				DramaInfo:   draft.ContextInfo,
				Day:         draft.Day,
			}))
			continue
		}

		var mut Mutation
		buckets, taskSetChanged := mergeBuckets(canonical.TaskBuckets, draft.TaskIDs)
		if taskSetChanged {
			pending := models.PlanStatusPending
			zero := 0
			mut.TaskBuckets = buckets
			mut.Status = &pending
			mut.RetryCount = &zero
		}
		if draft.ContextInfo != nil && encodeJSONCell(draft.ContextInfo) != encodeJSONCell(canonical.DramaInfo) {
			mut.DramaInfo = draft.ContextInfo
		}
		if draft.AppLabel != "" && draft.AppLabel != canonical.App {
			mut.App = &draft.AppLabel
		}

		fields := s.mutationFields(mut)
		if len(fields) == 0 {
			result.Skipped++
			continue
		}
		updates = append(updates, bitable.RecordUpdate{RecordID: canonical.RecordID, Fields: fields})
	}

	if len(creates) > 0 {
		if _, err := s.store.BatchCreate(ctx, s.ref, creates); err != nil {
			return result, fmt.Errorf("create plans: %w", err)
		}
		result.Created = len(creates)
		metrics.PlansCreated.Add(float64(len(creates)))
	}
	if len(updates) > 0 {
		if err := s.store.BatchUpdate(ctx, s.ref, updates); err != nil {
			return result, fmt.Errorf("update plans: %w", err)
		}
		result.Updated = len(updates)
		metrics.PlansUpdated.Add(float64(len(updates)))
	}

	logging.Ctx(ctx).Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("plan upsert completed")
	return result, nil
}

// mergeDrafts validates drafts and collapses same-key drafts within one
// batch, so two detection groups that resolve to one key never race
// against each other inside a single run.
func mergeDrafts(drafts []models.PlanDraft, result *UpsertResult) []models.PlanDraft {
	byKey := make(map[models.PlanKey]*models.PlanDraft)
	var order []models.PlanKey
	for i, d := range drafts {
		if d.BizType == "" || d.GroupID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("draft %d: biz type and group id are required", i))
			continue
		}
		if d.Day <= 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("draft %d (%s): day is required", i, d.GroupID))
			continue
		}
		if len(d.TaskIDs) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("draft %d (%s): task ids are required", i, d.GroupID))
			continue
		}

		key := d.Key()
		if prev, ok := byKey[key]; ok {
			prev.TaskIDs = append(prev.TaskIDs, d.TaskIDs...)
			if prev.ContextInfo == nil {
				prev.ContextInfo = d.ContextInfo
			}
			if prev.AppLabel == "" {
				prev.AppLabel = d.AppLabel
			}
			continue
		}
		clone := d
		clone.TaskIDs = slices.Clone(d.TaskIDs)
		byKey[key] = &clone
		order = append(order, key)
	}

	merged := make([]models.PlanDraft, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byKey[key])
	}
	return merged
}

// mergeBuckets folds new task ids into the pending bucket, preserving
// existing bucket assignments and deduplicating across buckets. Reports
// whether any genuinely new id arrived.
func mergeBuckets(existing map[string][]int64, newIDs []int64) (map[string][]int64, bool) {
	out := make(map[string][]int64, len(existing)+1)
	known := make(map[int64]struct{})
	for bucket, ids := range existing {
		for _, id := range ids {
			if _, dup := known[id]; dup {
				continue
			}
			known[id] = struct{}{}
			out[bucket] = append(out[bucket], id)
		}
	}

	added := false
	for _, id := range newIDs {
		if id <= 0 {
			continue
		}
		if _, dup := known[id]; dup {
			continue
		}
		known[id] = struct{}{}
		out[models.BucketPending] = append(out[models.BucketPending], id)
		added = true
	}
	for _, ids := range out {
		slices.Sort(ids)
	}
	return out, added
}

func sortedDedup(ids []int64) []int64 {
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
	slices.Sort(out)
	return out
}
