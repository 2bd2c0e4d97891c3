// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package dispatch drives the webhook-plan state machine: readiness
// classification against the task registry, payload assembly from the
// result source, delivery with bounded count-based retries, and the
// reconcile scan over non-terminal plans.
package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/detection"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/metrics"
	"github.com/copycatch/copycatch/internal/models"
	"github.com/copycatch/copycatch/internal/planstore"
	"github.com/copycatch/copycatch/internal/resultsource"
	"github.com/copycatch/copycatch/internal/tasks"
)

// Outcome is the terminal classification of one ProcessPlan call.
type Outcome string

const (
	OutcomeMissingPlan Outcome = "missing_plan"
	OutcomeInvalidPlan Outcome = "invalid_plan"
	OutcomeNotReady    Outcome = "not_ready"
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeError       Outcome = "error"
)

// Report describes what happened to one plan.
type Report struct {
	Key     models.PlanKey     `json:"-"`
	KeyText string             `json:"key"`
	Outcome Outcome            `json:"outcome"`
	Buckets map[string][]int64 `json:"buckets,omitempty"`

	// Records counts payload rows per contributing task id; populated on
	// the ready path (including dry runs).
	Records map[string]int `json:"records,omitempty"`
	DryRun  bool           `json:"dry_run,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Deliverer posts one assembled payload to the downstream consumer.
// *Notifier is the production implementation.
type Deliverer interface {
	Deliver(ctx context.Context, payload map[string]any) error
}

// Orchestrator wires the plan store, task registry, result source and
// notifier into the dispatch state machine.
type Orchestrator struct {
	plans    *planstore.Store
	registry *tasks.Registry
	source   resultsource.Source
	notifier Deliverer
	cfg      config.DispatchConfig

	// DryRun computes readiness and payload without delivering or
	// writing back.
	DryRun bool
}

// New builds an orchestrator.
func New(plans *planstore.Store, registry *tasks.Registry, source resultsource.Source, notifier Deliverer, cfg config.DispatchConfig) *Orchestrator {
	return &Orchestrator{
		plans:    plans,
		registry: registry,
		source:   source,
		notifier: notifier,
		cfg:      cfg,
	}
}

// ProcessPlan runs the state machine for one composite key.
func (o *Orchestrator) ProcessPlan(ctx context.Context, key models.PlanKey) (*Report, error) {
	canonical, _, err := o.plans.FetchByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return o.processCanonical(ctx, key, canonical)
}

func (o *Orchestrator) processCanonical(ctx context.Context, key models.PlanKey, plan *models.WebhookPlan) (*Report, error) {
	report := &Report{Key: key, KeyText: key.String(), DryRun: o.DryRun}
	log := logging.Ctx(ctx).With().Str("plan", key.String()).Logger()

	if plan == nil {
		report.Outcome = OutcomeMissingPlan
		metrics.PlanTransitions.WithLabelValues(string(OutcomeMissingPlan)).Inc()
		return report, nil
	}
	taskIDs := plan.TaskIDs()
	if len(taskIDs) == 0 {
		report.Outcome = OutcomeInvalidPlan
		metrics.PlanTransitions.WithLabelValues(string(OutcomeInvalidPlan)).Inc()
		return report, nil
	}

	// A plan already at rest stays there; only new evidence (a task-set
	// change via upsert) re-arms it.
	if plan.Status.Terminal() {
		report.Outcome = Outcome(plan.Status)
		return report, nil
	}

	resolved, err := o.registry.FetchByIDs(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	buckets := tasks.BucketByStatus(taskIDs, resolved)
	report.Buckets = buckets

	if !tasks.Ready(buckets) {
		report.Outcome = OutcomeNotReady
		metrics.PlanTransitions.WithLabelValues(string(OutcomeNotReady)).Inc()
		if o.DryRun {
			return report, nil
		}
		mut := planstore.Mutation{TaskBuckets: buckets}
		if plan.StartAt == 0 {
			now := nowMS()
			mut.StartAt = &now
		}
		if err := o.plans.Update(ctx, plan.RecordID, mut); err != nil {
			return report, fmt.Errorf("persist buckets for %s: %w", key, err)
		}
		log.Debug().Msg("plan not ready, buckets persisted")
		return report, nil
	}

	// Retries exhaust before the attempt: a plan observed at the limit
	// escalates to terminal error without another delivery.
	if plan.RetryCount >= o.cfg.MaxRetries {
		report.Outcome = OutcomeError
		metrics.PlanTransitions.WithLabelValues(string(OutcomeError)).Inc()
		if o.DryRun {
			return report, nil
		}
		errStatus := models.PlanStatusError
		end := nowMS()
		if err := o.plans.Update(ctx, plan.RecordID, planstore.Mutation{
			Status:      &errStatus,
			TaskBuckets: buckets,
			EndAt:       &end,
		}); err != nil {
			return report, fmt.Errorf("escalate %s to error: %w", key, err)
		}
		log.Warn().Int("retry_count", plan.RetryCount).Msg("plan retries exhausted, escalated to error")
		return report, nil
	}

	payload, records, user, err := o.assemblePayload(ctx, plan, taskIDs, resolved)
	if err != nil {
		return nil, err
	}
	report.Records = records

	if o.DryRun {
		report.Outcome = OutcomeSuccess
		log.Info().Int("payload_rows", payloadRowCount(records)).Msg("dry run, webhook not called")
		return report, nil
	}

	// Forensic state lands before the attempt: a crash mid-delivery
	// leaves the row counts and identity on the plan.
	preMut := planstore.Mutation{
		TaskBuckets: buckets,
		Records:     records,
		UserInfo:    &user,
	}
	if plan.StartAt == 0 {
		now := nowMS()
		preMut.StartAt = &now
	}
	if err := o.plans.Update(ctx, plan.RecordID, preMut); err != nil {
		return report, fmt.Errorf("persist pre-delivery state for %s: %w", key, err)
	}

	deliverErr := o.notifier.Deliver(ctx, payload)
	end := nowMS()
	if deliverErr == nil {
		success := models.PlanStatusSuccess
		zero := 0
		empty := ""
		report.Outcome = OutcomeSuccess
		metrics.PlanTransitions.WithLabelValues(string(OutcomeSuccess)).Inc()
		if err := o.plans.Update(ctx, plan.RecordID, planstore.Mutation{
			Status:     &success,
			RetryCount: &zero,
			LastError:  &empty,
			EndAt:      &end,
		}); err != nil {
			return report, fmt.Errorf("persist success for %s: %w", key, err)
		}
		log.Info().Int("payload_rows", payloadRowCount(records)).Msg("webhook delivered")
		return report, nil
	}

	// Count-based retries: the status stays failed and the next
	// reconcile run decides whether to escalate.
	failed := models.PlanStatusFailed
	retries := plan.RetryCount + 1
	lastError := truncateError(deliverErr.Error(), o.cfg.MaxErrorLength)
	report.Outcome = OutcomeFailed
	report.Error = lastError
	metrics.PlanTransitions.WithLabelValues(string(OutcomeFailed)).Inc()
	if err := o.plans.Update(ctx, plan.RecordID, planstore.Mutation{
		Status:     &failed,
		RetryCount: &retries,
		LastError:  &lastError,
		EndAt:      &end,
	}); err != nil {
		return report, fmt.Errorf("persist failure for %s: %w", key, err)
	}
	log.Warn().Err(deliverErr).Int("retry_count", retries).Msg("webhook delivery failed")
	return report, nil
}

// assemblePayload gathers evidence rows for the contributing tasks,
// deduplicates them by item id and builds the outbound body.
func (o *Orchestrator) assemblePayload(ctx context.Context, plan *models.WebhookPlan, taskIDs []int64, resolved map[int64]models.Task) (map[string]any, map[string]int, models.UserInfo, error) {
	rows, err := o.source.FetchByTaskIDs(ctx, taskIDs)
	if err != nil {
		return nil, nil, models.UserInfo{}, fmt.Errorf("fetch payload rows for %s: %w", plan.Key(), err)
	}

	contributing := make(map[int64]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		contributing[id] = struct{}{}
	}

	records := make(map[string]int, len(taskIDs))
	for _, id := range taskIDs {
		records[strconv.FormatInt(id, 10)] = 0
	}

	seenItems := make(map[string]struct{}, len(rows))
	payloadRows := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if _, ok := contributing[row.TaskID]; !ok {
			continue
		}
		if _, dup := seenItems[row.ItemID]; dup {
			continue
		}
		seenItems[row.ItemID] = struct{}{}
		records[strconv.FormatInt(row.TaskID, 10)]++
		payloadRows = append(payloadRows, rowPayload(row))
	}

	user := resolveUser(plan, rows, taskIDs, resolved)

	payload := make(map[string]any, len(plan.DramaInfo)+2)
	for k, v := range plan.DramaInfo {
		payload[k] = v
	}
	payload["records"] = payloadRows
	payload["UserInfo"] = user
	return payload, records, user, nil
}

// rowPayload flattens one capture row into the outbound record shape:
// pass-through columns first, canonical fields on top.
func rowPayload(row models.CaptureRow) map[string]any {
	out := make(map[string]any, len(row.Extra)+6)
	for k, v := range row.Extra {
		out[k] = v
	}
	out["task_id"] = row.TaskID
	out["item_id"] = row.ItemID
	out["duration"] = row.Duration
	if row.UserID != "" {
		out["user_id"] = row.UserID
	}
	if row.UserName != "" {
		out["user_name"] = row.UserName
	}
	if row.UserAlias != "" {
		out["user_alias"] = row.UserAlias
	}
	return out
}

// resolveUser picks the delivered identity: the one already persisted
// on the plan, else the first evidence row carrying identity fields,
// else the first resolved task. UserAuthEntity is backfilled with the
// same resolution rule detection groups by.
func resolveUser(plan *models.WebhookPlan, rows []models.CaptureRow, taskIDs []int64, resolved map[int64]models.Task) models.UserInfo {
	if plan.UserInfo != (models.UserInfo{}) {
		return plan.UserInfo
	}
	for _, row := range rows {
		if row.UserID != "" || row.UserAlias != "" || row.UserName != "" {
			return models.UserInfo{
				UserID:         row.UserID,
				UserName:       row.UserName,
				UserAlias:      row.UserAlias,
				UserAuthEntity: detection.ResolveUserKey(row.UserAlias, row.UserID, row.UserName),
			}
		}
	}
	for _, id := range taskIDs {
		task, ok := resolved[id]
		if !ok {
			continue
		}
		if task.UserID != "" || task.UserAlias != "" || task.UserName != "" {
			return models.UserInfo{
				UserID:         task.UserID,
				UserName:       task.UserName,
				UserAlias:      task.UserAlias,
				UserAuthEntity: detection.ResolveUserKey(task.UserAlias, task.UserID, task.UserName),
			}
		}
	}
	return models.UserInfo{}
}

func payloadRowCount(records map[string]int) int {
	total := 0
	for _, n := range records {
		total += n
	}
	return total
}

// truncateError caps persisted error text.
func truncateError(msg string, limit int) string {
	if limit <= 0 || len(msg) <= limit {
		return msg
	}
	return msg[:limit]
}
