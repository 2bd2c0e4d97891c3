// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package pipeline assembles the component graph from configuration and
// exposes the batch entry points the CLI and daemon invoke: detect,
// upsert, dispatch, reconcile and dedupe. Every entry point returns a
// JSON-serializable report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/copycatch/copycatch/internal/bitable"
	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/detection"
	"github.com/copycatch/copycatch/internal/dispatch"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
	"github.com/copycatch/copycatch/internal/planstore"
	"github.com/copycatch/copycatch/internal/reference"
	"github.com/copycatch/copycatch/internal/resultsource"
	"github.com/copycatch/copycatch/internal/tasks"
)

// Pipeline owns the wired component graph for one process lifetime.
type Pipeline struct {
	cfg *config.Config

	store    bitable.Store
	registry *tasks.Registry
	plans    *planstore.Store
	lookup   reference.Lookup
	source   resultsource.Source
	orch     *dispatch.Orchestrator

	closers []io.Closer
}

// New builds the full component graph from configuration. The caller
// must Close the pipeline to release the result source and cache.
func New(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}

	client := bitable.NewClient(&cfg.Bitable)
	p.store = bitable.NewBreakerStore(client)

	planRef, err := bitable.ParseTableRef(cfg.Bitable.PlanTableURL)
	if err != nil {
		return nil, fmt.Errorf("plan table url: %w", err)
	}
	taskRef, err := bitable.ParseTableRef(cfg.Bitable.TaskTableURL)
	if err != nil {
		return nil, fmt.Errorf("task table url: %w", err)
	}
	refRef, err := bitable.ParseTableRef(cfg.Bitable.ReferenceTableURL)
	if err != nil {
		return nil, fmt.Errorf("reference table url: %w", err)
	}

	p.registry = tasks.NewRegistry(p.store, taskRef, cfg.Fields.Task)
	p.plans = planstore.New(p.store, planRef, cfg.Fields.Plan)

	p.lookup = reference.NewTable(p.store, refRef, cfg.Fields.Reference)
	if cfg.RefCache.Enabled {
		db, err := reference.OpenDB(cfg.RefCache.Path)
		if err != nil {
			return nil, fmt.Errorf("open reference cache: %w", err)
		}
		p.closers = append(p.closers, db)
		p.lookup = reference.NewCache(db, p.lookup, cfg.RefCache.TTL)
	}

	p.source, err = p.buildSource()
	if err != nil {
		p.Close()
		return nil, err
	}

	notifier := dispatch.NewNotifier(&cfg.Dispatch)
	p.orch = dispatch.New(p.plans, p.registry, p.source, notifier, cfg.Dispatch)
	return p, nil
}

func (p *Pipeline) buildSource() (resultsource.Source, error) {
	switch p.cfg.ResultSource.Driver {
	case "duckdb":
		src, err := resultsource.OpenDuckDB(&p.cfg.ResultSource, p.cfg.Fields.Evidence)
		if err != nil {
			return nil, fmt.Errorf("open duckdb result source: %w", err)
		}
		p.closers = append(p.closers, src)
		return src, nil
	case "bitable":
		ref, err := bitable.ParseTableRef(p.cfg.ResultSource.EvidenceTableURL)
		if err != nil {
			return nil, fmt.Errorf("evidence table url: %w", err)
		}
		return resultsource.NewBitableSource(p.store, ref, p.cfg.Fields.Evidence), nil
	default:
		return nil, fmt.Errorf("unknown result source driver %q", p.cfg.ResultSource.Driver)
	}
}

// Close releases the result source and cache handles.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			logging.Warn().Err(err).Msg("close failed during pipeline shutdown")
		}
	}
	p.closers = nil
}

// Plans exposes the plan store for the dedupe entry point.
func (p *Pipeline) Plans() *planstore.Store { return p.plans }

// DetectOptions selects the task slice one detect run operates on.
type DetectOptions struct {
	App   string
	Scene string

	// Day is the capture day; required. The task filter and the plan
	// partition both derive from its UTC day start.
	Day time.Time

	// Status filters tasks; empty means only successfully crawled tasks
	// are fetched, which matches what detection can use.
	Status string

	// Limit caps fetched tasks (0 means the configured scan limit).
	Limit int

	// Upsert writes plan drafts for the selected groups; false reports
	// detection results only.
	Upsert bool
}

// DetectReport is the JSON run summary of one detect run.
type DetectReport struct {
	Day          int64                   `json:"day"`
	TasksFetched int                     `json:"tasks_fetched"`
	RowsFetched  int                     `json:"rows_fetched"`
	Detection    *detection.Result       `json:"detection,omitempty"`
	Drafts       int                     `json:"drafts"`
	Upsert       *planstore.UpsertResult `json:"upsert,omitempty"`
}

// Detect runs the group detector over the tasks selected by opts and
// optionally upserts plan drafts for every selected group.
func (p *Pipeline) Detect(ctx context.Context, opts DetectOptions) (*DetectReport, error) {
	if opts.Day.IsZero() {
		return nil, fmt.Errorf("capture day is required")
	}
	day := models.DayStartMS(opts.Day)
	report := &DetectReport{Day: day}
	log := logging.Ctx(ctx)

	status := opts.Status
	if status == "" {
		status = string(models.TaskStatusSuccess)
	}
	taskList, err := p.registry.FetchByFilter(ctx, tasks.FetchFilter{
		App:    opts.App,
		Scene:  opts.Scene,
		Status: status,
		Day:    strconv.FormatInt(day, 10),
	}, opts.Limit)
	if err != nil {
		return nil, err
	}
	report.TasksFetched = len(taskList)
	if len(taskList) == 0 {
		log.Info().Int64("day", day).Msg("no tasks matched the detect filter")
		return report, nil
	}

	registryMap := make(map[int64]models.Task, len(taskList))
	ids := make([]int64, 0, len(taskList))
	for _, task := range taskList {
		if _, dup := registryMap[task.TaskID]; dup {
			continue
		}
		registryMap[task.TaskID] = task
		ids = append(ids, task.TaskID)
	}

	rows, err := p.source.FetchByTaskIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch capture rows: %w", err)
	}
	report.RowsFetched = len(rows)

	result, err := detection.Detect(ctx, rows, registryMap, p.lookup, p.cfg.Detection.Threshold)
	if err != nil {
		return nil, err
	}
	report.Detection = result

	drafts := draftsFromResult(result, p.cfg.Detection.BizType, day)
	report.Drafts = len(drafts)
	if !opts.Upsert || len(drafts) == 0 {
		return report, nil
	}

	upsert, err := p.plans.Upsert(ctx, drafts)
	if err != nil {
		return report, err
	}
	report.Upsert = upsert
	return report, nil
}

// draftsFromResult flattens selected groups into plan drafts, one per
// group, carrying the reference context of the group's media item.
func draftsFromResult(result *detection.Result, bizType string, day int64) []models.PlanDraft {
	var drafts []models.PlanDraft
	for _, pair := range result.Pairs {
		context := pair.Reference.ContextInfo()
		for _, sel := range pair.Selected {
			drafts = append(drafts, models.PlanDraft{
				BizType:     bizType,
				GroupID:     sel.GroupID,
				Day:         day,
				TaskIDs:     sel.TaskIDs,
				ContextInfo: context,
				AppLabel:    sel.App,
			})
		}
	}
	return drafts
}

// Upsert writes externally supplied plan drafts, the manual repair
// entry point.
func (p *Pipeline) Upsert(ctx context.Context, drafts []models.PlanDraft) (*planstore.UpsertResult, error) {
	return p.plans.Upsert(ctx, drafts)
}

// Dispatch runs the delivery state machine for one composite key.
func (p *Pipeline) Dispatch(ctx context.Context, key models.PlanKey, dryRun bool) (*dispatch.Report, error) {
	orch := p.orch
	if dryRun {
		dry := *p.orch
		dry.DryRun = true
		orch = &dry
	}
	return orch.ProcessPlan(ctx, key)
}

// Reconcile sweeps one (bizType, day) partition for plans still
// awaiting delivery.
func (p *Pipeline) Reconcile(ctx context.Context, bizType string, day int64) (*dispatch.ReconcileResult, error) {
	return p.orch.Reconcile(ctx, bizType, day)
}

// Dedupe collapses duplicate plan rows in one partition.
func (p *Pipeline) Dedupe(ctx context.Context, filter planstore.DedupeFilter, dryRun bool) (*planstore.DedupeResult, error) {
	return p.plans.Dedupe(ctx, filter, dryRun)
}
