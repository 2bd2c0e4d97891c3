// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package detection clusters capture evidence rows into (app,
// media-item, user) groups and selects the groups whose aggregated
// distinct-item duration crosses a reference-duration threshold.
// Detection is a pure computation over its inputs: the only I/O is the
// batched read-only reference-metadata fetch.
package detection

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/metrics"
	"github.com/copycatch/copycatch/internal/models"
	"github.com/copycatch/copycatch/internal/reference"
)

// SelectedGroup is one cluster whose duration ratio crossed the
// threshold.
type SelectedGroup struct {
	GroupID string `json:"group_id"`
	App     string `json:"app"`
	BookID  string `json:"book_id"`
	UserKey string `json:"user_key"`

	// AggregatedDuration sums each distinct item id's duration once.
	AggregatedDuration float64 `json:"aggregated_duration"`

	// Ratio is AggregatedDuration / reference total duration, rounded to
	// six decimal places.
	Ratio float64 `json:"ratio"`

	ItemCount int             `json:"item_count"`
	TaskIDs   []int64         `json:"task_ids"`
	User      models.UserInfo `json:"user"`
}

// PairResult groups selected clusters by (app, media-item) for
// downstream plan batching.
type PairResult struct {
	App       string                `json:"app"`
	BookID    string                `json:"book_id"`
	Reference models.ReferenceMedia `json:"reference"`
	Selected  []SelectedGroup       `json:"selected"`

	// Hit and Total count selected vs. formed groups for this pair.
	Hit   int `json:"hit"`
	Total int `json:"total"`
}

// Summary carries every exclusion count. Data-quality problems are
// counted here, never silently dropped and never fatal.
type Summary struct {
	RowsProcessed              int `json:"rows_processed"`
	RowsSkippedNonSuccessTasks int `json:"rows_skipped_non_success_tasks"`
	UnresolvedTaskIDs          int `json:"unresolved_task_ids"`
	RowsSkippedMissingUser     int `json:"rows_skipped_missing_user"`
	MissingDramaMeta           int `json:"missing_drama_meta"`
	InvalidDramaDuration       int `json:"invalid_drama_duration"`
	GroupsFormed               int `json:"groups_formed"`
	GroupsSelected             int `json:"groups_selected"`
}

// Result is the full detection output.
type Result struct {
	Pairs   []PairResult `json:"pairs"`
	Summary Summary      `json:"summary"`
}

// group accumulates evidence for one (app, book, user) cluster.
type group struct {
	app     string
	bookID  string
	userKey string

	// itemDurations attributes each distinct item id's duration once; a
	// zero entry may be backfilled by a later observation of the same id.
	itemDurations map[string]float64
	taskIDs       map[int64]struct{}
	user          models.UserInfo
}

func (g *group) aggregate() float64 {
	var total float64
	for _, d := range g.itemDurations {
		total += d
	}
	return total
}

func (g *group) sortedTaskIDs() []int64 {
	ids := make([]int64, 0, len(g.taskIDs))
	for id := range g.taskIDs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// round6 rounds a ratio to six decimal places so repeated runs over the
// same input report identical numbers.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Detect clusters rows and selects groups at or above threshold.
// registry maps task ids to their resolved tasks; lookup resolves
// reference metadata. A nil registry or lookup is a structural error;
// every data-quality problem is counted in the summary instead.
func Detect(ctx context.Context, rows []models.CaptureRow, registry map[int64]models.Task, lookup reference.Lookup, threshold float64) (*Result, error) {
	if registry == nil {
		return nil, fmt.Errorf("task registry is required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("reference lookup is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %v out of range [0, 1]", threshold)
	}

	result := &Result{}
	groups := make(map[string]*group)

	for _, row := range rows {
		result.Summary.RowsProcessed++
		metrics.DetectionRowsProcessed.Inc()

		task, ok := registry[row.TaskID]
		if !ok {
			result.Summary.UnresolvedTaskIDs++
			metrics.DetectionRowsExcluded.WithLabelValues("unresolved_task").Inc()
			continue
		}
		if task.Status != models.TaskStatusSuccess {
			result.Summary.RowsSkippedNonSuccessTasks++
			metrics.DetectionRowsExcluded.WithLabelValues("non_success_task").Inc()
			continue
		}
		if task.App == "" || task.BookID == "" {
			result.Summary.UnresolvedTaskIDs++
			metrics.DetectionRowsExcluded.WithLabelValues("unresolved_task").Inc()
			continue
		}

		alias := firstNonEmpty(row.UserAlias, task.UserAlias)
		userID := firstNonEmpty(row.UserID, task.UserID)
		userName := firstNonEmpty(row.UserName, task.UserName)
		userKey := ResolveUserKey(alias, userID, userName)
		if userKey == "" {
			result.Summary.RowsSkippedMissingUser++
			metrics.DetectionRowsExcluded.WithLabelValues("missing_user").Inc()
			continue
		}

		key := groupID(task.App, task.BookID, userKey)
		g, ok := groups[key]
		if !ok {
			g = &group{
				app:           task.App,
				bookID:        task.BookID,
				userKey:       userKey,
				itemDurations: make(map[string]float64),
				taskIDs:       make(map[int64]struct{}),
				user: models.UserInfo{
					UserID:         userID,
					UserName:       userName,
					UserAlias:      alias,
					UserAuthEntity: userKey,
				},
			}
			groups[key] = g
		}
		g.taskIDs[row.TaskID] = struct{}{}

		// Each distinct item contributes its duration once; a zero first
		// observation is backfilled by a later measured one, never summed
		// twice.
		if current, seen := g.itemDurations[row.ItemID]; !seen {
			g.itemDurations[row.ItemID] = row.Duration
		} else if current == 0 && row.Duration > 0 {
			g.itemDurations[row.ItemID] = row.Duration
		}
	}
	result.Summary.GroupsFormed = len(groups)

	// One batched reference fetch for every media item referenced by at
	// least one group.
	bookSet := make(map[string]struct{})
	for _, g := range groups {
		bookSet[g.bookID] = struct{}{}
	}
	bookIDs := make([]string, 0, len(bookSet))
	for id := range bookSet {
		bookIDs = append(bookIDs, id)
	}
	refs, err := lookup.FetchByBookIDs(ctx, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch reference metadata: %w", err)
	}

	type pairKey struct{ app, bookID string }
	pairGroups := make(map[pairKey][]*group)
	for _, g := range groups {
		pk := pairKey{app: g.app, bookID: g.bookID}
		pairGroups[pk] = append(pairGroups[pk], g)
	}

	pairKeys := make([]pairKey, 0, len(pairGroups))
	for pk := range pairGroups {
		pairKeys = append(pairKeys, pk)
	}
	sort.Slice(pairKeys, func(i, j int) bool {
		if pairKeys[i].app != pairKeys[j].app {
			return pairKeys[i].app < pairKeys[j].app
		}
		return pairKeys[i].bookID < pairKeys[j].bookID
	})

	// Skip counters are per media item: the same book missing metadata
	// under several apps counts once.
	missingBooks := make(map[string]struct{})
	invalidBooks := make(map[string]struct{})

	for _, pk := range pairKeys {
		members := pairGroups[pk]
		ref, ok := refs[pk.bookID]
		if !ok {
			if _, counted := missingBooks[pk.bookID]; !counted {
				missingBooks[pk.bookID] = struct{}{}
				result.Summary.MissingDramaMeta++
			}
			logging.Ctx(ctx).Debug().
				Str("app", pk.app).
				Str("book_id", pk.bookID).
				Int("groups", len(members)).
				Msg("media item without reference metadata skipped")
			continue
		}
		if ref.TotalDuration <= 0 {
			if _, counted := invalidBooks[pk.bookID]; !counted {
				invalidBooks[pk.bookID] = struct{}{}
				result.Summary.InvalidDramaDuration++
			}
			logging.Ctx(ctx).Debug().
				Str("book_id", pk.bookID).
				Float64("total_duration", ref.TotalDuration).
				Msg("reference with non-positive duration skipped")
			continue
		}

		pair := PairResult{
			App:       pk.app,
			BookID:    pk.bookID,
			Reference: ref,
			Total:     len(members),
		}
		for _, g := range members {
			aggregated := g.aggregate()
			ratio := round6(aggregated / ref.TotalDuration)
			if ratio < threshold {
				continue
			}
			pair.Selected = append(pair.Selected, SelectedGroup{
				GroupID:            groupID(g.app, g.bookID, g.userKey),
				App:                g.app,
				BookID:             g.bookID,
				UserKey:            g.userKey,
				AggregatedDuration: aggregated,
				Ratio:              ratio,
				ItemCount:          len(g.itemDurations),
				TaskIDs:            g.sortedTaskIDs(),
				User:               g.user,
			})
		}
		sort.Slice(pair.Selected, func(i, j int) bool {
			return pair.Selected[i].GroupID < pair.Selected[j].GroupID
		})
		pair.Hit = len(pair.Selected)
		result.Summary.GroupsSelected += pair.Hit
		result.Pairs = append(result.Pairs, pair)
	}
	metrics.DetectionGroupsSelected.Add(float64(result.Summary.GroupsSelected))

	logging.Ctx(ctx).Info().
		Int("rows", result.Summary.RowsProcessed).
		Int("groups", result.Summary.GroupsFormed).
		Int("selected", result.Summary.GroupsSelected).
		Int("missing_meta", result.Summary.MissingDramaMeta).
		Msg("detection completed")
	return result, nil
}
