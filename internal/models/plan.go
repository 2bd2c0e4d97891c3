// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package models

import (
	"fmt"
	"sort"
	"time"
)

// PlanStatus is the dispatch status of a webhook plan.
type PlanStatus string

const (
	// PlanStatusPending marks a plan that has never been delivered, or
	// whose task set changed after a terminal outcome (new evidence
	// re-arms delivery).
	PlanStatusPending PlanStatus = "pending"

	// PlanStatusFailed marks a delivery failure that is still eligible
	// for reconcile retries.
	PlanStatusFailed PlanStatus = "failed"

	// PlanStatusSuccess is terminal: the consumer accepted the payload.
	PlanStatusSuccess PlanStatus = "success"

	// PlanStatusError is terminal: retries are exhausted and the plan
	// requires manual intervention.
	PlanStatusError PlanStatus = "error"
)

// Terminal reports whether the plan status admits no further automatic
// transition without new evidence.
func (s PlanStatus) Terminal() bool {
	return s == PlanStatusSuccess || s == PlanStatusError
}

// Task-bucket names used in the plan's TaskBuckets map. BucketMissing is
// reserved for contributing task ids with no matching registry row; such
// ids are parked, never dropped, and always block readiness.
const (
	BucketSuccess = "success"
	BucketFailed  = "failed"
	BucketError   = "error"
	BucketPending = "pending"
	BucketRunning = "running"
	BucketUnknown = "unknown"
	BucketMissing = "missing"
)

// PlanKey is the composite identity of one webhook plan. The backing
// store cannot enforce uniqueness on it, so multiple physical rows may
// transiently share one key.
type PlanKey struct {
	BizType string
	GroupID string

	// Day is the capture day as a day-start epoch in milliseconds (UTC).
	Day int64
}

// String renders the key in a stable, loggable form.
func (k PlanKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.BizType, k.GroupID, k.Day)
}

// DayStartMS truncates t to the start of its UTC day and returns epoch
// milliseconds, the canonical encoding of a capture day.
func DayStartMS(t time.Time) int64 {
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return day.UnixMilli()
}

// UserInfo is the resolved identity of the infringing account, delivered
// with the payload and persisted on the plan for forensics.
type UserInfo struct {
	UserID         string `json:"UserID"`
	UserName       string `json:"UserName"`
	UserAlias      string `json:"UserAlias"`
	UserAuthEntity string `json:"UserAuthEntity,omitempty"`
}

// WebhookPlan is the durable idempotent record representing one group's
// pending or attempted webhook delivery for one capture day.
type WebhookPlan struct {
	// RecordID is the physical row identity in the record store. Empty
	// for plans not yet created.
	RecordID string

	App     string
	BizType string
	GroupID string
	Status  PlanStatus

	// TaskBuckets maps latest known task status to the contributing task
	// ids in that state. The union across buckets is the full
	// contributing set, with no duplicates and no omissions.
	TaskBuckets map[string][]int64

	// DramaInfo is the opaque reference-media context captured at
	// detection time and echoed in the outbound payload.
	DramaInfo map[string]any

	Day        int64
	RetryCount int
	LastError  string

	// Records maps task id (decimal string, JSON object keys) to the
	// number of payload rows contributed, persisted before delivery.
	Records map[string]int

	UserInfo UserInfo

	StartAt  int64
	EndAt    int64
	UpdateAt int64
}

// Key returns the composite key of the plan.
func (p *WebhookPlan) Key() PlanKey {
	return PlanKey{BizType: p.BizType, GroupID: p.GroupID, Day: p.Day}
}

// TaskIDs returns the union of all status buckets, deduplicated and
// sorted ascending.
func (p *WebhookPlan) TaskIDs() []int64 {
	seen := make(map[int64]struct{})
	for _, ids := range p.TaskBuckets {
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PlanDraft is the write-side input to the plan upserter: one detected
// group that should exist as a plan record.
type PlanDraft struct {
	BizType     string
	GroupID     string
	Day         int64
	TaskIDs     []int64
	ContextInfo map[string]any
	AppLabel    string
}

// Key returns the composite key the draft upserts on.
func (d PlanDraft) Key() PlanKey {
	return PlanKey{BizType: d.BizType, GroupID: d.GroupID, Day: d.Day}
}
