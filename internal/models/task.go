// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package models defines the core domain records shared across the
// detection, plan-store and dispatch packages: crawl tasks, capture
// evidence rows, reference media metadata and durable webhook plans.
package models

// TaskStatus is the lifecycle status of one crawl task. Tasks are owned
// and mutated by the crawl scheduler; Copycatch only reads them.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusError   TaskStatus = "error"

	// TaskStatusUnknown is used for tasks whose status field holds an
	// unrecognized value. Unknown is never terminal.
	TaskStatusUnknown TaskStatus = "unknown"
)

// ParseTaskStatus normalizes a raw status cell into a TaskStatus.
func ParseTaskStatus(raw string) TaskStatus {
	switch TaskStatus(raw) {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSuccess,
		TaskStatusFailed, TaskStatusError:
		return TaskStatus(raw)
	default:
		return TaskStatusUnknown
	}
}

// Terminal reports whether no further automatic transition can occur for
// a task in this status. A failed crawl is terminal: the scheduler will
// not retry it, so a plan containing it can still be dispatched.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusError:
		return true
	default:
		return false
	}
}

// Task is one crawl unit as read from the task registry.
type Task struct {
	TaskID     int64      `json:"task_id"`
	App        string     `json:"app"`
	BookID     string     `json:"book_id"`
	Scene      string     `json:"scene"`
	Status     TaskStatus `json:"status"`
	GroupID    string     `json:"group_id"`
	UserID     string     `json:"user_id"`
	UserName   string     `json:"user_name"`
	UserAlias  string     `json:"user_alias"`
	CaptureDay string     `json:"capture_day"`

	// RecordID is the physical row identity in the task table.
	RecordID string `json:"record_id,omitempty"`
}
