// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package config

// Physical column names are configurable per deployment; the bitable
// tables are owned by operations teams who rename columns freely. All
// indirection is resolved here once at startup into typed structs that
// the codecs receive by value. Business logic never looks a column up by
// dynamic string key.

// FieldsConfig groups the per-table field maps.
type FieldsConfig struct {
	Plan      PlanFields      `koanf:"plan"`
	Task      TaskFields      `koanf:"task"`
	Reference ReferenceFields `koanf:"reference"`
	Evidence  EvidenceFields  `koanf:"evidence"`
}

// PlanFields maps logical webhook-plan fields to physical column names.
type PlanFields struct {
	App        string `koanf:"app"`
	BizType    string `koanf:"biz_type"`
	GroupID    string `koanf:"group_id"`
	Status     string `koanf:"status"`
	TaskIDs    string `koanf:"task_ids"`
	DramaInfo  string `koanf:"drama_info"`
	Date       string `koanf:"date"`
	RetryCount string `koanf:"retry_count"`
	LastError  string `koanf:"last_error"`
	Records    string `koanf:"records"`
	UserInfo   string `koanf:"user_info"`
	StartAt    string `koanf:"start_at"`
	EndAt      string `koanf:"end_at"`
	UpdateAt   string `koanf:"update_at"`
}

// TaskFields maps logical task-registry fields to physical column names.
type TaskFields struct {
	TaskID     string `koanf:"task_id"`
	App        string `koanf:"app"`
	Scene      string `koanf:"scene"`
	BookID     string `koanf:"book_id"`
	Status     string `koanf:"status"`
	GroupID    string `koanf:"group_id"`
	UserID     string `koanf:"user_id"`
	UserName   string `koanf:"user_name"`
	UserAlias  string `koanf:"user_alias"`
	CaptureDay string `koanf:"capture_day"`
	StartAt    string `koanf:"start_at"`
	EndAt      string `koanf:"end_at"`
	RetryCount string `koanf:"retry_count"`
}

// ReferenceFields maps logical reference-media fields to physical
// column names.
type ReferenceFields struct {
	BookID        string `koanf:"book_id"`
	Name          string `koanf:"name"`
	TotalDuration string `koanf:"total_duration"`
	Episodes      string `koanf:"episodes"`
	Category      string `koanf:"category"`
	Priority      string `koanf:"priority"`
}

// EvidenceFields maps logical capture-row fields to physical columns.
// Used by both result-source bindings (SQL column names, bitable field
// names).
type EvidenceFields struct {
	TaskID    string `koanf:"task_id"`
	ItemID    string `koanf:"item_id"`
	Duration  string `koanf:"duration"`
	UserID    string `koanf:"user_id"`
	UserName  string `koanf:"user_name"`
	UserAlias string `koanf:"user_alias"`
}

func defaultFields() FieldsConfig {
	return FieldsConfig{
		Plan: PlanFields{
			App:        "App",
			BizType:    "BizType",
			GroupID:    "GroupID",
			Status:     "Status",
			TaskIDs:    "TaskIDs",
			DramaInfo:  "DramaInfo",
			Date:       "Date",
			RetryCount: "RetryCount",
			LastError:  "LastError",
			Records:    "Records",
			UserInfo:   "UserInfo",
			StartAt:    "StartAt",
			EndAt:      "EndAt",
			UpdateAt:   "UpdateAt",
		},
		Task: TaskFields{
			TaskID:     "TaskID",
			App:        "App",
			Scene:      "Scene",
			BookID:     "BookID",
			Status:     "Status",
			GroupID:    "GroupID",
			UserID:     "UserID",
			UserName:   "UserName",
			UserAlias:  "UserAlias",
			CaptureDay: "Date",
			StartAt:    "StartAt",
			EndAt:      "EndAt",
			RetryCount: "RetryCount",
		},
		Reference: ReferenceFields{
			BookID:        "BookID",
			Name:          "Name",
			TotalDuration: "TotalDuration",
			Episodes:      "Episodes",
			Category:      "Category",
			Priority:      "Priority",
		},
		Evidence: EvidenceFields{
			TaskID:    "task_id",
			ItemID:    "item_id",
			Duration:  "duration",
			UserID:    "user_id",
			UserName:  "user_name",
			UserAlias: "user_alias",
		},
	}
}
