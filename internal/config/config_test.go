// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package config

import (
	"strings"
	"testing"
)

// validConfig returns a defaulted config with the required identifiers
// filled in.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Bitable.AppID = "cli_test"
	cfg.Bitable.AppSecret = "secret"
	cfg.Bitable.PlanTableURL = "https://example.feishu.cn/base/bascnX?table=tblPlans"
	cfg.Bitable.TaskTableURL = "https://example.feishu.cn/base/bascnX?table=tblTasks"
	cfg.ResultSource.DSN = "/data/results.duckdb"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRequiredIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing app credentials",
			mutate: func(c *Config) { c.Bitable.AppSecret = "" },
			want:   "BITABLE_APP_ID",
		},
		{
			name:   "missing plan table",
			mutate: func(c *Config) { c.Bitable.PlanTableURL = "" },
			want:   "BITABLE_PLAN_TABLE_URL",
		},
		{
			name:   "threshold above one",
			mutate: func(c *Config) { c.Detection.Threshold = 1.5 },
			want:   "DETECTION_THRESHOLD",
		},
		{
			name:   "negative threshold",
			mutate: func(c *Config) { c.Detection.Threshold = -0.1 },
			want:   "DETECTION_THRESHOLD",
		},
		{
			name:   "oversized page size",
			mutate: func(c *Config) { c.Bitable.PageSize = MaxPageSize + 1 },
			want:   "BITABLE_PAGE_SIZE",
		},
		{
			name:   "unknown result source driver",
			mutate: func(c *Config) { c.ResultSource.Driver = "postgres" },
			want:   "RESULT_SOURCE_DRIVER",
		},
		{
			name:   "duckdb without dsn",
			mutate: func(c *Config) { c.ResultSource.DSN = "" },
			want:   "RESULT_SOURCE_DSN",
		},
		{
			name:   "bad webhook scheme",
			mutate: func(c *Config) { c.Dispatch.WebhookURL = "ftp://example.com/hook" },
			want:   "DISPATCH_WEBHOOK_URL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BITABLE_APP_ID", "bitable.app_id"},
		{"DETECTION_THRESHOLD", "detection.threshold"},
		{"DISPATCH_WEBHOOK_URL", "dispatch.webhook_url"},
		{"PLAN_FIELD_TASK_IDS", "fields.plan.task_ids"},
		{"TASK_FIELD_BOOK_ID", "fields.task.book_id"},
		{"REF_FIELD_TOTAL_DURATION", "fields.reference.total_duration"},
		{"RESULT_SOURCE_DRIVER", "result_source.driver"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := envTransformFunc(tt.in); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDefaultFieldNames(t *testing.T) {
	f := defaultFields()
	if f.Plan.TaskIDs != "TaskIDs" {
		t.Errorf("Plan.TaskIDs = %q", f.Plan.TaskIDs)
	}
	if f.Task.TaskID != "TaskID" {
		t.Errorf("Task.TaskID = %q", f.Task.TaskID)
	}
	if f.Reference.TotalDuration != "TotalDuration" {
		t.Errorf("Reference.TotalDuration = %q", f.Reference.TotalDuration)
	}
}
