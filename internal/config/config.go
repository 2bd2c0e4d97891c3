// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package config loads and validates the immutable process configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, optional YAML config file,
// built-in defaults. The resulting Config is constructed once at process
// start and threaded explicitly into every component constructor; no
// component reads the environment directly.
package config

import (
	"time"
)

// Config is the root configuration object.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Bitable      BitableConfig      `koanf:"bitable"`
	Detection    DetectionConfig    `koanf:"detection"`
	Dispatch     DispatchConfig     `koanf:"dispatch"`
	ResultSource ResultSourceConfig `koanf:"result_source"`
	RefCache     RefCacheConfig     `koanf:"ref_cache"`
	Daemon       DaemonConfig       `koanf:"daemon"`
	Fields       FieldsConfig       `koanf:"fields"`
}

// LoggingConfig mirrors logging.Config for the koanf layer.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// BitableConfig configures the hosted record-store binding.
type BitableConfig struct {
	// BaseURL is the API host, e.g. https://open.feishu.cn.
	BaseURL   string `koanf:"base_url"`
	AppID     string `koanf:"app_id"`
	AppSecret string `koanf:"app_secret"`

	// Table URLs carry the app token (or wiki token) and table id in
	// their path/query, exactly as copied from the browser.
	PlanTableURL      string `koanf:"plan_table_url"`
	TaskTableURL      string `koanf:"task_table_url"`
	ReferenceTableURL string `koanf:"reference_table_url"`

	// PageSize is the search page size (clamped to MaxPageSize).
	PageSize int `koanf:"page_size"`

	// ScanLimit caps the total rows one paginated scan may accumulate.
	ScanLimit int `koanf:"scan_limit"`

	// BatchSize chunks batch create/update/delete calls.
	BatchSize int `koanf:"batch_size"`

	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RatePerSecond paces outbound API calls; Burst allows short spikes.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// DetectionConfig configures the group detector entry point.
type DetectionConfig struct {
	// Threshold is the aggregated/reference duration ratio at or above
	// which a group is selected. Must be within [0, 1].
	Threshold float64 `koanf:"threshold"`

	// BizType partitions the plans written by detect runs.
	BizType string `koanf:"biz_type"`
}

// DispatchConfig configures webhook delivery.
type DispatchConfig struct {
	WebhookURL string            `koanf:"webhook_url"`
	Headers    map[string]string `koanf:"headers"`
	Timeout    time.Duration     `koanf:"timeout"`

	// MaxRetries bounds delivery attempts; a plan observed at or beyond
	// this count escalates to the terminal error status.
	MaxRetries int `koanf:"max_retries"`

	// MaxErrorLength caps the persisted last-error text.
	MaxErrorLength int `koanf:"max_error_length"`

	// RatePerSecond paces outbound deliveries within one reconcile run.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// ResultSourceConfig selects and configures the capture-evidence source.
type ResultSourceConfig struct {
	// Driver is "duckdb" (SQL) or "bitable" (hosted row store).
	Driver string `koanf:"driver"`

	// DSN is the DuckDB database path (duckdb driver).
	DSN string `koanf:"dsn"`

	// Table is the evidence table name (duckdb driver).
	Table string `koanf:"table"`

	// EvidenceTableURL locates the hosted evidence table (bitable driver).
	EvidenceTableURL string `koanf:"evidence_table_url"`

	// ChunkSize bounds the task ids per query.
	ChunkSize int `koanf:"chunk_size"`
}

// RefCacheConfig configures the local reference-media cache.
type RefCacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path"`
	TTL     time.Duration `koanf:"ttl"`
}

// DaemonConfig configures the supervised daemon mode.
type DaemonConfig struct {
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
	DedupeInterval    time.Duration `koanf:"dedupe_interval"`

	// OpsListen is the address of the private health/metrics listener.
	OpsListen string `koanf:"ops_listen"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by config file and environment.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Bitable: BitableConfig{
			BaseURL:        "https://open.feishu.cn",
			PageSize:       200,
			ScanLimit:      10000,
			BatchSize:      500,
			RequestTimeout: 30 * time.Second,
			RatePerSecond:  5,
			Burst:          10,
		},
		Detection: DetectionConfig{
			Threshold: 0.5,
			BizType:   "drama_infringement",
		},
		Dispatch: DispatchConfig{
			Timeout:        10 * time.Second,
			MaxRetries:     3,
			MaxErrorLength: 500,
			RatePerSecond:  2,
		},
		ResultSource: ResultSourceConfig{
			Driver:    "duckdb",
			Table:     "capture_results",
			ChunkSize: 200,
		},
		RefCache: RefCacheConfig{
			Enabled: false,
			Path:    "/data/copycatch/refcache",
			TTL:     6 * time.Hour,
		},
		Daemon: DaemonConfig{
			ReconcileInterval: 5 * time.Minute,
			DedupeInterval:    time.Hour,
			OpsListen:         "127.0.0.1:9310",
		},
		Fields: defaultFields(),
	}
}
