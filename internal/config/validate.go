// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MaxPageSize is the record store's hard page-size ceiling.
const MaxPageSize = 500

// Validate checks that required configuration is present and valid.
// Validation errors are configuration errors: fatal, before any I/O.
func (c *Config) Validate() error {
	if err := c.validateBitable(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateResultSource(); err != nil {
		return err
	}
	return c.validateDaemon()
}

func (c *Config) validateBitable() error {
	if c.Bitable.AppID == "" || c.Bitable.AppSecret == "" {
		return fmt.Errorf("BITABLE_APP_ID and BITABLE_APP_SECRET are required")
	}
	if c.Bitable.PlanTableURL == "" {
		return fmt.Errorf("BITABLE_PLAN_TABLE_URL is required")
	}
	if c.Bitable.TaskTableURL == "" {
		return fmt.Errorf("BITABLE_TASK_TABLE_URL is required")
	}
	if err := validateHTTPURL(c.Bitable.BaseURL, "BITABLE_BASE_URL"); err != nil {
		return err
	}
	if c.Bitable.PageSize <= 0 || c.Bitable.PageSize > MaxPageSize {
		return fmt.Errorf("BITABLE_PAGE_SIZE must be within (0, %d], got %d", MaxPageSize, c.Bitable.PageSize)
	}
	if c.Bitable.BatchSize <= 0 {
		return fmt.Errorf("BITABLE_BATCH_SIZE must be positive, got %d", c.Bitable.BatchSize)
	}
	if c.Bitable.ScanLimit <= 0 {
		return fmt.Errorf("BITABLE_SCAN_LIMIT must be positive, got %d", c.Bitable.ScanLimit)
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.Threshold < 0 || c.Detection.Threshold > 1 {
		return fmt.Errorf("DETECTION_THRESHOLD must be within [0, 1], got %g", c.Detection.Threshold)
	}
	if c.Detection.BizType == "" {
		return fmt.Errorf("DETECTION_BIZ_TYPE must not be empty")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	// WebhookURL may legitimately be empty for detect/dedupe-only
	// deployments; dispatch entry points re-check it at run start.
	if c.Dispatch.WebhookURL != "" {
		if err := validateHTTPURL(c.Dispatch.WebhookURL, "DISPATCH_WEBHOOK_URL"); err != nil {
			return err
		}
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("DISPATCH_MAX_RETRIES must not be negative, got %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.MaxErrorLength <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ERROR_LENGTH must be positive, got %d", c.Dispatch.MaxErrorLength)
	}
	return nil
}

func (c *Config) validateResultSource() error {
	switch c.ResultSource.Driver {
	case "duckdb":
		if c.ResultSource.DSN == "" {
			return fmt.Errorf("RESULT_SOURCE_DSN is required for the duckdb driver")
		}
		if c.ResultSource.Table == "" {
			return fmt.Errorf("RESULT_SOURCE_TABLE is required for the duckdb driver")
		}
	case "bitable":
		if c.ResultSource.EvidenceTableURL == "" {
			return fmt.Errorf("RESULT_SOURCE_EVIDENCE_TABLE_URL is required for the bitable driver")
		}
	default:
		return fmt.Errorf("RESULT_SOURCE_DRIVER must be duckdb or bitable, got %q", c.ResultSource.Driver)
	}
	if c.ResultSource.ChunkSize <= 0 {
		return fmt.Errorf("RESULT_SOURCE_CHUNK_SIZE must be positive, got %d", c.ResultSource.ChunkSize)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.ReconcileInterval <= 0 {
		return fmt.Errorf("DAEMON_RECONCILE_INTERVAL must be positive")
	}
	if c.Daemon.DedupeInterval <= 0 {
		return fmt.Errorf("DAEMON_DEDUPE_INTERVAL must be positive")
	}
	return nil
}

// validateHTTPURL checks a URL is absolute http(s).
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
