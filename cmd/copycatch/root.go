// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
	"github.com/copycatch/copycatch/internal/pipeline"
)

// usageError marks configuration and argument problems so main can map
// them to exit code 2 instead of 1.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// app carries the loaded configuration and wired pipeline through one
// command invocation.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:           "copycatch",
		Short:         "Crawl evidence infringement detection and webhook delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return &usageError{err: err}
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if logFormat != "" {
				cfg.Logging.Format = logFormat
			}
			logging.Init(logging.Config{
				Level:     cfg.Logging.Level,
				Format:    cfg.Logging.Format,
				Timestamp: true,
			})
			a.cfg = cfg

			p, err := pipeline.New(cfg)
			if err != nil {
				return &usageError{err: err}
			}
			a.pipeline = p
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.pipeline != nil {
				a.pipeline.Close()
			}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace..fatal)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log format (json|console)")

	root.AddCommand(
		newDetectCmd(a),
		newUpsertCmd(a),
		newDispatchCmd(a),
		newReconcileCmd(a),
		newDedupeCmd(a),
		newDaemonCmd(a),
	)
	return root
}

// parseDay accepts a calendar day ("2026-08-30") or a day-start epoch
// in milliseconds and returns the canonical day-start epoch ms.
func parseDay(raw string) (int64, error) {
	if raw == "" {
		return 0, usagef("--day is required")
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms <= 0 {
			return 0, usagef("day %q must be positive epoch milliseconds", raw)
		}
		return models.DayStartMS(time.UnixMilli(ms)), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return 0, usagef("day %q: want YYYY-MM-DD or epoch milliseconds", raw)
	}
	return models.DayStartMS(t), nil
}

// printJSON writes one run report to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
