// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package main

import (
	"github.com/spf13/cobra"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/planstore"
)

func newDedupeCmd(a *app) *cobra.Command {
	var (
		bizType string
		day     string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Collapse duplicate plan rows in a partition",
		Long: `Dedupe groups the plan rows of one (biz-type, day) partition by
composite key and deletes every row except the canonical one per key.
The record store cannot enforce key uniqueness, so concurrent upserts
occasionally leave duplicates behind; this sweep removes them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dayMS, err := parseDay(day)
			if err != nil {
				return err
			}
			if bizType == "" {
				bizType = a.cfg.Detection.BizType
			}

			ctx := logging.ContextWithNewRunID(cmd.Context())
			result, err := a.pipeline.Dedupe(ctx, planstore.DedupeFilter{
				BizType: bizType,
				Day:     dayMS,
			}, dryRun)
			if result != nil {
				if printErr := printJSON(result); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&bizType, "biz-type", "", "plan partition (default from config)")
	cmd.Flags().StringVar(&day, "day", "", "capture day, YYYY-MM-DD or epoch ms (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report duplicates without deleting")
	return cmd
}
