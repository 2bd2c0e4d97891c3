// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copycatch/copycatch/internal/dispatch"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
)

func newDispatchCmd(a *app) *cobra.Command {
	var (
		bizType string
		groupID string
		day     string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run the delivery state machine for one plan",
		Long: `Dispatch processes the plan identified by (--biz-type, --group-id,
--day): classifies its task set against the registry, and if every
task has settled, assembles the evidence payload and posts it to the
configured webhook. Terminal plans are an idempotent no-op.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if groupID == "" {
				return usagef("--group-id is required")
			}
			dayMS, err := parseDay(day)
			if err != nil {
				return err
			}
			if bizType == "" {
				bizType = a.cfg.Detection.BizType
			}

			ctx := logging.ContextWithNewRunID(cmd.Context())
			report, err := a.pipeline.Dispatch(ctx, models.PlanKey{
				BizType: bizType,
				GroupID: groupID,
				Day:     dayMS,
			}, dryRun)
			if report != nil {
				if printErr := printJSON(report); printErr != nil && err == nil {
					err = printErr
				}
			}
			if err != nil {
				return err
			}
			if report.Outcome == dispatch.OutcomeFailed || report.Outcome == dispatch.OutcomeError {
				return fmt.Errorf("plan %s ended %s", report.KeyText, report.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bizType, "biz-type", "", "plan partition (default from config)")
	cmd.Flags().StringVar(&groupID, "group-id", "", "group id of the plan (required)")
	cmd.Flags().StringVar(&day, "day", "", "capture day, YYYY-MM-DD or epoch ms (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "assemble the payload without delivering or writing")
	return cmd
}
