// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copycatch/copycatch/internal/logging"
)

func newReconcileCmd(a *app) *cobra.Command {
	var (
		bizType string
		day     string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Sweep a partition for undelivered plans",
		Long: `Reconcile scans every plan in one (biz-type, day) partition and
runs the delivery state machine on each plan still pending or failed.
Plans whose tasks have settled since the last pass are delivered;
plans at the retry limit escalate to error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dayMS, err := parseDay(day)
			if err != nil {
				return err
			}
			if bizType == "" {
				bizType = a.cfg.Detection.BizType
			}

			ctx := logging.ContextWithNewRunID(cmd.Context())
			result, err := a.pipeline.Reconcile(ctx, bizType, dayMS)
			if result != nil {
				if printErr := printJSON(result); printErr != nil && err == nil {
					err = printErr
				}
			}
			if err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d plans failed during the sweep", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bizType, "biz-type", "", "plan partition (default from config)")
	cmd.Flags().StringVar(&day, "day", "", "capture day, YYYY-MM-DD or epoch ms (required)")
	return cmd
}
