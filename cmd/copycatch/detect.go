// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/pipeline"
)

func newDetectCmd(a *app) *cobra.Command {
	var (
		appName string
		scene   string
		day     string
		status  string
		limit   int
		upsert  bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Cluster capture evidence and select infringing groups",
		Long: `Detect fetches the crawl tasks matching the filter, loads their
capture evidence from the result source, clusters it into (app, media
item, user) groups and selects groups whose aggregated distinct-item
duration reaches the configured threshold. With --upsert the selected
groups are written as webhook plans.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dayMS, err := parseDay(day)
			if err != nil {
				return err
			}
			ctx := logging.ContextWithNewRunID(cmd.Context())
			report, err := a.pipeline.Detect(ctx, pipeline.DetectOptions{
				App:    appName,
				Scene:  scene,
				Day:    time.UnixMilli(dayMS).UTC(),
				Status: status,
				Limit:  limit,
				Upsert: upsert,
			})
			if report != nil {
				if printErr := printJSON(report); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&appName, "app", "", "filter tasks by app label")
	cmd.Flags().StringVar(&scene, "scene", "", "filter tasks by crawl scene")
	cmd.Flags().StringVar(&day, "day", "", "capture day, YYYY-MM-DD or epoch ms (required)")
	cmd.Flags().StringVar(&status, "status", "", "task status filter (default success)")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap fetched tasks (0 = configured scan limit)")
	cmd.Flags().BoolVar(&upsert, "upsert", false, "write plans for the selected groups")
	return cmd
}
