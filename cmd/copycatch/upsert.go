// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
)

// draftInput is the external JSON shape of one plan draft.
type draftInput struct {
	BizType     string         `json:"biz_type"`
	GroupID     string         `json:"group_id"`
	Day         int64          `json:"day"`
	TaskIDs     []int64        `json:"task_ids"`
	ContextInfo map[string]any `json:"context_info,omitempty"`
	App         string         `json:"app,omitempty"`
}

func newUpsertCmd(a *app) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Write externally supplied plan drafts",
		Long: `Upsert reads a JSON array of plan drafts from stdin (or --file)
and applies them idempotently: missing plans are created pending,
existing plans absorb new task ids, and nothing is written when a
draft changes nothing. This is the manual repair entry point; detect
--upsert is the normal path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := io.Reader(os.Stdin)
			if filePath != "" {
				f, err := os.Open(filePath)
				if err != nil {
					return usagef("open drafts file: %v", err)
				}
				defer f.Close()
				reader = f
			}

			var inputs []draftInput
			if err := json.NewDecoder(reader).Decode(&inputs); err != nil {
				return usagef("decode drafts: %v", err)
			}
			if len(inputs) == 0 {
				return usagef("no drafts supplied")
			}

			drafts := make([]models.PlanDraft, 0, len(inputs))
			for _, in := range inputs {
				bizType := in.BizType
				if bizType == "" {
					bizType = a.cfg.Detection.BizType
				}
				drafts = append(drafts, models.PlanDraft{
					BizType:     bizType,
					GroupID:     in.GroupID,
					Day:         in.Day,
					TaskIDs:     in.TaskIDs,
					ContextInfo: in.ContextInfo,
					AppLabel:    in.App,
				})
			}

			ctx := logging.ContextWithNewRunID(cmd.Context())
			result, err := a.pipeline.Upsert(ctx, drafts)
			if result != nil {
				if printErr := printJSON(result); printErr != nil && err == nil {
					err = printErr
				}
			}
			if err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d drafts rejected", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "read drafts from a file instead of stdin")
	return cmd
}
