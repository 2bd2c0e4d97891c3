// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
	"github.com/copycatch/copycatch/internal/opsapi"
	"github.com/copycatch/copycatch/internal/planstore"
	"github.com/copycatch/copycatch/internal/supervisor"
)

func newDaemonCmd(a *app) *cobra.Command {
	var bizType string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the periodic sweeps under supervision",
		Long: `Daemon runs the reconcile and dedupe sweeps on their configured
intervals inside a supervision tree, alongside a private HTTP listener
serving health and Prometheus metrics. Each reconcile pass covers the
current and the previous UTC day so plans straddling midnight are not
orphaned.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bizType == "" {
				bizType = a.cfg.Detection.BizType
			}

			tree := supervisor.NewTree(slog.Default(), supervisor.DefaultTreeConfig())

			tree.AddSweep(supervisor.NewIntervalService(
				"reconcile", a.cfg.Daemon.ReconcileInterval,
				func(ctx context.Context) error {
					var errs []error
					for _, day := range sweepDays() {
						if _, err := a.pipeline.Reconcile(ctx, bizType, day); err != nil {
							errs = append(errs, err)
						}
					}
					return errors.Join(errs...)
				}))

			tree.AddSweep(supervisor.NewIntervalService(
				"dedupe", a.cfg.Daemon.DedupeInterval,
				func(ctx context.Context) error {
					var errs []error
					for _, day := range sweepDays() {
						filter := planstore.DedupeFilter{BizType: bizType, Day: day}
						if _, err := a.pipeline.Dedupe(ctx, filter, false); err != nil {
							errs = append(errs, err)
						}
					}
					return errors.Join(errs...)
				}))

			server := &http.Server{
				Addr:              a.cfg.Daemon.OpsListen,
				Handler:           opsapi.NewRouter(nil),
				ReadHeaderTimeout: 5 * time.Second,
			}
			tree.AddOps(supervisor.NewHTTPService("ops-http", server, 10*time.Second))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logging.Info().
				Str("biz_type", bizType).
				Str("ops_listen", a.cfg.Daemon.OpsListen).
				Dur("reconcile_interval", a.cfg.Daemon.ReconcileInterval).
				Dur("dedupe_interval", a.cfg.Daemon.DedupeInterval).
				Msg("daemon starting")

			err := tree.Serve(ctx)
			if errors.Is(err, context.Canceled) {
				logging.Info().Msg("daemon stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&bizType, "biz-type", "", "plan partition to sweep (default from config)")
	return cmd
}

// sweepDays returns the current and previous UTC day starts.
func sweepDays() []int64 {
	now := time.Now()
	return []int64{
		models.DayStartMS(now),
		models.DayStartMS(now.AddDate(0, 0, -1)),
	}
}
