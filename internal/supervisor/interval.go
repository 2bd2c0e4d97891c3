// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package supervisor

import (
	"context"
	"time"

	"github.com/copycatch/copycatch/internal/logging"
)

// SweepFunc is one pass of a periodic sweep. An error is logged and
// counted but never restarts the service; only a panic does.
type SweepFunc func(ctx context.Context) error

// IntervalService runs a sweep function on a fixed interval under
// suture supervision. The first pass runs immediately on start so a
// freshly restarted daemon converges without waiting a full interval.
type IntervalService struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
}

// NewIntervalService wraps a sweep function as a supervised service.
func NewIntervalService(name string, interval time.Duration, sweep SweepFunc) *IntervalService {
	return &IntervalService{name: name, interval: interval, sweep: sweep}
}

// Serve implements suture.Service.
func (s *IntervalService) Serve(ctx context.Context) error {
	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *IntervalService) run(ctx context.Context) {
	runCtx := logging.ContextWithNewRunID(ctx)
	log := logging.Ctx(runCtx).With().Str("sweep", s.name).Logger()

	start := time.Now()
	if err := s.sweep(runCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("sweep pass failed")
		return
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("sweep pass finished")
}

// String implements fmt.Stringer for suture's event log.
func (s *IntervalService) String() string {
	return s.name
}
