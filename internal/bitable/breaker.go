// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package bitable

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/metrics"
)

// BreakerStore wraps a Store with circuit breaker protection so a record
// store outage trips fast instead of grinding through every batch with
// full timeouts.
//
// The breaker uses real time for its interval and timeout windows; unit
// tests exercise the wrapped store directly.
type BreakerStore struct {
	store Store
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

// NewBreakerStore wraps store in a circuit breaker. The breaker opens
// after a 60% failure rate over at least 10 requests and probes again
// after one minute open.
func NewBreakerStore(store Store) *BreakerStore {
	const cbName = "bitable-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &BreakerStore{store: store, cb: cb, name: cbName}
}

// execute runs fn under the breaker, mapping rejections to metrics.
func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordStoreRequests.WithLabelValues("breaker", "rejected").Inc()
			logging.Warn().Err(err).Str("breaker", b.name).Msg("record store request rejected")
		}
		return nil, err
	}
	return result, nil
}

// SearchRecords implements Store.
func (b *BreakerStore) SearchRecords(ctx context.Context, ref TableRef, filter *Filter, opts SearchOptions) ([]Record, error) {
	result, err := b.execute(func() (any, error) {
		return b.store.SearchRecords(ctx, ref, filter, opts)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Record), nil
}

// BatchCreate implements Store.
func (b *BreakerStore) BatchCreate(ctx context.Context, ref TableRef, rows []map[string]any) ([]string, error) {
	result, err := b.execute(func() (any, error) {
		return b.store.BatchCreate(ctx, ref, rows)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// BatchUpdate implements Store.
func (b *BreakerStore) BatchUpdate(ctx context.Context, ref TableRef, updates []RecordUpdate) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.store.BatchUpdate(ctx, ref, updates)
	})
	return err
}

// BatchDelete implements Store.
func (b *BreakerStore) BatchDelete(ctx context.Context, ref TableRef, recordIDs []string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.store.BatchDelete(ctx, ref, recordIDs)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
