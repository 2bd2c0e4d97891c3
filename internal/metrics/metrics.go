// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package metrics provides Prometheus instrumentation for the batch
// entry points and the daemon. The daemon exposes these via the ops
// listener; one-shot CLI runs register them but typically exit before
// scraping, so the JSON run summaries remain the primary observability
// channel there.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record store metrics.
	RecordStoreRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordstore_requests_total",
			Help: "Total record store API calls",
		},
		[]string{"operation", "outcome"}, // outcome: success|failure|rejected
	)

	RecordStoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordstore_request_duration_seconds",
			Help:    "Record store API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RecordStorePagesScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recordstore_pages_scanned_total",
			Help: "Total pages fetched across paginated scans",
		},
	)

	// Detection metrics.
	DetectionRowsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_rows_processed_total",
			Help: "Capture rows seen by the group detector",
		},
	)

	DetectionRowsExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_rows_excluded_total",
			Help: "Capture rows excluded from aggregation",
		},
		[]string{"reason"},
	)

	DetectionGroupsSelected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_groups_selected_total",
			Help: "Groups whose duration ratio crossed the threshold",
		},
	)

	// Plan store metrics.
	PlansCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plans_created_total",
			Help: "Plan records created by upsert runs",
		},
	)

	PlansUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plans_updated_total",
			Help: "Plan records updated by upsert runs",
		},
	)

	PlansDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plans_deduplicated_total",
			Help: "Duplicate plan rows deleted by dedupe sweeps",
		},
	)

	// Dispatch metrics.
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"}, // success|failure|rejected
	)

	WebhookDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Webhook POST duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	PlanTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_transitions_total",
			Help: "Dispatch state machine outcomes per processed plan",
		},
		[]string{"state"},
	)

	// Circuit breaker metrics, shared by the record store client and the
	// webhook notifier.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
