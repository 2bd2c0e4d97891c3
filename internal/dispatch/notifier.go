// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/copycatch/copycatch/internal/config"
	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/metrics"
)

// Notifier delivers webhook payloads to the external consumer. Calls
// are paced by a token bucket and guarded by a circuit breaker so a
// dead consumer fails a reconcile run fast instead of burning the full
// timeout per plan.
type Notifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	lim     *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewNotifier builds a notifier from validated dispatch configuration.
func NewNotifier(cfg *config.DispatchConfig) *Notifier {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}

	settings := gobreaker.Settings{
		Name:     "webhook",
		Interval: time.Minute,
		Timeout:  time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state changed")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}

	return &Notifier{
		url:     cfg.WebhookURL,
		headers: headers,
		client:  &http.Client{Timeout: cfg.Timeout},
		lim:     rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Deliver posts the payload. Any 2xx response is success; everything
// else is a delivery failure subject to retry accounting.
func (n *Notifier) Deliver(ctx context.Context, payload map[string]any) error {
	if n.url == "" {
		return fmt.Errorf("webhook url is not configured")
	}

	start := time.Now()
	_, err := n.breaker.Execute(func() (any, error) {
		return nil, n.post(ctx, payload)
	})
	metrics.WebhookDeliveryDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
	return err
}

func (n *Notifier) post(ctx context.Context, payload map[string]any) error {
	if err := n.lim.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
