// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Package bitable is the concrete Record Store binding: a client for the
// Feishu Bitable HTTP API.
//
// The client covers exactly the surface the core needs (filtered record
// search with sequential pagination, chunked batch create/update/delete,
// tenant access-token exchange and wiki-token resolution) and decodes
// the API's polymorphic cell values into normalized scalars.
//
// Resilience: every call waits on a token-bucket rate limiter
// (golang.org/x/time/rate) and runs under a circuit breaker
// (sony/gobreaker), with bounded request timeouts and error bodies
// capped at 64KB. Pagination is a sequential loop bounded by a scan
// limit; batch writes are chunked and issued sequentially so write
// ordering stays predictable for canonical-row selection.
package bitable
