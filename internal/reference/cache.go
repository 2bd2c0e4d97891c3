// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/copycatch/copycatch/internal/logging"
	"github.com/copycatch/copycatch/internal/models"
)

const cacheKeyPrefix = "ref:"

// Cache fronts a Lookup with a BadgerDB TTL cache. Only resolved
// entries are cached; a book id with no metadata is re-queried every
// run so late-arriving reference rows are picked up immediately.
type Cache struct {
	db    *badger.DB
	inner Lookup
	ttl   time.Duration
}

// NewCache wraps inner with a cache stored in db. Entries expire after
// ttl via Badger's native key TTL.
func NewCache(db *badger.DB, inner Lookup, ttl time.Duration) *Cache {
	return &Cache{db: db, inner: inner, ttl: ttl}
}

// OpenDB opens the cache database at path with logging routed to the
// process logger.
func OpenDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open reference cache at %s: %w", path, err)
	}
	return db, nil
}

// FetchByBookIDs serves cache hits locally and delegates misses to the
// inner lookup, writing fresh entries back with the configured TTL. A
// cache read/write failure degrades to a direct lookup, never fails
// the run.
func (c *Cache) FetchByBookIDs(ctx context.Context, bookIDs []string) (map[string]models.ReferenceMedia, error) {
	result := make(map[string]models.ReferenceMedia, len(bookIDs))
	var misses []string

	err := c.db.View(func(txn *badger.Txn) error {
		for _, id := range bookIDs {
			if id == "" {
				continue
			}
			if _, done := result[id]; done {
				continue
			}
			item, err := txn.Get([]byte(cacheKeyPrefix + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				misses = append(misses, id)
				continue
			}
			if err != nil {
				return err
			}
			var media models.ReferenceMedia
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &media)
			}); err != nil {
				misses = append(misses, id)
				continue
			}
			result[id] = media
		}
		return nil
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("reference cache read failed, falling back to direct lookup")
		return c.inner.FetchByBookIDs(ctx, bookIDs)
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.inner.FetchByBookIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, media := range fetched {
		result[id] = media
	}

	if err := c.storeEntries(fetched); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("reference cache write failed")
	}
	return result, nil
}

func (c *Cache) storeEntries(entries map[string]models.ReferenceMedia) error {
	if len(entries) == 0 {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		for id, media := range entries {
			data, err := json.Marshal(media)
			if err != nil {
				return fmt.Errorf("marshal reference media %s: %w", id, err)
			}
			entry := badger.NewEntry([]byte(cacheKeyPrefix+id), data).WithTTL(c.ttl)
			if err := txn.SetEntry(entry); err != nil {
				return fmt.Errorf("cache reference media %s: %w", id, err)
			}
		}
		return nil
	})
}
