// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/feedscout/internal/dbinterface"
)

// FeedCacheEntry is the stored copy of one feed body together with the
// validators the origin returned, used for conditional refetches.
type FeedCacheEntry struct {
	FeedURL      string
	ETag         string
	LastModified string
	Body         []byte
	FetchedAt    time.Time
	HitCount     int64
}

// FeedCacheStore persists fetched feed bodies and their HTTP validators.
type FeedCacheStore struct {
	db dbinterface.Querier
}

// NewFeedCacheStore constructs a new feed cache store.
func NewFeedCacheStore(db dbinterface.Querier) *FeedCacheStore {
	return &FeedCacheStore{db: db}
}

// Get returns the cached entry for a feed URL, if any.
func (s *FeedCacheStore) Get(ctx context.Context, feedURL string) (*FeedCacheEntry, bool, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, false, fmt.Errorf("feed URL cannot be empty")
	}

	var entry FeedCacheEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT feed_url, etag, last_modified, body, fetched_at, hit_count
		 FROM feed_cache WHERE feed_url = ?`,
		feedURL,
	).Scan(&entry.FeedURL, &entry.ETag, &entry.LastModified, &entry.Body, &entry.FetchedAt, &entry.HitCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get feed cache entry: %w", err)
	}
	return &entry, true, nil
}

// Store inserts or replaces the cached entry for a feed URL.
func (s *FeedCacheStore) Store(ctx context.Context, entry *FeedCacheEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if strings.TrimSpace(entry.FeedURL) == "" {
		return fmt.Errorf("feed URL cannot be empty")
	}

	const query = `
		INSERT INTO feed_cache (feed_url, etag, last_modified, body, fetched_at, hit_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(feed_url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			body = excluded.body,
			fetched_at = excluded.fetched_at
	`
	fetchedAt := entry.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, query,
		entry.FeedURL, entry.ETag, entry.LastModified, entry.Body, fetchedAt,
	); err != nil {
		return fmt.Errorf("store feed cache entry: %w", err)
	}
	return nil
}

// Touch records a not-modified revalidation: the cached body was served again.
func (s *FeedCacheStore) Touch(ctx context.Context, feedURL string) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE feed_cache SET fetched_at = ?, hit_count = hit_count + 1 WHERE feed_url = ?`,
		time.Now().UTC(), feedURL,
	); err != nil {
		log.Error().Err(err).Str("feed_url", feedURL).Msg("feed cache touch failed")
	}
}

// Flush removes every cached feed body.
func (s *FeedCacheStore) Flush(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feed_cache`)
	if err != nil {
		return 0, fmt.Errorf("flush feed cache: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("flush feed cache rows affected: %w", err)
	}
	return deleted, nil
}
