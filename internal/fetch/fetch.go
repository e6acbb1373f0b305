// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fetch retrieves feed bodies over HTTP with conditional-GET
// revalidation backed by the persistent feed cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/feedscout/internal/models"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 16 << 20
	retryAttempts  = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Cache stores feed bodies together with their HTTP validators.
// *models.FeedCacheStore implements it.
type Cache interface {
	Get(ctx context.Context, feedURL string) (*models.FeedCacheEntry, bool, error)
	Store(ctx context.Context, entry *models.FeedCacheEntry) error
	Touch(ctx context.Context, feedURL string)
}

// Fetcher downloads feed bodies.
type Fetcher struct {
	client    *http.Client
	cache     Cache
	userAgent string
	logger    zerolog.Logger
}

// Options configures a Fetcher.
type Options struct {
	// Cache enables conditional GETs. Optional; without it every fetch is
	// unconditional.
	Cache Cache
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

// New constructs a Fetcher.
func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{
		client:    client,
		cache:     opts.Cache,
		userAgent: opts.UserAgent,
		logger:    log.Logger.With().Str("module", "fetch").Logger(),
	}
}

// Fetch returns the current body of a feed. When the cache holds validators
// for the URL a conditional request is sent, and a 304 answer serves the
// cached body. Transient failures (network errors, 5xx, 429) are retried
// with backoff.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	var cached *models.FeedCacheEntry
	if f.cache != nil {
		entry, found, err := f.cache.Get(ctx, feedURL)
		if err != nil {
			f.logger.Warn().Err(err).Str("feed_url", feedURL).Msg("Failed to read feed cache")
		} else if found {
			cached = entry
		}
	}

	var body []byte
	err := retry.Do(
		func() error {
			var err error
			body, err = f.fetchOnce(ctx, feedURL, cached)
			return err
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(isRetryable),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	return body, nil
}

// permanentError marks failures a retry cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var perm *permanentError
	return !errors.As(err, &perm)
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string, cached *models.FeedCacheEntry) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &permanentError{err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		f.logger.Debug().Str("feed_url", feedURL).Msg("Feed not modified, serving cached body")
		f.cache.Touch(ctx, feedURL)
		return cached.Body, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)

	case resp.StatusCode != http.StatusOK:
		return nil, &permanentError{err: fmt.Errorf("feed returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	if f.cache != nil {
		entry := &models.FeedCacheEntry{
			FeedURL:      feedURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Body:         body,
			FetchedAt:    time.Now().UTC(),
		}
		if err := f.cache.Store(ctx, entry); err != nil {
			f.logger.Warn().Err(err).Str("feed_url", feedURL).Msg("Failed to store feed cache entry")
		}
	}

	return body, nil
}
