// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/feedscout/internal/models"
)

type memCache struct {
	entries map[string]*models.FeedCacheEntry
	touches int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*models.FeedCacheEntry)}
}

func (c *memCache) Get(_ context.Context, feedURL string) (*models.FeedCacheEntry, bool, error) {
	entry, found := c.entries[feedURL]
	return entry, found, nil
}

func (c *memCache) Store(_ context.Context, entry *models.FeedCacheEntry) error {
	c.entries[entry.FeedURL] = entry
	return nil
}

func (c *memCache) Touch(_ context.Context, _ string) {
	c.touches++
}

func TestFetch_StoresValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	cache := newMemCache()
	f := New(Options{Cache: cache, UserAgent: "feedscout/test"})

	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("<rss/>"), body)

	entry, found, _ := cache.Get(context.Background(), srv.URL)
	require.True(t, found)
	assert.Equal(t, `"v1"`, entry.ETag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", entry.LastModified)
	assert.Equal(t, []byte("<rss/>"), entry.Body)
}

func TestFetch_NotModifiedServesCachedBody(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	cache := newMemCache()
	f := New(Options{Cache: cache})

	first, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	second, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, cache.touches)
}

func TestFetch_PermanentStatusDoesNotRetry(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Options{})

	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, 1, requests, "4xx answers must not be retried")
}

func TestFetch_TransientStatusRetries(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	f := New(Options{})

	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("<rss/>"), body)
	assert.Equal(t, 3, requests)
}

func TestFetch_RetriesExhausted(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Options{})

	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "status 503")
	assert.Equal(t, retryAttempts, requests)
}

func TestFetch_NoCacheIsUnconditional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		assert.Empty(t, r.Header.Get("If-Modified-Since"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Options{})

	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), body)
}
