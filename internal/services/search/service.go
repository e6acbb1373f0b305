// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search ties the feed fetcher and the extraction engine together:
// it owns one engine per feed URL and exposes the search operations the API
// and CLI run.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/feedscout/internal/domain"
	"github.com/autobrr/feedscout/internal/engine"
	"github.com/autobrr/feedscout/internal/fetch"
)

// EngineID derives the stable state store identity of a feed from its URL.
func EngineID(feedURL string) int64 {
	return int64(xxhash.Sum64String(feedURL))
}

// Response is the outcome of one feed search.
type Response struct {
	FeedURL      string          `json:"feed_url"`
	EngineID     int64           `json:"engine_id"`
	AutoDownload string          `json:"auto_download"`
	Total        int             `json:"total"`
	Results      []engine.Result `json:"results"`
}

// FeedStatus describes one configured feed.
type FeedStatus struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	EngineID     int64  `json:"engine_id"`
	AutoDownload string `json:"auto_download"`
}

// Service runs feed searches.
type Service struct {
	fetcher *fetch.Fetcher
	state   engine.StateStore
	logger  zerolog.Logger

	mu           sync.RWMutex
	engines      map[int64]*engine.Engine
	feeds        []domain.FeedConfig
	maxResults   int
	probeTimeout time.Duration
	classifyTTL  time.Duration
}

// NewService constructs the search service. state may be nil, in which case
// engine state lives in memory only.
func NewService(fetcher *fetch.Fetcher, state engine.StateStore, cfg *domain.Config) *Service {
	if state == nil {
		state = engine.NewMemoryState()
	}
	s := &Service{
		fetcher: fetcher,
		state:   state,
		logger:  log.Logger.With().Str("module", "search").Logger(),
		engines: make(map[int64]*engine.Engine),
	}
	s.applyConfig(cfg)
	return s
}

// UpdateConfig applies a reloaded configuration. Engines persist across
// reloads; only feed list and limits change.
func (s *Service) UpdateConfig(cfg *domain.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyConfigLocked(cfg)
	s.logger.Debug().Int("feeds", len(s.feeds)).Msg("Search configuration updated")
}

func (s *Service) applyConfig(cfg *domain.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyConfigLocked(cfg)
}

func (s *Service) applyConfigLocked(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	s.feeds = append([]domain.FeedConfig(nil), cfg.Feeds...)
	s.maxResults = cfg.MaxResults
	s.probeTimeout = time.Duration(cfg.ProbeTimeoutSeconds) * time.Second
	s.classifyTTL = time.Duration(cfg.ClassifyTTLSeconds) * time.Second
}

// Search fetches a feed and extracts its results. maxResults overrides the
// configured cap when positive.
func (s *Service) Search(ctx context.Context, feedURL string, maxResults int) (*Response, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}

	body, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	eng := s.engineFor(feedURL)

	if maxResults <= 0 {
		s.mu.RLock()
		maxResults = s.maxResults
		s.mu.RUnlock()
	}

	results, err := eng.ExtractBytes(ctx, body, maxResults)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("feed_url", feedURL).
		Int("results", len(results)).
		Msg("Feed search completed")

	return &Response{
		FeedURL:      feedURL,
		EngineID:     eng.ID(),
		AutoDownload: eng.AutoDownloadSupported(ctx).String(),
		Total:        len(results),
		Results:      results,
	}, nil
}

// SearchFeed searches a configured feed by name.
func (s *Service) SearchFeed(ctx context.Context, name string, maxResults int) (*Response, error) {
	s.mu.RLock()
	var feed *domain.FeedConfig
	for i := range s.feeds {
		if strings.EqualFold(s.feeds[i].Name, name) {
			feed = &s.feeds[i]
			break
		}
	}
	s.mu.RUnlock()

	if feed == nil {
		return nil, fmt.Errorf("unknown feed %q", name)
	}
	if maxResults <= 0 {
		maxResults = feed.MaxResults
	}
	return s.Search(ctx, feed.URL, maxResults)
}

// Feeds returns the configured feeds with their engine state.
func (s *Service) Feeds(ctx context.Context) []FeedStatus {
	s.mu.RLock()
	feeds := append([]domain.FeedConfig(nil), s.feeds...)
	s.mu.RUnlock()

	statuses := make([]FeedStatus, 0, len(feeds))
	for _, f := range feeds {
		eng := s.engineFor(f.URL)
		statuses = append(statuses, FeedStatus{
			Name:         f.Name,
			URL:          f.URL,
			EngineID:     eng.ID(),
			AutoDownload: eng.AutoDownloadSupported(ctx).String(),
		})
	}
	return statuses
}

// EngineStatus describes one engine's persisted state.
type EngineStatus struct {
	EngineID     int64  `json:"engine_id"`
	AutoDownload string `json:"auto_download"`
}

// EngineState reports the persisted state of an engine by ID, whether or not
// the engine is currently instantiated.
func (s *Service) EngineState(ctx context.Context, engineID int64) EngineStatus {
	return EngineStatus{
		EngineID:     engineID,
		AutoDownload: engine.AutoDownloadFor(ctx, s.state, engineID).String(),
	}
}

// engineFor returns the engine owning the given feed URL, creating it on
// first use. Engines are cached so their classification state is shared by
// all callers of the same feed.
func (s *Service) engineFor(feedURL string) *engine.Engine {
	id := EngineID(feedURL)

	s.mu.RLock()
	eng, found := s.engines[id]
	s.mu.RUnlock()
	if found {
		return eng
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if eng, found = s.engines[id]; found {
		return eng
	}

	var probeClient *http.Client
	if s.probeTimeout > 0 {
		probeClient = &http.Client{Timeout: s.probeTimeout}
	}

	eng = engine.New(engine.Options{
		ID:           id,
		FeedURL:      feedURL,
		State:        s.state,
		HTTPClient:   probeClient,
		ProbeTimeout: s.probeTimeout,
		ClassifyTTL:  s.classifyTTL,
	})
	s.engines[id] = eng
	return eng
}
