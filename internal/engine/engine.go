// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package engine turns torrent-flavoured RSS/Atom feed documents into
// normalized search results. One Engine wraps one feed: it owns the
// feed-scoped state that survives between extractions (whether the feed
// advertises auto-download support, and whether its plain <link> elements
// have been observed to serve torrent payloads).
package engine

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AutoDownload is the feed's tri-state auto-download capability.
type AutoDownload int64

const (
	AutoDownloadUnknown AutoDownload = 0
	AutoDownloadYes     AutoDownload = 1
	AutoDownloadNo      AutoDownload = 2
)

func (a AutoDownload) String() string {
	switch a {
	case AutoDownloadYes:
		return "yes"
	case AutoDownloadNo:
		return "no"
	default:
		return "unknown"
	}
}

// State store keys. Values are opaque int64s owned by the engine.
const (
	stateKeyAutoDownload  = "auto_dl_supported"
	stateKeyLinkIsTorrent = "link_is_torrent"
)

// StateStore persists engine-scoped key/value state across extraction calls.
// Implementations must tolerate unknown keys by returning 0.
type StateStore interface {
	GetLocal(ctx context.Context, engineID int64, key string) (int64, error)
	SetLocal(ctx context.Context, engineID int64, key string, value int64) error
}

const (
	defaultProbeTimeout = 10 * time.Second
	defaultClassifyTTL  = 60 * time.Second
)

// Options configures an Engine.
type Options struct {
	// ID identifies this engine in the state store.
	ID int64
	// FeedURL is the URL the feed is fetched from; relative links in items
	// resolve against it.
	FeedURL string
	// State persists the auto-download flag and link classification. When
	// nil an in-memory store is used.
	State StateStore
	// HTTPClient performs link classification probes. When nil a client
	// bounded by ProbeTimeout is constructed.
	HTTPClient *http.Client
	// ProbeTimeout bounds a single classification probe (default 10s).
	ProbeTimeout time.Duration
	// ClassifyTTL is how long a negative link classification is trusted
	// before re-probing (default 60s).
	ClassifyTTL time.Duration
}

// Engine extracts search results from one feed.
type Engine struct {
	id      int64
	feedURL *url.URL
	state   StateStore
	client  *http.Client
	ttl     time.Duration
	logger  zerolog.Logger

	// classifyMu makes the classifier's read-check-refresh of the persisted
	// decision atomic when one engine is shared between callers.
	classifyMu sync.Mutex

	now func() time.Time
}

// New constructs an Engine. A FeedURL that does not parse is tolerated;
// relative links then pass through unresolved.
func New(opts Options) *Engine {
	state := opts.State
	if state == nil {
		state = NewMemoryState()
	}

	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}

	ttl := opts.ClassifyTTL
	if ttl <= 0 {
		ttl = defaultClassifyTTL
	}

	var feedURL *url.URL
	if opts.FeedURL != "" {
		if u, err := url.Parse(opts.FeedURL); err == nil && u.IsAbs() {
			feedURL = u
		}
	}

	return &Engine{
		id:      opts.ID,
		feedURL: feedURL,
		state:   state,
		client:  client,
		ttl:     ttl,
		logger:  log.Logger.With().Str("module", "engine").Int64("engine_id", opts.ID).Logger(),
		now:     time.Now,
	}
}

// ID returns the engine's state store identity.
func (e *Engine) ID() int64 {
	return e.id
}

// AutoDownloadSupported reports whether the feed supports automatic
// downloading. Unknown until a feed has been extracted at least once.
func (e *Engine) AutoDownloadSupported(ctx context.Context) AutoDownload {
	v, err := e.state.GetLocal(ctx, e.id, stateKeyAutoDownload)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read auto-download state")
		return AutoDownloadUnknown
	}
	switch AutoDownload(v) {
	case AutoDownloadYes, AutoDownloadNo:
		return AutoDownload(v)
	default:
		return AutoDownloadUnknown
	}
}

// AutoDownloadFor reads the persisted auto-download flag of an engine ID
// without constructing an Engine.
func AutoDownloadFor(ctx context.Context, state StateStore, engineID int64) AutoDownload {
	v, err := state.GetLocal(ctx, engineID, stateKeyAutoDownload)
	if err != nil {
		return AutoDownloadUnknown
	}
	switch AutoDownload(v) {
	case AutoDownloadYes, AutoDownloadNo:
		return AutoDownload(v)
	default:
		return AutoDownloadUnknown
	}
}

func (e *Engine) getLocal(ctx context.Context, key string) int64 {
	v, err := e.state.GetLocal(ctx, e.id, key)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Failed to read engine state")
		return 0
	}
	return v
}

func (e *Engine) setLocal(ctx context.Context, key string, value int64) {
	if err := e.state.SetLocal(ctx, e.id, key, value); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Failed to persist engine state")
	}
}

// MemoryState is a StateStore kept in process memory, used for tests and
// one-shot CLI searches where nothing needs to survive the process.
type MemoryState struct {
	mu     sync.RWMutex
	values map[stateKey]int64
}

type stateKey struct {
	engineID int64
	key      string
}

// NewMemoryState constructs an empty in-memory state store.
func NewMemoryState() *MemoryState {
	return &MemoryState{values: make(map[stateKey]int64)}
}

func (m *MemoryState) GetLocal(_ context.Context, engineID int64, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[stateKey{engineID, key}], nil
}

func (m *MemoryState) SetLocal(_ context.Context, engineID int64, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[stateKey{engineID, key}] = value
	return nil
}
