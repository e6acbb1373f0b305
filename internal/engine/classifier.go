// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const torrentMIMEType = "application/x-bittorrent"

// classifyLink decides whether a generic feed link actually serves a torrent
// payload.
//
// The decision is cached per engine: a positive result is sticky (one
// observed torrent-serving link is taken as evidence the whole feed's link
// convention means "torrent download"), a negative result suppresses
// re-probing until the TTL elapses. The persisted value encodes the decision:
// 0 = never checked, 1 = positive, anything else = unix-millis of the last
// negative check.
//
// Probe failures of any kind classify as negative; they never surface as
// errors.
func (e *Engine) classifyLink(ctx context.Context, rawURL string) bool {
	e.classifyMu.Lock()
	defer e.classifyMu.Unlock()

	switch v := e.getLocal(ctx, stateKeyLinkIsTorrent); {
	case v == 1:
		return true
	case v != 0 && e.now().Sub(time.UnixMilli(v)) <= e.ttl:
		return false
	}

	if e.probeIsTorrent(ctx, rawURL) {
		e.setLocal(ctx, stateKeyLinkIsTorrent, 1)
		return true
	}

	e.setLocal(ctx, stateKeyLinkIsTorrent, e.now().UnixMilli())
	return false
}

// probeIsTorrent issues a single bounded HEAD request and checks the
// content type. The whole header value must equal the torrent MIME type,
// ignoring case only; a parameterized header does not count.
func (e *Engine) probeIsTorrent(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return false
	}

	e.logger.Debug().
		Str("url", rawURL).
		Str("content_type", contentType).
		Msg("Probed feed link for torrent content type")

	return strings.EqualFold(strings.TrimSpace(contentType), torrentMIMEType)
}
