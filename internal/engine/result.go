// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/autobrr/feedscout/internal/magnet"
)

// ContentType classifies what a feed item ultimately points at.
type ContentType string

const (
	ContentTypeUnspecified ContentType = ""
	ContentTypeVideo       ContentType = "video"
	ContentTypeAudio       ContentType = "audio"
	ContentTypeGame        ContentType = "game"
)

// Result is one normalized search result assembled from a feed item.
//
// Seeds, SuperSeeds, Peers and Rank use -1 for "not reported"; SizeBytes
// uses 0, matching the upstream feeds where a zero size is as good as none.
type Result struct {
	Name         string      `json:"name"`
	PublishedAt  time.Time   `json:"published_at,omitempty"`
	CDPLink      string      `json:"cdp_link,omitempty"`
	DownloadLink string      `json:"download_link,omitempty"`
	Hash         string      `json:"hash,omitempty"`
	SizeBytes    int64       `json:"size_bytes,omitempty"`
	Seeds        int         `json:"seeds"`
	SuperSeeds   int         `json:"super_seeds"`
	Peers        int         `json:"peers"`
	Category     string      `json:"category,omitempty"`
	CommentsLink string      `json:"comments_link,omitempty"`
	ContentType  ContentType `json:"content_type,omitempty"`
	PlayLink     string      `json:"play_link,omitempty"`
	DRMKey       string      `json:"drm_key,omitempty"`
	AssetDate    string      `json:"asset_date,omitempty"`
	Rank         float64     `json:"rank"`
	UID          string      `json:"uid,omitempty"`
}

// resultBuilder accumulates one result with first-writer-wins semantics:
// every setter checks whether its target field is already populated before
// writing, so extractor precedence is enforced by the fields themselves
// rather than by stage ordering alone.
type resultBuilder struct {
	base *url.URL

	name        string
	published   time.Time
	cdpLink     string
	downloadRaw string // download link exactly as found in the feed
	download    string // resolved form
	hash        string
	size        int64
	seeds       int
	superSeeds  int
	peers       int
	rank        float64
	category    string
	comments    string
	contentType ContentType
	playLink    string
	drmKey      string
	assetDate   string
	uid         string

	// trustedPeerSource is set once a dedicated seeds/peers vocabulary has
	// been accepted, suppressing lower-confidence sources for this item.
	trustedPeerSource bool
}

func newResultBuilder(base *url.URL) *resultBuilder {
	return &resultBuilder{
		base:       base,
		seeds:      -1,
		superSeeds: -1,
		peers:      -1,
		rank:       -1,
	}
}

func (b *resultBuilder) setNameHTML(s string) {
	b.name = stripHTML(s)
}

func (b *resultBuilder) setDownload(v string) {
	v = strings.TrimSpace(v)
	if v == "" || b.downloadRaw != "" {
		return
	}
	b.downloadRaw = v
	b.download = b.resolve(v)
}

// resolve makes a link absolute against the feed URL. Non-hierarchical
// schemes (magnet, dht, ...) pass through untouched.
func (b *resultBuilder) resolve(v string) string {
	u, err := url.Parse(v)
	if err != nil {
		return v
	}
	if u.IsAbs() || b.base == nil {
		return v
	}
	return b.base.ResolveReference(u).String()
}

func (b *resultBuilder) setCDP(v string) {
	v = strings.TrimSpace(v)
	if v != "" && b.cdpLink == "" {
		b.cdpLink = b.resolve(v)
	}
}

func (b *resultBuilder) setSizeBytes(n int64) {
	if b.size <= 0 && n > 0 {
		b.size = n
	}
}

func (b *resultBuilder) setSizeText(s string) {
	if n := parseSizeText(s); n > 0 {
		b.setSizeBytes(n)
	}
}

func (b *resultBuilder) setSeedsText(s string) {
	if n, ok := parseCount(s); ok && b.seeds < 0 {
		b.seeds = n
	}
}

func (b *resultBuilder) setSuperSeedsText(s string) {
	if n, ok := parseCount(s); ok && b.superSeeds < 0 {
		b.superSeeds = n
	}
}

func (b *resultBuilder) setPeersText(s string) {
	if n, ok := parseCount(s); ok && b.peers < 0 {
		b.peers = n
	}
}

func (b *resultBuilder) setHash(s string) {
	if b.hash != "" {
		return
	}
	if h := magnet.NormalizeHash(s); h != "" {
		b.hash = h
	}
}

func (b *resultBuilder) setCategoryHTML(s string) {
	if b.category == "" {
		b.category = stripHTML(s)
	}
}

func (b *resultBuilder) setCommentsHTML(s string) {
	if b.comments == "" {
		b.comments = stripHTML(s)
	}
}

func (b *resultBuilder) setContentTypeText(s string) {
	if b.contentType != ContentTypeUnspecified {
		return
	}
	switch lc := strings.ToLower(strings.TrimSpace(s)); {
	case strings.HasPrefix(lc, "video"):
		b.contentType = ContentTypeVideo
	case strings.HasPrefix(lc, "audio"):
		b.contentType = ContentTypeAudio
	case strings.HasPrefix(lc, "games"):
		b.contentType = ContentTypeGame
	}
}

func (b *resultBuilder) setRankText(s string) {
	if b.rank >= 0 {
		return
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && v >= 0 {
		b.rank = v
	}
}

func (b *resultBuilder) setPlayLink(s string) {
	if b.playLink == "" {
		b.playLink = strings.TrimSpace(s)
	}
}

func (b *resultBuilder) setDRMKey(s string) {
	if b.drmKey == "" {
		b.drmKey = strings.TrimSpace(s)
	}
}

func (b *resultBuilder) setAssetDate(s string) {
	if b.assetDate == "" {
		b.assetDate = strings.TrimSpace(s)
	}
}

func (b *resultBuilder) build() Result {
	return Result{
		Name:         b.name,
		PublishedAt:  b.published,
		CDPLink:      b.cdpLink,
		DownloadLink: b.download,
		Hash:         b.hash,
		SizeBytes:    b.size,
		Seeds:        b.seeds,
		SuperSeeds:   b.superSeeds,
		Peers:        b.peers,
		Category:     b.category,
		CommentsLink: b.comments,
		ContentType:  b.contentType,
		PlayLink:     b.playLink,
		DRMKey:       b.drmKey,
		AssetDate:    b.assetDate,
		Rank:         b.rank,
		UID:          b.uid,
	}
}

var (
	sizeTextPat = regexp.MustCompile(`(?i)^([0-9][0-9.,]*)\s*(b|kb|kib|mb|mib|gb|gib|tb|tib)?\b`)
	digitsPat   = regexp.MustCompile(`[0-9]+`)
)

// parseSizeText converts "700 MB", "1.5 GiB", "1234" and friends into bytes.
// Returns 0 when nothing usable is found. Units use 1024 multipliers, the
// convention of the feeds this consumes.
func parseSizeText(s string) int64 {
	s = strings.TrimSpace(stripHTML(s))
	m := sizeTextPat.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	num := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0
	}
	var mult float64 = 1
	switch strings.ToLower(m[2]) {
	case "", "b":
	case "kb", "kib":
		mult = 1 << 10
	case "mb", "mib":
		mult = 1 << 20
	case "gb", "gib":
		mult = 1 << 30
	case "tb", "tib":
		mult = 1 << 40
	}
	return int64(v * mult)
}

// parseCount pulls a non-negative integer out of loosely formatted text
// ("1,234", "5 seeds"). Returns false when no digits are present.
func parseCount(s string) (int, bool) {
	s = strings.ReplaceAll(stripHTML(s), ",", "")
	m := digitsPat.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// stripHTML flattens markup to its text content and decodes entities.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.Write(z.Text())
		}
	}
	return strings.TrimSpace(sb.String())
}
