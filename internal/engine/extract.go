// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/autobrr/feedscout/internal/feedxml"
	"github.com/autobrr/feedscout/internal/magnet"
)

// extensionPrefix marks the indexer extension vocabulary some feeds layer on
// top of RSS. An item carrying any element under this prefix is explicit
// about its download links, so the generic link probe is skipped for it.
const extensionPrefix = "vuze:"

const autoDownloadElement = extensionPrefix + "auto_dl_enabled"

// downloadSchemes are URL schemes that identify a download link outright,
// without probing. Besides magnet these cover the peer-discovery fallback
// schemes some indexers emit.
var downloadSchemes = map[string]struct{}{
	"magnet":  {},
	"dht":     {},
	"azplug":  {},
	"bc":      {},
	"bctp":    {},
	"biglybt": {},
}

var (
	descSeedsPat   = regexp.MustCompile(`(?i)([0-9]+)\s+(seed|leecher)s`)
	descSizePat    = regexp.MustCompile(`(?i)([0-9.]+)\s+(B|KB|KiB|MB|MiB|GB|GiB|TB|TiB)\b`)
	descSeedersPat = regexp.MustCompile(`(?i)seeders`)
)

// ExtractBytes parses a raw feed body and extracts its results. A body that
// cannot be parsed at all is the only hard failure; an empty body yields an
// empty result list. maxResults caps the number of results when positive.
func (e *Engine) ExtractBytes(ctx context.Context, body []byte, maxResults int) ([]Result, error) {
	doc, err := feedxml.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to extract feed results: %w", err)
	}
	return e.Extract(ctx, doc, maxResults), nil
}

// Extract walks a parsed feed document and assembles one Result per item, in
// document order. Items that cannot contribute anything are skipped; they
// never abort the remaining items.
func (e *Engine) Extract(ctx context.Context, doc *feedxml.Document, maxResults int) []Result {
	var results []Result
	for _, ch := range doc.Channels {
		e.detectAutoDownload(ctx, ch)

		for _, it := range ch.Items {
			res, ok := e.extractItem(ctx, doc.Atom, it)
			if !ok {
				continue
			}
			results = append(results, res)
			if maxResults > 0 && len(results) >= maxResults {
				e.logger.Debug().Int("max_results", maxResults).Msg("Result cap reached, stopping extraction")
				return results
			}
		}
	}
	return results
}

// detectAutoDownload resolves and persists the channel's auto-download flag.
// The flag defaults to yes; only an explicit extension element whose value is
// not "true" turns it off.
func (e *Engine) detectAutoDownload(ctx context.Context, ch *feedxml.Channel) {
	resolved := AutoDownloadYes
	for _, c := range ch.Node.Children {
		if strings.EqualFold(c.FullName, autoDownloadElement) {
			if !strings.EqualFold(strings.TrimSpace(c.Value), "true") {
				resolved = AutoDownloadNo
			}
		}
	}
	e.setLocal(ctx, stateKeyAutoDownload, int64(resolved))
}

func (e *Engine) extractItem(ctx context.Context, atom bool, it *feedxml.Item) (res Result, ok bool) {
	// one broken item must not take the rest of the feed down with it
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn().Interface("reason", r).Msg("Skipped malformed feed item")
			ok = false
		}
	}()

	b := newResultBuilder(e.feedURL)
	b.setNameHTML(it.Title())
	b.published = it.Published()
	b.uid = strings.TrimSpace(it.GUID())

	extDialect := usesExtensionDialect(it.Node)

	// stage order matters only for fields several stages can write; the
	// builder's already-set guards keep earlier stages authoritative.
	e.extractStructural(b, atom, it.Node)
	e.extractLinks(ctx, b, extDialect, it.Node)
	e.extractExtensionFields(b, it.Node)
	flatHash, flatMagnet, flatSize, descSize := e.extractFlatAndFreeText(b, it.Node)
	e.extractTorrentTree(b, it.Node)
	flatHash, flatMagnet = e.extractAttrPairs(b, it.Node, flatHash, flatMagnet)

	e.backfill(b, it, flatHash, flatMagnet, flatSize, descSize)

	return b.build(), true
}

func usesExtensionDialect(n *feedxml.Node) bool {
	for _, c := range n.Children {
		if len(c.FullName) >= len(extensionPrefix) &&
			strings.EqualFold(c.FullName[:len(extensionPrefix)], extensionPrefix) {
			return true
		}
	}
	return false
}

// extractStructural handles the well-known RSS/Atom elements: enclosure,
// category, comments, and Atom content sources.
func (e *Engine) extractStructural(b *resultBuilder, atom bool, n *feedxml.Node) {
	for _, c := range n.Children {
		switch strings.ToLower(c.Name) {
		case "enclosure":
			typ, _ := c.Attr("type")
			if !strings.EqualFold(strings.TrimSpace(typ), torrentMIMEType) {
				continue
			}
			if u, found := c.Attr("url"); found {
				b.setDownload(u)
			}
			if l, found := c.Attr("length"); found {
				if v, err := strconv.ParseInt(strings.TrimSpace(l), 10, 64); err == nil {
					b.setSizeBytes(v)
				}
			}

		case "category":
			b.setCategoryHTML(c.Value)

		case "comments":
			b.setCommentsHTML(c.Value)

		case "content":
			if !atom {
				continue
			}
			src, found := c.Attr("src")
			if !found || strings.TrimSpace(src) == "" {
				continue
			}
			typ, _ := c.Attr("type")
			if strings.EqualFold(strings.TrimSpace(typ), torrentMIMEType) ||
				strings.Contains(strings.ToLower(src), ".torrent") {
				b.setDownload(src)
			}
		}
	}
}

// extractLinks interprets link and guid elements. Values that are obviously
// download URLs are taken as such; an ordinary web link is the detail page,
// unless the classifier has established that this feed's links serve
// torrents.
func (e *Engine) extractLinks(ctx context.Context, b *resultBuilder, extDialect bool, n *feedxml.Node) {
	for _, c := range n.Children {
		lc := strings.ToLower(c.Name)
		if lc != "link" && lc != "guid" {
			continue
		}

		v := strings.TrimSpace(c.Value)
		if v == "" {
			// Atom link form: the target lives in the href attribute
			href, _ := c.Attr("href")
			if typ, found := c.Attr("type"); found && strings.EqualFold(strings.TrimSpace(typ), torrentMIMEType) {
				b.setDownload(href)
				continue
			}
			v = strings.TrimSpace(href)
		}
		if v == "" {
			continue
		}

		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" {
			if typ, found := c.Attr("type"); found && strings.EqualFold(strings.TrimSpace(typ), torrentMIMEType) {
				if href, hasHref := c.Attr("href"); hasHref {
					b.setDownload(href)
				}
			}
			continue
		}

		switch {
		case isDownloadURL(u, v):
			b.setDownload(v)
			// an http(s) link doubles as the detail page even when it
			// serves the torrent itself
			if lc == "link" {
				switch strings.ToLower(u.Scheme) {
				case "http", "https":
					b.setCDP(v)
				}
			}
		case lc == "link":
			if !extDialect && b.downloadRaw == "" && e.classifyLink(ctx, b.resolve(v)) {
				b.setDownload(v)
			}
			b.setCDP(v)
		}
	}
}

func isDownloadURL(u *url.URL, raw string) bool {
	if _, found := downloadSchemes[strings.ToLower(u.Scheme)]; found {
		return true
	}
	return strings.HasSuffix(strings.ToLower(raw), ".torrent")
}

// extractExtensionFields applies the extension vocabulary. Seeds and peers
// from this vocabulary are authoritative for the item.
func (e *Engine) extractExtensionFields(b *resultBuilder, n *feedxml.Node) {
	for _, c := range n.Children {
		if len(c.FullName) < len(extensionPrefix) ||
			!strings.EqualFold(c.FullName[:len(extensionPrefix)], extensionPrefix) {
			continue
		}

		switch strings.ToLower(c.Name) {
		case "size":
			b.setSizeText(c.Value)
		case "seeds":
			b.setSeedsText(c.Value)
			b.trustedPeerSource = true
		case "superseeds":
			b.setSuperSeedsText(c.Value)
			b.trustedPeerSource = true
		case "peers":
			b.setPeersText(c.Value)
			b.trustedPeerSource = true
		case "rank":
			b.setRankText(c.Value)
		case "contenttype":
			b.setContentTypeText(c.Value)
		case "downloadurl":
			b.setDownload(c.Value)
		case "playurl":
			b.setPlayLink(c.Value)
		case "drmkey":
			b.setDRMKey(c.Value)
		case "assethash":
			b.setHash(c.Value)
		case "assetdate":
			b.setAssetDate(c.Value)
		}
	}
}

// extractFlatAndFreeText handles the flat alternate vocabulary and, when no
// dedicated seed/peer source has spoken for the item, the free-text
// description heuristics. Flat seed and peer counts only apply as a pair; a
// lone value is discarded so the description scan can still speak for the
// item. Returns the captured backfill candidates: a flat infohash, a flat
// magnet URI, a flat textual size, and a size found in the description.
func (e *Engine) extractFlatAndFreeText(b *resultBuilder, n *feedxml.Node) (flatHash, flatMagnet, flatSize, descSize string) {
	flatSeeds, flatPeers := -1, -1
	for _, c := range n.Children {
		if len(c.FullName) >= len(extensionPrefix) &&
			strings.EqualFold(c.FullName[:len(extensionPrefix)], extensionPrefix) {
			continue
		}

		switch strings.ToLower(c.Name) {
		case "seeds", "seeders":
			if v, parsed := parseCount(c.Value); parsed && flatSeeds < 0 {
				flatSeeds = v
			}
		case "peers", "leechers":
			if v, parsed := parseCount(c.Value); parsed && flatPeers < 0 {
				flatPeers = v
			}
		case "size":
			if flatSize == "" {
				flatSize = strings.TrimSpace(c.Value)
			}
		case "infohash", "info_hash":
			if flatHash == "" {
				flatHash = strings.TrimSpace(c.Value)
			}
		case "magneturi":
			if flatMagnet == "" {
				flatMagnet = strings.TrimSpace(c.Value)
			}
		}
	}

	if !b.trustedPeerSource && flatSeeds >= 0 && flatPeers >= 0 {
		b.seeds, b.peers = flatSeeds, flatPeers
		b.trustedPeerSource = true
	}

	if b.trustedPeerSource {
		return flatHash, flatMagnet, flatSize, ""
	}

	desc := n.Child("description")
	if desc == nil {
		return flatHash, flatMagnet, flatSize, ""
	}
	text := stripHTML(desc.Value)
	// normalise plural quirks so one pattern covers "5 seed(s)" and "5 seeders"
	text = strings.NewReplacer("(s)", "s", "(S)", "s").Replace(text)
	text = descSeedersPat.ReplaceAllString(text, "seeds")

	for _, m := range descSeedsPat.FindAllStringSubmatch(text, -1) {
		switch strings.ToLower(m[2]) {
		case "seed":
			b.setSeedsText(m[1])
		case "leecher":
			b.setPeersText(m[1])
		}
	}

	if m := descSizePat.FindStringSubmatch(text); m != nil {
		descSize = m[1] + " " + m[2]
	}
	return flatHash, flatMagnet, flatSize, descSize
}

// extractTorrentTree applies a nested torrent sub-structure: size and magnet
// overrides, infohash, and aggregated tracker statistics. The tracker entry
// with the highest seeds+peers sum wins, and supplies both counts together.
func (e *Engine) extractTorrentTree(b *resultBuilder, n *feedxml.Node) {
	tor := n.Child("torrent")
	if tor == nil {
		return
	}

	if b.size <= 0 {
		if cl := firstChild(tor, "content_length", "contentlength"); cl != nil {
			if v, err := strconv.ParseInt(strings.TrimSpace(cl.Value), 10, 64); err == nil {
				b.setSizeBytes(v)
			}
		}
	}

	if b.downloadRaw == "" {
		if m := firstChild(tor, "magnet_uri", "magneturi"); m != nil {
			b.setDownload(m.Value)
		}
	}

	if ih := firstChild(tor, "info_hash", "infohash"); ih != nil {
		hash := strings.TrimSpace(ih.Value)
		if hash != "" {
			b.setHash(hash)
			if b.downloadRaw == "" {
				b.setDownload(magnet.FromHash(hash))
			}
		}
	}

	if !b.trustedPeerSource {
		if seeds, peers, found := bestTracker(tor.Child("trackers")); found {
			b.seeds, b.peers = seeds, peers
			b.trustedPeerSource = true
		}
	}
}

// bestTracker walks the groups-of-trackers structure and returns the
// seed/peer pair of the entry with the highest combined count.
func bestTracker(trackers *feedxml.Node) (seeds, peers int, found bool) {
	if trackers == nil {
		return 0, 0, false
	}
	best := -1
	for _, group := range trackers.Children {
		for _, tr := range group.Children {
			s := trackerStat(tr, "seeds")
			p := trackerStat(tr, "peers")
			if s < 0 && p < 0 {
				continue
			}
			if s < 0 {
				s = 0
			}
			if p < 0 {
				p = 0
			}
			if s+p > best {
				best = s + p
				seeds, peers, found = s, p, true
			}
		}
	}
	return seeds, peers, found
}

// trackerStat reads a tracker statistic from an attribute or child element.
// Returns -1 when the tracker does not report it.
func trackerStat(tr *feedxml.Node, name string) int {
	if v, found := tr.Attr(name); found {
		if n, parsed := parseCount(v); parsed {
			return n
		}
		return -1
	}
	if c := tr.Child(name); c != nil {
		if n, parsed := parseCount(c.Value); parsed {
			return n
		}
	}
	return -1
}

// extractAttrPairs handles generic <attr name="..." value="..."/> children.
// Hash and magnet attr values only top up the flat candidates, so the flat
// elements keep precedence when an item carries both forms.
func (e *Engine) extractAttrPairs(b *resultBuilder, n *feedxml.Node, flatHash, flatMagnet string) (string, string) {
	for _, c := range n.Children {
		if !strings.EqualFold(c.Name, "attr") {
			continue
		}
		name, foundName := c.Attr("name")
		value, foundValue := c.Attr("value")
		if !foundName || !foundValue {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "seeders":
			if !b.trustedPeerSource {
				b.setSeedsText(value)
			}
		case "peers":
			if !b.trustedPeerSource {
				b.setPeersText(value)
			}
		case "infohash":
			if flatHash == "" {
				flatHash = strings.TrimSpace(value)
			}
		case "magneturl":
			if flatMagnet == "" {
				flatMagnet = strings.TrimSpace(value)
			}
		}
	}
	return flatHash, flatMagnet
}

// backfill applies the cross-field recovery rules once all extractors have
// run: captured flat values, a magnet hidden in the display name, the detail
// page as a last-resort download link, a guid-sourced detail page, the flat
// and free-text size candidates, and finally hash recovery from the download
// link.
func (e *Engine) backfill(b *resultBuilder, it *feedxml.Item, flatHash, flatMagnet, flatSize, descSize string) {
	if b.hash == "" && flatHash != "" {
		b.setHash(flatHash)
	}
	if b.downloadRaw == "" && flatMagnet != "" {
		b.setDownload(flatMagnet)
	}
	if b.downloadRaw == "" {
		if m := magnet.ParseText(b.name); m != "" {
			b.setDownload(m)
		}
	}
	// guessing the detail page doubles as a download link is unreliable, but
	// it is the established last resort for feeds that carry nothing better
	if b.downloadRaw == "" && b.cdpLink != "" {
		b.setDownload(b.cdpLink)
	}

	if b.cdpLink == "" || b.cdpLink == b.download {
		guid := strings.TrimSpace(it.GUID())
		if u, err := url.Parse(guid); err == nil {
			switch strings.ToLower(u.Scheme) {
			case "http", "https":
				b.cdpLink = guid
			}
		}
	}

	if b.size <= 0 && flatSize != "" {
		b.setSizeText(flatSize)
	}
	if b.size <= 0 && descSize != "" {
		b.setSizeText(descSize)
	}

	if b.hash == "" {
		for _, candidate := range []string{b.download, b.downloadRaw} {
			if candidate == "" {
				continue
			}
			m := magnet.ParseText(candidate)
			if m == "" {
				continue
			}
			if h := magnet.HashFrom(m); h != "" {
				b.hash = h
				break
			}
		}
	}
}

func firstChild(n *feedxml.Node, names ...string) *feedxml.Node {
	for _, name := range names {
		if c := n.Child(name); c != nil {
			return c
		}
	}
	return nil
}
