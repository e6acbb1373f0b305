// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// newTestEngine builds an engine whose classification probes always fail,
// so no test ever reaches the network.
func newTestEngine(t *testing.T, feedURL string) *Engine {
	t.Helper()
	return New(Options{
		ID:      1,
		FeedURL: feedURL,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("no network in tests")
		})},
	})
}

func extractOne(t *testing.T, item string) Result {
	t.Helper()
	feed := `<rss version="2.0" xmlns:vuze="http://www.vuze.com/feeds/module/1.0"><channel><item>` +
		item + `</item></channel></rss>`
	results, err := newTestEngine(t, "http://feed.example.org/rss").ExtractBytes(context.Background(), []byte(feed), 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestExtract_EndToEnd(t *testing.T) {
	feed := `<rss version="2.0"><channel>
		<item>
			<title>Item A</title>
			<enclosure type="application/x-bittorrent" url="http://x/a.torrent" length="1000"/>
			<category>Movies</category>
		</item>
		<item>
			<title>Item B</title>
			<guid>magnet:?xt=urn:btih:ABCDEF</guid>
		</item>
	</channel></rss>`

	results, err := newTestEngine(t, "http://x/rss").ExtractBytes(context.Background(), []byte(feed), 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	a := results[0]
	assert.Equal(t, "Item A", a.Name)
	assert.Equal(t, "http://x/a.torrent", a.DownloadLink)
	assert.Equal(t, int64(1000), a.SizeBytes)
	assert.Equal(t, "Movies", a.Category)

	b := results[1]
	assert.Equal(t, "magnet:?xt=urn:btih:ABCDEF", b.DownloadLink)
	assert.Equal(t, "abcdef", b.Hash)
	assert.Empty(t, b.CDPLink)
}

func TestExtract_ExtensionSizeBeatsDescription(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<vuze:size>700 MB</vuze:size>
		<description>great release, 1.5 GB, 10 seeders</description>`)

	assert.Equal(t, int64(700)<<20, res.SizeBytes)
}

func TestExtract_ExtensionVocabulary(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<vuze:seeds>12</vuze:seeds>
		<vuze:superseeds>3</vuze:superseeds>
		<vuze:peers>44</vuze:peers>
		<vuze:rank>0.75</vuze:rank>
		<vuze:contenttype>Video/HD</vuze:contenttype>
		<vuze:downloadurl>http://x/dl.torrent</vuze:downloadurl>
		<vuze:playurl>http://x/play</vuze:playurl>
		<vuze:drmkey>key123</vuze:drmkey>
		<vuze:assetdate>2024-01-01</vuze:assetdate>`)

	assert.Equal(t, 12, res.Seeds)
	assert.Equal(t, 3, res.SuperSeeds)
	assert.Equal(t, 44, res.Peers)
	assert.Equal(t, 0.75, res.Rank)
	assert.Equal(t, ContentTypeVideo, res.ContentType)
	assert.Equal(t, "http://x/dl.torrent", res.DownloadLink)
	assert.Equal(t, "http://x/play", res.PlayLink)
	assert.Equal(t, "key123", res.DRMKey)
	assert.Equal(t, "2024-01-01", res.AssetDate)
}

func TestExtract_ExtensionDialectSkipsLinkProbe(t *testing.T) {
	var probes int
	eng := New(Options{
		ID:      7,
		FeedURL: "http://x/rss",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			probes++
			return nil, fmt.Errorf("probe failure")
		})},
	})

	feed := `<rss version="2.0" xmlns:vuze="http://www.vuze.com/feeds/module/1.0"><channel><item>
		<title>Release</title>
		<link>http://x/details/1</link>
		<vuze:seeds>5</vuze:seeds>
	</item></channel></rss>`

	results, err := eng.ExtractBytes(context.Background(), []byte(feed), 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Zero(t, probes, "extension dialect items must not trigger link probes")
	assert.Equal(t, "http://x/details/1", results[0].CDPLink)
}

func TestExtract_TrackerAggregationTieBreak(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<torrent>
			<trackers>
				<group><tracker seeds="5" peers="1"/><tracker seeds="10" peers="2"/></group>
				<group><tracker seeds="3" peers="9"/></group>
			</trackers>
		</torrent>`)

	assert.Equal(t, 10, res.Seeds)
	assert.Equal(t, 2, res.Peers)
}

func TestExtract_TrackerAggregationSkippedWhenTrusted(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<vuze:seeds>1</vuze:seeds>
		<torrent>
			<trackers>
				<group><tracker seeds="100" peers="50"/></group>
			</trackers>
		</torrent>`)

	assert.Equal(t, 1, res.Seeds)
	assert.Equal(t, -1, res.Peers)
}

func TestExtract_TorrentSubtree(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<torrent>
			<content_length>2048</content_length>
			<info_hash>abcdef0123456789abcdef0123456789abcdef01</info_hash>
		</torrent>`)

	assert.Equal(t, int64(2048), res.SizeBytes)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", res.Hash)
	assert.Contains(t, res.DownloadLink, "urn:btih:abcdef0123456789abcdef0123456789abcdef01")
}

func TestExtract_TorrentSizeBeatsFlatSize(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<size>1000</size>
		<torrent><content_length>2048</content_length></torrent>`)

	assert.Equal(t, int64(2048), res.SizeBytes)
}

func TestExtract_FlatSizeFallback(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<size>700 MB</size>`)

	assert.Equal(t, int64(700)<<20, res.SizeBytes)
}

func TestExtract_UnparseableSeedsDegradeGracefully(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<seeds>N/A</seeds>
		<category>Games</category>`)

	assert.Equal(t, -1, res.Seeds)
	assert.Equal(t, "Games", res.Category)
}

func TestExtract_ExtensionSeedsSuppressFlatPeers(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<vuze:seeds>5</vuze:seeds>
		<leechers>3</leechers>`)

	assert.Equal(t, 5, res.Seeds)
	assert.Equal(t, -1, res.Peers, "a lone flat count must not mix into the extension source")
}

func TestExtract_LoneFlatSeedsFallThroughToDescription(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<seeds>7</seeds>
		<description>2 seeds and 9 leechers</description>`)

	assert.Equal(t, 2, res.Seeds)
	assert.Equal(t, 9, res.Peers)
}

func TestExtract_FlatVocabulary(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<seeders>7</seeders>
		<leechers>9</leechers>
		<infohash>ABCDEF0123456789ABCDEF0123456789ABCDEF01</infohash>`)

	assert.Equal(t, 7, res.Seeds)
	assert.Equal(t, 9, res.Peers)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", res.Hash)
}

func TestExtract_MagnetURIBackfill(t *testing.T) {
	magnet := "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01"
	res := extractOne(t, `
		<title>Release</title>
		<magneturi>`+magnet+`</magneturi>`)

	assert.Equal(t, magnet, res.DownloadLink)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", res.Hash)
}

func TestExtract_DescriptionFreeText(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<description>mirror of upstream: 5 seeders and 12 leechers, about 700 MB total</description>`)

	assert.Equal(t, 5, res.Seeds)
	assert.Equal(t, 12, res.Peers)
	assert.Equal(t, int64(700)<<20, res.SizeBytes)
}

func TestExtract_DescriptionPluralSuffix(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<description>3 seed(s), 8 leecher(s)</description>`)

	assert.Equal(t, 3, res.Seeds)
	assert.Equal(t, 8, res.Peers)
}

func TestExtract_GuidBackfillsDetailPage(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<link>http://site/page/1</link>
		<guid>http://site/canonical/1</guid>`)

	// the failing probe classifies the link as ordinary, so it becomes the
	// detail page, then doubles as the last-resort download link, and the
	// guid takes over as the detail page
	assert.Equal(t, "http://site/page/1", res.DownloadLink)
	assert.Equal(t, "http://site/canonical/1", res.CDPLink)
}

func TestExtract_MagnetFromTitle(t *testing.T) {
	res := extractOne(t, `
		<title>abcdef0123456789abcdef0123456789abcdef01</title>`)

	assert.Contains(t, res.DownloadLink, "urn:btih:abcdef0123456789abcdef0123456789abcdef01")
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", res.Hash)
}

func TestExtract_TorrentLinkSuffix(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<link>http://x/files/release.torrent</link>`)

	assert.Equal(t, "http://x/files/release.torrent", res.DownloadLink)
	assert.Equal(t, "http://x/files/release.torrent", res.CDPLink,
		"an http link that serves the torrent is still the detail page")
}

func TestExtract_AtomContentSrc(t *testing.T) {
	feed := `<feed xmlns="http://www.w3.org/2005/Atom">
		<entry>
			<title>Entry</title>
			<content type="application/x-bittorrent" src="http://x/e.torrent"/>
		</entry>
	</feed>`

	results, err := newTestEngine(t, "http://x/atom").ExtractBytes(context.Background(), []byte(feed), 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "http://x/e.torrent", results[0].DownloadLink)
}

func TestExtract_AtomLinkAlternateForm(t *testing.T) {
	feed := `<feed xmlns="http://www.w3.org/2005/Atom">
		<entry>
			<title>Entry</title>
			<link type="application/x-bittorrent" href="http://x/alt.torrent"/>
		</entry>
	</feed>`

	results, err := newTestEngine(t, "http://x/atom").ExtractBytes(context.Background(), []byte(feed), 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "http://x/alt.torrent", results[0].DownloadLink)
}

func TestExtract_AttrPairs(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<attr name="seeders" value="15"/>
		<attr name="peers" value="4"/>
		<attr name="infohash" value="abcdef0123456789abcdef0123456789abcdef01"/>`)

	assert.Equal(t, 15, res.Seeds)
	assert.Equal(t, 4, res.Peers)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", res.Hash)
}

func TestExtract_FlatHashBeatsAttrHash(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<infohash>abcdef0123456789abcdef0123456789abcdef01</infohash>
		<attr name="infohash" value="ffffffffffffffffffffffffffffffffffffffff"/>`)

	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", res.Hash)
}

func TestExtract_RelativeLinksResolve(t *testing.T) {
	res := extractOne(t, `
		<title>Release</title>
		<enclosure type="application/x-bittorrent" url="/dl/1.torrent"/>`)

	assert.Equal(t, "http://feed.example.org/dl/1.torrent", res.DownloadLink)
}

func TestExtract_AbsoluteCap(t *testing.T) {
	feed := `<rss version="2.0"><channel>`
	for i := 1; i <= 5; i++ {
		feed += fmt.Sprintf(`<item><title>Item %d</title></item>`, i)
	}
	feed += `</channel></rss>`

	results, err := newTestEngine(t, "http://x/rss").ExtractBytes(context.Background(), []byte(feed), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("Item %d", i+1), res.Name)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	feed := []byte(`<rss version="2.0"><channel>
		<item>
			<title>Stable</title>
			<enclosure type="application/x-bittorrent" url="http://x/s.torrent" length="512"/>
			<description>2 seeders, 1 leechers</description>
		</item>
	</channel></rss>`)

	first, err := newTestEngine(t, "http://x/rss").ExtractBytes(context.Background(), feed, 0)
	require.NoError(t, err)
	second, err := newTestEngine(t, "http://x/rss").ExtractBytes(context.Background(), feed, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtract_BrokenFeedIsFatal(t *testing.T) {
	_, err := newTestEngine(t, "http://x/rss").ExtractBytes(context.Background(), []byte("not a feed at all"), 0)
	assert.Error(t, err)
}

func TestExtract_EmptyBody(t *testing.T) {
	results, err := newTestEngine(t, "http://x/rss").ExtractBytes(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDetectAutoDownload(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    AutoDownload
	}{
		{
			name:    "absent defaults to yes",
			channel: `<title>c</title>`,
			want:    AutoDownloadYes,
		},
		{
			name:    "explicit true",
			channel: `<vuze:auto_dl_enabled>true</vuze:auto_dl_enabled>`,
			want:    AutoDownloadYes,
		},
		{
			name:    "explicit false",
			channel: `<vuze:auto_dl_enabled>false</vuze:auto_dl_enabled>`,
			want:    AutoDownloadNo,
		},
		{
			name:    "garbage value means no",
			channel: `<vuze:auto_dl_enabled>maybe</vuze:auto_dl_enabled>`,
			want:    AutoDownloadNo,
		},
		{
			name:    "any false flag wins",
			channel: `<vuze:auto_dl_enabled>true</vuze:auto_dl_enabled><vuze:auto_dl_enabled>false</vuze:auto_dl_enabled>`,
			want:    AutoDownloadNo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t, "http://x/rss")
			feed := `<rss version="2.0" xmlns:vuze="http://www.vuze.com/feeds/module/1.0"><channel>` +
				tt.channel + `</channel></rss>`
			_, err := eng.ExtractBytes(context.Background(), []byte(feed), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, eng.AutoDownloadSupported(context.Background()))
		})
	}
}
