// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package feedxml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:vuze="http://www.vuze.com/feeds/module/1.0">
  <channel>
    <title>Test Channel</title>
    <vuze:auto_dl_enabled>true</vuze:auto_dl_enabled>
    <item>
      <title>First &amp; Finest</title>
      <link>http://example.org/items/1</link>
      <guid isPermaLink="true">http://example.org/items/1</guid>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
      <vuze:seeds>42</vuze:seeds>
      <enclosure url="http://example.org/items/1.torrent" type="application/x-bittorrent" length="1000"/>
    </item>
    <item>
      <title>Second</title>
    </item>
  </channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Test</title>
  <entry>
    <title>Entry One</title>
    <id>urn:uuid:1225c695-cfb8-4ebb-aaaa-80da344efa6a</id>
    <link href="http://example.org/entries/1"/>
    <updated>2003-12-13T18:30:02Z</updated>
  </entry>
</feed>`

func TestParse_RSS(t *testing.T) {
	doc, err := Parse([]byte(rssFeed))
	require.NoError(t, err)
	require.Len(t, doc.Channels, 1)
	assert.False(t, doc.Atom)

	ch := doc.Channels[0]
	require.Len(t, ch.Items, 2)

	item := ch.Items[0]
	assert.Equal(t, "First & Finest", item.Title())
	assert.Equal(t, "http://example.org/items/1", item.Link())
	assert.Equal(t, "http://example.org/items/1", item.GUID())

	want := time.Date(2006, time.January, 2, 15, 4, 5, 0, time.FixedZone("", -7*3600))
	assert.True(t, item.Published().Equal(want), "got %v", item.Published())
}

func TestParse_NamespacePrefixes(t *testing.T) {
	doc, err := Parse([]byte(rssFeed))
	require.NoError(t, err)

	ch := doc.Channels[0]
	var found *Node
	for _, c := range ch.Node.Children {
		if c.FullName == "vuze:auto_dl_enabled" {
			found = c
		}
	}
	require.NotNil(t, found, "expected channel-level extension element")
	assert.Equal(t, "auto_dl_enabled", found.Name)
	assert.Equal(t, "true", found.Value)

	seeds := ch.Items[0].Node.Child("seeds")
	require.NotNil(t, seeds)
	assert.Equal(t, "vuze:seeds", seeds.FullName)
	assert.Equal(t, "42", seeds.Value)
}

func TestParse_Attributes(t *testing.T) {
	doc, err := Parse([]byte(rssFeed))
	require.NoError(t, err)

	enc := doc.Channels[0].Items[0].Node.Child("enclosure")
	require.NotNil(t, enc)

	url, ok := enc.Attr("URL")
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/items/1.torrent", url)

	length, ok := enc.Attr("length")
	assert.True(t, ok)
	assert.Equal(t, "1000", length)

	_, ok = enc.Attr("missing")
	assert.False(t, ok)
}

func TestParse_Atom(t *testing.T) {
	doc, err := Parse([]byte(atomFeed))
	require.NoError(t, err)
	assert.True(t, doc.Atom)
	require.Len(t, doc.Channels, 1)
	require.Len(t, doc.Channels[0].Items, 1)

	entry := doc.Channels[0].Items[0]
	assert.Equal(t, "Entry One", entry.Title())
	assert.Equal(t, "http://example.org/entries/1", entry.Link())
	assert.Equal(t, "urn:uuid:1225c695-cfb8-4ebb-aaaa-80da344efa6a", entry.GUID())
	assert.Equal(t, 2003, entry.Published().Year())
}

func TestParse_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "   \n\t "} {
		doc, err := Parse([]byte(body))
		require.NoError(t, err)
		assert.Empty(t, doc.Channels)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "plain text", body: "this is not a feed"},
		{name: "wrong root", body: "<html><body>nope</body></html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParse_BareChannel(t *testing.T) {
	doc, err := Parse([]byte(`<channel><item><title>x</title></item></channel>`))
	require.NoError(t, err)
	require.Len(t, doc.Channels, 1)
	assert.Len(t, doc.Channels[0].Items, 1)
}

func TestItem_PublishedFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		zero bool
	}{
		{
			name: "rfc1123z",
			body: `<channel><item><pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate></item></channel>`,
		},
		{
			name: "rfc3339",
			body: `<channel><item><pubDate>2006-01-02T15:04:05Z</pubDate></item></channel>`,
		},
		{
			name: "unparseable",
			body: `<channel><item><pubDate>sometime yesterday</pubDate></item></channel>`,
			zero: true,
		},
		{
			name: "absent",
			body: `<channel><item><title>x</title></item></channel>`,
			zero: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.body))
			require.NoError(t, err)
			got := doc.Channels[0].Items[0].Published()
			assert.Equal(t, tt.zero, got.IsZero())
		})
	}
}
