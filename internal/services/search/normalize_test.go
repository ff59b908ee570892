// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXMLFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <item>
      <title>Artist - Album [FLAC]</title>
      <link>https://indexer.example/dl/1</link>
      <guid>abc-1</guid>
      <size>367001600</size>
      <pubDate>Mon, 24 Aug 2026 10:00:00 +0000</pubDate>
      <attr name="format" value="flac" />
      <attr name="bitrate" value="1411" />
    </item>
    <item>
      <title></title>
      <link>https://indexer.example/dl/2</link>
    </item>
    <item>
      <title>Artist - Album (MP3)</title>
      <enclosure url="https://indexer.example/dl/3" />
      <size>not-a-number</size>
      <pubDate>garbage date</pubDate>
      <attr name="codec" value="MP3" />
    </item>
  </channel>
</rss>`

const sampleJSONFeed = `{
  "items": [
    {
      "title": "Artist - Album [FLAC]",
      "link": "https://indexer.example/dl/1",
      "guid": "abc-1",
      "size": 367001600,
      "pubDate": "Mon, 24 Aug 2026 10:00:00 +0000",
      "attributes": [
        {"name": "format", "value": "FLAC"},
        {"name": "bitrate", "value": "1411"}
      ]
    },
    {
      "title": "Artist - Album (MP3)",
      "link": "",
      "size": "12345"
    }
  ]
}`

func TestDetectFeedShape(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    feedShape
	}{
		{name: "xml", payload: "<?xml version=\"1.0\"?><rss/>", want: feedShapeXML},
		{name: "xml with leading whitespace", payload: "\n\t <rss/>", want: feedShapeXML},
		{name: "json object", payload: `{"items": []}`, want: feedShapeJSON},
		{name: "json array", payload: `[{"title": "x"}]`, want: feedShapeJSON},
		{name: "empty", payload: "", want: feedShapeUnknown},
		{name: "plain text", payload: "service unavailable", want: feedShapeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectFeedShape([]byte(tt.payload)))
		})
	}
}

func TestParseXMLFeed(t *testing.T) {
	items, err := parseXMLFeed([]byte(sampleXMLFeed))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Artist - Album [FLAC]", items[0].Title)
	assert.Equal(t, "https://indexer.example/dl/1", items[0].Link)
	assert.Equal(t, "367001600", items[0].Size)
	require.Len(t, items[0].Attributes, 2)
	assert.Equal(t, "format", items[0].Attributes[0].Name)
	assert.Equal(t, "flac", items[0].Attributes[0].Value)

	// enclosure URL stands in for a missing link element
	assert.Equal(t, "https://indexer.example/dl/3", items[2].Link)
}

func TestParseJSONFeed(t *testing.T) {
	items, err := parseJSONFeed([]byte(sampleJSONFeed))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "367001600", items[0].Size)
	assert.Equal(t, "12345", items[1].Size)
}

func TestParseJSONFeedBareArray(t *testing.T) {
	items, err := parseJSONFeed([]byte(`[{"title": "A", "link": "https://x/1"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].Title)
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	_, err := ParseFeed([]byte("totally not a feed"))
	assert.Error(t, err)

	_, err = ParseFeed([]byte(`{"items": [`))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	t.Run("full item", func(t *testing.T) {
		candidate, ok := Normalize(RawItem{
			Title:   "Artist - Album [FLAC]",
			Link:    "https://indexer.example/dl/1",
			Size:    "367001600",
			PubDate: "Mon, 24 Aug 2026 10:00:00 +0000",
			GUID:    "abc-1",
			Attributes: []RawAttr{
				{Name: "format", Value: "flac"},
				{Name: "bitrate", Value: "1411"},
			},
		}, "music-hub", now)
		require.True(t, ok)

		assert.Equal(t, "Artist - Album [FLAC]", candidate.Title)
		assert.Equal(t, "https://indexer.example/dl/1", candidate.DownloadURL)
		assert.Equal(t, "music-hub", candidate.SourceName)
		assert.Equal(t, int64(367001600), candidate.SizeBytes)
		assert.Equal(t, 2, candidate.AgeDays)
		assert.Equal(t, "FLAC", candidate.Quality.Format)
		require.NotNil(t, candidate.Quality.BitrateKbps)
		assert.Equal(t, 1411, *candidate.Quality.BitrateKbps)
	})

	t.Run("missing title rejected", func(t *testing.T) {
		_, ok := Normalize(RawItem{Link: "https://x/1"}, "src", now)
		assert.False(t, ok)
	})

	t.Run("missing link rejected", func(t *testing.T) {
		_, ok := Normalize(RawItem{Title: "Album"}, "src", now)
		assert.False(t, ok)
	})

	t.Run("absent metadata defaults", func(t *testing.T) {
		candidate, ok := Normalize(RawItem{
			Title:   "Album",
			Link:    "https://x/1",
			Size:    "garbage",
			PubDate: "garbage",
		}, "src", now)
		require.True(t, ok)

		assert.Equal(t, int64(0), candidate.SizeBytes)
		assert.Equal(t, 0, candidate.AgeDays)
		assert.Equal(t, UnknownFormat, candidate.Quality.Format)
		assert.Nil(t, candidate.Quality.BitrateKbps)
	})

	t.Run("age floors to whole days", func(t *testing.T) {
		// 47 hours old is still 1 day, not 2
		candidate, ok := Normalize(RawItem{
			Title:   "Album",
			Link:    "https://x/1",
			PubDate: now.Add(-47 * time.Hour).Format(time.RFC1123Z),
		}, "src", now)
		require.True(t, ok)
		assert.Equal(t, 1, candidate.AgeDays)
	})
}

func TestNormalizeAllSkipsBadSiblings(t *testing.T) {
	now := time.Now()
	candidates := NormalizeAll([]RawItem{
		{Title: "Good", Link: "https://x/1"},
		{Title: "", Link: "https://x/2"},
		{Title: "Also good", Link: "https://x/3"},
	}, "src", now)

	require.Len(t, candidates, 2)
	assert.Equal(t, "Good", candidates[0].Title)
	assert.Equal(t, "Also good", candidates[1].Title)
}
