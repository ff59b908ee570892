// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"
)

// feedShape identifies the payload format of an indexer response.
type feedShape int

const (
	feedShapeUnknown feedShape = iota
	feedShapeXML
	feedShapeJSON
)

// detectFeedShape sniffs the first non-whitespace byte of a payload.
func detectFeedShape(payload []byte) feedShape {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) == 0 {
		return feedShapeUnknown
	}
	switch trimmed[0] {
	case '<':
		return feedShapeXML
	case '{', '[':
		return feedShapeJSON
	}
	return feedShapeUnknown
}

// ParseFeed converts an indexer response payload into raw items, dispatching
// on the detected shape once so the rest of the pipeline stays shape-agnostic.
func ParseFeed(payload []byte) ([]RawItem, error) {
	switch detectFeedShape(payload) {
	case feedShapeXML:
		return parseXMLFeed(payload)
	case feedShapeJSON:
		return parseJSONFeed(payload)
	default:
		return nil, fmt.Errorf("unrecognized feed payload")
	}
}

// xmlFeed mirrors the syndication (RSS/Torznab) layout of XML-shaped indexers.
type xmlFeed struct {
	Channel struct {
		Items []xmlItem `xml:"item"`
	} `xml:"channel"`
}

type xmlItem struct {
	Title     string `xml:"title"`
	Link      string `xml:"link"`
	GUID      string `xml:"guid"`
	Size      string `xml:"size"`
	PubDate   string `xml:"pubDate"`
	Enclosure struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
	Attrs []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"attr"`
}

func parseXMLFeed(payload []byte) ([]RawItem, error) {
	var feed xmlFeed
	if err := xml.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse xml feed: %w", err)
	}

	items := make([]RawItem, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		link := item.Link
		if link == "" {
			link = item.Enclosure.URL
		}

		raw := RawItem{
			Title:   item.Title,
			Link:    link,
			Size:    item.Size,
			PubDate: item.PubDate,
			GUID:    item.GUID,
		}
		for _, attr := range item.Attrs {
			raw.Attributes = append(raw.Attributes, RawAttr{Name: attr.Name, Value: attr.Value})
		}
		items = append(items, raw)
	}

	return items, nil
}

// jsonFeed mirrors the JSON rendering of the same tag vocabulary. Both
// {"items": [...]} envelopes and bare arrays occur in the wild.
type jsonFeed struct {
	Items []jsonItem `json:"items"`
}

type jsonItem struct {
	Title      string          `json:"title"`
	Link       string          `json:"link"`
	Size       json.RawMessage `json:"size"`
	PubDate    string          `json:"pubDate"`
	GUID       string          `json:"guid"`
	Attributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"attributes"`
}

func parseJSONFeed(payload []byte) ([]RawItem, error) {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")

	var rawItems []jsonItem
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(payload, &rawItems); err != nil {
			return nil, fmt.Errorf("failed to parse json feed: %w", err)
		}
	} else {
		var feed jsonFeed
		if err := json.Unmarshal(payload, &feed); err != nil {
			return nil, fmt.Errorf("failed to parse json feed: %w", err)
		}
		rawItems = feed.Items
	}

	items := make([]RawItem, 0, len(rawItems))
	for _, item := range rawItems {
		raw := RawItem{
			Title:   item.Title,
			Link:    item.Link,
			Size:    decodeJSONSize(item.Size),
			PubDate: item.PubDate,
			GUID:    item.GUID,
		}
		for _, attr := range item.Attributes {
			raw.Attributes = append(raw.Attributes, RawAttr{Name: attr.Name, Value: attr.Value})
		}
		items = append(items, raw)
	}

	return items, nil
}

// decodeJSONSize tolerates both numeric and string size fields.
func decodeJSONSize(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return strconv.FormatInt(asNumber, 10)
	}
	return ""
}

// pubDate layouts seen across indexers, in order of likelihood.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
}

// Normalize converts one raw feed entry into a candidate. Items missing a
// title or download locator are rejected; malformed entries are routine in
// heterogeneous feeds, so rejection is not an error.
func Normalize(item RawItem, sourceName string, now time.Time) (Candidate, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return Candidate{}, false
	}

	candidate := Candidate{
		Title:       title,
		DownloadURL: link,
		SourceName:  sourceName,
		GUID:        item.GUID,
		Quality:     Quality{Format: UnknownFormat},
	}

	if size, err := strconv.ParseInt(strings.TrimSpace(item.Size), 10, 64); err == nil && size >= 0 {
		candidate.SizeBytes = size
	}

	if pubDate := strings.TrimSpace(item.PubDate); pubDate != "" {
		for _, layout := range pubDateLayouts {
			if t, err := time.Parse(layout, pubDate); err == nil {
				candidate.PublishDate = t
				break
			}
		}
	}
	// Unparseable or absent publish dates leave AgeDays at 0 ("brand new"),
	// biasing toward not penalizing unknown-age items.
	if !candidate.PublishDate.IsZero() {
		if age := int(now.Sub(candidate.PublishDate).Hours() / 24); age > 0 {
			candidate.AgeDays = age
		}
	}

	for _, attr := range item.Attributes {
		name := strings.ToLower(strings.TrimSpace(attr.Name))
		value := strings.TrimSpace(attr.Value)
		if name == "" || value == "" {
			continue
		}
		switch name {
		case "format", "codec":
			candidate.Quality.Format = strings.ToUpper(value)
		case "bitrate", "bitratekbps":
			if kbps, err := strconv.Atoi(value); err == nil && kbps > 0 {
				candidate.Quality.BitrateKbps = &kbps
			}
		}
	}

	// Release-name metadata is informational only; quality attributes above
	// remain the sole source of Quality.Format.
	release := rls.ParseString(title)
	candidate.Group = release.Group
	candidate.Source = release.Source

	return candidate, true
}

// NormalizeAll runs Normalize over a feed, dropping rejected items. A bad
// sibling never aborts the rest of the feed.
func NormalizeAll(items []RawItem, sourceName string, now time.Time) []Candidate {
	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		candidate, ok := Normalize(item, sourceName, now)
		if !ok {
			log.Debug().
				Str("indexer", sourceName).
				Str("title", item.Title).
				Msg("Dropping feed item missing title or download locator")
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}
