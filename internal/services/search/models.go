// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import "time"

// UnknownFormat is assigned when no quality attribute identifies the codec.
const UnknownFormat = "UNKNOWN"

// Quality carries the parsed quality attributes of a candidate. BitrateKbps
// is nil when the feed did not advertise one; absence is never treated as
// zero.
type Quality struct {
	Format      string `json:"format"`
	BitrateKbps *int   `json:"bitrateKbps,omitempty"`
}

// Candidate is one normalized search result describing a single downloadable
// release. Candidates are ephemeral: built per search, never persisted.
//
// Title, DownloadURL and SourceName are identity fields; the filter and
// ranker never mutate them.
type Candidate struct {
	Title       string  `json:"title"`
	DownloadURL string  `json:"downloadUrl"`
	SizeBytes   int64   `json:"sizeBytes"`
	AgeDays     int     `json:"ageDays"`
	SourceName  string  `json:"sourceName"`
	Quality     Quality `json:"quality"`

	// Informational metadata parsed from the release name; not used by the
	// filter or ranker.
	Group  string `json:"group,omitempty"`
	Source string `json:"source,omitempty"`

	GUID        string    `json:"guid,omitempty"`
	PublishDate time.Time `json:"publishDate,omitempty"`
	Score       float64   `json:"score"`
}

// RawItem is one indexer feed entry before normalization, produced by either
// the XML or the JSON parser. Both converge on this shape so everything
// downstream is response-format agnostic.
type RawItem struct {
	Title      string
	Link       string
	Size       string
	PubDate    string
	GUID       string
	Attributes []RawAttr
}

// RawAttr is a named quality attribute attached to a feed entry.
type RawAttr struct {
	Name  string
	Value string
}
