// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacritic folding: decompose, strip combining marks, recompose
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// leading/trailing articles carry no identity; "The Wall" and "Wall, The"
// are the same record.
var articles = map[string]struct{}{
	"the": {},
	"a":   {},
	"an":  {},
}

// NormalizeTitle reduces an album title to a comparison key: lowercase,
// diacritics folded, punctuation stripped, whitespace collapsed, and
// standalone articles removed. Near-duplicate titles differing only in
// casing, an apostrophe, or article placement collapse to the same key.
func NormalizeTitle(title string) string {
	folded, _, err := transform.String(foldTransformer, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// punctuation and symbols are dropped outright
	}

	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, field := range fields {
		if _, isArticle := articles[field]; isArticle {
			continue
		}
		kept = append(kept, field)
	}

	// an all-article title keeps its words rather than normalizing to ""
	if len(kept) == 0 {
		kept = fields
	}

	return strings.Join(kept, " ")
}
