// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "lowercases", title: "Dark Side", want: "dark side"},
		{name: "strips punctuation", title: "Wish You Were Here!", want: "wish you were here"},
		{name: "collapses whitespace", title: "  Animals \t In  Space ", want: "animals in space"},
		{name: "drops leading article", title: "The Wall", want: "wall"},
		{name: "drops trailing comma article", title: "Wall, The!!", want: "wall"},
		{name: "apostrophes ignored", title: "Workin' Man's Blues", want: "workin mans blues"},
		{name: "diacritics folded", title: "Mezzogiorno di Fuòco", want: "mezzogiorno di fuoco"},
		{name: "articles inside stay meaningful words", title: "A Night at the Opera", want: "night at opera"},
		{name: "all-article title survives", title: "The The", want: "the the"},
		{name: "digits kept", title: "Volume 2", want: "volume 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.title))
		})
	}
}

func TestNormalizeTitleEquivalence(t *testing.T) {
	assert.Equal(t, NormalizeTitle("The Wall"), NormalizeTitle("Wall, The!!"))
	assert.Equal(t, NormalizeTitle("Don't Stop"), NormalizeTitle("Dont Stop"))
	assert.NotEqual(t, NormalizeTitle("The Wall"), NormalizeTitle("The Fall"))
}
