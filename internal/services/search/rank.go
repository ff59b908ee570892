// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"sort"

	"github.com/melodarr/melodarr/internal/models"
)

// Scoring weights. These are load-bearing product constants, not tunables;
// changing any of them changes which release wins a search.
const (
	formatPreferenceWeight = 20.0
	bitrateMaxContribution = 50.0

	losslessBitrateCeilingKbps = 1411
	lossyBitrateCeilingKbps    = 320

	agePenaltyCapDays = 30

	undersizeThresholdMB = 10
	undersizePenalty     = 20.0
	oversizeThresholdMB  = 500
	oversizePenalty      = 10.0
)

var losslessFormats = map[string]struct{}{
	"FLAC": {},
	"ALAC": {},
	"WAV":  {},
}

// bitrateCeilingKbps returns the plausible maximum bitrate for a format,
// used to scale the bitrate contribution.
func bitrateCeilingKbps(format string) int {
	if _, ok := losslessFormats[format]; ok {
		return losslessBitrateCeilingKbps
	}
	return lossyBitrateCeilingKbps
}

// Score computes the additive quality score of a single candidate against a
// profile. Callers are expected to have filtered first, so the candidate's
// format is present in the profile's list.
func Score(candidate Candidate, profile *models.QualityProfile) float64 {
	var score float64

	// Earlier-listed formats score higher; the last-listed format still
	// earns one full weight step.
	if idx := profile.FormatIndex(candidate.Quality.Format); idx >= 0 {
		score += float64(len(profile.Formats)-idx) * formatPreferenceWeight
	}

	if candidate.Quality.BitrateKbps != nil {
		ceiling := bitrateCeilingKbps(candidate.Quality.Format)
		contribution := float64(*candidate.Quality.BitrateKbps) / float64(ceiling) * bitrateMaxContribution
		if contribution > bitrateMaxContribution {
			contribution = bitrateMaxContribution
		}
		score += contribution
	}

	ageDays := candidate.AgeDays
	if ageDays > agePenaltyCapDays {
		ageDays = agePenaltyCapDays
	}
	score -= float64(ageDays)

	sizeMB := candidate.SizeBytes / (1024 * 1024)
	if sizeMB < undersizeThresholdMB {
		score -= undersizePenalty
	} else if sizeMB > oversizeThresholdMB {
		score -= oversizePenalty
	}

	return score
}

// Rank scores every candidate and returns the list sorted descending by
// score. The sort is stable, so ties keep their input order and repeated
// ranking of the same input is deterministic.
func Rank(candidates []Candidate, profile *models.QualityProfile) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].Score = Score(ranked[i], profile)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}

// SelectBest returns the top-ranked candidate of an already-ranked list.
func SelectBest(ranked []Candidate) (Candidate, bool) {
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}
