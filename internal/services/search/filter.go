// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"github.com/melodarr/melodarr/internal/models"
)

// Filter drops candidates a quality profile rejects, preserving input order.
// A nil profile accepts everything.
func Filter(candidates []Candidate, profile *models.QualityProfile) []Candidate {
	if profile == nil {
		return candidates
	}

	kept := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if accepts(candidate, profile) {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func accepts(candidate Candidate, profile *models.QualityProfile) bool {
	if !profile.AcceptsFormat(candidate.Quality.Format) {
		return false
	}

	// An unreported bitrate passes the minimum check rather than being
	// rejected; plenty of lossless releases omit the attribute.
	if profile.MinBitrateKbps != nil && candidate.Quality.BitrateKbps != nil &&
		*candidate.Quality.BitrateKbps < *profile.MinBitrateKbps {
		return false
	}

	if profile.MaxFileSizeMB != nil && candidate.SizeBytes > int64(*profile.MaxFileSizeMB)*1024*1024 {
		return false
	}

	return true
}
