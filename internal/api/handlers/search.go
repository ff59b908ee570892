// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/melodarr/melodarr/internal/metrics"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/search"
)

// SearchHandler exposes the ranked album search.
type SearchHandler struct {
	searchService *search.Service
	profileStore  *models.QualityProfileStore
	metrics       *metrics.Manager
}

func NewSearchHandler(searchService *search.Service, profileStore *models.QualityProfileStore, metricsManager *metrics.Manager) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		profileStore:  profileStore,
		metrics:       metricsManager,
	}
}

func (h *SearchHandler) Routes(r chi.Router) {
	r.Post("/search", h.Search)
}

type searchRequest struct {
	Artist           string `json:"artist"`
	Album            string `json:"album"`
	QualityProfileID *int   `json:"qualityProfileId,omitempty"`
}

type searchResponse struct {
	Candidates []search.Candidate `json:"candidates"`
	Total      int                `json:"total"`
	Ranked     bool               `json:"ranked"`
}

// Search fans the query out across enabled indexers. With a profile id the
// results come back filtered and ranked; without one they are raw.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Artist) == "" || strings.TrimSpace(req.Album) == "" {
		RespondError(w, http.StatusBadRequest, "artist and album are required")
		return
	}

	var profile *models.QualityProfile
	if req.QualityProfileID != nil {
		var err error
		profile, err = h.profileStore.Get(r.Context(), *req.QualityProfileID)
		if err != nil {
			RespondServiceError(w, err)
			return
		}
	}

	candidates, err := h.searchService.SearchAlbum(r.Context(), req.Artist, req.Album, profile)
	if err != nil {
		h.observe("error", 0)
		RespondServiceError(w, err)
		return
	}

	h.observe("ok", len(candidates))

	RespondJSON(w, http.StatusOK, searchResponse{
		Candidates: candidates,
		Total:      len(candidates),
		Ranked:     profile != nil,
	})
}

func (h *SearchHandler) observe(outcome string, candidates int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		h.metrics.SearchCandidates.Observe(float64(candidates))
	}
}
