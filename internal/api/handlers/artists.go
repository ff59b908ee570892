// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/monitor"
)

// ArtistsHandler manages the artist library and on-demand discography
// checks.
type ArtistsHandler struct {
	artistStore    *models.ArtistStore
	albumStore     *models.AlbumStore
	monitorService *monitor.Service
}

func NewArtistsHandler(artistStore *models.ArtistStore, albumStore *models.AlbumStore, monitorService *monitor.Service) *ArtistsHandler {
	return &ArtistsHandler{
		artistStore:    artistStore,
		albumStore:     albumStore,
		monitorService: monitorService,
	}
}

func (h *ArtistsHandler) Routes(r chi.Router) {
	r.Route("/artists", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{artistID}", h.Get)
		r.Delete("/{artistID}", h.Delete)
		r.Put("/{artistID}/monitor", h.SetMonitored)
		r.Post("/{artistID}/check", h.Check)
		r.Get("/{artistID}/albums", h.ListAlbums)
	})
}

type artistRequest struct {
	Name       string  `json:"name"`
	ExternalID *string `json:"externalId,omitempty"`
	Monitored  bool    `json:"monitored"`
}

type monitorRequest struct {
	Monitored bool `json:"monitored"`
}

// List returns all artists, optionally fuzzy-filtered by ?q=.
func (h *ArtistsHandler) List(w http.ResponseWriter, r *http.Request) {
	artists, err := h.artistStore.List(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		filtered := make([]*models.Artist, 0, len(artists))
		for _, artist := range artists {
			if fuzzy.MatchNormalizedFold(q, artist.Name) {
				filtered = append(filtered, artist)
			}
		}
		artists = filtered
	}

	RespondJSON(w, http.StatusOK, artists)
}

func (h *ArtistsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "artistID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid artist ID")
		return
	}

	artist, err := h.artistStore.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, artist)
}

func (h *ArtistsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req artistRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	artist, err := h.artistStore.Create(r.Context(), req.Name, req.ExternalID, req.Monitored)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusCreated, artist)
}

func (h *ArtistsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "artistID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid artist ID")
		return
	}

	if err := h.artistStore.Delete(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

func (h *ArtistsHandler) SetMonitored(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "artistID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid artist ID")
		return
	}

	var req monitorRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.artistStore.SetMonitored(r.Context(), id, req.Monitored); err != nil {
		RespondServiceError(w, err)
		return
	}

	artist, err := h.artistStore.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, artist)
}

// Check runs the discography diff for one artist immediately, bypassing the
// monitoring schedule and throttle.
func (h *ArtistsHandler) Check(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "artistID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid artist ID")
		return
	}

	if err := h.monitorService.CheckArtist(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "checked"})
}

func (h *ArtistsHandler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "artistID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid artist ID")
		return
	}

	if _, err := h.artistStore.Get(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}

	albums, err := h.albumStore.ListByArtist(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, albums)
}
