// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/melodarr/melodarr/internal/models"
)

type AlbumsHandler struct {
	albumStore *models.AlbumStore
}

func NewAlbumsHandler(albumStore *models.AlbumStore) *AlbumsHandler {
	return &AlbumsHandler{albumStore: albumStore}
}

func (h *AlbumsHandler) Routes(r chi.Router) {
	r.Route("/albums", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{albumID}", h.Get)
		r.Put("/{albumID}/owned", h.SetOwned)
		r.Delete("/{albumID}", h.Delete)
	})
}

type albumRequest struct {
	ArtistID   int     `json:"artistId"`
	Title      string  `json:"title"`
	Year       *int    `json:"year,omitempty"`
	ExternalID *string `json:"externalId,omitempty"`
	Owned      bool    `json:"owned"`
	TrackCount *int    `json:"trackCount,omitempty"`
}

type ownedRequest struct {
	Owned bool `json:"owned"`
}

func (h *AlbumsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "albumID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid album ID")
		return
	}

	album, err := h.albumStore.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, album)
}

func (h *AlbumsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req albumRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	album, err := h.albumStore.Create(r.Context(), &models.Album{
		ArtistID:   req.ArtistID,
		Title:      req.Title,
		Year:       req.Year,
		ExternalID: req.ExternalID,
		Owned:      req.Owned,
		TrackCount: req.TrackCount,
	})
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusCreated, album)
}

func (h *AlbumsHandler) SetOwned(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "albumID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid album ID")
		return
	}

	var req ownedRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.albumStore.SetOwned(r.Context(), id, req.Owned); err != nil {
		RespondServiceError(w, err)
		return
	}

	album, err := h.albumStore.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, album)
}

func (h *AlbumsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "albumID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid album ID")
		return
	}

	if err := h.albumStore.Delete(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
