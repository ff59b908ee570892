// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/models"
)

// LibraryHandler imports collection scan results: each entry records that an
// album is owned. The file-system scan itself happens on the client side;
// this endpoint only ingests its output.
type LibraryHandler struct {
	artistStore *models.ArtistStore
	albumStore  *models.AlbumStore
}

func NewLibraryHandler(artistStore *models.ArtistStore, albumStore *models.AlbumStore) *LibraryHandler {
	return &LibraryHandler{artistStore: artistStore, albumStore: albumStore}
}

func (h *LibraryHandler) Routes(r chi.Router) {
	r.Post("/library/import", h.Import)
}

type importEntry struct {
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Year       *int   `json:"year,omitempty"`
	TrackCount *int   `json:"trackCount,omitempty"`
}

type importRequest struct {
	Entries   []importEntry `json:"entries"`
	Monitored bool          `json:"monitored"`
}

type importResponse struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Import upserts one owned album per entry, creating artists as needed. A
// bad entry is reported and skipped, never aborting the batch.
func (h *LibraryHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := importResponse{}
	for _, entry := range req.Entries {
		artistName := strings.TrimSpace(entry.Artist)
		albumTitle := strings.TrimSpace(entry.Album)
		if artistName == "" || albumTitle == "" {
			resp.Skipped++
			continue
		}

		artist, err := h.artistStore.GetByName(r.Context(), artistName)
		if err != nil {
			artist, err = h.artistStore.Create(r.Context(), artistName, nil, req.Monitored)
			if err != nil {
				resp.Errors = append(resp.Errors, artistName+": "+err.Error())
				resp.Skipped++
				continue
			}
		}

		if _, err := h.albumStore.Upsert(r.Context(), &models.Album{
			ArtistID:   artist.ID,
			Title:      albumTitle,
			Year:       entry.Year,
			Owned:      true,
			TrackCount: entry.TrackCount,
		}); err != nil {
			resp.Errors = append(resp.Errors, albumTitle+": "+err.Error())
			resp.Skipped++
			continue
		}

		resp.Imported++
	}

	log.Info().
		Int("imported", resp.Imported).
		Int("skipped", resp.Skipped).
		Msg("Library import complete")

	RespondJSON(w, http.StatusOK, resp)
}
