// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/melodarr/melodarr/internal/models"
)

// IndexersHandler manages indexer configuration. API keys are accepted on
// write and never echoed back.
type IndexersHandler struct {
	store *models.IndexerStore
}

func NewIndexersHandler(store *models.IndexerStore) *IndexersHandler {
	return &IndexersHandler{store: store}
}

func (h *IndexersHandler) Routes(r chi.Router) {
	r.Route("/indexers", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{indexerID}", h.Get)
		r.Put("/{indexerID}", h.Update)
		r.Delete("/{indexerID}", h.Delete)
		r.Post("/{indexerID}/enable", h.Enable)
		r.Post("/{indexerID}/disable", h.Disable)
	})
}

type indexerRequest struct {
	Name           string                `json:"name"`
	BaseURL        string                `json:"baseUrl"`
	APIKey         string                `json:"apiKey"`
	Backend        models.IndexerBackend `json:"backend"`
	Enabled        *bool                 `json:"enabled,omitempty"`
	TimeoutSeconds int                   `json:"timeoutSeconds"`
}

func (h *IndexersHandler) List(w http.ResponseWriter, r *http.Request) {
	indexers, err := h.store.List(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, indexers)
}

func (h *IndexersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "indexerID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid indexer ID")
		return
	}

	indexer, err := h.store.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, indexer)
}

func (h *IndexersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req indexerRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	indexer, err := h.store.Create(r.Context(), req.Name, req.BaseURL, req.APIKey, req.Backend, enabled, req.TimeoutSeconds)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusCreated, indexer)
}

func (h *IndexersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "indexerID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid indexer ID")
		return
	}

	var req indexerRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	indexer, err := h.store.Update(r.Context(), id, req.Name, req.BaseURL, req.APIKey, req.Backend, req.Enabled, req.TimeoutSeconds)
	if err != nil {
		if errors.Is(err, models.ErrIndexerNotFound) {
			RespondServiceError(w, err)
			return
		}
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, indexer)
}

func (h *IndexersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "indexerID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid indexer ID")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

func (h *IndexersHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *IndexersHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *IndexersHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, err := urlParamInt(r, "indexerID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid indexer ID")
		return
	}

	if err := h.store.SetEnabled(r.Context(), id, enabled); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
