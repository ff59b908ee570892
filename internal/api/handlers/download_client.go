// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/melodarr/melodarr/internal/models"
)

// DownloadClientHandler manages the singleton download client configuration.
// The password is accepted on write and never echoed back; an empty password
// on update keeps the stored one.
type DownloadClientHandler struct {
	store *models.DownloadClientStore
}

func NewDownloadClientHandler(store *models.DownloadClientStore) *DownloadClientHandler {
	return &DownloadClientHandler{store: store}
}

func (h *DownloadClientHandler) Routes(r chi.Router) {
	r.Route("/download-client", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Set)
	})
}

type downloadClientRequest struct {
	Host           string `json:"host"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Category       string `json:"category"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

func (h *DownloadClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Get(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}

func (h *DownloadClientHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req downloadClientRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.store.Set(r.Context(), req.Host, req.Username, req.Password, req.Category, req.TimeoutSeconds)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}
