// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/melodarr/melodarr/internal/metrics"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/downloads"
)

// DownloadsHandler exposes download initiation and status reconciliation.
type DownloadsHandler struct {
	service       *downloads.Service
	downloadStore *models.DownloadStore
	metrics       *metrics.Manager
}

func NewDownloadsHandler(service *downloads.Service, downloadStore *models.DownloadStore, metricsManager *metrics.Manager) *DownloadsHandler {
	return &DownloadsHandler{
		service:       service,
		downloadStore: downloadStore,
		metrics:       metricsManager,
	}
}

func (h *DownloadsHandler) Routes(r chi.Router) {
	r.Route("/downloads", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Initiate)
		r.Post("/refresh", h.RefreshAll)
		r.Get("/{downloadID}", h.GetStatus)
	})
}

type initiateRequest struct {
	AlbumID          int  `json:"albumId"`
	QualityProfileID *int `json:"qualityProfileId,omitempty"`
}

// List returns all download records as stored, without reconciling.
func (h *DownloadsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.downloadStore.List(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveDownloadStatuses(records)
	}

	RespondJSON(w, http.StatusOK, records)
}

// Initiate searches for the album and submits the best candidate.
func (h *DownloadsHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.InitiateDownload(r.Context(), req.AlbumID, req.QualityProfileID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.DownloadsTotal.WithLabelValues("error").Inc()
		}
		RespondServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.DownloadsTotal.WithLabelValues("submitted").Inc()
	}

	RespondJSON(w, http.StatusCreated, result)
}

// GetStatus returns one download, reconciling against the download client
// first when the stored state is non-terminal.
func (h *DownloadsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "downloadID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid download ID")
		return
	}

	download, err := h.service.GetDownloadStatus(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, download)
}

// RefreshAll reconciles every non-terminal download.
func (h *DownloadsHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	updated, err := h.service.UpdateAllActiveDownloads(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	if updated == nil {
		updated = []*models.Download{}
	}

	if h.metrics != nil {
		h.metrics.ObserveDownloadStatuses(updated)
	}

	RespondJSON(w, http.StatusOK, updated)
}
