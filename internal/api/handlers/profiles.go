// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/melodarr/melodarr/internal/models"
)

// QualityProfilesHandler manages quality profile CRUD and the default flag.
type QualityProfilesHandler struct {
	store *models.QualityProfileStore
}

func NewQualityProfilesHandler(store *models.QualityProfileStore) *QualityProfilesHandler {
	return &QualityProfilesHandler{store: store}
}

func (h *QualityProfilesHandler) Routes(r chi.Router) {
	r.Route("/quality-profiles", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{profileID}", h.Get)
		r.Put("/{profileID}", h.Update)
		r.Delete("/{profileID}", h.Delete)
		r.Post("/{profileID}/default", h.SetDefault)
	})
}

type qualityProfileRequest struct {
	Name           string   `json:"name"`
	Formats        []string `json:"formats"`
	MinBitrateKbps *int     `json:"minBitrateKbps,omitempty"`
	MaxFileSizeMB  *int     `json:"maxFileSizeMb,omitempty"`
	IsDefault      bool     `json:"isDefault"`
}

func (h *QualityProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.List(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, profiles)
}

func (h *QualityProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "profileID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid profile ID")
		return
	}

	profile, err := h.store.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}

func (h *QualityProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req qualityProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.store.Create(r.Context(), &models.QualityProfile{
		Name:           req.Name,
		Formats:        req.Formats,
		MinBitrateKbps: req.MinBitrateKbps,
		MaxFileSizeMB:  req.MaxFileSizeMB,
		IsDefault:      req.IsDefault,
	})
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusCreated, profile)
}

func (h *QualityProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "profileID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid profile ID")
		return
	}

	var req qualityProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.store.Update(r.Context(), &models.QualityProfile{
		ID:             id,
		Name:           req.Name,
		Formats:        req.Formats,
		MinBitrateKbps: req.MinBitrateKbps,
		MaxFileSizeMB:  req.MaxFileSizeMB,
		IsDefault:      req.IsDefault,
	})
	if err != nil {
		if errors.Is(err, models.ErrQualityProfileNotFound) {
			RespondServiceError(w, err)
			return
		}
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}

func (h *QualityProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "profileID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid profile ID")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrProfileIsDefault) {
			RespondErrorCode(w, http.StatusConflict, err.Error(), codeValidation)
			return
		}
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

func (h *QualityProfilesHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "profileID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid profile ID")
		return
	}

	profile, err := h.store.SetDefault(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}
