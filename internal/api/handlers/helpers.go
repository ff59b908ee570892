// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/downloads"
	"github.com/melodarr/melodarr/internal/services/search"
)

// error codes the UI can branch on; distinct codes for "nothing found" vs
// "not configured" vs "backend failure" are part of the API contract
const (
	codeNotFound          = "not_found"
	codeConfiguration     = "configuration"
	codeNoResults         = "no_results"
	codeSubmissionFailure = "submission_failure"
	codeValidation        = "validation"
	codeInternal          = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	RespondErrorCode(w, status, message, codeForStatus(status))
}

func RespondErrorCode(w http.ResponseWriter, status int, message, code string) {
	RespondJSON(w, status, errorResponse{Error: message, Code: code})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusBadRequest:
		return codeValidation
	case http.StatusPreconditionFailed:
		return codeConfiguration
	default:
		return codeInternal
	}
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses.
// Missing entities are 404, missing configuration is 412, empty search
// results are 404 with their own code, and download client rejections are
// 502.
func RespondServiceError(w http.ResponseWriter, err error) {
	var submissionErr *downloads.SubmissionError

	switch {
	case errors.Is(err, models.ErrArtistNotFound),
		errors.Is(err, models.ErrAlbumNotFound),
		errors.Is(err, models.ErrQualityProfileNotFound),
		errors.Is(err, models.ErrDownloadNotFound),
		errors.Is(err, models.ErrIndexerNotFound):
		RespondErrorCode(w, http.StatusNotFound, err.Error(), codeNotFound)

	case errors.Is(err, search.ErrNoIndexersEnabled),
		errors.Is(err, models.ErrNoDefaultProfile),
		errors.Is(err, models.ErrDownloadClientNotConfigured):
		RespondErrorCode(w, http.StatusPreconditionFailed, err.Error(), codeConfiguration)

	case errors.Is(err, downloads.ErrNoResults):
		RespondErrorCode(w, http.StatusNotFound, err.Error(), codeNoResults)

	case errors.As(err, &submissionErr):
		RespondErrorCode(w, http.StatusBadGateway, err.Error(), codeSubmissionFailure)

	default:
		log.Error().Err(err).Msg("Unhandled service error")
		RespondErrorCode(w, http.StatusInternalServerError, "internal server error", codeInternal)
	}
}

// urlParamInt extracts a numeric path parameter.
func urlParamInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
