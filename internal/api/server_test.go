// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodarr/melodarr/internal/config"
	"github.com/melodarr/melodarr/internal/database"
	"github.com/melodarr/melodarr/internal/metadata"
	"github.com/melodarr/melodarr/internal/metrics"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/downloads"
	"github.com/melodarr/melodarr/internal/services/monitor"
	"github.com/melodarr/melodarr/internal/services/search"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	cfg, err := config.New(t.TempDir())
	require.NoError(t, err)

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	artistStore := models.NewArtistStore(db)
	albumStore := models.NewAlbumStore(db)
	profileStore := models.NewQualityProfileStore(db)
	downloadStore := models.NewDownloadStore(db)

	indexerStore, err := models.NewIndexerStore(db, cfg.GetEncryptionKey())
	require.NoError(t, err)
	downloadClientStore, err := models.NewDownloadClientStore(db, cfg.GetEncryptionKey())
	require.NoError(t, err)

	searchService := search.NewService(indexerStore)
	downloadsService := downloads.NewService(albumStore, artistStore, profileStore, downloadStore, downloadClientStore, searchService, nil)
	monitorService := monitor.NewService(artistStore, albumStore, metadata.NewHTTPClient(), downloadsService)

	server := NewServer(&Dependencies{
		Config:              cfg,
		Version:             "test",
		ArtistStore:         artistStore,
		AlbumStore:          albumStore,
		ProfileStore:        profileStore,
		DownloadStore:       downloadStore,
		IndexerStore:        indexerStore,
		DownloadClientStore: downloadClientStore,
		SearchService:       searchService,
		DownloadsService:    downloadsService,
		MonitorService:      monitorService,
		MetricsManager:      metrics.NewManager(),
	})

	return server.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/health/liveness", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestQualityProfileCRUD(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/quality-profiles", map[string]any{
		"name":      "lossless",
		"formats":   []string{"flac", "alac"},
		"isDefault": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[models.QualityProfile](t, rec)
	assert.Equal(t, []string{"FLAC", "ALAC"}, created.Formats)
	assert.True(t, created.IsDefault)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/quality-profiles/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// the sole default profile cannot be removed
	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/quality-profiles/%d", created.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/api/quality-profiles/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchWithoutIndexersIsPreconditionFailure(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/search", map[string]any{
		"artist": "Pink Floyd",
		"album":  "The Wall",
	})
	require.Equal(t, http.StatusPreconditionFailed, rec.Code, rec.Body.String())

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "configuration", body["code"])
}

func TestSearchValidation(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/search", map[string]any{
		"artist": "  ",
		"album":  "The Wall",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiateDownloadUnknownAlbum(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/downloads", map[string]any{
		"albumId": 123,
	})
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "not_found", body["code"])
}

func TestLibraryImportAndArtistSearch(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/library/import", map[string]any{
		"entries": []map[string]any{
			{"artist": "Pink Floyd", "album": "The Wall", "year": 1979},
			{"artist": "Pink Floyd", "album": "Animals", "year": 1977},
			{"artist": "", "album": "orphan"},
		},
		"monitored": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	imported := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(2), imported["imported"])
	assert.Equal(t, float64(1), imported["skipped"])

	rec = doJSON(t, handler, http.MethodGet, "/api/artists?q=floyd", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	artists := decodeBody[[]models.Artist](t, rec)
	require.Len(t, artists, 1)
	assert.Equal(t, "Pink Floyd", artists[0].Name)
	assert.True(t, artists[0].Monitored)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/artists/%d/albums", artists[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	albums := decodeBody[[]models.Album](t, rec)
	assert.Len(t, albums, 2)
	for _, album := range albums {
		assert.True(t, album.Owned)
	}
}

func TestIndexerSecretNeverEchoed(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/indexers", map[string]any{
		"name":    "usenet-music",
		"baseUrl": "https://indexer.example.com",
		"apiKey":  "super-secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "super-secret")

	rec = doJSON(t, handler, http.MethodGet, "/api/indexers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")
}
