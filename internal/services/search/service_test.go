// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodarr/melodarr/internal/models"
)

type fakeIndexerStore struct {
	indexers []*models.Indexer
	listErr  error
}

func (s *fakeIndexerStore) ListEnabled(ctx context.Context) ([]*models.Indexer, error) {
	return s.indexers, s.listErr
}

func (s *fakeIndexerStore) GetDecryptedAPIKey(indexer *models.Indexer) (string, error) {
	return "key-" + indexer.Name, nil
}

type fakeSearcher struct {
	name       string
	candidates []Candidate
	err        error
	calls      *atomic.Int32
}

func (f *fakeSearcher) Name() string { return f.name }

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]Candidate, error) {
	if f.calls != nil {
		f.calls.Add(1)
	}
	return f.candidates, f.err
}

func newTestService(store IndexerStore, searchers map[string]*fakeSearcher) *Service {
	svc := NewService(store)
	svc.newSearcher = func(indexer *models.Indexer, apiKey string) Searcher {
		return searchers[indexer.Name]
	}
	return svc
}

func TestSearchAlbumNoEnabledIndexers(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(&fakeIndexerStore{}, map[string]*fakeSearcher{
		"unused": {name: "unused", calls: &calls},
	})

	_, err := svc.SearchAlbum(context.Background(), "Pink Floyd", "The Wall", nil)
	require.ErrorIs(t, err, ErrNoIndexersEnabled)
	assert.Equal(t, int32(0), calls.Load(), "no backend may be queried when none are enabled")
}

func TestSearchAlbumFanOutResilience(t *testing.T) {
	store := &fakeIndexerStore{indexers: []*models.Indexer{
		{ID: 1, Name: "one", Enabled: true},
		{ID: 2, Name: "two", Enabled: true},
		{ID: 3, Name: "three", Enabled: true},
	}}

	searchers := map[string]*fakeSearcher{
		"one":   {name: "one", candidates: []Candidate{makeCandidate("from-one", "FLAC", nil, 50, 0)}},
		"two":   {name: "two", err: errors.New("connection refused")},
		"three": {name: "three", candidates: []Candidate{makeCandidate("from-three", "MP3", nil, 50, 0)}},
	}

	candidates, err := newTestService(store, searchers).SearchAlbum(context.Background(), "Artist", "Album", nil)
	require.NoError(t, err)

	titles := make([]string, 0, len(candidates))
	for _, c := range candidates {
		titles = append(titles, c.Title)
	}
	assert.ElementsMatch(t, []string{"from-one", "from-three"}, titles)
}

func TestSearchAlbumWithProfileFiltersAndRanks(t *testing.T) {
	store := &fakeIndexerStore{indexers: []*models.Indexer{
		{ID: 1, Name: "one", Enabled: true},
	}}

	searchers := map[string]*fakeSearcher{
		"one": {name: "one", candidates: []Candidate{
			makeCandidate("mp3-low", "MP3", intPtr(192), 80, 1),
			makeCandidate("mp3-high", "MP3", intPtr(320), 80, 1),
			makeCandidate("flac", "FLAC", intPtr(1000), 80, 1),
		}},
	}

	profile := &models.QualityProfile{
		Formats:        []string{"FLAC", "MP3"},
		MinBitrateKbps: intPtr(256),
	}

	candidates, err := newTestService(store, searchers).SearchAlbum(context.Background(), "Artist", "Album", profile)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "flac", candidates[0].Title)
	assert.Equal(t, "mp3-high", candidates[1].Title)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
}

func TestSearchAlbumWithoutProfileReturnsRaw(t *testing.T) {
	store := &fakeIndexerStore{indexers: []*models.Indexer{
		{ID: 1, Name: "one", Enabled: true},
	}}

	searchers := map[string]*fakeSearcher{
		"one": {name: "one", candidates: []Candidate{
			makeCandidate("anything", "OGG", nil, 1, 400),
		}},
	}

	candidates, err := newTestService(store, searchers).SearchAlbum(context.Background(), "Artist", "Album", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 0.0, candidates[0].Score, "raw results are not scored")
}

func TestSearchAlbumStoreError(t *testing.T) {
	store := &fakeIndexerStore{listErr: errors.New("db closed")}
	_, err := newTestService(store, nil).SearchAlbum(context.Background(), "Artist", "Album", nil)
	assert.Error(t, err)
}
