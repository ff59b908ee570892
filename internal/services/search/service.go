// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/models"
)

// ErrNoIndexersEnabled signals a configuration problem: a search was
// requested but no enabled indexer exists. Returned before any network call.
var ErrNoIndexersEnabled = errors.New("no enabled indexers configured")

// IndexerStore is the subset of indexer storage the search service needs.
type IndexerStore interface {
	ListEnabled(ctx context.Context) ([]*models.Indexer, error)
	GetDecryptedAPIKey(indexer *models.Indexer) (string, error)
}

var _ IndexerStore = (*models.IndexerStore)(nil)

// Searcher is one backend the fan-out queries. Satisfied by *Client and by
// test fakes.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// Service fans a search out across every enabled indexer and merges the
// results, optionally filtering and ranking against a quality profile.
type Service struct {
	indexerStore IndexerStore

	// newSearcher is swappable so tests can inject fakes per indexer.
	newSearcher func(indexer *models.Indexer, apiKey string) Searcher
}

func NewService(indexerStore IndexerStore) *Service {
	return &Service{
		indexerStore: indexerStore,
		newSearcher: func(indexer *models.Indexer, apiKey string) Searcher {
			return NewClient(indexer.Name, indexer.BaseURL, apiKey, indexer.Backend, indexer.TimeoutSeconds)
		},
	}
}

// SearchAlbum queries every enabled indexer for an artist/album pair. All
// backends are queried concurrently and the call returns once each has
// resolved; a failing backend contributes zero results and never fails the
// search. When a profile is supplied the merged list is filtered and ranked;
// otherwise the raw merged list is returned.
func (s *Service) SearchAlbum(ctx context.Context, artist, album string, profile *models.QualityProfile) ([]Candidate, error) {
	indexers, err := s.indexerStore.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if len(indexers) == 0 {
		return nil, ErrNoIndexersEnabled
	}

	query := strings.TrimSpace(artist + " " + album)

	type indexerResult struct {
		candidates []Candidate
		indexer    string
		elapsed    time.Duration
		err        error
	}

	results := make(chan indexerResult, len(indexers))
	var wg sync.WaitGroup

	for _, indexer := range indexers {
		apiKey, err := s.indexerStore.GetDecryptedAPIKey(indexer)
		if err != nil {
			log.Error().Err(err).Str("indexer", indexer.Name).Msg("Failed to decrypt indexer API key, skipping")
			continue
		}

		searcher := s.newSearcher(indexer, apiKey)

		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()
			candidates, err := searcher.Search(ctx, query)
			results <- indexerResult{
				candidates: candidates,
				indexer:    searcher.Name(),
				elapsed:    time.Since(started),
				err:        err,
			}
		}()
	}

	wg.Wait()
	close(results)

	var merged []Candidate
	for result := range results {
		if result.err != nil {
			log.Warn().
				Err(result.err).
				Str("indexer", result.indexer).
				Str("query", query).
				Dur("elapsed", result.elapsed).
				Msg("Indexer search failed, continuing with remaining indexers")
			continue
		}

		log.Trace().
			Str("indexer", result.indexer).
			Int("candidates", len(result.candidates)).
			Dur("elapsed", result.elapsed).
			Msg("Indexer responded")

		merged = append(merged, result.candidates...)
	}

	log.Debug().
		Str("query", query).
		Int("indexers", len(indexers)).
		Int("candidates", len(merged)).
		Msg("Indexer fan-out complete")

	if profile == nil {
		return merged, nil
	}

	return Rank(Filter(merged, profile), profile), nil
}
