// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package monitor periodically compares monitored artists' external
// discographies against the owned album set and triggers downloads for the
// gaps.
package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/metadata"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/downloads"
)

// artistCheckInterval is the coarse per-artist throttle, independent of how
// often the overall schedule fires.
const artistCheckInterval = 24 * time.Hour

type ArtistStore interface {
	Get(ctx context.Context, id int) (*models.Artist, error)
	ListMonitored(ctx context.Context) ([]*models.Artist, error)
	TouchLastChecked(ctx context.Context, id int, checkedAt time.Time) error
}

type AlbumStore interface {
	ListByArtist(ctx context.Context, artistID int) ([]*models.Album, error)
	Upsert(ctx context.Context, album *models.Album) (*models.Album, error)
}

// Orchestrator is the download initiation entry point the loop hands gaps to.
type Orchestrator interface {
	InitiateDownload(ctx context.Context, albumID int, profileID *int) (*downloads.InitiateResult, error)
}

var (
	_ ArtistStore  = (*models.ArtistStore)(nil)
	_ AlbumStore   = (*models.AlbumStore)(nil)
	_ Orchestrator = (*downloads.Service)(nil)
)

// ErrPassInFlight is returned when a pass is requested while another one is
// still running. The new pass is skipped, not queued.
var ErrPassInFlight = errors.New("monitoring pass already in flight")

type Service struct {
	artistStore  ArtistStore
	albumStore   AlbumStore
	metadata     metadata.Client
	orchestrator Orchestrator

	// process-wide: at most one pass in flight
	busy atomic.Bool

	// now is swappable for throttle tests
	now func() time.Time
}

func NewService(artistStore ArtistStore, albumStore AlbumStore, metadataClient metadata.Client, orchestrator Orchestrator) *Service {
	return &Service{
		artistStore:  artistStore,
		albumStore:   albumStore,
		metadata:     metadataClient,
		orchestrator: orchestrator,
		now:          time.Now,
	}
}

// RunPass checks every monitored artist once. A pass requested while another
// is already running is skipped, not queued.
func (s *Service) RunPass(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		log.Debug().Msg("Monitoring pass already in flight, skipping")
		return ErrPassInFlight
	}
	defer s.busy.Store(false)

	runID := uuid.NewString()
	started := s.now()

	artists, err := s.artistStore.ListMonitored(ctx)
	if err != nil {
		return err
	}

	checked, skipped := 0, 0
	for _, artist := range artists {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if artist.LastCheckedAt != nil && s.now().Sub(*artist.LastCheckedAt) < artistCheckInterval {
			skipped++
			continue
		}

		s.checkArtist(ctx, artist, runID)
		checked++
	}

	log.Info().
		Str("runID", runID).
		Int("artists", len(artists)).
		Int("checked", checked).
		Int("skipped", skipped).
		Dur("elapsed", s.now().Sub(started)).
		Msg("Monitoring pass complete")

	return nil
}

// CheckArtist runs the discography diff for one artist on demand, bypassing
// the 24 hour throttle.
func (s *Service) CheckArtist(ctx context.Context, artistID int) error {
	artist, err := s.artistStore.Get(ctx, artistID)
	if err != nil {
		return err
	}
	s.checkArtist(ctx, artist, uuid.NewString())
	return nil
}

// checkArtist diffs one artist's discography against the owned set and hands
// each gap to the orchestrator. Per-album failures are logged, never raised;
// the last-checked timestamp is stamped regardless.
func (s *Service) checkArtist(ctx context.Context, artist *models.Artist, runID string) {
	discography, err := s.metadata.LookupDiscography(ctx, artist.Name)
	if err != nil {
		// No timestamp update: the lookup never happened, so the next
		// pass should retry this artist.
		log.Error().
			Err(err).
			Str("runID", runID).
			Str("artist", artist.Name).
			Msg("Discography lookup failed")
		return
	}

	owned, err := s.ownedTitleSet(ctx, artist.ID)
	if err != nil {
		log.Error().
			Err(err).
			Str("runID", runID).
			Str("artist", artist.Name).
			Msg("Failed to load owned albums")
		return
	}

	missing := 0
	for _, release := range discography {
		if _, have := owned[NormalizeTitle(release.Title)]; have {
			continue
		}
		missing++
		s.handleMissingRelease(ctx, artist, release, runID)
	}

	if err := s.artistStore.TouchLastChecked(ctx, artist.ID, s.now()); err != nil {
		log.Error().
			Err(err).
			Str("artist", artist.Name).
			Msg("Failed to update last-checked timestamp")
	}

	log.Debug().
		Str("runID", runID).
		Str("artist", artist.Name).
		Int("discography", len(discography)).
		Int("missing", missing).
		Msg("Artist checked")
}

func (s *Service) ownedTitleSet(ctx context.Context, artistID int) (map[string]struct{}, error) {
	albums, err := s.albumStore.ListByArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]struct{}, len(albums))
	for _, album := range albums {
		if album.Owned {
			owned[NormalizeTitle(album.Title)] = struct{}{}
		}
	}
	return owned, nil
}

// handleMissingRelease persists the gap as an unowned album and tries to
// start a download for it. The album record outlives a failed download
// attempt so the library still shows the release as missing and available.
func (s *Service) handleMissingRelease(ctx context.Context, artist *models.Artist, release metadata.Release, runID string) {
	externalID := release.ExternalID
	album, err := s.albumStore.Upsert(ctx, &models.Album{
		ArtistID:   artist.ID,
		Title:      release.Title,
		Year:       release.Year,
		ExternalID: &externalID,
		Owned:      false,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("runID", runID).
			Str("artist", artist.Name).
			Str("album", release.Title).
			Msg("Failed to persist missing album")
		return
	}

	if _, err := s.orchestrator.InitiateDownload(ctx, album.ID, nil); err != nil {
		log.Warn().
			Err(err).
			Str("runID", runID).
			Str("artist", artist.Name).
			Str("album", release.Title).
			Msg("Auto-download failed, album kept as missing")
		return
	}

	log.Info().
		Str("runID", runID).
		Str("artist", artist.Name).
		Str("album", release.Title).
		Msg("Missing release queued for download")
}
