// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package downloads turns "I want this album" into a tracked, submitted
// download and reconciles download status against the external client.
package downloads

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/melodarr/melodarr/internal/downloadclient"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/search"
)

// ErrNoResults signals that a search produced zero acceptable candidates
// after filtering. Distinct from configuration errors so callers can suggest
// loosening the quality profile.
var ErrNoResults = errors.New("no acceptable candidates found")

// SubmissionError wraps a download client rejection of a submit call. It is
// a hard error; retrying requires a new user-initiated call.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("download client rejected submission: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// reconcileConcurrency bounds simultaneous status polls in the bulk path.
const reconcileConcurrency = 4

// AlbumStore is the subset of album storage the orchestrator needs.
type AlbumStore interface {
	Get(ctx context.Context, id int) (*models.Album, error)
}

type ArtistStore interface {
	Get(ctx context.Context, id int) (*models.Artist, error)
}

type QualityProfileStore interface {
	Get(ctx context.Context, id int) (*models.QualityProfile, error)
	GetDefault(ctx context.Context) (*models.QualityProfile, error)
}

type DownloadStore interface {
	Create(ctx context.Context, download *models.Download) (*models.Download, error)
	Get(ctx context.Context, id int) (*models.Download, error)
	ListActive(ctx context.Context) ([]*models.Download, error)
	UpdateStatus(ctx context.Context, id int, status models.DownloadStatus, progress int, errorMessage *string) (*models.Download, error)
}

type DownloadClientStore interface {
	Get(ctx context.Context) (*models.DownloadClientConfig, error)
	GetDecryptedPassword(cfg *models.DownloadClientConfig) (string, error)
}

// SearchService fans a query out across indexers.
type SearchService interface {
	SearchAlbum(ctx context.Context, artist, album string, profile *models.QualityProfile) ([]search.Candidate, error)
}

var (
	_ AlbumStore          = (*models.AlbumStore)(nil)
	_ ArtistStore         = (*models.ArtistStore)(nil)
	_ QualityProfileStore = (*models.QualityProfileStore)(nil)
	_ DownloadStore       = (*models.DownloadStore)(nil)
	_ DownloadClientStore = (*models.DownloadClientStore)(nil)
	_ SearchService       = (*search.Service)(nil)
)

// Service is the download orchestrator.
type Service struct {
	albumStore          AlbumStore
	artistStore         ArtistStore
	profileStore        QualityProfileStore
	downloadStore       DownloadStore
	downloadClientStore DownloadClientStore
	searchService       SearchService
	clientFactory       downloadclient.Factory
}

func NewService(
	albumStore AlbumStore,
	artistStore ArtistStore,
	profileStore QualityProfileStore,
	downloadStore DownloadStore,
	downloadClientStore DownloadClientStore,
	searchService SearchService,
	clientFactory downloadclient.Factory,
) *Service {
	if clientFactory == nil {
		clientFactory = downloadclient.NewQBittorrent
	}
	return &Service{
		albumStore:          albumStore,
		artistStore:         artistStore,
		profileStore:        profileStore,
		downloadStore:       downloadStore,
		downloadClientStore: downloadClientStore,
		searchService:       searchService,
		clientFactory:       clientFactory,
	}
}

// InitiateResult is what a completed initiation returns: the persisted
// record, the winning candidate, and everything else that was considered.
type InitiateResult struct {
	Download   *models.Download   `json:"download"`
	Selected   search.Candidate   `json:"selected"`
	Candidates []search.Candidate `json:"candidates"`
}

// resolveProfile returns the explicit profile when an id is given, otherwise
// the configured default.
func (s *Service) resolveProfile(ctx context.Context, profileID *int) (*models.QualityProfile, error) {
	if profileID != nil {
		return s.profileStore.Get(ctx, *profileID)
	}
	return s.profileStore.GetDefault(ctx)
}

// InitiateDownload searches for an album, submits the best candidate to the
// download client, and persists a queued download record. Every step is a
// hard dependency on the previous one succeeding.
func (s *Service) InitiateDownload(ctx context.Context, albumID int, profileID *int) (*InitiateResult, error) {
	album, err := s.albumStore.Get(ctx, albumID)
	if err != nil {
		return nil, err
	}

	artist, err := s.artistStore.Get(ctx, album.ArtistID)
	if err != nil {
		return nil, err
	}

	profile, err := s.resolveProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.searchService.SearchAlbum(ctx, artist.Name, album.Title, profile)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoResults
	}

	selected, _ := search.SelectBest(candidates)

	clientConfig, err := s.downloadClientStore.Get(ctx)
	if err != nil {
		return nil, err
	}
	password, err := s.downloadClientStore.GetDecryptedPassword(clientConfig)
	if err != nil {
		return nil, err
	}

	client, err := s.clientFactory(ctx, clientConfig, password)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	jobID, err := client.Submit(ctx, selected.DownloadURL, clientConfig.Category)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	download, err := s.downloadStore.Create(ctx, &models.Download{
		AlbumID:          album.ID,
		ExternalJobID:    &jobID,
		SourceName:       selected.SourceName,
		Status:           models.DownloadStatusQueued,
		Progress:         0,
		QualityProfileID: &profile.ID,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("downloadID", download.ID).
		Int("albumID", album.ID).
		Str("artist", artist.Name).
		Str("album", album.Title).
		Str("indexer", selected.SourceName).
		Float64("score", selected.Score).
		Int("alternatives", len(candidates)-1).
		Msg("Download submitted")

	return &InitiateResult{
		Download:   download,
		Selected:   selected,
		Candidates: candidates,
	}, nil
}

// GetDownloadStatus returns the current state of a download, polling the
// download client first when the stored state is still non-terminal.
// Terminal downloads are returned as stored, with no network call.
func (s *Service) GetDownloadStatus(ctx context.Context, downloadID int) (*models.Download, error) {
	download, err := s.downloadStore.Get(ctx, downloadID)
	if err != nil {
		return nil, err
	}
	if download.Status.IsTerminal() {
		return download, nil
	}

	client, err := s.connectClient(ctx)
	if err != nil {
		return nil, err
	}

	return s.reconcile(ctx, client, download)
}

// UpdateAllActiveDownloads reconciles every non-terminal download. One job's
// poll failure leaves its record unchanged for this cycle and does not block
// the others.
func (s *Service) UpdateAllActiveDownloads(ctx context.Context) ([]*models.Download, error) {
	active, err := s.downloadStore.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}

	client, err := s.connectClient(ctx)
	if err != nil {
		return nil, err
	}

	updated := make([]*models.Download, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for i, download := range active {
		g.Go(func() error {
			reconciled, err := s.reconcile(gctx, client, download)
			if err != nil {
				log.Warn().
					Err(err).
					Int("downloadID", download.ID).
					Msg("Failed to reconcile download status, leaving unchanged this cycle")
				updated[i] = download
				return nil
			}
			updated[i] = reconciled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Service) connectClient(ctx context.Context) (downloadclient.Client, error) {
	clientConfig, err := s.downloadClientStore.Get(ctx)
	if err != nil {
		return nil, err
	}
	password, err := s.downloadClientStore.GetDecryptedPassword(clientConfig)
	if err != nil {
		return nil, err
	}
	return s.clientFactory(ctx, clientConfig, password)
}

// reconcile polls the client for one download and persists the mapped
// status. Idempotent: polling twice before the external job changes state
// yields the same persisted result.
func (s *Service) reconcile(ctx context.Context, client downloadclient.Client, download *models.Download) (*models.Download, error) {
	if download.ExternalJobID == nil {
		// Never got a job id; nothing to poll against.
		return download, nil
	}

	status, err := client.Status(ctx, *download.ExternalJobID)
	if err != nil {
		return nil, err
	}

	if status.State == download.Status && status.Progress == download.Progress {
		return download, nil
	}

	var errorMessage *string
	if status.State == models.DownloadStatusFailed && status.ErrorMessage != "" {
		errorMessage = &status.ErrorMessage
	}

	updated, err := s.downloadStore.UpdateStatus(ctx, download.ID, status.State, status.Progress, errorMessage)
	if err != nil {
		// A concurrent reconciliation may have already moved the record
		// to a terminal state; treat that as settled.
		if errors.Is(err, models.ErrDownloadTerminal) {
			return s.downloadStore.Get(ctx, download.ID)
		}
		return nil, err
	}

	log.Debug().
		Int("downloadID", updated.ID).
		Str("status", string(updated.Status)).
		Int("progress", updated.Progress).
		Msg("Download status reconciled")

	return updated, nil
}
