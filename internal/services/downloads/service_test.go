// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package downloads

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodarr/melodarr/internal/downloadclient"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/search"
)

type fakeAlbumStore struct {
	albums map[int]*models.Album
}

func (s *fakeAlbumStore) Get(ctx context.Context, id int) (*models.Album, error) {
	if album, ok := s.albums[id]; ok {
		return album, nil
	}
	return nil, models.ErrAlbumNotFound
}

type fakeArtistStore struct {
	artists map[int]*models.Artist
}

func (s *fakeArtistStore) Get(ctx context.Context, id int) (*models.Artist, error) {
	if artist, ok := s.artists[id]; ok {
		return artist, nil
	}
	return nil, models.ErrArtistNotFound
}

type fakeProfileStore struct {
	profiles   map[int]*models.QualityProfile
	defaultID  int
	hasDefault bool
}

func (s *fakeProfileStore) Get(ctx context.Context, id int) (*models.QualityProfile, error) {
	if profile, ok := s.profiles[id]; ok {
		return profile, nil
	}
	return nil, models.ErrQualityProfileNotFound
}

func (s *fakeProfileStore) GetDefault(ctx context.Context) (*models.QualityProfile, error) {
	if !s.hasDefault {
		return nil, models.ErrNoDefaultProfile
	}
	return s.Get(ctx, s.defaultID)
}

type fakeDownloadStore struct {
	mu        sync.Mutex
	nextID    int
	downloads map[int]*models.Download
}

func newFakeDownloadStore() *fakeDownloadStore {
	return &fakeDownloadStore{nextID: 1, downloads: make(map[int]*models.Download)}
}

func (s *fakeDownloadStore) Create(ctx context.Context, download *models.Download) (*models.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *download
	clone.ID = s.nextID
	s.nextID++
	s.downloads[clone.ID] = &clone
	result := clone
	return &result, nil
}

func (s *fakeDownloadStore) Get(ctx context.Context, id int) (*models.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if download, ok := s.downloads[id]; ok {
		result := *download
		return &result, nil
	}
	return nil, models.ErrDownloadNotFound
}

func (s *fakeDownloadStore) ListActive(ctx context.Context) ([]*models.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*models.Download
	for _, download := range s.downloads {
		if !download.Status.IsTerminal() {
			result := *download
			active = append(active, &result)
		}
	}
	return active, nil
}

func (s *fakeDownloadStore) UpdateStatus(ctx context.Context, id int, status models.DownloadStatus, progress int, errorMessage *string) (*models.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	download, ok := s.downloads[id]
	if !ok {
		return nil, models.ErrDownloadNotFound
	}
	if download.Status.IsTerminal() {
		return nil, models.ErrDownloadTerminal
	}
	download.Status = status
	download.Progress = progress
	download.ErrorMessage = errorMessage
	result := *download
	return &result, nil
}

type fakeClientStore struct {
	cfg *models.DownloadClientConfig
}

func (s *fakeClientStore) Get(ctx context.Context) (*models.DownloadClientConfig, error) {
	if s.cfg == nil {
		return nil, models.ErrDownloadClientNotConfigured
	}
	return s.cfg, nil
}

func (s *fakeClientStore) GetDecryptedPassword(cfg *models.DownloadClientConfig) (string, error) {
	return "secret", nil
}

type fakeSearchService struct {
	candidates []search.Candidate
	err        error
}

func (s *fakeSearchService) SearchAlbum(ctx context.Context, artist, album string, profile *models.QualityProfile) ([]search.Candidate, error) {
	return s.candidates, s.err
}

type fakeClient struct {
	submitJobID string
	submitErr   error
	status      downloadclient.JobStatus
	statusErr   error
	statusCalls atomic.Int32
}

func (c *fakeClient) Submit(ctx context.Context, locator, category string) (string, error) {
	return c.submitJobID, c.submitErr
}

func (c *fakeClient) Status(ctx context.Context, jobID string) (downloadclient.JobStatus, error) {
	c.statusCalls.Add(1)
	return c.status, c.statusErr
}

func factoryFor(client downloadclient.Client) downloadclient.Factory {
	return func(ctx context.Context, cfg *models.DownloadClientConfig, password string) (downloadclient.Client, error) {
		return client, nil
	}
}

type fixture struct {
	service       *Service
	downloadStore *fakeDownloadStore
	client        *fakeClient
}

func newFixture(searchService SearchService, client *fakeClient) *fixture {
	downloadStore := newFakeDownloadStore()
	profile := &models.QualityProfile{ID: 7, Name: "lossless", Formats: []string{"FLAC", "MP3"}}

	service := NewService(
		&fakeAlbumStore{albums: map[int]*models.Album{
			42: {ID: 42, ArtistID: 5, Title: "The Wall"},
		}},
		&fakeArtistStore{artists: map[int]*models.Artist{
			5: {ID: 5, Name: "Pink Floyd"},
		}},
		&fakeProfileStore{
			profiles:   map[int]*models.QualityProfile{7: profile},
			defaultID:  7,
			hasDefault: true,
		},
		downloadStore,
		&fakeClientStore{cfg: &models.DownloadClientConfig{Host: "http://localhost:8080", Category: "music"}},
		searchService,
		factoryFor(client),
	)

	return &fixture{service: service, downloadStore: downloadStore, client: client}
}

func someCandidates() []search.Candidate {
	return []search.Candidate{
		{Title: "winner", DownloadURL: "magnet:?xt=urn:btih:aaa", SourceName: "idx-one", Score: 90},
		{Title: "runner-up", DownloadURL: "magnet:?xt=urn:btih:bbb", SourceName: "idx-two", Score: 60},
	}
}

func TestInitiateDownload(t *testing.T) {
	client := &fakeClient{submitJobID: "hash-1"}
	f := newFixture(&fakeSearchService{candidates: someCandidates()}, client)

	result, err := f.service.InitiateDownload(context.Background(), 42, nil)
	require.NoError(t, err)

	assert.Equal(t, "winner", result.Selected.Title)
	assert.Len(t, result.Candidates, 2)

	download := result.Download
	assert.Equal(t, 42, download.AlbumID)
	assert.Equal(t, models.DownloadStatusQueued, download.Status)
	assert.Equal(t, 0, download.Progress)
	assert.Equal(t, "idx-one", download.SourceName)
	require.NotNil(t, download.ExternalJobID)
	assert.Equal(t, "hash-1", *download.ExternalJobID)
	require.NotNil(t, download.QualityProfileID)
	assert.Equal(t, 7, *download.QualityProfileID)
}

func TestInitiateDownloadAlbumNotFound(t *testing.T) {
	f := newFixture(&fakeSearchService{candidates: someCandidates()}, &fakeClient{})

	_, err := f.service.InitiateDownload(context.Background(), 999, nil)
	assert.ErrorIs(t, err, models.ErrAlbumNotFound)
}

func TestInitiateDownloadNoDefaultProfile(t *testing.T) {
	f := newFixture(&fakeSearchService{candidates: someCandidates()}, &fakeClient{})
	f.service.profileStore = &fakeProfileStore{hasDefault: false}

	_, err := f.service.InitiateDownload(context.Background(), 42, nil)
	assert.ErrorIs(t, err, models.ErrNoDefaultProfile)
}

func TestInitiateDownloadNoResults(t *testing.T) {
	f := newFixture(&fakeSearchService{candidates: nil}, &fakeClient{})

	_, err := f.service.InitiateDownload(context.Background(), 42, nil)
	assert.ErrorIs(t, err, ErrNoResults)

	active, _ := f.downloadStore.ListActive(context.Background())
	assert.Empty(t, active, "no record may be persisted when nothing was submitted")
}

func TestInitiateDownloadSubmissionFailure(t *testing.T) {
	client := &fakeClient{submitErr: errors.New("connection refused")}
	f := newFixture(&fakeSearchService{candidates: someCandidates()}, client)

	_, err := f.service.InitiateDownload(context.Background(), 42, nil)

	var submissionErr *SubmissionError
	require.ErrorAs(t, err, &submissionErr)

	active, _ := f.downloadStore.ListActive(context.Background())
	assert.Empty(t, active, "failed submissions must not leave a record behind")
}

func TestGetDownloadStatusReconciles(t *testing.T) {
	client := &fakeClient{submitJobID: "hash-1"}
	f := newFixture(&fakeSearchService{candidates: someCandidates()}, client)

	result, err := f.service.InitiateDownload(context.Background(), 42, nil)
	require.NoError(t, err)

	client.status = downloadclient.JobStatus{State: models.DownloadStatusDownloading, Progress: 40}

	download, err := f.service.GetDownloadStatus(context.Background(), result.Download.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusDownloading, download.Status)
	assert.Equal(t, 40, download.Progress)
}

func TestGetDownloadStatusTerminalIsStable(t *testing.T) {
	client := &fakeClient{submitJobID: "hash-1"}
	f := newFixture(&fakeSearchService{candidates: someCandidates()}, client)

	result, err := f.service.InitiateDownload(context.Background(), 42, nil)
	require.NoError(t, err)

	client.status = downloadclient.JobStatus{State: models.DownloadStatusCompleted, Progress: 100}
	completed, err := f.service.GetDownloadStatus(context.Background(), result.Download.ID)
	require.NoError(t, err)
	require.Equal(t, models.DownloadStatusCompleted, completed.Status)

	pollsAfterTerminal := client.statusCalls.Load()

	// repeated reads return the stored record without touching the client
	for range 3 {
		again, err := f.service.GetDownloadStatus(context.Background(), result.Download.ID)
		require.NoError(t, err)
		assert.Equal(t, completed.Status, again.Status)
		assert.Equal(t, completed.Progress, again.Progress)
	}
	assert.Equal(t, pollsAfterTerminal, client.statusCalls.Load())
}

func TestGetDownloadStatusFailureRecordsMessage(t *testing.T) {
	client := &fakeClient{submitJobID: "hash-1"}
	f := newFixture(&fakeSearchService{candidates: someCandidates()}, client)

	result, err := f.service.InitiateDownload(context.Background(), 42, nil)
	require.NoError(t, err)

	client.status = downloadclient.JobStatus{
		State:        models.DownloadStatusFailed,
		ErrorMessage: "tracker returned an error",
	}

	download, err := f.service.GetDownloadStatus(context.Background(), result.Download.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusFailed, download.Status)
	require.NotNil(t, download.ErrorMessage)
	assert.Equal(t, "tracker returned an error", *download.ErrorMessage)
}

func TestUpdateAllActiveDownloadsContinuesPastFailures(t *testing.T) {
	pollErr := errors.New("poll timeout")

	// a client that fails polls for one specific hash
	client := &selectiveFakeClient{
		failHash: "hash-bad",
		status:   downloadclient.JobStatus{State: models.DownloadStatusDownloading, Progress: 55},
	}

	downloadStore := newFakeDownloadStore()
	jobGood, jobBad := "hash-good", "hash-bad"
	_, err := downloadStore.Create(context.Background(), &models.Download{
		AlbumID: 1, ExternalJobID: &jobGood, SourceName: "idx", Status: models.DownloadStatusQueued,
	})
	require.NoError(t, err)
	bad, err := downloadStore.Create(context.Background(), &models.Download{
		AlbumID: 2, ExternalJobID: &jobBad, SourceName: "idx", Status: models.DownloadStatusQueued,
	})
	require.NoError(t, err)

	client.failErr = pollErr

	service := NewService(
		nil, nil, nil,
		downloadStore,
		&fakeClientStore{cfg: &models.DownloadClientConfig{Host: "http://localhost:8080"}},
		nil,
		factoryFor(client),
	)

	updated, err := service.UpdateAllActiveDownloads(context.Background())
	require.NoError(t, err, "one job's poll failure must not fail the bulk call")
	require.Len(t, updated, 2)

	// the failing job is left unchanged for this cycle
	unchanged, err := downloadStore.Get(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStatusQueued, unchanged.Status)

	statuses := map[models.DownloadStatus]int{}
	for _, download := range updated {
		statuses[download.Status]++
	}
	assert.Equal(t, 1, statuses[models.DownloadStatusDownloading])
	assert.Equal(t, 1, statuses[models.DownloadStatusQueued])
}

type selectiveFakeClient struct {
	failHash string
	failErr  error
	status   downloadclient.JobStatus
}

func (c *selectiveFakeClient) Submit(ctx context.Context, locator, category string) (string, error) {
	return "", errors.New("not used")
}

func (c *selectiveFakeClient) Status(ctx context.Context, jobID string) (downloadclient.JobStatus, error) {
	if jobID == c.failHash {
		return downloadclient.JobStatus{}, c.failErr
	}
	return c.status, nil
}
