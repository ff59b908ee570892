// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package downloadclient adapts the external download client behind a small
// submit/poll interface so the orchestration layer never sees backend state
// vocabularies or transport details.
package downloadclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/buildinfo"
	"github.com/melodarr/melodarr/internal/models"
)

const maxTorrentBytes int64 = 16 << 20 // safety limit for fetched torrent blobs

// JobStatus is the backend-agnostic view of one transfer job.
type JobStatus struct {
	State        models.DownloadStatus
	Progress     int
	ErrorMessage string
}

// Client is the submit/poll contract the orchestrator depends on.
type Client interface {
	// Submit hands a download locator to the backend and returns the
	// opaque job id used for later polling.
	Submit(ctx context.Context, locator, category string) (string, error)
	// Status reports the current state of a previously submitted job.
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// Factory builds a connected client from stored configuration. Swappable in
// tests.
type Factory func(ctx context.Context, cfg *models.DownloadClientConfig, password string) (Client, error)

// QBittorrent implements Client against a qBittorrent instance. Jobs are
// identified by torrent infohash.
type QBittorrent struct {
	client     *qbt.Client
	httpClient *http.Client
}

// NewQBittorrent connects and authenticates against the configured instance.
func NewQBittorrent(ctx context.Context, cfg *models.DownloadClientConfig, password string) (Client, error) {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 8
	}

	client := qbt.NewClient(qbt.Config{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: password,
		Timeout:  timeout,
	})

	if err := client.LoginCtx(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to download client: %w", err)
	}

	return &QBittorrent{
		client:     client,
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

// Submit adds the locator to qBittorrent and returns its infohash. Magnet
// links carry the hash inline; plain URLs require fetching the torrent file
// to hash its info dictionary, since qBittorrent's add endpoint returns no
// identifier.
func (q *QBittorrent) Submit(ctx context.Context, locator, category string) (string, error) {
	options := map[string]string{}
	if category != "" {
		options["category"] = category
	}

	if strings.HasPrefix(locator, "magnet:") {
		magnet, err := metainfo.ParseMagnetUri(locator)
		if err != nil {
			return "", fmt.Errorf("failed to parse magnet link: %w", err)
		}

		if err := q.client.AddTorrentFromUrlCtx(ctx, locator, options); err != nil {
			return "", fmt.Errorf("download client rejected magnet submission: %w", err)
		}
		return magnet.InfoHash.HexString(), nil
	}

	blob, err := q.fetchTorrent(ctx, locator)
	if err != nil {
		return "", err
	}

	mi, err := metainfo.Load(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("failed to parse torrent file: %w", err)
	}

	if err := q.client.AddTorrentFromMemoryCtx(ctx, blob, options); err != nil {
		return "", fmt.Errorf("download client rejected torrent submission: %w", err)
	}

	return mi.HashInfoBytes().HexString(), nil
}

func (q *QBittorrent) fetchTorrent(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid download locator: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch torrent file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("torrent download from %s returned status %d", locator, resp.StatusCode)
	}

	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent file: %w", err)
	}
	return blob, nil
}

// Status polls qBittorrent for the torrent matching the job's infohash and
// maps its state vocabulary into the four-value status enum.
func (q *QBittorrent) Status(ctx context.Context, jobID string) (JobStatus, error) {
	torrents, err := q.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{
		Hashes: []string{jobID},
	})
	if err != nil {
		return JobStatus{}, fmt.Errorf("failed to poll download client: %w", err)
	}

	if len(torrents) == 0 {
		// The torrent vanished from the client, most likely removed by
		// hand. Treat as failed so the record reaches a terminal state.
		return JobStatus{
			State:        models.DownloadStatusFailed,
			ErrorMessage: "job no longer present in download client",
		}, nil
	}

	torrent := torrents[0]
	status := JobStatus{
		State:    mapTorrentState(torrent.State, torrent.Progress),
		Progress: int(torrent.Progress * 100),
	}
	if status.Progress > 100 {
		status.Progress = 100
	}
	if status.State == models.DownloadStatusFailed {
		status.ErrorMessage = fmt.Sprintf("download client reported state %q", torrent.State)
	}

	log.Trace().
		Str("hash", jobID).
		Str("state", string(torrent.State)).
		Int("progress", status.Progress).
		Msg("Polled download client")

	return status, nil
}

func mapTorrentState(state qbt.TorrentState, progress float64) models.DownloadStatus {
	switch state {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return models.DownloadStatusFailed
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStateQueuedUp,
		qbt.TorrentStatePausedUp, qbt.TorrentStateStoppedUp, qbt.TorrentStateForcedUp,
		qbt.TorrentStateCheckingUp:
		return models.DownloadStatusCompleted
	case qbt.TorrentStateQueuedDl, qbt.TorrentStateAllocating, qbt.TorrentStateMetaDl,
		qbt.TorrentStateCheckingResumeData:
		return models.DownloadStatusQueued
	case qbt.TorrentStateDownloading, qbt.TorrentStateStalledDl, qbt.TorrentStateForcedDl,
		qbt.TorrentStateCheckingDl, qbt.TorrentStatePausedDl, qbt.TorrentStateStoppedDl,
		qbt.TorrentStateMoving:
		return models.DownloadStatusDownloading
	default:
		// Seeding-like states do not exist beyond the ones above, so an
		// unknown state with full progress means the payload arrived.
		if progress >= 1 {
			return models.DownloadStatusCompleted
		}
		return models.DownloadStatusDownloading
	}
}
