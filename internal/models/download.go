// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/melodarr/melodarr/internal/dbinterface"
)

var (
	ErrDownloadNotFound = errors.New("download not found")
	ErrDownloadTerminal = errors.New("download is in a terminal state")
)

// DownloadStatus is the four-value lifecycle of a dispatched download.
//
//	queued --(active transfer)--> downloading
//	queued|downloading --(success)--> completed [terminal]
//	queued|downloading --(failure)--> failed    [terminal]
type DownloadStatus string

const (
	DownloadStatusQueued      DownloadStatus = "queued"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s DownloadStatus) IsTerminal() bool {
	return s == DownloadStatusCompleted || s == DownloadStatusFailed
}

func (s DownloadStatus) IsValid() bool {
	switch s {
	case DownloadStatusQueued, DownloadStatusDownloading, DownloadStatusCompleted, DownloadStatusFailed:
		return true
	}
	return false
}

type Download struct {
	ID               int            `json:"id"`
	AlbumID          int            `json:"albumId"`
	ExternalJobID    *string        `json:"externalJobId,omitempty"`
	SourceName       string         `json:"sourceName"`
	Status           DownloadStatus `json:"status"`
	Progress         int            `json:"progress"`
	QualityProfileID *int           `json:"qualityProfileId,omitempty"`
	InitiatedAt      time.Time      `json:"initiatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	ErrorMessage     *string        `json:"errorMessage,omitempty"`
}

type DownloadStore struct {
	db dbinterface.Querier
}

func NewDownloadStore(db dbinterface.Querier) *DownloadStore {
	return &DownloadStore{db: db}
}

func (s *DownloadStore) Create(ctx context.Context, download *Download) (*Download, error) {
	if download.Status == "" {
		download.Status = DownloadStatusQueued
	}
	if !download.Status.IsValid() {
		return nil, fmt.Errorf("invalid download status %q", download.Status)
	}

	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO downloads (album_id, external_job_id, source_name, status, progress, quality_profile_id)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, download.AlbumID, download.ExternalJobID, download.SourceName, string(download.Status), download.Progress, download.QualityProfileID).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *DownloadStore) Get(ctx context.Context, id int) (*Download, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, album_id, external_job_id, source_name, status, progress, quality_profile_id, initiated_at, completed_at, error_message
		FROM downloads
		WHERE id = ?
	`, id)
	return scanDownload(row)
}

// ListActive returns downloads that have not reached a terminal status.
func (s *DownloadStore) ListActive(ctx context.Context) ([]*Download, error) {
	return s.list(ctx, `
		SELECT id, album_id, external_job_id, source_name, status, progress, quality_profile_id, initiated_at, completed_at, error_message
		FROM downloads
		WHERE status IN ('queued', 'downloading')
		ORDER BY initiated_at ASC
	`)
}

func (s *DownloadStore) List(ctx context.Context) ([]*Download, error) {
	return s.list(ctx, `
		SELECT id, album_id, external_job_id, source_name, status, progress, quality_profile_id, initiated_at, completed_at, error_message
		FROM downloads
		ORDER BY initiated_at DESC
	`)
}

func (s *DownloadStore) list(ctx context.Context, query string) ([]*Download, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*Download
	for rows.Next() {
		download, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, download)
	}
	return downloads, rows.Err()
}

// UpdateStatus applies a state transition. Transitions out of a terminal
// status are rejected with ErrDownloadTerminal; completed_at is stamped when
// a terminal status is first reached.
func (s *DownloadStore) UpdateStatus(ctx context.Context, id int, status DownloadStatus, progress int, errorMessage *string) (*Download, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid download status %q", status)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM downloads WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDownloadNotFound
		}
		return nil, err
	}
	if DownloadStatus(current).IsTerminal() {
		return nil, ErrDownloadTerminal
	}

	var completedAt any
	if status.IsTerminal() {
		completedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE downloads
		SET status = ?, progress = ?, error_message = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ?
	`, string(status), progress, errorMessage, completedAt, id)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, id)
}

func scanDownload(row rowScanner) (*Download, error) {
	var (
		download     Download
		jobID        sql.NullString
		status       string
		profileID    sql.NullInt64
		completedAt  sql.NullTime
		errorMessage sql.NullString
	)

	err := row.Scan(
		&download.ID,
		&download.AlbumID,
		&jobID,
		&download.SourceName,
		&status,
		&download.Progress,
		&profileID,
		&download.InitiatedAt,
		&completedAt,
		&errorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDownloadNotFound
		}
		return nil, err
	}

	download.Status = DownloadStatus(status)
	if jobID.Valid {
		download.ExternalJobID = &jobID.String
	}
	if profileID.Valid {
		v := int(profileID.Int64)
		download.QualityProfileID = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		download.CompletedAt = &t
	}
	if errorMessage.Valid {
		download.ErrorMessage = &errorMessage.String
	}

	return &download, nil
}
