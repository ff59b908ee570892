// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/melodarr/melodarr/internal/dbinterface"
)

var ErrArtistNotFound = errors.New("artist not found")

type Artist struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	ExternalID    *string    `json:"externalId,omitempty"`
	Monitored     bool       `json:"monitored"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type ArtistStore struct {
	db dbinterface.Querier
}

func NewArtistStore(db dbinterface.Querier) *ArtistStore {
	return &ArtistStore{db: db}
}

func (s *ArtistStore) Create(ctx context.Context, name string, externalID *string, monitored bool) (*Artist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("artist name cannot be empty")
	}

	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO artists (name, external_id, monitored)
		VALUES (?, ?, ?)
		RETURNING id
	`, name, externalID, monitored).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *ArtistStore) Get(ctx context.Context, id int) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, external_id, monitored, last_checked_at, created_at
		FROM artists
		WHERE id = ?
	`, id)
	return scanArtist(row)
}

func (s *ArtistStore) GetByName(ctx context.Context, name string) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, external_id, monitored, last_checked_at, created_at
		FROM artists
		WHERE name = ? COLLATE NOCASE
	`, strings.TrimSpace(name))
	return scanArtist(row)
}

func (s *ArtistStore) List(ctx context.Context) ([]*Artist, error) {
	return s.list(ctx, `
		SELECT id, name, external_id, monitored, last_checked_at, created_at
		FROM artists
		ORDER BY name COLLATE NOCASE ASC
	`)
}

// ListMonitored returns artists flagged for the monitoring loop.
func (s *ArtistStore) ListMonitored(ctx context.Context) ([]*Artist, error) {
	return s.list(ctx, `
		SELECT id, name, external_id, monitored, last_checked_at, created_at
		FROM artists
		WHERE monitored = 1
		ORDER BY name COLLATE NOCASE ASC
	`)
}

func (s *ArtistStore) list(ctx context.Context, query string) ([]*Artist, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []*Artist
	for rows.Next() {
		artist, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, artist)
	}
	return artists, rows.Err()
}

func (s *ArtistStore) SetMonitored(ctx context.Context, id int, monitored bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE artists SET monitored = ? WHERE id = ?`, monitored, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrArtistNotFound)
}

// TouchLastChecked records when the monitoring loop last processed this artist.
func (s *ArtistStore) TouchLastChecked(ctx context.Context, id int, checkedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE artists SET last_checked_at = ? WHERE id = ?`, checkedAt.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrArtistNotFound)
}

func (s *ArtistStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM artists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrArtistNotFound)
}

func scanArtist(row rowScanner) (*Artist, error) {
	var (
		artist      Artist
		externalID  sql.NullString
		lastChecked sql.NullTime
	)

	err := row.Scan(&artist.ID, &artist.Name, &externalID, &artist.Monitored, &lastChecked, &artist.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArtistNotFound
		}
		return nil, err
	}

	if externalID.Valid {
		artist.ExternalID = &externalID.String
	}
	if lastChecked.Valid {
		t := lastChecked.Time
		artist.LastCheckedAt = &t
	}

	return &artist, nil
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
