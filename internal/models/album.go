// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/melodarr/melodarr/internal/dbinterface"
)

var ErrAlbumNotFound = errors.New("album not found")

type Album struct {
	ID         int       `json:"id"`
	ArtistID   int       `json:"artistId"`
	Title      string    `json:"title"`
	Year       *int      `json:"year,omitempty"`
	ExternalID *string   `json:"externalId,omitempty"`
	Owned      bool      `json:"owned"`
	TrackCount *int      `json:"trackCount,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

type AlbumStore struct {
	db dbinterface.Querier
}

func NewAlbumStore(db dbinterface.Querier) *AlbumStore {
	return &AlbumStore{db: db}
}

func (s *AlbumStore) Create(ctx context.Context, album *Album) (*Album, error) {
	title := strings.TrimSpace(album.Title)
	if title == "" {
		return nil, errors.New("album title cannot be empty")
	}

	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO albums (artist_id, title, year, external_id, owned, track_count)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, album.ArtistID, title, album.Year, album.ExternalID, album.Owned, album.TrackCount).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Upsert inserts the album or, when (artist, title) already exists, refreshes
// year/track count and the owned flag if it upgrades to owned. Used by
// library imports so rescans never flip an album back to missing.
func (s *AlbumStore) Upsert(ctx context.Context, album *Album) (*Album, error) {
	title := strings.TrimSpace(album.Title)
	if title == "" {
		return nil, errors.New("album title cannot be empty")
	}

	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO albums (artist_id, title, year, external_id, owned, track_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (artist_id, title) DO UPDATE SET
			year = COALESCE(excluded.year, year),
			external_id = COALESCE(excluded.external_id, external_id),
			owned = MAX(owned, excluded.owned),
			track_count = COALESCE(excluded.track_count, track_count)
		RETURNING id
	`, album.ArtistID, title, album.Year, album.ExternalID, album.Owned, album.TrackCount).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *AlbumStore) Get(ctx context.Context, id int) (*Album, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, artist_id, title, year, external_id, owned, track_count, added_at
		FROM albums
		WHERE id = ?
	`, id)
	return scanAlbum(row)
}

func (s *AlbumStore) ListByArtist(ctx context.Context, artistID int) ([]*Album, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, artist_id, title, year, external_id, owned, track_count, added_at
		FROM albums
		WHERE artist_id = ?
		ORDER BY year ASC, title COLLATE NOCASE ASC
	`, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var albums []*Album
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}
	return albums, rows.Err()
}

func (s *AlbumStore) SetOwned(ctx context.Context, id int, owned bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE albums SET owned = ? WHERE id = ?`, owned, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlbumNotFound)
}

func (s *AlbumStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM albums WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlbumNotFound)
}

func scanAlbum(row rowScanner) (*Album, error) {
	var (
		album      Album
		year       sql.NullInt64
		externalID sql.NullString
		trackCount sql.NullInt64
	)

	err := row.Scan(&album.ID, &album.ArtistID, &album.Title, &year, &externalID, &album.Owned, &trackCount, &album.AddedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlbumNotFound
		}
		return nil, err
	}

	if year.Valid {
		v := int(year.Int64)
		album.Year = &v
	}
	if externalID.Valid {
		album.ExternalID = &externalID.String
	}
	if trackCount.Valid {
		v := int(trackCount.Int64)
		album.TrackCount = &v
	}

	return &album, nil
}
