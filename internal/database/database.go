// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS quality_profiles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	formats TEXT NOT NULL,
	min_bitrate_kbps INTEGER,
	max_file_size_mb INTEGER,
	is_default BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS artists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	external_id TEXT,
	monitored BOOLEAN NOT NULL DEFAULT 0,
	last_checked_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS albums (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	year INTEGER,
	external_id TEXT,
	owned BOOLEAN NOT NULL DEFAULT 0,
	track_count INTEGER,
	added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (artist_id, title)
);

CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id);

CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	album_id INTEGER NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
	external_job_id TEXT,
	source_name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	progress INTEGER NOT NULL DEFAULT 0,
	quality_profile_id INTEGER REFERENCES quality_profiles(id) ON DELETE SET NULL,
	initiated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at TIMESTAMP,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);

CREATE TABLE IF NOT EXISTS indexers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	base_url TEXT NOT NULL,
	api_key_encrypted TEXT,
	backend TEXT NOT NULL DEFAULT 'auto',
	enabled BOOLEAN NOT NULL DEFAULT 1,
	timeout_seconds INTEGER NOT NULL DEFAULT 30,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS download_client (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	host TEXT NOT NULL,
	username TEXT,
	password_encrypted TEXT,
	category TEXT NOT NULL DEFAULT 'music',
	timeout_seconds INTEGER NOT NULL DEFAULT 8,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens (and creates if needed) the melodarr SQLite database at path.
// Use ":memory:" for tests.
func New(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("Database initialized")

	return db, nil
}
