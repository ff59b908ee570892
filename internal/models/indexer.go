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

var ErrIndexerNotFound = errors.New("indexer not found")

// IndexerBackend hints at the response shape an indexer serves. Auto sniffs
// per response, the others skip detection.
type IndexerBackend string

const (
	IndexerBackendAuto IndexerBackend = "auto"
	IndexerBackendJSON IndexerBackend = "json"
	IndexerBackendXML  IndexerBackend = "xml"
)

func (b IndexerBackend) IsValid() bool {
	switch b {
	case IndexerBackendAuto, IndexerBackendJSON, IndexerBackendXML:
		return true
	}
	return false
}

type Indexer struct {
	ID              int            `json:"id"`
	Name            string         `json:"name"`
	BaseURL         string         `json:"baseUrl"`
	APIKeyEncrypted string         `json:"-"`
	Backend         IndexerBackend `json:"backend"`
	Enabled         bool           `json:"enabled"`
	TimeoutSeconds  int            `json:"timeoutSeconds"`
	CreatedAt       time.Time      `json:"createdAt"`
}

type IndexerStore struct {
	db            dbinterface.Querier
	encryptionKey []byte
}

func NewIndexerStore(db dbinterface.Querier, encryptionKey []byte) (*IndexerStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	return &IndexerStore{
		db:            db,
		encryptionKey: encryptionKey,
	}, nil
}

func (s *IndexerStore) Create(ctx context.Context, name, rawBaseURL, apiKey string, backend IndexerBackend, enabled bool, timeoutSeconds int) (*Indexer, error) {
	normalizedURL, err := validateAndNormalizeHost(rawBaseURL)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("indexer name cannot be empty")
	}

	if backend == "" {
		backend = IndexerBackendAuto
	}
	if !backend.IsValid() {
		return nil, fmt.Errorf("invalid indexer backend %q", backend)
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	var encryptedKey sql.NullString
	if apiKey != "" {
		encrypted, err := encryptString(s.encryptionKey, apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api key: %w", err)
		}
		encryptedKey = sql.NullString{String: encrypted, Valid: true}
	}

	var id int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO indexers (name, base_url, api_key_encrypted, backend, enabled, timeout_seconds)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, name, normalizedURL, encryptedKey, string(backend), enabled, timeoutSeconds).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *IndexerStore) Get(ctx context.Context, id int) (*Indexer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, base_url, api_key_encrypted, backend, enabled, timeout_seconds, created_at
		FROM indexers
		WHERE id = ?
	`, id)
	return scanIndexer(row)
}

func (s *IndexerStore) List(ctx context.Context) ([]*Indexer, error) {
	return s.list(ctx, `
		SELECT id, name, base_url, api_key_encrypted, backend, enabled, timeout_seconds, created_at
		FROM indexers
		ORDER BY name COLLATE NOCASE ASC
	`)
}

// ListEnabled returns the indexers eligible for fan-out searches.
func (s *IndexerStore) ListEnabled(ctx context.Context) ([]*Indexer, error) {
	return s.list(ctx, `
		SELECT id, name, base_url, api_key_encrypted, backend, enabled, timeout_seconds, created_at
		FROM indexers
		WHERE enabled = 1
		ORDER BY name COLLATE NOCASE ASC
	`)
}

func (s *IndexerStore) list(ctx context.Context, query string) ([]*Indexer, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexers []*Indexer
	for rows.Next() {
		indexer, err := scanIndexer(rows)
		if err != nil {
			return nil, err
		}
		indexers = append(indexers, indexer)
	}
	return indexers, rows.Err()
}

func (s *IndexerStore) Update(ctx context.Context, id int, name, rawBaseURL, apiKey string, backend IndexerBackend, enabled *bool, timeoutSeconds int) (*Indexer, error) {
	normalizedURL, err := validateAndNormalizeHost(rawBaseURL)
	if err != nil {
		return nil, err
	}

	if backend != "" && !backend.IsValid() {
		return nil, fmt.Errorf("invalid indexer backend %q", backend)
	}

	query := "UPDATE indexers SET name = ?, base_url = ?"
	args := []any{strings.TrimSpace(name), normalizedURL}

	// Empty api key means keep the stored one.
	if apiKey != "" {
		encrypted, err := encryptString(s.encryptionKey, apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api key: %w", err)
		}
		query += ", api_key_encrypted = ?"
		args = append(args, encrypted)
	}

	if backend != "" {
		query += ", backend = ?"
		args = append(args, string(backend))
	}

	if enabled != nil {
		query += ", enabled = ?"
		args = append(args, *enabled)
	}

	if timeoutSeconds > 0 {
		query += ", timeout_seconds = ?"
		args = append(args, timeoutSeconds)
	}

	query += " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if err := requireRow(result, ErrIndexerNotFound); err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *IndexerStore) SetEnabled(ctx context.Context, id int, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE indexers SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrIndexerNotFound)
}

func (s *IndexerStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM indexers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrIndexerNotFound)
}

// GetDecryptedAPIKey returns the plaintext api key for an indexer.
func (s *IndexerStore) GetDecryptedAPIKey(indexer *Indexer) (string, error) {
	if indexer.APIKeyEncrypted == "" {
		return "", nil
	}
	return decryptString(s.encryptionKey, indexer.APIKeyEncrypted)
}

func scanIndexer(row rowScanner) (*Indexer, error) {
	var (
		indexer Indexer
		apiKey  sql.NullString
		backend string
	)

	err := row.Scan(
		&indexer.ID,
		&indexer.Name,
		&indexer.BaseURL,
		&apiKey,
		&backend,
		&indexer.Enabled,
		&indexer.TimeoutSeconds,
		&indexer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIndexerNotFound
		}
		return nil, err
	}

	indexer.Backend = IndexerBackend(backend)
	if apiKey.Valid {
		indexer.APIKeyEncrypted = apiKey.String
	}

	return &indexer, nil
}
