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

var ErrDownloadClientNotConfigured = errors.New("download client not configured")

// DownloadClientConfig is the single download-client configuration row.
type DownloadClientConfig struct {
	Host              string    `json:"host"`
	Username          string    `json:"username,omitempty"`
	PasswordEncrypted string    `json:"-"`
	Category          string    `json:"category"`
	TimeoutSeconds    int       `json:"timeoutSeconds"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type DownloadClientStore struct {
	db            dbinterface.Querier
	encryptionKey []byte
}

func NewDownloadClientStore(db dbinterface.Querier, encryptionKey []byte) (*DownloadClientStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	return &DownloadClientStore{
		db:            db,
		encryptionKey: encryptionKey,
	}, nil
}

// Get returns the configured download client, or ErrDownloadClientNotConfigured.
func (s *DownloadClientStore) Get(ctx context.Context) (*DownloadClientConfig, error) {
	var (
		cfg      DownloadClientConfig
		username sql.NullString
		password sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT host, username, password_encrypted, category, timeout_seconds, updated_at
		FROM download_client
		WHERE id = 1
	`).Scan(&cfg.Host, &username, &password, &cfg.Category, &cfg.TimeoutSeconds, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDownloadClientNotConfigured
		}
		return nil, err
	}

	if username.Valid {
		cfg.Username = username.String
	}
	if password.Valid {
		cfg.PasswordEncrypted = password.String
	}

	return &cfg, nil
}

// Set creates or replaces the download-client configuration. An empty
// password keeps the stored one.
func (s *DownloadClientStore) Set(ctx context.Context, rawHost, username, password, category string, timeoutSeconds int) (*DownloadClientConfig, error) {
	normalizedHost, err := validateAndNormalizeHost(rawHost)
	if err != nil {
		return nil, err
	}

	if category == "" {
		category = "music"
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 8
	}

	var encryptedPassword sql.NullString
	if password != "" {
		encrypted, err := encryptString(s.encryptionKey, password)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt password: %w", err)
		}
		encryptedPassword = sql.NullString{String: encrypted, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO download_client (id, host, username, password_encrypted, category, timeout_seconds, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			host = excluded.host,
			username = excluded.username,
			password_encrypted = COALESCE(excluded.password_encrypted, password_encrypted),
			category = excluded.category,
			timeout_seconds = excluded.timeout_seconds,
			updated_at = CURRENT_TIMESTAMP
	`, normalizedHost, username, encryptedPassword, category, timeoutSeconds)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx)
}

// GetDecryptedPassword returns the plaintext download-client password.
func (s *DownloadClientStore) GetDecryptedPassword(cfg *DownloadClientConfig) (string, error) {
	if cfg.PasswordEncrypted == "" {
		return "", nil
	}
	return decryptString(s.encryptionKey, cfg.PasswordEncrypted)
}
