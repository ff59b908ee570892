// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/melodarr/melodarr/internal/dbinterface"
)

var (
	ErrQualityProfileNotFound = errors.New("quality profile not found")
	ErrNoDefaultProfile       = errors.New("no default quality profile configured")
	ErrProfileIsDefault       = errors.New("cannot delete the default quality profile; set another default first")
)

// QualityProfile is a named, user-configured set of acceptance and preference
// rules for selecting among search candidates. Formats is ordered: earlier
// entries are preferred by the ranker.
type QualityProfile struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Formats        []string  `json:"formats"`
	MinBitrateKbps *int      `json:"minBitrateKbps,omitempty"`
	MaxFileSizeMB  *int      `json:"maxFileSizeMB,omitempty"`
	IsDefault      bool      `json:"isDefault"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AcceptsFormat reports whether format appears in the profile's allow-list,
// case-insensitively.
func (p *QualityProfile) AcceptsFormat(format string) bool {
	return p.FormatIndex(format) >= 0
}

// FormatIndex returns the 0-based preference position of format, or -1.
func (p *QualityProfile) FormatIndex(format string) int {
	for i, f := range p.Formats {
		if strings.EqualFold(f, format) {
			return i
		}
	}
	return -1
}

func normalizeFormats(formats []string) ([]string, error) {
	if len(formats) == 0 {
		return nil, errors.New("quality profile requires at least one format")
	}
	out := make([]string, 0, len(formats))
	seen := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, errors.New("quality profile requires at least one format")
	}
	return out, nil
}

type QualityProfileStore struct {
	db dbinterface.Querier
}

func NewQualityProfileStore(db dbinterface.Querier) *QualityProfileStore {
	return &QualityProfileStore{db: db}
}

func (s *QualityProfileStore) Create(ctx context.Context, profile *QualityProfile) (*QualityProfile, error) {
	formats, err := normalizeFormats(profile.Formats)
	if err != nil {
		return nil, err
	}

	formatsJSON, err := json.Marshal(formats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode formats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if profile.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE quality_profiles SET is_default = 0 WHERE is_default = 1`); err != nil {
			return nil, err
		}
	}

	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO quality_profiles (name, formats, min_bitrate_kbps, max_file_size_mb, is_default)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, profile.Name, string(formatsJSON), profile.MinBitrateKbps, profile.MaxFileSizeMB, profile.IsDefault).Scan(&id)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, id)
}

func (s *QualityProfileStore) Get(ctx context.Context, id int) (*QualityProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, formats, min_bitrate_kbps, max_file_size_mb, is_default, created_at, updated_at
		FROM quality_profiles
		WHERE id = ?
	`, id)
	return scanQualityProfile(row)
}

// GetDefault returns the profile flagged as default, or ErrNoDefaultProfile.
func (s *QualityProfileStore) GetDefault(ctx context.Context) (*QualityProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, formats, min_bitrate_kbps, max_file_size_mb, is_default, created_at, updated_at
		FROM quality_profiles
		WHERE is_default = 1
	`)
	profile, err := scanQualityProfile(row)
	if errors.Is(err, ErrQualityProfileNotFound) {
		return nil, ErrNoDefaultProfile
	}
	return profile, err
}

func (s *QualityProfileStore) List(ctx context.Context) ([]*QualityProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, formats, min_bitrate_kbps, max_file_size_mb, is_default, created_at, updated_at
		FROM quality_profiles
		ORDER BY name COLLATE NOCASE ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*QualityProfile
	for rows.Next() {
		profile, err := scanQualityProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

func (s *QualityProfileStore) Update(ctx context.Context, profile *QualityProfile) (*QualityProfile, error) {
	formats, err := normalizeFormats(profile.Formats)
	if err != nil {
		return nil, err
	}

	formatsJSON, err := json.Marshal(formats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode formats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if profile.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE quality_profiles SET is_default = 0 WHERE is_default = 1 AND id != ?`, profile.ID); err != nil {
			return nil, err
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE quality_profiles
		SET name = ?, formats = ?, min_bitrate_kbps = ?, max_file_size_mb = ?, is_default = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, profile.Name, string(formatsJSON), profile.MinBitrateKbps, profile.MaxFileSizeMB, profile.IsDefault, profile.ID)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrQualityProfileNotFound
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, profile.ID)
}

// SetDefault marks the given profile as the default and clears the flag on
// all others within the same transaction, so at most one default is ever
// observable.
func (s *QualityProfileStore) SetDefault(ctx context.Context, id int) (*QualityProfile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE quality_profiles SET is_default = 0 WHERE is_default = 1`); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `UPDATE quality_profiles SET is_default = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrQualityProfileNotFound
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, id)
}

// Delete removes a profile. Deleting the current default is rejected; a new
// default must be designated first.
func (s *QualityProfileStore) Delete(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var isDefault bool
	err = tx.QueryRowContext(ctx, `SELECT is_default FROM quality_profiles WHERE id = ?`, id).Scan(&isDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQualityProfileNotFound
		}
		return err
	}
	if isDefault {
		return ErrProfileIsDefault
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM quality_profiles WHERE id = ?`, id); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQualityProfile(row rowScanner) (*QualityProfile, error) {
	var (
		profile     QualityProfile
		formatsJSON string
		minBitrate  sql.NullInt64
		maxSizeMB   sql.NullInt64
	)

	err := row.Scan(
		&profile.ID,
		&profile.Name,
		&formatsJSON,
		&minBitrate,
		&maxSizeMB,
		&profile.IsDefault,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQualityProfileNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(formatsJSON), &profile.Formats); err != nil {
		return nil, fmt.Errorf("failed to decode formats for profile %d: %w", profile.ID, err)
	}
	if minBitrate.Valid {
		v := int(minBitrate.Int64)
		profile.MinBitrateKbps = &v
	}
	if maxSizeMB.Valid {
		v := int(maxSizeMB.Int64)
		profile.MaxFileSizeMB = &v
	}

	return &profile, nil
}
