// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodarr/melodarr/internal/database"
	"github.com/melodarr/melodarr/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

func TestQualityProfileCreateAndGet(t *testing.T) {
	store := models.NewQualityProfileStore(newTestDB(t))
	ctx := context.Background()

	created, err := store.Create(ctx, &models.QualityProfile{
		Name:           "lossless",
		Formats:        []string{"flac", "FLAC", "mp3"},
		MinBitrateKbps: intPtr(256),
		IsDefault:      true,
	})
	require.NoError(t, err)

	// formats are uppercased and deduplicated, order preserved
	assert.Equal(t, []string{"FLAC", "MP3"}, created.Formats)
	assert.True(t, created.IsDefault)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	assert.Equal(t, created.Formats, got.Formats)
	require.NotNil(t, got.MinBitrateKbps)
	assert.Equal(t, 256, *got.MinBitrateKbps)
	assert.Nil(t, got.MaxFileSizeMB)
}

func TestQualityProfileCreateRejectsEmptyFormats(t *testing.T) {
	store := models.NewQualityProfileStore(newTestDB(t))

	_, err := store.Create(context.Background(), &models.QualityProfile{
		Name:    "broken",
		Formats: nil,
	})
	assert.Error(t, err)
}

func TestQualityProfileDefaultExclusivity(t *testing.T) {
	store := models.NewQualityProfileStore(newTestDB(t))
	ctx := context.Background()

	p1, err := store.Create(ctx, &models.QualityProfile{Name: "one", Formats: []string{"FLAC"}, IsDefault: true})
	require.NoError(t, err)
	p2, err := store.Create(ctx, &models.QualityProfile{Name: "two", Formats: []string{"MP3"}})
	require.NoError(t, err)

	def, err := store.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, def.ID)

	_, err = store.SetDefault(ctx, p2.ID)
	require.NoError(t, err)

	def, err = store.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, p2.ID, def.ID)

	// no other profile may keep the flag
	profiles, err := store.List(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, profile := range profiles {
		if profile.IsDefault {
			defaults++
			assert.Equal(t, p2.ID, profile.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestQualityProfileGetDefaultWhenNoneSet(t *testing.T) {
	store := models.NewQualityProfileStore(newTestDB(t))
	ctx := context.Background()

	_, err := store.Create(ctx, &models.QualityProfile{Name: "plain", Formats: []string{"MP3"}})
	require.NoError(t, err)

	_, err = store.GetDefault(ctx)
	assert.ErrorIs(t, err, models.ErrNoDefaultProfile)
}

func TestQualityProfileDeleteDefaultRejected(t *testing.T) {
	store := models.NewQualityProfileStore(newTestDB(t))
	ctx := context.Background()

	p1, err := store.Create(ctx, &models.QualityProfile{Name: "one", Formats: []string{"FLAC"}, IsDefault: true})
	require.NoError(t, err)
	p2, err := store.Create(ctx, &models.QualityProfile{Name: "two", Formats: []string{"MP3"}})
	require.NoError(t, err)

	err = store.Delete(ctx, p1.ID)
	assert.ErrorIs(t, err, models.ErrProfileIsDefault)

	// designating a new default unblocks the delete
	_, err = store.SetDefault(ctx, p2.ID)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, p1.ID))

	_, err = store.Get(ctx, p1.ID)
	assert.ErrorIs(t, err, models.ErrQualityProfileNotFound)
}

func TestQualityProfileAcceptsFormat(t *testing.T) {
	profile := &models.QualityProfile{Formats: []string{"FLAC", "MP3"}}

	assert.True(t, profile.AcceptsFormat("flac"))
	assert.True(t, profile.AcceptsFormat("MP3"))
	assert.False(t, profile.AcceptsFormat("OGG"))

	assert.Equal(t, 0, profile.FormatIndex("flac"))
	assert.Equal(t, 1, profile.FormatIndex("mp3"))
	assert.Equal(t, -1, profile.FormatIndex("ogg"))
}
