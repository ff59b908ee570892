// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metadata looks up artist discographies from a MusicBrainz-style
// JSON API. Responses are cached in memory; the source rate-limits
// aggressively and discographies change rarely.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/buildinfo"
)

const (
	defaultBaseURL    = "https://musicbrainz.org/ws/2"
	defaultCacheTTL   = 6 * time.Hour
	requestTimeout    = 15 * time.Second
	lookupRetries     = 3
	lookupRetryDelay  = 500 * time.Millisecond
	maxResponseBytes  = 8 << 20
	artistSearchLimit = 5
)

// ErrArtistNotFound signals that the metadata source knows no artist
// plausibly matching the requested name.
var ErrArtistNotFound = errors.New("artist not found in metadata source")

// Release is one discography entry as reported by the metadata source.
type Release struct {
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
	ExternalID string `json:"externalId"`
}

// Client is the discography lookup contract consumed by the monitoring loop.
type Client interface {
	LookupDiscography(ctx context.Context, artistName string) ([]Release, error)
}

// HTTPClient implements Client against a MusicBrainz-compatible endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *ttlcache.Cache[string, []Release]
}

type Option func(*HTTPClient)

// WithBaseURL points the client at an alternate endpoint, typically a local
// mirror or a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func NewHTTPClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache: ttlcache.New(ttlcache.Options[string, []Release]{}.
			SetDefaultTTL(defaultCacheTTL)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type artistSearchResponse struct {
	Artists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artists"`
}

type releaseGroupResponse struct {
	ReleaseGroups []struct {
		ID               string `json:"id"`
		Title            string `json:"title"`
		FirstReleaseDate string `json:"first-release-date"`
	} `json:"release-groups"`
}

// LookupDiscography resolves an artist by name and returns every release
// group the source reports for them.
func (c *HTTPClient) LookupDiscography(ctx context.Context, artistName string) ([]Release, error) {
	cacheKey := strings.ToLower(strings.TrimSpace(artistName))
	if releases, ok := c.cache.Get(cacheKey); ok {
		return releases, nil
	}

	artistID, err := c.lookupArtistID(ctx, artistName)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("artist", artistID)
	params.Set("type", "album")
	params.Set("fmt", "json")

	var decoded releaseGroupResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/release-group?%s", c.baseURL, params.Encode()), &decoded); err != nil {
		return nil, fmt.Errorf("failed to fetch discography: %w", err)
	}

	releases := make([]Release, 0, len(decoded.ReleaseGroups))
	for _, group := range decoded.ReleaseGroups {
		if group.Title == "" {
			continue
		}
		release := Release{Title: group.Title, ExternalID: group.ID}
		if len(group.FirstReleaseDate) >= 4 {
			if year, err := strconv.Atoi(group.FirstReleaseDate[:4]); err == nil {
				release.Year = &year
			}
		}
		releases = append(releases, release)
	}

	c.cache.Set(cacheKey, releases, ttlcache.DefaultTTL)

	log.Debug().
		Str("artist", artistName).
		Int("releases", len(releases)).
		Msg("Fetched discography from metadata source")

	return releases, nil
}

// lookupArtistID searches the source by name and picks the closest match by
// edit distance. Search engines return fuzzy hits, so the top result is not
// always the right artist.
func (c *HTTPClient) lookupArtistID(ctx context.Context, artistName string) (string, error) {
	params := url.Values{}
	params.Set("query", artistName)
	params.Set("limit", strconv.Itoa(artistSearchLimit))
	params.Set("fmt", "json")

	var decoded artistSearchResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/artist?%s", c.baseURL, params.Encode()), &decoded); err != nil {
		return "", fmt.Errorf("failed to search metadata source: %w", err)
	}
	if len(decoded.Artists) == 0 {
		return "", ErrArtistNotFound
	}

	want := strings.ToLower(strings.TrimSpace(artistName))
	bestID := ""
	bestDistance := -1
	for _, artist := range decoded.Artists {
		distance := levenshtein.ComputeDistance(want, strings.ToLower(artist.Name))
		if bestDistance < 0 || distance < bestDistance {
			bestID = artist.ID
			bestDistance = distance
		}
	}

	return bestID, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, out any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", buildinfo.UserAgent)
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				err := fmt.Errorf("metadata source returned status %d", resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(err)
				}
				return err
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return err
			}
			return json.Unmarshal(body, out)
		},
		retry.Attempts(lookupRetries),
		retry.Delay(lookupRetryDelay),
		retry.LastErrorOnly(true),
	)
}
