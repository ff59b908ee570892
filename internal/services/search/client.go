// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/melodarr/melodarr/internal/buildinfo"
	"github.com/melodarr/melodarr/internal/models"
)

const maxFeedBytes int64 = 16 << 20 // 16 MiB safety limit for feed payloads

// audio category per the Torznab numbering shared by the usual backends
const categoryAudio = "3000"

// Client queries a single indexer endpoint and normalizes its response.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	backend    models.IndexerBackend
	httpClient *http.Client
}

// NewClient builds a client for one configured indexer.
func NewClient(name, baseURL, apiKey string, backend models.IndexerBackend, timeoutSeconds int) *Client {
	if backend == "" {
		backend = models.IndexerBackendAuto
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		backend: backend,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

// Name returns the configured indexer name, used to tag candidates.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) searchURL(query string) string {
	params := url.Values{}
	params.Set("t", "search")
	params.Set("q", query)
	params.Set("cat", categoryAudio)
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	return fmt.Sprintf("%s/api?%s", c.baseURL, params.Encode())
}

// Search runs a text query against the indexer and returns normalized
// candidates. Transport errors, non-2xx responses, and unparseable payloads
// all surface as errors; individually malformed items do not.
func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept", "application/json, application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer %s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("indexer %s returned status %d", c.name, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read indexer %s response: %w", c.name, err)
	}

	items, err := c.parse(payload)
	if err != nil {
		return nil, fmt.Errorf("indexer %s: %w", c.name, err)
	}

	return NormalizeAll(items, c.name, time.Now()), nil
}

func (c *Client) parse(payload []byte) ([]RawItem, error) {
	switch c.backend {
	case models.IndexerBackendJSON:
		return parseJSONFeed(payload)
	case models.IndexerBackendXML:
		return parseXMLFeed(payload)
	default:
		return ParseFeed(payload)
	}
}
