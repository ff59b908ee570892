// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes operational counters on a separate listener so the
// scrape endpoint never shares a port with the API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/models"
)

// Manager owns the collectors the services report into.
type Manager struct {
	registry *prometheus.Registry

	SearchesTotal     *prometheus.CounterVec
	SearchCandidates  prometheus.Histogram
	DownloadsTotal    *prometheus.CounterVec
	DownloadsByStatus *prometheus.GaugeVec
	MonitoringPasses  prometheus.Counter
	MonitoringSkips   prometheus.Counter
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	m := &Manager{
		registry: registry,
		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodarr_searches_total",
			Help: "Album searches by outcome.",
		}, []string{"outcome"}),
		SearchCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "melodarr_search_candidates",
			Help:    "Candidates returned per search after filtering and ranking.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		DownloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melodarr_downloads_total",
			Help: "Download submissions by outcome.",
		}, []string{"outcome"}),
		DownloadsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "melodarr_downloads_by_status",
			Help: "Current download records by status.",
		}, []string{"status"}),
		MonitoringPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "melodarr_monitoring_passes_total",
			Help: "Completed monitoring passes.",
		}),
		MonitoringSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "melodarr_monitoring_skipped_passes_total",
			Help: "Monitoring passes skipped because one was already running.",
		}),
	}

	registry.MustRegister(
		m.SearchesTotal,
		m.SearchCandidates,
		m.DownloadsTotal,
		m.DownloadsByStatus,
		m.MonitoringPasses,
		m.MonitoringSkips,
	)

	return m
}

// ObserveDownloadStatuses refreshes the per-status gauge from a snapshot of
// download records.
func (m *Manager) ObserveDownloadStatuses(downloads []*models.Download) {
	counts := map[models.DownloadStatus]int{
		models.DownloadStatusQueued:      0,
		models.DownloadStatusDownloading: 0,
		models.DownloadStatusCompleted:   0,
		models.DownloadStatusFailed:      0,
	}
	for _, download := range downloads {
		counts[download.Status]++
	}
	for status, count := range counts {
		m.DownloadsByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

// Server serves the scrape endpoint.
type Server struct {
	manager *Manager
	host    string
	port    int
	srv     *http.Server
}

func NewServer(manager *Manager, host string, port int) *Server {
	return &Server{manager: manager, host: host, port: port}
}

func (s *Server) ListenAndServe() error {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.manager.registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting metrics server")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
