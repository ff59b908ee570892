// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/api/handlers"
	"github.com/melodarr/melodarr/internal/config"
	"github.com/melodarr/melodarr/internal/metrics"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/downloads"
	"github.com/melodarr/melodarr/internal/services/monitor"
	"github.com/melodarr/melodarr/internal/services/search"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	artistStore         *models.ArtistStore
	albumStore          *models.AlbumStore
	profileStore        *models.QualityProfileStore
	downloadStore       *models.DownloadStore
	indexerStore        *models.IndexerStore
	downloadClientStore *models.DownloadClientStore
	searchService       *search.Service
	downloadsService    *downloads.Service
	monitorService      *monitor.Service
	metricsManager      *metrics.Manager
}

type Dependencies struct {
	Config              *config.AppConfig
	Version             string
	ArtistStore         *models.ArtistStore
	AlbumStore          *models.AlbumStore
	ProfileStore        *models.QualityProfileStore
	DownloadStore       *models.DownloadStore
	IndexerStore        *models.IndexerStore
	DownloadClientStore *models.DownloadClientStore
	SearchService       *search.Service
	DownloadsService    *downloads.Service
	MonitorService      *monitor.Service
	MetricsManager      *metrics.Manager
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:              log.Logger.With().Str("module", "api").Logger(),
		config:              deps.Config,
		version:             deps.Version,
		artistStore:         deps.ArtistStore,
		albumStore:          deps.AlbumStore,
		profileStore:        deps.ProfileStore,
		downloadStore:       deps.DownloadStore,
		indexerStore:        deps.IndexerStore,
		downloadClientStore: deps.DownloadClientStore,
		searchService:       deps.SearchService,
		downloadsService:    deps.DownloadsService,
		monitorService:      deps.MonitorService,
		metricsManager:      deps.MetricsManager,
	}
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Msgf("Starting API server - Open: http://%s%s", host, s.config.Config.BaseURL)

	s.server.Handler = s.Handler()

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	// compression for candidate-heavy search responses
	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.version)
	artistsHandler := handlers.NewArtistsHandler(s.artistStore, s.albumStore, s.monitorService)
	albumsHandler := handlers.NewAlbumsHandler(s.albumStore)
	profilesHandler := handlers.NewQualityProfilesHandler(s.profileStore)
	indexersHandler := handlers.NewIndexersHandler(s.indexerStore)
	downloadClientHandler := handlers.NewDownloadClientHandler(s.downloadClientStore)
	searchHandler := handlers.NewSearchHandler(s.searchService, s.profileStore, s.metricsManager)
	downloadsHandler := handlers.NewDownloadsHandler(s.downloadsService, s.downloadStore, s.metricsManager)
	libraryHandler := handlers.NewLibraryHandler(s.artistStore, s.albumStore)
	monitoringHandler := handlers.NewMonitoringHandler(s.monitorService, s.metricsManager)

	apiRouter := chi.NewRouter()
	apiRouter.Route("/health", healthHandler.Routes)
	apiRouter.Group(func(r chi.Router) {
		artistsHandler.Routes(r)
		albumsHandler.Routes(r)
		profilesHandler.Routes(r)
		indexersHandler.Routes(r)
		downloadClientHandler.Routes(r)
		searchHandler.Routes(r)
		downloadsHandler.Routes(r)
		libraryHandler.Routes(r)
		monitoringHandler.Routes(r)
	})

	baseURL := s.config.Config.BaseURL
	if baseURL == "" || baseURL == "/" {
		r.Mount("/api", apiRouter)
	} else {
		r.Route(strings.TrimSuffix(baseURL, "/"), func(r chi.Router) {
			r.Mount("/api", apiRouter)
		})
	}

	return r
}
