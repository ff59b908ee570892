// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/melodarr/melodarr/internal/api"
	"github.com/melodarr/melodarr/internal/buildinfo"
	"github.com/melodarr/melodarr/internal/config"
	"github.com/melodarr/melodarr/internal/database"
	"github.com/melodarr/melodarr/internal/domain"
	"github.com/melodarr/melodarr/internal/metadata"
	"github.com/melodarr/melodarr/internal/metrics"
	"github.com/melodarr/melodarr/internal/models"
	"github.com/melodarr/melodarr/internal/services/downloads"
	"github.com/melodarr/melodarr/internal/services/monitor"
	"github.com/melodarr/melodarr/internal/services/search"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "melodarr",
		Short: "A self-hosted music collection automation server",
		Long: `melodarr - monitors your music library, tracks followed artists,
searches configured indexers for missing releases and hands the best
candidate to your download client.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/melodarr/ or %APPDATA%\\melodarr\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of melodarr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/melodarr/config.toml
- Windows: %APPDATA%\melodarr\config.toml

You can specify either a directory path or a direct file path:
- Directory: melodarr generate-config --config-dir /path/to/config/
- File: melodarr generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			if configDir != "" {
				configPath = config.ResolveConfigPath(configDir)
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return errors.Wrap(err, "failed to create configuration file")
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
	pprofFlag bool
}

func NewApplication(configDir, dataDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

func (app *Application) runServer() {
	// Initialize configuration
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("MELODARR__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("MELODARR__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	if app.pprofFlag {
		cfg.Config.PprofEnabled = true
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting melodarr")

	// Initialize database
	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Initialize stores
	artistStore := models.NewArtistStore(db)
	albumStore := models.NewAlbumStore(db)
	profileStore := models.NewQualityProfileStore(db)
	downloadStore := models.NewDownloadStore(db)

	indexerStore, err := models.NewIndexerStore(db, cfg.GetEncryptionKey())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize indexer store")
	}
	downloadClientStore, err := models.NewDownloadClientStore(db, cfg.GetEncryptionKey())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize download client store")
	}

	// Initialize services
	searchService := search.NewService(indexerStore)
	downloadsService := downloads.NewService(albumStore, artistStore, profileStore, downloadStore, downloadClientStore, searchService, nil)
	metadataClient := metadata.NewHTTPClient()
	monitorService := monitor.NewService(artistStore, albumStore, metadataClient, downloadsService)

	metricsManager := metrics.NewManager()

	// Background monitoring: discography checks plus download reconciliation
	// on the configured cron schedule. Enablement is re-read on every tick so
	// a config reload takes effect without restarting the scheduler.
	var monitoringEnabled atomic.Bool
	monitoringEnabled.Store(cfg.Config.MonitoringEnabled)

	scheduler := cron.New()
	schedule := cfg.Config.MonitoringSchedule
	if _, err := scheduler.AddFunc(schedule, func() {
		if !monitoringEnabled.Load() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		switch err := monitorService.RunPass(ctx); {
		case errors.Is(err, monitor.ErrPassInFlight):
			metricsManager.MonitoringSkips.Inc()
			return
		case err != nil:
			log.Error().Err(err).Msg("Scheduled monitoring pass failed")
			return
		}
		metricsManager.MonitoringPasses.Inc()

		if _, err := downloadsService.UpdateAllActiveDownloads(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled download reconciliation failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", schedule).Msg("Invalid monitoring schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Info().Str("schedule", schedule).Bool("enabled", cfg.Config.MonitoringEnabled).Msg("Monitoring scheduler started")

	cfg.RegisterReloadListener(func(conf *domain.Config) {
		if monitoringEnabled.Swap(conf.MonitoringEnabled) != conf.MonitoringEnabled {
			log.Info().Bool("enabled", conf.MonitoringEnabled).Msg("Monitoring enablement changed via config reload")
		}
	})

	// Start server in goroutine
	httpServer := api.NewServer(&api.Dependencies{
		Config:              cfg,
		Version:             buildinfo.Version,
		ArtistStore:         artistStore,
		AlbumStore:          albumStore,
		ProfileStore:        profileStore,
		DownloadStore:       downloadStore,
		IndexerStore:        indexerStore,
		DownloadClientStore: downloadClientStore,
		SearchService:       searchService,
		DownloadsService:    downloadsService,
		MonitorService:      monitorService,
		MetricsManager:      metricsManager,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	if cfg.Config.MetricsEnabled {
		// Start metrics server on separate port
		go func() {
			metricsServer := metrics.NewServer(metricsManager, cfg.Config.MetricsHost, cfg.Config.MetricsPort)
			errorChannel <- metricsServer.ListenAndServe()
		}()
	}

	// Start profiling server if enabled
	if cfg.Config.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			log.Info().Msg("Access profiling at: http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")

		os.Exit(1)
	}
}
