// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/melodarr/melodarr/internal/domain"
)

const (
	envPrefix         = "MELODARR__"
	encryptionKeySize = 32
	databaseFileName  = "melodarr.db"
)

// envBindings maps viper keys to their MELODARR__ environment variables.
// AutomaticEnv is deliberately not used: it would pick up orchestrator
// injected *_PORT style variables.
var envBindings = map[string]string{
	"host":               "HOST",
	"port":               "PORT",
	"baseUrl":            "BASE_URL",
	"logLevel":           "LOG_LEVEL",
	"logPath":            "LOG_PATH",
	"logMaxSize":         "LOG_MAX_SIZE",
	"logMaxBackups":      "LOG_MAX_BACKUPS",
	"dataDir":            "DATA_DIR",
	"monitoringEnabled":  "MONITORING_ENABLED",
	"monitoringSchedule": "MONITORING_SCHEDULE",
	"metricsEnabled":     "METRICS_ENABLED",
	"metricsHost":        "METRICS_HOST",
	"metricsPort":        "METRICS_PORT",
	"pprofEnabled":       "PPROF_ENABLED",
}

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	dataDir string
	version string

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	c.defaults()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	c.bindEnv()

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	c.resolveDataDir()

	c.watch()

	return c, nil
}

func (c *AppConfig) defaults() {
	host := "localhost"
	if runningInContainer() {
		host = "0.0.0.0"
	}

	sessionSecret, err := randomToken(encryptionKeySize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate secure session secret, using fallback")
		sessionSecret = fmt.Sprintf("change-me-%d", os.Getpid())
	}

	for key, value := range map[string]any{
		"host":               host,
		"port":               8686,
		"baseUrl":            "/",
		"sessionSecret":      sessionSecret,
		"logLevel":           "INFO",
		"logPath":            "",
		"logMaxSize":         50,
		"logMaxBackups":      3,
		"dataDir":            "",
		"monitoringEnabled":  true,
		"monitoringSchedule": "@every 1h",
		"metricsEnabled":     false,
		"metricsHost":        "127.0.0.1",
		"metricsPort":        9708,
		"pprofEnabled":       false,
	} {
		c.viper.SetDefault(key, value)
	}
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	// the path a fresh config file would be written to if none exists
	createPath := filepath.Join(GetDefaultConfigDir(), "config.toml")

	if configDirOrPath != "" {
		createPath = ResolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(createPath)
	} else {
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(".")
		c.viper.AddConfigPath(GetDefaultConfigDir())
	}

	err := c.viper.ReadInConfig()
	if err == nil {
		return nil
	}
	if !isMissingConfigFile(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := c.writeDefaultConfig(createPath); err != nil {
		return err
	}

	c.viper.SetConfigFile(createPath)
	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read newly created config: %w", err)
	}

	if configDirOrPath == "" {
		c.dataDir = filepath.Dir(createPath)
	}

	return nil
}

// isMissingConfigFile covers both viper's search-path miss and the
// *fs.PathError produced by SetConfigFile pointing at a missing file.
func isMissingConfigFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func (c *AppConfig) bindEnv() {
	for key, suffix := range envBindings {
		c.viper.BindEnv(key, envPrefix+suffix)
	}

	// the session secret additionally supports *_FILE indirection for
	// container secret mounts
	secretEnv := envPrefix + "SESSION_SECRET"
	if filePath := os.Getenv(secretEnv + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", filePath).Msg("Could not read secret file")
		}
		c.viper.Set("sessionSecret", strings.TrimSpace(string(content)))
	} else {
		c.viper.BindEnv("sessionSecret", secretEnv)
	}
}

func (c *AppConfig) watch() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("Config file changed, reloading")

		if err := c.viper.Unmarshal(c.Config); err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
			return
		}
		c.Config.Version = c.version

		c.ApplyLogConfig()
		c.notifyListeners()
	})
}

// RegisterReloadListener registers a callback invoked after every successful
// configuration reload.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	// listeners get a copy so they cannot race the next reload
	snapshot := *c.Config
	for _, listener := range listeners {
		listener(&snapshot)
	}
}

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Str("path", path).Msg("Config file already exists")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(path), err)
	}

	var b strings.Builder
	b.WriteString("# config.toml - Auto-generated on first run\n\n")

	b.WriteString("# Hostname / IP\n")
	b.WriteString("# Default: \"localhost\" (or \"0.0.0.0\" in containers)\n")
	fmt.Fprintf(&b, "host = %q\n\n", c.viper.GetString("host"))

	b.WriteString("# Port\n# Default: 8686\n")
	fmt.Fprintf(&b, "port = %d\n\n", c.viper.GetInt("port"))

	b.WriteString("# Base URL\n")
	b.WriteString("# Set a custom baseUrl eg /melodarr/ to serve in a subdirectory.\n")
	b.WriteString("# Optional\n#baseUrl = \"/melodarr/\"\n\n")

	b.WriteString("# Session secret\n")
	b.WriteString("# Auto-generated if not provided.\n")
	b.WriteString("# WARNING: Changing this value breaks decryption of stored indexer and\n")
	b.WriteString("# download-client credentials. They must be re-entered if it changes.\n")
	fmt.Fprintf(&b, "sessionSecret = %q\n\n", c.viper.GetString("sessionSecret"))

	b.WriteString("# Log file path\n")
	b.WriteString("# If not defined, logs to stdout\n")
	b.WriteString("# Optional\n#logPath = \"log/melodarr.log\"\n\n")

	b.WriteString("# Log rotation: maximum log file size in megabytes before rotation\n")
	fmt.Fprintf(&b, "# Default: %d\n#logMaxSize = %d\n\n", c.viper.GetInt("logMaxSize"), c.viper.GetInt("logMaxSize"))

	b.WriteString("# Number of rotated log files to retain (0 keeps all)\n")
	fmt.Fprintf(&b, "# Default: %d\n#logMaxBackups = %d\n\n", c.viper.GetInt("logMaxBackups"), c.viper.GetInt("logMaxBackups"))

	b.WriteString("# Data directory (default: next to config file)\n")
	fmt.Fprintf(&b, "# The database file (%s) is created inside this directory\n", databaseFileName)
	b.WriteString("#dataDir = \"/var/db/melodarr\"\n\n")

	b.WriteString("# Log level\n")
	b.WriteString("# Options: \"ERROR\", \"DEBUG\", \"INFO\", \"WARN\", \"TRACE\"\n")
	fmt.Fprintf(&b, "logLevel = %q\n\n", c.viper.GetString("logLevel"))

	b.WriteString("# Monitoring loop\n")
	b.WriteString("# Periodically checks monitored artists for missing releases and auto-grabs them.\n")
	b.WriteString("# Default: true\n#monitoringEnabled = true\n\n")

	b.WriteString("# Monitoring schedule (cron spec or @every interval)\n")
	b.WriteString("# Default: \"@every 1h\"\n#monitoringSchedule = \"@every 1h\"\n\n")

	b.WriteString("# Prometheus metrics on a separate port\n")
	b.WriteString("# Default: false\n#metricsEnabled = false\n\n")

	b.WriteString("# Metrics server bind address\n")
	b.WriteString("# Default: \"127.0.0.1\"\n#metricsHost = \"127.0.0.1\"\n\n")

	b.WriteString("# Metrics server port\n")
	b.WriteString("# Default: 9708\n#metricsPort = 9708\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Str("path", path).Msg("Created default config file")
	return nil
}

// GetDefaultConfigDir returns the OS-specific config directory.
func GetDefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// containers commonly mount the config volume at /config directly
		if xdgConfig == "/config" {
			return xdgConfig
		}
		return filepath.Join(xdgConfig, "melodarr")
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "melodarr")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "melodarr")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "melodarr")
}

func runningInContainer() bool {
	for _, marker := range []string{"/.dockerenv", "/dev/.lxc-boot-id"} {
		if _, err := os.Stat(marker); err == nil {
			return true
		}
	}
	return os.Getpid() == 1
}

func randomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ApplyLogConfig reconfigures the global logger from the current Config.
// Safe to call again after a reload.
func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.Config.LogLevel)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	writer := baseLogWriter(c.version)
	if c.Config.LogPath != "" {
		rotated, err := rotatingWriter(c.Config.LogPath, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = io.MultiWriter(writer, rotated)
		}
	}

	log.Logger = log.Logger.Level(lvl).Output(writer)
}

func rotatingWriter(path string, maxSize, maxBackups int) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}, nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		writer.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		return writer
	}
	return os.Stderr
}

// InitDefaultLogger configures zerolog with the default writer for this
// version. Used by CLI entry points before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(baseLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// ResolveConfigPath accepts either a directory or a direct .toml file path
// and returns the config file path it denotes.
func ResolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}
	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}
	return filepath.Join(configDirOrPath, "config.toml")
}

func (c *AppConfig) resolveDataDir() {
	switch {
	case c.Config.DataDir != "":
		c.dataDir = c.Config.DataDir
	case c.viper.ConfigFileUsed() != "":
		c.dataDir = filepath.Dir(c.viper.ConfigFileUsed())
	default:
		c.dataDir = "."
	}
}

// GetDatabasePath returns the path of the SQLite database file inside the
// resolved data directory.
func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.dataDir, databaseFileName)
}

func (c *AppConfig) GetDataDir() string {
	return c.dataDir
}

// SetDataDir overrides the resolved data directory (used by CLI flags).
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetConfigDir returns the directory containing the active config file.
func (c *AppConfig) GetConfigDir() string {
	if c.viper.ConfigFileUsed() != "" {
		return filepath.Dir(c.viper.ConfigFileUsed())
	}
	return GetDefaultConfigDir()
}

// WriteDefaultConfig writes a fresh default config file to path without
// loading it, for the generate-config command.
func WriteDefaultConfig(path string) error {
	c := &AppConfig{viper: viper.New()}
	c.defaults()
	return c.writeDefaultConfig(path)
}

// GetEncryptionKey derives the 32-byte AES key for credential encryption
// from the session secret.
func (c *AppConfig) GetEncryptionKey() []byte {
	secret := c.Config.SessionSecret
	if len(secret) >= encryptionKeySize {
		return []byte(secret[:encryptionKeySize])
	}

	padded := make([]byte, encryptionKeySize)
	copy(padded, secret)
	return padded
}
