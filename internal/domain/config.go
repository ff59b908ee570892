// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config holds the application configuration bound from the TOML config file
// and MELODARR__ environment variables.
type Config struct {
	Version string

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	// SessionSecret doubles as the key material for encrypting indexer and
	// download-client credentials at rest. Changing it invalidates them.
	SessionSecret string `mapstructure:"sessionSecret"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir string `mapstructure:"dataDir"`

	// Monitoring loop settings. The interval is a cron spec evaluated by the
	// scheduler; the per-artist 24h throttle applies independently.
	MonitoringEnabled  bool   `mapstructure:"monitoringEnabled"`
	MonitoringSchedule string `mapstructure:"monitoringSchedule"`

	MetricsEnabled bool   `mapstructure:"metricsEnabled"`
	MetricsHost    string `mapstructure:"metricsHost"`
	MetricsPort    int    `mapstructure:"metricsPort"`

	PprofEnabled bool `mapstructure:"pprofEnabled"`
}
