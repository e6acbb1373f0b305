// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package domain holds the configuration types shared across the application.
package domain

// FeedConfig declares one feed the service watches.
type FeedConfig struct {
	// Name is the human-facing label, shown in API responses and logs.
	Name string `mapstructure:"name"`
	// URL is the feed location. Doubles as the engine identity.
	URL string `mapstructure:"url"`
	// MaxResults caps results per extraction for this feed. 0 uses the
	// global maxResults.
	MaxResults int `mapstructure:"maxResults"`
}

// Config is the application configuration.
type Config struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	BaseURL       string `mapstructure:"baseUrl"`
	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`
	DataDir       string `mapstructure:"dataDir"`

	// MaxResults caps how many results one extraction returns. 0 means
	// unlimited.
	MaxResults int `mapstructure:"maxResults"`
	// FetchTimeoutSeconds bounds one feed download.
	FetchTimeoutSeconds int `mapstructure:"fetchTimeoutSeconds"`
	// ProbeTimeoutSeconds bounds one link classification probe.
	ProbeTimeoutSeconds int `mapstructure:"probeTimeoutSeconds"`
	// ClassifyTTLSeconds is how long a negative link classification is
	// trusted before re-probing.
	ClassifyTTLSeconds int `mapstructure:"classifyTtlSeconds"`

	Feeds []FeedConfig `mapstructure:"feeds"`

	Version string `mapstructure:"-"`
}
