// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/feedscout/internal/api"
	"github.com/autobrr/feedscout/internal/buildinfo"
	"github.com/autobrr/feedscout/internal/config"
	"github.com/autobrr/feedscout/internal/database"
	"github.com/autobrr/feedscout/internal/domain"
	"github.com/autobrr/feedscout/internal/engine"
	"github.com/autobrr/feedscout/internal/fetch"
	"github.com/autobrr/feedscout/internal/models"
	"github.com/autobrr/feedscout/internal/services/search"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "feedscout",
		Short: "Torrent feed search result extraction service",
		Long: `feedscout - Fetches torrent-flavoured RSS/Atom feeds and extracts
normalized search results from their many dialects.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunSearchCommand())
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
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/feedscout/ or %APPDATA%\\feedscout\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		runServer(configDir, dataDir, logPath)
	}

	return command
}

func RunSearchCommand() *cobra.Command {
	var (
		configDir  string
		feedURL    string
		feedName   string
		maxResults int
		timeout    time.Duration
	)

	command := &cobra.Command{
		Use:   "search",
		Short: "Fetch a feed once and print its extracted results as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if feedURL == "" && feedName == "" {
				return fmt.Errorf("either --url or --feed is required")
			}

			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// One-shot searches run without the database; engine state is
			// kept in memory and discarded on exit.
			fetcher := fetch.New(fetch.Options{UserAgent: buildinfo.UserAgent})
			svc := search.NewService(fetcher, engine.NewMemoryState(), cfg.Config)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var resp *search.Response
			if feedURL != "" {
				resp, err = svc.Search(ctx, feedURL, maxResults)
			} else {
				resp, err = svc.SearchFeed(ctx, feedName, maxResults)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&feedURL, "url", "", "feed URL to search")
	command.Flags().StringVar(&feedName, "feed", "", "configured feed name to search")
	command.Flags().IntVar(&maxResults, "max-results", 0, "maximum number of results (0 = configured default)")
	command.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall search timeout")

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of feedscout",
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
- Linux/macOS: ~/.config/feedscout/config.toml
- Windows: %APPDATA%\feedscout\config.toml

You can specify either a directory path or a direct file path:
- Directory: feedscout generate-config --config-dir /path/to/config/
- File: feedscout generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func runServer(configDir, dataDir, logPath string) {
	// Initialize configuration
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if dataDir != "" {
		os.Setenv("FEEDSCOUT__DATA_DIR", dataDir)
		cfg.SetDataDir(dataDir)
	}
	if logPath != "" {
		os.Setenv("FEEDSCOUT__LOG_PATH", logPath)
		cfg.Config.LogPath = logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting feedscout")

	// Initialize database
	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Initialize stores
	engineStateStore := models.NewEngineStateStore(db.Conn())
	feedCacheStore := models.NewFeedCacheStore(db.Conn())

	// Initialize services
	fetchTimeout := time.Duration(cfg.Config.FetchTimeoutSeconds) * time.Second
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	fetcher := fetch.New(fetch.Options{
		Cache:      feedCacheStore,
		HTTPClient: &http.Client{Timeout: fetchTimeout},
		UserAgent:  buildinfo.UserAgent,
	})

	searchService := search.NewService(fetcher, engineStateStore, cfg.Config)
	cfg.RegisterReloadListener(func(conf *domain.Config) {
		searchService.UpdateConfig(conf)
	})

	// Start server in goroutine
	httpServer := api.NewServer(&api.Dependencies{
		Config:        cfg,
		Version:       buildinfo.Version,
		SearchService: searchService,
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

	os.Exit(0)
}
