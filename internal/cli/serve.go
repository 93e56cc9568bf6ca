// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/rest"
)

// serveCmd starts the HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the passkey server",
	Long: `Start the HTTP server exposing the ceremony endpoints under
/api/v1/webauthn, plus health and metrics endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			handleError(err)
		}

		logger := buildLogger(cfg)
		slog.SetDefault(logger)

		srv, err := rest.NewServer(cfg, logger)
		if err != nil {
			handleError(err)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		// Wait for shutdown signal or startup failure
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				handleError(err)
			}
		case sig := <-sigCh:
			logger.Info("Received signal, shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Stop(ctx); err != nil {
				handleError(err)
			}
		}
	},
}

// loadConfig loads the configuration file, falling back to the
// built-in development defaults when no file is specified.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("PASSKEY_CONFIG")
	}
	if path == "" {
		printVerbose("no config file specified, using built-in defaults")
		return config.Default(), nil
	}

	printVerbose("loading config from %s", path)
	return config.Load(path)
}

// buildLogger constructs the structured logger from config.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
