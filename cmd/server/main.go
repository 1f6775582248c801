// Package main is the entry point for the support API server.
//
// main stays minimal: load configuration, build the logger and token
// verifier, then hand everything to internal/server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sakif/support-desk/internal/config"
	"github.com/sakif/support-desk/internal/server"
)

func main() {
	// A .env file is optional; real deployments set the environment.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	if envErr != nil {
		logger.Debug("no .env file loaded; using process environment")
	}

	// os.MkdirAll is a no-op when the directory exists (`mkdir -p`).
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	verifier, err := server.NewVerifier(cfg.Auth, logger)
	if err != nil {
		logger.Error("failed to configure authentication", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger, verifier)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
