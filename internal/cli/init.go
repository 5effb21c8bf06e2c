// Package cli holds the start-up steps shared by cmd/moodtracker, cmd/mood-worker
// and cmd/moodctl.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"moodtracker/internal/config"
	applog "moodtracker/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL, LOG_FILE and LOG_JSON and
// installs it as the slog default. An unknown level falls back to info.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	return SetupLoggerTo(cfg, component, nil)
}

// SetupLoggerTo is SetupLogger writing to out instead of stdout.
func SetupLoggerTo(cfg *config.Config, component string, out io.Writer) *applog.Logger {
	lc := applog.DefaultConfig()
	lc.Component = component
	lc.Output = out
	lc.File = cfg.LogFile
	lc.JSON = cfg.LogJSON

	level, err := applog.ParseLevel(cfg.LogLevel)
	lc.Level = level
	logger := applog.New(lc)
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info level", "error", err)
	}
	return logger
}

// LoadConfig loads configuration and runs validate on it. It exits the process on
// failure, after printing every problem.
func LoadConfig(validate func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if validate == nil {
		return cfg
	}
	if err := validate(cfg); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			slog.Info("Shutdown requested")
		}
	}()
	return ctx, stop
}
