// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// coherence-daemon tracks processes, derives a coherence metric for
// each, maps the metrics onto scheduler priorities and cgroup weights,
// and publishes the aggregate field on a control socket and an
// optional FUSE mount.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/coherence/lib/config"
	"github.com/bureau-foundation/coherence/lib/process"
	"github.com/bureau-foundation/coherence/lib/tracing"
	"github.com/bureau-foundation/coherence/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flags := pflag.NewFlagSet("coherence-daemon", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to coherence.yaml (default: $COHERENCE_CONFIG)")
	flags.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("coherence-daemon")
		return nil
	}

	cfg, source, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("configuration loaded", "source", source, "environment", cfg.Environment)

	if cfg.Tracing.Stdout {
		shutdown, err := tracing.InstallStdout("coherence-daemon", version.Info(), os.Stdout)
		if err != nil {
			return fmt.Errorf("installing tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("flushing traces failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, daemonDeps{procRoot: defaultProcRoot, logger: logger})
	if err != nil {
		return err
	}
	return d.run(ctx)
}

// loadConfig resolves the configuration from --config, then
// COHERENCE_CONFIG, then built-in defaults. It returns a description
// of where the configuration came from for the startup log.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, path, err
	}
	if envPath := os.Getenv("COHERENCE_CONFIG"); envPath != "" {
		cfg, err := config.Load()
		return cfg, envPath, err
	}
	cfg := config.Default()
	cfg.Expand()
	return cfg, "defaults", nil
}
