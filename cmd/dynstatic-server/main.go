// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/learningequality/dynstatic/lib/config"
	"github.com/learningequality/dynstatic/lib/document"
	"github.com/learningequality/dynstatic/lib/document/catalog"
	"github.com/learningequality/dynstatic/lib/document/remote"
	"github.com/learningequality/dynstatic/lib/httpserver"
	"github.com/learningequality/dynstatic/lib/logging"
	"github.com/learningequality/dynstatic/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var address string
	var showVersion bool

	flagSet := pflag.NewFlagSet("dynstatic-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $DYNSTATIC_CONFIG)")
	flagSet.StringVar(&address, "address", "", "listen address, overriding server.address")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("dynstatic-server")
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, _ := cfg.LogLevel()
	logger, err := logging.New(os.Stderr, level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting dynstatic-server",
		"version", version.Info(),
		"environment", cfg.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, closeProvider, err := openProvider(ctx, cfg.Provider, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := buildHandler(ctx, cfg, provider, registry, logger)
	if err != nil {
		return err
	}

	server := httpserver.New(httpserver.Config{
		Address:         cfg.Server.Address,
		Handler:         handler,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout),
		Logger:          logger,
	})
	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// openProvider returns the configured document provider, or nil when
// none is configured, and a function releasing it.
func openProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (document.Provider, func(), error) {
	switch {
	case cfg.Socket != "":
		client, err := remote.Dial(ctx, cfg.Socket, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to document provider: %w", err)
		}
		logger.Info("using remote document provider",
			"socket", cfg.Socket,
			"authorities", client.Authorities(),
		)
		return client, func() {}, nil

	case cfg.Catalog != "":
		store, err := catalog.Open(ctx, catalog.Config{
			Path:      cfg.Catalog,
			Authority: cfg.Authority,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening document catalog: %w", err)
		}
		logger.Info("using document catalog",
			"path", cfg.Catalog,
			"authority", store.Authority(),
		)
		return store, func() { store.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}
