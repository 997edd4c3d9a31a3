// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/learningequality/dynstatic/lib/document/catalog"
	"github.com/learningequality/dynstatic/lib/document/remote"
	"github.com/learningequality/dynstatic/lib/logging"
	"github.com/learningequality/dynstatic/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// volumeImport is one --import VOLUME=DIR argument.
type volumeImport struct {
	volume    string
	directory string
}

func parseImports(values []string) ([]volumeImport, error) {
	imports := make([]volumeImport, 0, len(values))
	for _, value := range values {
		volume, directory, found := strings.Cut(value, "=")
		if !found || volume == "" || directory == "" {
			return nil, fmt.Errorf("--import %q: want VOLUME=DIR", value)
		}
		imports = append(imports, volumeImport{volume: volume, directory: directory})
	}
	return imports, nil
}

func run() error {
	var catalogPath string
	var socketPath string
	var authority string
	var importValues []string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("dynstatic-provider", pflag.ContinueOnError)
	flagSet.StringVar(&catalogPath, "catalog", "", "path to the catalog database (required)")
	flagSet.StringVar(&socketPath, "socket", "", "Unix socket to serve on (required)")
	flagSet.StringVar(&authority, "authority", catalog.DefaultAuthority, "document URI authority")
	flagSet.StringArrayVar(&importValues, "import", nil, "import a volume before serving, as VOLUME=DIR (repeatable)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("dynstatic-provider")
		return nil
	}
	if catalogPath == "" {
		return fmt.Errorf("--catalog is required")
	}
	if socketPath == "" {
		return fmt.Errorf("--socket is required")
	}
	imports, err := parseImports(importValues)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger, err := logging.New(os.Stderr, level, logging.FormatAuto)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := catalog.Open(ctx, catalog.Config{
		Path:      catalogPath,
		Authority: authority,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	for _, entry := range imports {
		if _, err := store.Import(ctx, entry.volume, entry.directory); err != nil {
			return err
		}
		logger.Info("volume tree URI",
			"volume", entry.volume,
			"tree_uri", store.TreeURI(entry.volume, ""),
		)
	}

	logger.Info("starting dynstatic-provider", "version", version.Info())
	server := remote.NewServer(socketPath, store, []string{store.Authority()}, logger)
	return server.Serve(ctx)
}
