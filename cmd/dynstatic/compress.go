// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/learningequality/dynstatic/lib/precompress"
)

func runCompress(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	var skip []string
	flagSet := pflag.NewFlagSet("compress", pflag.ContinueOnError)
	flagSet.StringSliceVar(&skip, "skip", nil, "extensions to leave uncompressed (default: known compressed formats)")
	directories, err := parseFlags(flagSet, args, 1, -1)
	if err != nil {
		return err
	}

	compressor := &precompress.Compressor{Logger: logger}
	if flagSet.Changed("skip") {
		compressor.Extensions = skip
	}
	for _, directory := range directories {
		stats, err := compressor.Walk(ctx, directory)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: %d files, %d gzip, %d brotli, %d skipped\n",
			directory, stats.Files, stats.Gzip, stats.Brotli, stats.Skipped)
	}
	return nil
}
