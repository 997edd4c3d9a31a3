// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process logger for dynstatic binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Formats accepted by New.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// New creates a logger writing to output. FormatAuto uses
// slog.TextHandler when output is a terminal and slog.JSONHandler
// otherwise, so piped output stays machine-parseable.
func New(output io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	options := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatAuto, "":
		if isTerminal(output) {
			return slog.New(slog.NewTextHandler(output, options)), nil
		}
		return slog.New(slog.NewJSONHandler(output, options)), nil
	case FormatText:
		return slog.New(slog.NewTextHandler(output, options)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(output, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// NewCommandLogger is New for stderr at info level in auto format,
// the logger of one-shot tooling commands.
func NewCommandLogger() *slog.Logger {
	logger, _ := New(os.Stderr, slog.LevelInfo, FormatAuto)
	return logger
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
