// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package finder locates the source of a URL path among an ordered
// list of locations. Each location pairs an optional URL prefix with a
// storage root, which may be a filesystem directory or a document tree
// URI; the storage.Backend decides which.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/learningequality/dynstatic/lib/storage"
)

// ErrEscapesRoot is returned by SafeJoin for a path that resolves
// outside the root.
var ErrEscapesRoot = errors.New("finder: path escapes root")

// Location pairs a URL prefix with a storage root. An empty prefix is
// a catch-all tried for every path.
type Location struct {
	Prefix string `yaml:"prefix" json:"prefix"`
	Root   string `yaml:"root" json:"root"`
}

// Config configures a Finder.
type Config struct {
	// Locations are consulted in order; the first that resolves
	// wins.
	Locations []Location

	// Backend classifies roots and answers existence checks.
	// Defaults to a Backend with no document provider.
	Backend *storage.Backend

	// Logger receives per-lookup debug messages. Nil discards them.
	Logger *slog.Logger
}

// Finder resolves URL paths to sources. It is safe for concurrent use.
type Finder struct {
	locations []Location
	backend   *storage.Backend
	logger    *slog.Logger

	prefixes []string
	catchAll bool
	check    *regexp.Regexp
}

// New builds a Finder. Trailing slashes are trimmed from prefixes and
// duplicate (prefix, root) pairs are dropped, keeping the first.
func New(cfg Config) (*Finder, error) {
	backend := cfg.Backend
	if backend == nil {
		backend = storage.New(nil, cfg.Logger)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f := &Finder{backend: backend, logger: logger}
	seen := make(map[Location]bool, len(cfg.Locations))
	seenPrefix := make(map[string]bool)
	for _, location := range cfg.Locations {
		if location.Root == "" {
			return nil, fmt.Errorf("finder: location with prefix %q has no root", location.Prefix)
		}
		location.Prefix = strings.TrimRight(location.Prefix, "/")
		if seen[location] {
			continue
		}
		seen[location] = true
		f.locations = append(f.locations, location)

		if location.Prefix == "" {
			f.catchAll = true
		} else if !seenPrefix[location.Prefix] {
			seenPrefix[location.Prefix] = true
			f.prefixes = append(f.prefixes, location.Prefix)
		}
		// Classify now so the first request does not pay for it.
		backend.Classify(location.Root)
	}

	if len(f.prefixes) > 0 {
		quoted := make([]string, len(f.prefixes))
		for i, prefix := range f.prefixes {
			quoted[i] = regexp.QuoteMeta(prefix + "/")
		}
		f.check = regexp.MustCompile("^(?:" + strings.Join(quoted, "|") + ")")
	}
	return f, nil
}

// Locations returns the normalized, deduplicated locations.
func (f *Finder) Locations() []Location {
	return append([]Location(nil), f.locations...)
}

// Prefixes returns the distinct non-empty prefixes in registration
// order, without trailing slashes.
func (f *Finder) Prefixes() []string {
	return append([]string(nil), f.prefixes...)
}

// HasCatchAll reports whether a location without a prefix exists.
func (f *Finder) HasCatchAll() bool {
	return f.catchAll
}

// Match reports whether urlPath could resolve in any location. It is
// a cheap gate in front of Find and always true with a catch-all.
func (f *Finder) Match(urlPath string) bool {
	if f.catchAll {
		return true
	}
	return f.check != nil && f.check.MatchString(urlPath)
}

// Find returns the source of urlPath: a filesystem path or a document
// URI. The second result is false when no location resolves it.
func (f *Finder) Find(ctx context.Context, urlPath string) (string, bool) {
	for _, location := range f.locations {
		relative := urlPath
		if location.Prefix != "" {
			prefix := location.Prefix + "/"
			if !strings.HasPrefix(urlPath, prefix) {
				continue
			}
			relative = urlPath[len(prefix):]
		}
		if source, ok := f.findLocation(ctx, location.Root, strings.TrimLeft(relative, "/")); ok {
			return source, true
		}
	}
	return "", false
}

func (f *Finder) findLocation(ctx context.Context, root, relative string) (string, bool) {
	f.logger.Debug("finding path in root", "path", relative, "root", root)

	if f.backend.Classify(root) == storage.KindDocument {
		uri, err := f.backend.Accessor().Join(root, relative)
		if err != nil {
			f.logger.Debug("document join rejected", "root", root, "path", relative, "error", err)
			return "", false
		}
		exists, err := f.backend.Exists(ctx, uri)
		if err != nil {
			f.logger.Warn("document existence check failed",
				"root", root,
				"document_uri", uri,
				"error", err,
			)
			return "", false
		}
		return uri, exists
	}

	source, err := SafeJoin(root, relative)
	if err != nil {
		f.logger.Debug("path rejected", "root", root, "path", relative, "error", err)
		return "", false
	}
	exists, _ := f.backend.Exists(ctx, source)
	return source, exists
}

// SafeJoin joins relative onto root and fails if the result is not
// root or beneath it. Absolute relative paths are rejected.
func SafeJoin(root, relative string) (string, error) {
	if filepath.IsAbs(relative) {
		return "", fmt.Errorf("%w: %q is absolute", ErrEscapesRoot, relative)
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("finder: resolving %s: %w", root, err)
	}
	joined := filepath.Join(base, filepath.FromSlash(relative))
	if joined != base && !strings.HasPrefix(joined, strings.TrimSuffix(base, string(filepath.Separator))+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q under %s", ErrEscapesRoot, relative, root)
	}
	return joined, nil
}
