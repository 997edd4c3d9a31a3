// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/learningequality/dynstatic/lib/clock"
	"github.com/learningequality/dynstatic/lib/finder"
	"github.com/learningequality/dynstatic/lib/storage"
)

// DefaultImmutableFileTest matches URLs containing a semantic version
// or a 32 hex digit hash. Such files are cached indefinitely.
const DefaultImmutableFileTest = `((0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)|[a-f0-9]{32})`

// DefaultMaxAge is the Cache-Control max-age for mutable files.
const DefaultMaxAge = 120 * time.Second

// Finder locates the source for a URL path. *finder.Finder
// implements it.
type Finder interface {
	Find(ctx context.Context, urlPath string) (string, bool)
}

// Config configures a Middleware.
type Config struct {
	// DynamicLocations are the (prefix, root) pairs searched for
	// paths outside the static prefix.
	DynamicLocations []finder.Location

	// StaticPrefix is a URL prefix whose files are all known to
	// StaticFinder, so misses beneath it are remembered. Must end in
	// "/" when set.
	StaticPrefix string

	// StaticFinder resolves paths under StaticPrefix, with the prefix
	// stripped. Required when StaticPrefix is set.
	StaticFinder Finder

	// MaxAge is the Cache-Control max-age for files the immutable
	// test does not match. Negative omits Cache-Control.
	MaxAge time.Duration

	// ImmutableFileTest selects URLs served with a ten-year max-age.
	// Nil disables it.
	ImmutableFileTest *regexp.Regexp

	// Autorefresh bypasses the resolution cache, so files added or
	// changed after startup are picked up. Meant for development.
	Autorefresh bool

	// AllowAllOrigins adds Access-Control-Allow-Origin: *.
	AllowAllOrigins bool

	// IndexFile is served for directory URLs registered by AddFiles.
	// Empty disables index handling.
	IndexFile string

	// Backend classifies roots and performs stat and open. Defaults
	// to a Backend without a document provider.
	Backend *storage.Backend

	// Metrics records resolutions and responses. Nil disables.
	Metrics *Metrics

	// Clock times resolutions for debug logging. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives resolution and open-failure messages. Nil
	// discards them.
	Logger *slog.Logger
}

// Middleware serves static files found in configured locations and
// passes every other request to the wrapped handler.
//
// Resolutions are cached by URL path for the life of the Middleware.
// Entries are never changed or evicted; two concurrent first requests
// for the same path may both resolve it and store equal descriptors.
type Middleware struct {
	next         http.Handler
	finder       *finder.Finder
	staticPrefix string
	staticFinder Finder
	autorefresh  bool
	indexFile    string
	policy       headerPolicy
	backend      *storage.Backend
	metrics      *Metrics
	clock        clock.Clock
	logger       *slog.Logger

	// files maps URL path -> *File.
	files sync.Map

	rootsMu sync.Mutex
	roots   []addedRoot
}

type addedRoot struct {
	directory string
	prefix    string
}

// New wraps next.
func New(next http.Handler, cfg Config) (*Middleware, error) {
	if next == nil {
		panic("static.New: next handler is required")
	}
	if cfg.StaticPrefix != "" {
		if !strings.HasSuffix(cfg.StaticPrefix, "/") {
			return nil, fmt.Errorf("static: static prefix %q must end in '/'", cfg.StaticPrefix)
		}
		if cfg.StaticFinder == nil {
			return nil, errors.New("static: static prefix requires a static finder")
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	backend := cfg.Backend
	if backend == nil {
		backend = storage.New(nil, logger)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	dynamic, err := finder.New(finder.Config{
		Locations: cfg.DynamicLocations,
		Backend:   backend,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("static: %w", err)
	}

	return &Middleware{
		next:         next,
		finder:       dynamic,
		staticPrefix: cfg.StaticPrefix,
		staticFinder: cfg.StaticFinder,
		autorefresh:  cfg.Autorefresh,
		indexFile:    cfg.IndexFile,
		policy: headerPolicy{
			maxAge:            cfg.MaxAge,
			immutableFileTest: cfg.ImmutableFileTest,
			allowAllOrigins:   cfg.AllowAllOrigins,
		},
		backend: backend,
		metrics: cfg.Metrics,
		clock:   clk,
		logger:  logger,
	}, nil
}

// Finder returns the dynamic-location finder.
func (m *Middleware) Finder() *finder.Finder {
	return m.finder
}

// Lookup returns the cached descriptor for urlPath, if any. The
// NOT_FOUND sentinel is returned as a File whose NotFound is true.
func (m *Middleware) Lookup(urlPath string) (*File, bool) {
	value, ok := m.files.Load(urlPath)
	if !ok {
		return nil, false
	}
	return value.(*File), true
}

// ServeHTTP implements http.Handler.
func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	urlPath := r.URL.Path

	var file *File
	if m.autorefresh {
		file = m.findUncached(ctx, urlPath)
	} else if cached, ok := m.Lookup(urlPath); ok {
		file = cached
		m.metrics.resolution(ResultCached)
	} else {
		file = m.findAndCache(ctx, urlPath)
	}

	if file == nil || file.NotFound() {
		m.metrics.resolution(ResultPassthrough)
		m.next.ServeHTTP(w, r)
		return
	}
	m.serve(w, r, file)
}

func (m *Middleware) serve(w http.ResponseWriter, r *http.Request, file *File) {
	response, err := file.Respond(r.Context(), r.Method, r.Header, m.backend)
	if err != nil {
		// The file resolved but cannot be opened now, typically
		// removable media that went away. The wrapped handler
		// decides what a missing file looks like.
		m.logger.Warn("resolved static file could not be opened",
			"url_path", r.URL.Path,
			"source", file.Source(),
			"error", err,
		)
		m.metrics.resolution(ResultPassthrough)
		m.next.ServeHTTP(w, r)
		return
	}

	header := w.Header()
	for name, values := range response.Header {
		header[name] = values
	}
	w.WriteHeader(response.Status)
	m.metrics.response(response.Status)

	if response.Body == nil {
		return
	}
	defer response.Body.Close()
	if _, err := io.Copy(w, response.Body); err != nil {
		m.logger.Debug("static response copy interrupted",
			"url_path", r.URL.Path,
			"error", err,
		)
	}
}

// dynamicSource returns the source for urlPath and whether urlPath is
// under the static prefix. Static-prefix paths are never looked up in
// the dynamic locations.
func (m *Middleware) dynamicSource(ctx context.Context, urlPath string) (source string, found, underStaticPrefix bool) {
	if m.staticPrefix != "" && strings.HasPrefix(urlPath, m.staticPrefix) {
		source, found = m.staticFinder.Find(ctx, urlPath[len(m.staticPrefix):])
		return source, found, true
	}
	if m.finder.Match(urlPath) {
		source, found = m.finder.Find(ctx, urlPath)
		return source, found, false
	}
	return "", false, false
}

// findAndCache resolves a cache miss and stores the result. Misses
// are stored as NOT_FOUND only under the static prefix.
func (m *Middleware) findAndCache(ctx context.Context, urlPath string) *File {
	start := m.clock.Now()
	source, found, underStaticPrefix := m.dynamicSource(ctx, urlPath)

	if !found {
		if underStaticPrefix {
			m.files.Store(urlPath, notFound)
			m.metrics.resolution(ResultNotFound)
			m.logger.Debug("static file not found", "url_path", urlPath)
		}
		return nil
	}

	entries, err := m.describe(ctx, urlPath, source)
	if err != nil {
		m.logger.Warn("static file vanished during resolution",
			"url_path", urlPath,
			"source", source,
			"error", err,
		)
		return nil
	}
	for entryURL, entry := range entries {
		m.files.Store(entryURL, entry)
	}
	file := entries[urlPath]
	if file != nil {
		m.metrics.resolution(ResultFound)
		m.logger.Debug("static file resolved",
			"url_path", urlPath,
			"source", source,
			"duration", m.clock.Since(start),
		)
	}
	return file
}

// findUncached resolves without reading or writing the cache: first
// the directories registered with AddFiles, then the finders.
func (m *Middleware) findUncached(ctx context.Context, urlPath string) *File {
	if file := m.findInAddedRoots(ctx, urlPath); file != nil {
		return file
	}
	source, found, _ := m.dynamicSource(ctx, urlPath)
	if !found {
		return nil
	}
	entries, err := m.describe(ctx, urlPath, source)
	if err != nil {
		m.logger.Debug("static file vanished during resolution", "url_path", urlPath, "error", err)
		return nil
	}
	return entries[urlPath]
}

// describe stats source and its compressed siblings and returns the
// cache entries it produces. Non-regular sources produce none. Sibling
// probe failures mean the sibling is absent.
func (m *Middleware) describe(ctx context.Context, urlPath, source string) (map[string]*File, error) {
	info, err := m.backend.Stat(ctx, source)
	if err != nil {
		return nil, err
	}
	if !info.IsRegular() {
		return nil, nil
	}
	stats := map[string]storage.Info{source: info}
	for _, encoding := range encodings {
		sibling := source + encoding.extension
		siblingInfo, err := m.backend.Stat(ctx, sibling)
		if err != nil || !siblingInfo.IsRegular() {
			continue
		}
		stats[sibling] = siblingInfo
	}
	return m.entries(urlPath, source, stats), nil
}

// entries builds the descriptor for urlPath plus, when urlPath names
// an index file, redirects from the file and bare directory URLs to
// the directory URL, under which the file itself is registered.
func (m *Middleware) entries(urlPath, source string, stats map[string]storage.Info) map[string]*File {
	entries := make(map[string]*File, 3)
	if m.indexFile != "" && strings.HasSuffix(urlPath, "/"+m.indexFile) {
		indexURL := strings.TrimSuffix(urlPath, m.indexFile)
		bareURL := strings.TrimRight(indexURL, "/")
		if redirect, err := newRedirect(urlPath, indexURL, m.indexFile, m.policy); err == nil {
			entries[urlPath] = redirect
		}
		if bareURL != "" {
			if redirect, err := newRedirect(bareURL, indexURL, m.indexFile, m.policy); err == nil {
				entries[bareURL] = redirect
			}
		}
		entries[indexURL] = newFile(indexURL, source, stats, m.policy)
		return entries
	}
	entries[urlPath] = newFile(urlPath, source, stats, m.policy)
	return entries
}

// AddFiles registers every regular file under directory with URL
// prefix + its slash-separated relative path. Compressed siblings of
// registered files are not registered themselves. The directory is
// also remembered for Autorefresh lookups.
func (m *Middleware) AddFiles(ctx context.Context, directory, prefix string) (int, error) {
	if m.backend.Classify(directory) == storage.KindDocument {
		return 0, fmt.Errorf("static: AddFiles needs a filesystem directory, got document URI %s", directory)
	}

	m.rootsMu.Lock()
	m.roots = append(m.roots, addedRoot{directory: directory, prefix: prefix})
	m.rootsMu.Unlock()

	if m.autorefresh {
		return 0, nil
	}

	stats := make(map[string]storage.Info)
	err := filepath.WalkDir(directory, func(local string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := m.backend.Stat(ctx, local)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsRegular() {
			stats[local] = info
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("static: adding files from %s: %w", directory, err)
	}

	registered := 0
	for local := range stats {
		if isCompressedVariant(local, stats) {
			continue
		}
		relative, err := filepath.Rel(directory, local)
		if err != nil {
			return registered, fmt.Errorf("static: %w", err)
		}
		urlPath := prefix + filepath.ToSlash(relative)
		for entryURL, entry := range m.entries(urlPath, local, stats) {
			m.files.Store(entryURL, entry)
		}
		registered++
	}
	m.logger.Info("static files registered",
		"directory", directory,
		"prefix", prefix,
		"files", registered,
	)
	return registered, nil
}

func isCompressedVariant(local string, stats map[string]storage.Info) bool {
	for _, encoding := range encodings {
		if uncompressed, ok := strings.CutSuffix(local, encoding.extension); ok {
			if _, exists := stats[uncompressed]; exists {
				return true
			}
		}
	}
	return false
}

// findInAddedRoots is the Autorefresh counterpart of AddFiles.
func (m *Middleware) findInAddedRoots(ctx context.Context, urlPath string) *File {
	m.rootsMu.Lock()
	roots := append([]addedRoot(nil), m.roots...)
	m.rootsMu.Unlock()

	for _, root := range roots {
		relative, ok := strings.CutPrefix(urlPath, root.prefix)
		if !ok {
			continue
		}
		lookupURL := urlPath
		if m.indexFile != "" && (relative == "" || strings.HasSuffix(relative, "/")) {
			relative += m.indexFile
			lookupURL += m.indexFile
		}
		local, err := finder.SafeJoin(root.directory, relative)
		if err != nil {
			continue
		}
		if _, err := os.Stat(local); err != nil {
			continue
		}
		entries, err := m.describe(ctx, lookupURL, local)
		if err != nil || entries == nil {
			continue
		}
		if file := entries[urlPath]; file != nil {
			return file
		}
	}
	return nil
}
