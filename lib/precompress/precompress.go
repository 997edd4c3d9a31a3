// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package precompress writes the .gz and .br siblings that the static
// middleware offers as alternative encodings.
//
// A sibling is kept only when it is meaningfully smaller than the
// original; otherwise serving it costs a decompression on the client
// for no transfer saving. Siblings carry the original's modification
// time so their validators stay in step with it.
package precompress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// SkipExtensions are the extensions of formats that are already
// compressed. Lower case, without the dot.
var SkipExtensions = []string{
	"jpg", "jpeg", "png", "gif", "webp",
	"zip", "gz", "tgz", "bz2", "tbz", "xz", "br", "zst",
	"swf", "flv", "woff", "woff2",
	"3gp", "3gpp", "asf", "avi", "m4v", "mov", "mp4", "mpeg", "mpg", "webm", "wmv",
}

// effectiveRatio is the largest compressed/original size ratio for
// which a sibling is kept.
const effectiveRatio = 0.95

// Stats summarizes a Walk.
type Stats struct {
	// Files is the number of regular files considered.
	Files int
	// Gzip and Brotli count the siblings written.
	Gzip   int
	Brotli int
	// Skipped counts files with a skipped extension or no content.
	Skipped int
	// Ineffective counts siblings discarded for being too large.
	Ineffective int
}

// Compressor writes compressed siblings for the files in a directory.
type Compressor struct {
	// Extensions overrides SkipExtensions when non-nil.
	Extensions []string

	// Logger receives one debug line per sibling. Nil discards.
	Logger *slog.Logger
}

type encoder struct {
	extension string
	compress  func([]byte) ([]byte, error)
	count     func(*Stats)
}

var encoders = []encoder{
	{".gz", compressGzip, func(s *Stats) { s.Gzip++ }},
	{".br", compressBrotli, func(s *Stats) { s.Brotli++ }},
}

// Walk compresses every regular file under root. Existing siblings are
// overwritten. Walk stops at the first I/O error.
func (c *Compressor) Walk(ctx context.Context, root string) (Stats, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	skip := c.Extensions
	if skip == nil {
		skip = SkipExtensions
	}
	skipped := make(map[string]bool, len(skip))
	for _, extension := range skip {
		skipped[strings.ToLower(strings.TrimPrefix(extension, "."))] = true
	}

	var stats Stats
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		stats.Files++
		extension := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if skipped[extension] {
			stats.Skipped++
			return nil
		}
		return c.compressFile(path, &stats, logger)
	})
	if err != nil {
		return stats, fmt.Errorf("compressing %s: %w", root, err)
	}
	logger.Info("precompression complete",
		"root", root,
		"files", stats.Files,
		"gzip", stats.Gzip,
		"brotli", stats.Brotli,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func (c *Compressor) compressFile(path string, stats *Stats, logger *slog.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Removed earlier in this walk, as a stale sibling.
			return nil
		}
		return err
	}
	if info.Size() == 0 {
		stats.Skipped++
		return nil
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, enc := range encoders {
		compressed, err := enc.compress(original)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		sibling := path + enc.extension
		if float64(len(compressed)) >= effectiveRatio*float64(len(original)) {
			stats.Ineffective++
			// Drop any sibling left by an earlier run.
			if err := os.Remove(sibling); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		if err := writeSibling(sibling, compressed, info.ModTime()); err != nil {
			return err
		}
		enc.count(stats)
		logger.Debug("compressed sibling written",
			"path", sibling,
			"original_size", len(original),
			"compressed_size", len(compressed),
		)
	}
	return nil
}

// writeSibling replaces path atomically with data, stamped with
// modTime.
func writeSibling(path string, data []byte, modTime time.Time) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(temporary, bytes.NewReader(data)); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return err
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return err
	}
	if err := os.Chmod(temporary.Name(), 0o644); err != nil {
		os.Remove(temporary.Name())
		return err
	}
	if err := os.Chtimes(temporary.Name(), modTime, modTime); err != nil {
		os.Remove(temporary.Name())
		return err
	}
	return os.Rename(temporary.Name(), path)
}

func compressGzip(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buffer, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	// The header mtime is left zero so output is reproducible.
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func compressBrotli(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := brotli.NewWriterLevel(&buffer, brotli.BestCompression)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
