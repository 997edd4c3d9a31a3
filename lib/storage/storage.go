// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage gives the static-file layer one view of two kinds of
// storage root: ordinary filesystem paths and document URIs served by
// a document.Provider.
//
// A value is a document URI only when it parses with a URI scheme and
// the provider recognizes it. Everything else, including a value that
// fails to parse, is a filesystem path. Classification of location
// roots is cached for the life of the Backend; roots are never
// reclassified.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/learningequality/dynstatic/lib/document"
)

// Kind is the classification of a storage root.
type Kind int

const (
	KindFilesystem Kind = iota
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindFilesystem:
		return "filesystem"
	case KindDocument:
		return "document"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Info is the subset of stat results the static layer uses.
type Info struct {
	Size    int64
	ModTime time.Time
	Mode    fs.FileMode
	Inode   uint64
}

// IsRegular reports whether the source is a regular file.
func (i Info) IsRegular() bool {
	return i.Mode.IsRegular()
}

// InfoFromFileInfo converts a fs.FileInfo from os.Stat or
// document.Accessor.Stat.
func InfoFromFileInfo(fi fs.FileInfo) Info {
	info := Info{
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Mode:    fi.Mode(),
	}
	switch sys := fi.Sys().(type) {
	case *syscall.Stat_t:
		info.Inode = uint64(sys.Ino)
	case *document.Stat:
		info.Inode = sys.Inode
	}
	return info
}

// Backend dispatches stat, open and existence checks to the
// filesystem or the document accessor. It is safe for concurrent use.
type Backend struct {
	provider document.Provider
	accessor *document.Accessor
	logger   *slog.Logger

	// kinds caches Classify results: root string -> Kind.
	kinds sync.Map
}

// New returns a Backend. A nil provider means every value is a
// filesystem path.
func New(provider document.Provider, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	backend := &Backend{provider: provider, logger: logger}
	if provider != nil {
		backend.accessor = document.NewAccessor(provider, logger)
	}
	return backend
}

// Accessor returns the document accessor, or nil without a provider.
func (b *Backend) Accessor() *document.Accessor {
	return b.accessor
}

// IsDocumentURI reports whether value names a document. It does not
// consult the classification cache.
func (b *Backend) IsDocumentURI(value string) bool {
	if b.provider == nil {
		return false
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" {
		return false
	}
	return b.provider.IsDocumentURI(value)
}

// Classify returns the kind of a location root. The first answer for
// a root is kept for the life of the Backend.
func (b *Backend) Classify(root string) Kind {
	if cached, ok := b.kinds.Load(root); ok {
		return cached.(Kind)
	}
	kind := KindFilesystem
	if b.IsDocumentURI(root) {
		kind = KindDocument
	}
	actual, loaded := b.kinds.LoadOrStore(root, kind)
	if !loaded {
		b.logger.Debug("classified storage root", "root", root, "kind", kind)
	}
	return actual.(Kind)
}

// Stat returns Info for a resolved source. Missing sources of either
// kind yield an error matching fs.ErrNotExist.
func (b *Backend) Stat(ctx context.Context, source string) (Info, error) {
	if b.IsDocumentURI(source) {
		fi, err := b.accessor.Stat(ctx, source)
		if err != nil {
			return Info{}, err
		}
		return InfoFromFileInfo(fi), nil
	}
	fi, err := os.Stat(source)
	if err != nil {
		return Info{}, err
	}
	return InfoFromFileInfo(fi), nil
}

// Open opens a resolved source for reading.
func (b *Backend) Open(ctx context.Context, source string) (*os.File, error) {
	if b.IsDocumentURI(source) {
		return b.accessor.Open(ctx, source, os.O_RDONLY)
	}
	return os.Open(source)
}

// Exists reports whether a source exists. Filesystem errors other than
// not-exist are reported as absence, the way os.path.exists behaves;
// document provider failures are returned.
func (b *Backend) Exists(ctx context.Context, source string) (bool, error) {
	if b.IsDocumentURI(source) {
		return b.accessor.Exists(ctx, source)
	}
	_, err := os.Stat(source)
	return err == nil, nil
}

// EncodeRoot returns the form of a root suitable for settings that
// only accept absolute paths: a URI with a scheme gets a leading "/".
// Filesystem paths are returned unchanged.
func EncodeRoot(root string) string {
	if hasSchemePrefix(root) {
		return "/" + root
	}
	return root
}

// DecodeRoot reverses EncodeRoot.
func DecodeRoot(root string) string {
	if rest, ok := strings.CutPrefix(root, "/"); ok && hasSchemePrefix(rest) {
		return rest
	}
	return root
}

func hasSchemePrefix(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" {
		return false
	}
	return strings.HasPrefix(value, parsed.Scheme+"://")
}
