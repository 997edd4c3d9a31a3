// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// ErrAbsolutePath is returned by Join for an absolute relative path.
var ErrAbsolutePath = errors.New("document: path must be relative")

// ErrPathEscapes is returned by Join for a relative path that climbs
// above the tree document.
var ErrPathEscapes = errors.New("document: path escapes tree")

// documentMode is the permission mode reported for every document.
// Providers do not expose POSIX permissions.
const documentMode fs.FileMode = 0o644

// Accessor performs filesystem-shaped operations against a Provider.
// It is safe for concurrent use.
type Accessor struct {
	provider Provider
	logger   *slog.Logger
}

// NewAccessor returns an Accessor for provider. A nil logger discards
// debug output.
func NewAccessor(provider Provider, logger *slog.Logger) *Accessor {
	if provider == nil {
		panic("document.NewAccessor: provider is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Accessor{provider: provider, logger: logger}
}

// Provider returns the underlying capability.
func (a *Accessor) Provider() Provider {
	return a.provider
}

// Exists reports whether the document at uri exists: the ID query
// must return exactly one row. ErrIllegalArgument from the provider
// means the document is missing, not that the call failed.
func (a *Accessor) Exists(ctx context.Context, uri string) (bool, error) {
	cursor, err := a.provider.Query(ctx, uri, []string{ColumnDocumentID})
	if err != nil {
		if errors.Is(err, ErrIllegalArgument) || errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("querying %s: %w", uri, err)
	}
	defer cursor.Close()
	return cursor.Count() == 1, nil
}

// Stat returns file information for the document at uri. A missing
// document yields a *fs.PathError wrapping fs.ErrNotExist.
//
// The returned FileInfo reports a regular 0644 file. Its Sys value is
// a *Stat carrying the document ID and an inode number synthesized
// from it, since document IDs are strings.
func (a *Accessor) Stat(ctx context.Context, uri string) (fs.FileInfo, error) {
	cursor, err := a.provider.Query(ctx, uri, []string{ColumnDocumentID, ColumnSize, ColumnLastModified})
	if err != nil {
		if errors.Is(err, ErrIllegalArgument) || errors.Is(err, fs.ErrNotExist) {
			return nil, notExist("stat", uri)
		}
		return nil, &fs.PathError{Op: "stat", Path: uri, Err: err}
	}
	defer cursor.Close()

	if !cursor.Next() {
		return nil, notExist("stat", uri)
	}
	documentID := cursor.String(0)
	size := cursor.Int64(1)
	lastModified := cursor.Int64(2)

	return &FileInfo{
		name: path.Base(documentID),
		size: size,
		// Providers report milliseconds; stat has whole seconds.
		modTime: time.Unix(lastModified/1000, 0),
		stat: &Stat{
			DocumentID: documentID,
			Inode:      Inode(documentID),
		},
	}, nil
}

// Open opens the document at uri with os.OpenFile-style flags. The
// returned file owns its descriptor exclusively.
func (a *Accessor) Open(ctx context.Context, uri string, flag int) (*os.File, error) {
	mode := OpenMode(flag)
	a.logger.Debug("opening document", "document_uri", uri, "mode", mode)

	file, err := a.provider.OpenAssetFile(ctx, uri, mode)
	if err != nil {
		if errors.Is(err, ErrIllegalArgument) || errors.Is(err, fs.ErrNotExist) {
			return nil, notExist("open", uri)
		}
		return nil, &fs.PathError{Op: "open", Path: uri, Err: err}
	}
	return file, nil
}

// Join returns the URI of the document at relative beneath the tree
// document treeURI, by appending relative to the tree's document ID.
// See the package documentation for why this is fragile.
func (a *Accessor) Join(treeURI, relative string) (string, error) {
	if path.IsAbs(relative) {
		return "", fmt.Errorf("%w: %q", ErrAbsolutePath, relative)
	}
	cleaned := path.Clean(relative)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, relative)
	}

	treeID, err := a.provider.DocumentID(treeURI)
	if err != nil {
		return "", fmt.Errorf("reading document ID of %s: %w", treeURI, err)
	}

	childID := treeID
	if cleaned != "." {
		if treeID == "" || strings.HasSuffix(treeID, "/") {
			childID = treeID + cleaned
		} else {
			childID = treeID + "/" + cleaned
		}
	}

	childURI, err := a.provider.BuildDocumentURIUsingTree(treeURI, childID)
	if err != nil {
		return "", fmt.Errorf("building URI for %s in %s: %w", childID, treeURI, err)
	}
	a.logger.Debug("resolved document tree path",
		"tree_uri", treeURI,
		"path", relative,
		"document_id", childID,
		"document_uri", childURI,
	)
	return childURI, nil
}

// Child describes one entry returned by ListChildren.
type Child struct {
	ID           string
	URI          string
	LastModified int64 // milliseconds since the epoch
	MIMEType     string
	Size         int64
}

// IsDir reports whether the child is a directory.
func (c Child) IsDir() bool {
	return c.MIMEType == MIMETypeDirectory
}

// ListChildren returns the immediate children of the tree document
// treeURI keyed by display name.
func (a *Accessor) ListChildren(ctx context.Context, treeURI string) (map[string]Child, error) {
	treeID, err := a.provider.DocumentID(treeURI)
	if err != nil {
		return nil, fmt.Errorf("reading document ID of %s: %w", treeURI, err)
	}
	childrenURI, err := a.provider.BuildChildDocumentsURIUsingTree(treeURI, treeID)
	if err != nil {
		return nil, fmt.Errorf("building children URI of %s: %w", treeURI, err)
	}

	columns := []string{ColumnDisplayName, ColumnDocumentID, ColumnLastModified, ColumnMIMEType, ColumnSize}
	cursor, err := a.provider.Query(ctx, childrenURI, columns)
	if err != nil {
		if errors.Is(err, ErrIllegalArgument) || errors.Is(err, fs.ErrNotExist) {
			return nil, notExist("list", treeURI)
		}
		return nil, fmt.Errorf("listing %s: %w", treeURI, err)
	}
	defer cursor.Close()

	listing := make(map[string]Child, cursor.Count())
	for cursor.Next() {
		documentID := cursor.String(1)
		childURI, err := a.provider.BuildDocumentURIUsingTree(treeURI, documentID)
		if err != nil {
			return nil, fmt.Errorf("building URI for child %s: %w", documentID, err)
		}
		listing[cursor.String(0)] = Child{
			ID:           documentID,
			URI:          childURI,
			LastModified: cursor.Int64(2),
			MIMEType:     cursor.String(3),
			Size:         cursor.Int64(4),
		}
	}
	return listing, nil
}

// Inode returns the synthesized inode number for a document ID: the
// first eight bytes of its BLAKE3 digest, little endian. Stable across
// processes for the same ID.
func Inode(documentID string) uint64 {
	digest := blake3.Sum256([]byte(documentID))
	return binary.LittleEndian.Uint64(digest[:8])
}

func notExist(op, uri string) error {
	return &fs.PathError{Op: op, Path: uri, Err: fs.ErrNotExist}
}

// Stat is the Sys value of a FileInfo returned by Accessor.Stat.
type Stat struct {
	DocumentID string
	Inode      uint64
}

// FileInfo implements fs.FileInfo for a document.
type FileInfo struct {
	name    string
	size    int64
	modTime time.Time
	stat    *Stat
}

func (fi *FileInfo) Name() string       { return fi.name }
func (fi *FileInfo) Size() int64        { return fi.size }
func (fi *FileInfo) Mode() fs.FileMode  { return documentMode }
func (fi *FileInfo) ModTime() time.Time { return fi.modTime }
func (fi *FileInfo) IsDir() bool        { return false }
func (fi *FileInfo) Sys() any           { return fi.stat }
