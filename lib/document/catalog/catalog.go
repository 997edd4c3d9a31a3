// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog implements document.Provider on top of a SQLite
// table of imported directory trees. It stands in for an
// external-storage documents provider: document IDs have the
// "volume:relative/path" form, directories carry
// document.MIMETypeDirectory, and queries for unknown documents fail
// with document.ErrIllegalArgument rather than returning no rows.
//
// A catalog is populated with [Catalog.Import], which snapshots a
// directory tree under a volume name. Content is served from the
// original files; the catalog stores metadata and source paths only.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/learningequality/dynstatic/lib/clock"
	"github.com/learningequality/dynstatic/lib/document"
	"github.com/learningequality/dynstatic/lib/sqlitepool"
)

// DefaultAuthority is used when Config.Authority is empty.
const DefaultAuthority = "org.learningequality.dynstatic.documents"

const schema = `
CREATE TABLE IF NOT EXISTS volumes (
	volume      TEXT PRIMARY KEY,
	source_root TEXT NOT NULL,
	imported_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	document_id   TEXT PRIMARY KEY,
	volume        TEXT NOT NULL,
	parent_id     TEXT,
	display_name  TEXT NOT NULL,
	mime_type     TEXT NOT NULL,
	size          INTEGER NOT NULL,
	last_modified INTEGER NOT NULL,
	source_path   TEXT NOT NULL,
	generation    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_id);
CREATE INDEX IF NOT EXISTS idx_documents_volume ON documents(volume, generation);
`

// columnSQL maps projection columns to table columns.
var columnSQL = map[string]string{
	document.ColumnDocumentID:   "document_id",
	document.ColumnDisplayName:  "display_name",
	document.ColumnSize:         "size",
	document.ColumnLastModified: "last_modified",
	document.ColumnMIMEType:     "mime_type",
}

// integerColumns hold INTEGER values; the rest are TEXT.
var integerColumns = map[string]bool{
	document.ColumnSize:         true,
	document.ColumnLastModified: true,
}

// Config holds the parameters for Open. Path is required.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// Authority is the provider authority in document URIs.
	// Defaults to DefaultAuthority.
	Authority string

	// PoolSize is passed to sqlitepool. Zero picks the pool default.
	PoolSize int

	// Logger receives import and open messages. Nil discards them.
	Logger *slog.Logger

	// Clock stamps imports. Defaults to clock.Real().
	Clock clock.Clock
}

// Catalog is a SQLite-backed document provider. It is safe for
// concurrent use.
type Catalog struct {
	document.Contract

	authority string
	pool      *sqlitepool.Pool
	clock     clock.Clock
	logger    *slog.Logger
}

// Open opens or creates the catalog database.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	if cfg.Path == "" {
		return nil, errors.New("catalog: Path is required")
	}
	authority := cfg.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	// Take one connection eagerly so a bad path or schema fails here
	// rather than on the first request.
	if err := pool.With(ctx, func(*sqlite.Conn) error { return nil }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}

	return &Catalog{
		Contract:  document.NewContract(authority),
		authority: authority,
		pool:      pool,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.pool.Close()
}

// Authority returns the provider authority.
func (c *Catalog) Authority() string {
	return c.authority
}

// DocumentIDFor returns the canonical document ID of relative within
// volume.
func DocumentIDFor(volume, relative string) string {
	return volume + ":" + cleanRelative(relative)
}

// TreeURI returns the tree-document URI granting access to the
// directory at relative within volume.
func (c *Catalog) TreeURI(volume, relative string) string {
	id := DocumentIDFor(volume, relative)
	return document.TreeDocumentURI(c.authority, id, id)
}

// cleanRelative normalizes a volume-relative path: slash separated,
// no leading or trailing slash, no dot segments. The volume root is
// the empty string.
func cleanRelative(relative string) string {
	return strings.Trim(path.Clean("/"+relative), "/")
}

// canonicalID normalizes a document ID, so that "primary:/a" and
// "primary:a/" both name "primary:a".
func canonicalID(id string) (string, error) {
	volume, relative, found := strings.Cut(id, ":")
	if !found || volume == "" {
		return "", fmt.Errorf("%w: malformed document ID %q", document.ErrIllegalArgument, id)
	}
	return DocumentIDFor(volume, relative), nil
}

// withinTree reports whether documentID is treeID or beneath it.
func withinTree(treeID, documentID string) bool {
	if documentID == treeID {
		return true
	}
	if strings.HasSuffix(treeID, ":") {
		return strings.HasPrefix(documentID, treeID)
	}
	return strings.HasPrefix(documentID, treeID+"/")
}

// resolve parses uri and returns its canonical document ID, enforcing
// tree scoping for tree-document URIs.
func (c *Catalog) resolve(uri string) (document.URI, string, error) {
	parsed, err := document.ParseURI(uri)
	if err != nil {
		return document.URI{}, "", err
	}
	if parsed.Authority != c.authority {
		return document.URI{}, "", fmt.Errorf("%w: unknown authority %q", document.ErrIllegalArgument, parsed.Authority)
	}
	if parsed.Kind == document.KindTree {
		return document.URI{}, "", fmt.Errorf("%w: tree URI is not a document: %s", document.ErrIllegalArgument, uri)
	}

	id, err := canonicalID(parsed.DocumentID)
	if err != nil {
		return document.URI{}, "", err
	}
	if parsed.TreeID != "" {
		treeID, err := canonicalID(parsed.TreeID)
		if err != nil {
			return document.URI{}, "", err
		}
		if !withinTree(treeID, id) {
			return document.URI{}, "", fmt.Errorf("%w: %s is not a descendant of %s", document.ErrIllegalArgument, id, treeID)
		}
	}
	return parsed, id, nil
}

// Query implements document.Provider. A document URI returns one row;
// a children URI returns one row per child, ordered by display name.
func (c *Catalog) Query(ctx context.Context, uri string, columns []string) (document.Cursor, error) {
	parsed, id, err := c.resolve(uri)
	if err != nil {
		return nil, err
	}

	selected := make([]string, len(columns))
	for i, column := range columns {
		sqlColumn, ok := columnSQL[column]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", document.ErrIllegalArgument, column)
		}
		selected[i] = sqlColumn
	}

	query := "SELECT " + strings.Join(selected, ", ") + " FROM documents WHERE document_id = ?"
	if parsed.Kind == document.KindChildren {
		query = "SELECT " + strings.Join(selected, ", ") + " FROM documents WHERE parent_id = ? ORDER BY display_name"
	}

	var rows [][]any
	err = c.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row := make([]any, len(columns))
				for i, column := range columns {
					if integerColumns[column] {
						row[i] = stmt.ColumnInt64(i)
					} else {
						row[i] = stmt.ColumnText(i)
					}
				}
				rows = append(rows, row)
				return nil
			},
		})
		if err != nil {
			return err
		}
		if parsed.Kind == document.KindChildren && len(rows) == 0 {
			// An empty directory and a missing one differ only here.
			exists, err := documentExists(conn, id)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: unknown document %q", document.ErrIllegalArgument, id)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, document.ErrIllegalArgument) {
			return nil, err
		}
		return nil, fmt.Errorf("catalog: querying %s: %w", uri, err)
	}

	if parsed.Kind != document.KindChildren && len(rows) == 0 {
		return nil, fmt.Errorf("%w: unknown document %q", document.ErrIllegalArgument, id)
	}
	return document.NewRowCursor(rows), nil
}

func documentExists(conn *sqlite.Conn, id string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM documents WHERE document_id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	return exists, err
}

// OpenAssetFile implements document.Provider by opening the source
// file recorded at import.
func (c *Catalog) OpenAssetFile(ctx context.Context, uri, mode string) (*os.File, error) {
	flag, err := document.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	parsed, id, err := c.resolve(uri)
	if err != nil {
		return nil, err
	}
	if parsed.Kind == document.KindChildren {
		return nil, fmt.Errorf("%w: cannot open a children URI: %s", document.ErrIllegalArgument, uri)
	}

	var sourcePath, mimeType string
	found := false
	err = c.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT source_path, mime_type FROM documents WHERE document_id = ?", &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sourcePath = stmt.ColumnText(0)
				mimeType = stmt.ColumnText(1)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: looking up %s: %w", uri, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: unknown document %q", document.ErrIllegalArgument, id)
	}
	if mimeType == document.MIMETypeDirectory {
		return nil, fmt.Errorf("%w: %s is a directory", document.ErrIllegalArgument, id)
	}

	// The row exists, so the file is expected to exist too. Never
	// create one behind the catalog's back.
	file, err := os.OpenFile(sourcePath, flag&^os.O_CREATE, 0)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", id, err)
	}
	c.logger.Debug("document opened",
		"document_id", id,
		"mode", mode,
		"source_path", sourcePath,
	)
	return file, nil
}

var _ document.Provider = (*Catalog)(nil)
