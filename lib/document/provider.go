// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"errors"
	"os"
)

// Column names understood by Provider.Query.
const (
	ColumnDocumentID   = "document_id"
	ColumnDisplayName  = "_display_name"
	ColumnSize         = "_size"
	ColumnLastModified = "last_modified"
	ColumnMIMEType     = "mime_type"
)

// MIMETypeDirectory is the MIME type providers report for directories.
const MIMETypeDirectory = "vnd.android.document/directory"

// ErrIllegalArgument is returned by providers that reject a query or
// open for a document that does not exist, instead of returning an
// empty result. Accessor translates it to fs.ErrNotExist.
var ErrIllegalArgument = errors.New("document: illegal argument")

// Provider is the document-provider capability.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// IsDocumentURI reports whether uri names a document served by a
	// provider this capability can reach.
	IsDocumentURI(uri string) bool

	// DocumentID extracts the document ID from a document URI.
	DocumentID(uri string) (string, error)

	// BuildDocumentURIUsingTree returns the URI of documentID
	// accessed through the permission grant of treeURI.
	BuildDocumentURIUsingTree(treeURI, documentID string) (string, error)

	// BuildChildDocumentsURIUsingTree returns the URI whose query
	// lists the children of documentID within treeURI.
	BuildChildDocumentsURIUsingTree(treeURI, documentID string) (string, error)

	// Query returns the requested columns for the document or
	// children URI. The caller must Close the cursor.
	Query(ctx context.Context, uri string, columns []string) (Cursor, error)

	// OpenAssetFile opens the document with a provider mode string
	// ("r", "w", "rw", "wa", "rwt", ...). The returned file owns its
	// descriptor; closing it is the caller's responsibility.
	OpenAssetFile(ctx context.Context, uri, mode string) (*os.File, error)
}

// Cursor iterates over query results. Column indexes follow the
// projection passed to Query.
type Cursor interface {
	// Count returns the total number of rows.
	Count() int

	// Next advances to the next row, returning false after the last.
	Next() bool

	// String returns column i of the current row as a string.
	String(i int) string

	// Int64 returns column i of the current row as an integer.
	Int64(i int) int64

	// Close releases the cursor.
	Close() error
}

// NewRowCursor returns a Cursor over rows held in memory.
func NewRowCursor(rows [][]any) Cursor {
	return &rowCursor{rows: rows, position: -1}
}

type rowCursor struct {
	rows     [][]any
	position int
}

func (c *rowCursor) Count() int { return len(c.rows) }

func (c *rowCursor) Next() bool {
	if c.position+1 >= len(c.rows) {
		c.position = len(c.rows)
		return false
	}
	c.position++
	return true
}

func (c *rowCursor) value(i int) any {
	if c.position < 0 || c.position >= len(c.rows) {
		return nil
	}
	row := c.rows[c.position]
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func (c *rowCursor) String(i int) string {
	switch value := c.value(i).(type) {
	case string:
		return value
	case []byte:
		return string(value)
	default:
		return ""
	}
}

func (c *rowCursor) Int64(i int) int64 {
	switch value := c.value(i).(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case uint64:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}

func (c *rowCursor) Close() error { return nil }
