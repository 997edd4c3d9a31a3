// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/learningequality/dynstatic/lib/document"
)

// ImportStats summarizes one Import.
type ImportStats struct {
	Files       int
	Directories int
	Skipped     int
	Removed     int
	Duration    time.Duration
}

// Import snapshots the tree at dir as volume. Existing rows for the
// volume are updated in place and rows for entries that no longer
// exist are removed, all in one transaction, so readers see either
// the previous snapshot or the new one. Entries that are neither
// regular files nor directories are skipped.
func (c *Catalog) Import(ctx context.Context, volume, dir string) (stats ImportStats, err error) {
	if volume == "" || strings.ContainsAny(volume, ":/") {
		return stats, fmt.Errorf("catalog: invalid volume name %q", volume)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return stats, fmt.Errorf("catalog: resolving %s: %w", dir, err)
	}

	start := c.clock.Now()

	conn, err := c.pool.Take(ctx)
	if err != nil {
		return stats, fmt.Errorf("catalog: import: %w", err)
	}
	defer c.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return stats, fmt.Errorf("catalog: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var generation int64
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(generation), 0) + 1 FROM documents WHERE volume = ?", &sqlitex.ExecOptions{
		Args: []any{volume},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			generation = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return stats, fmt.Errorf("catalog: reading generation: %w", err)
	}

	err = filepath.WalkDir(root, func(local string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			stats.Skipped++
			return nil
		}

		relative, err := filepath.Rel(root, local)
		if err != nil {
			return err
		}
		relative = cleanRelative(filepath.ToSlash(relative))

		row := documentRow{
			id:           DocumentIDFor(volume, relative),
			volume:       volume,
			displayName:  path.Base(relative),
			size:         info.Size(),
			lastModified: info.ModTime().UnixMilli(),
			sourcePath:   local,
			generation:   generation,
		}
		if relative == "" {
			row.displayName = volume
		} else {
			row.parentID = DocumentIDFor(volume, path.Dir(relative))
		}
		if info.IsDir() {
			row.mimeType = document.MIMETypeDirectory
			row.size = 0
			stats.Directories++
		} else {
			row.mimeType = mimeTypeFor(relative)
			stats.Files++
		}
		return upsertDocument(conn, row)
	})
	if err != nil {
		return stats, fmt.Errorf("catalog: importing %s: %w", root, err)
	}

	err = sqlitex.Execute(conn, "DELETE FROM documents WHERE volume = ? AND generation != ?", &sqlitex.ExecOptions{
		Args: []any{volume, generation},
	})
	if err != nil {
		return stats, fmt.Errorf("catalog: removing stale documents: %w", err)
	}
	stats.Removed = conn.Changes()

	err = sqlitex.Execute(conn, `
		INSERT INTO volumes (volume, source_root, imported_at) VALUES (?, ?, ?)
		ON CONFLICT(volume) DO UPDATE SET source_root = excluded.source_root, imported_at = excluded.imported_at`,
		&sqlitex.ExecOptions{Args: []any{volume, root, start.UnixMilli()}})
	if err != nil {
		return stats, fmt.Errorf("catalog: recording volume: %w", err)
	}

	stats.Duration = c.clock.Since(start)
	c.logger.Info("catalog import complete",
		"volume", volume,
		"root", root,
		"files", stats.Files,
		"directories", stats.Directories,
		"skipped", stats.Skipped,
		"removed", stats.Removed,
		"duration", stats.Duration,
	)
	return stats, nil
}

type documentRow struct {
	id           string
	volume       string
	parentID     string
	displayName  string
	mimeType     string
	size         int64
	lastModified int64
	sourcePath   string
	generation   int64
}

func upsertDocument(conn *sqlite.Conn, row documentRow) error {
	var parentID any
	if row.parentID != "" {
		parentID = row.parentID
	}
	return sqlitex.Execute(conn, `
		INSERT INTO documents
		(document_id, volume, parent_id, display_name, mime_type, size, last_modified, source_path, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			display_name = excluded.display_name,
			mime_type = excluded.mime_type,
			size = excluded.size,
			last_modified = excluded.last_modified,
			source_path = excluded.source_path,
			generation = excluded.generation`,
		&sqlitex.ExecOptions{
			Args: []any{
				row.id,
				row.volume,
				parentID,
				row.displayName,
				row.mimeType,
				row.size,
				row.lastModified,
				row.sourcePath,
				row.generation,
			},
		})
}

func mimeTypeFor(name string) string {
	mimeType := mime.TypeByExtension(path.Ext(name))
	if mimeType == "" {
		return "application/octet-stream"
	}
	if media, _, err := mime.ParseMediaType(mimeType); err == nil {
		return media
	}
	return mimeType
}

// Volume describes an imported volume.
type Volume struct {
	Name       string
	SourceRoot string
	ImportedAt time.Time
}

// Volumes lists imported volumes ordered by name.
func (c *Catalog) Volumes(ctx context.Context) ([]Volume, error) {
	var volumes []Volume
	err := c.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT volume, source_root, imported_at FROM volumes ORDER BY volume", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				volumes = append(volumes, Volume{
					Name:       stmt.ColumnText(0),
					SourceRoot: stmt.ColumnText(1),
					ImportedAt: time.UnixMilli(stmt.ColumnInt64(2)),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: listing volumes: %w", err)
	}
	return volumes, nil
}

// ErrUnknownVolume is returned by RemoveVolume for a volume that was
// never imported.
var ErrUnknownVolume = errors.New("catalog: unknown volume")

// RemoveVolume deletes a volume and all its documents.
func (c *Catalog) RemoveVolume(ctx context.Context, volume string) (err error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("catalog: remove volume: %w", err)
	}
	defer c.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("catalog: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, "DELETE FROM volumes WHERE volume = ?", &sqlitex.ExecOptions{Args: []any{volume}}); err != nil {
		return fmt.Errorf("catalog: removing volume %s: %w", volume, err)
	}
	if conn.Changes() == 0 {
		err = fmt.Errorf("%w: %s", ErrUnknownVolume, volume)
		return err
	}
	if err = sqlitex.Execute(conn, "DELETE FROM documents WHERE volume = ?", &sqlitex.ExecOptions{Args: []any{volume}}); err != nil {
		return fmt.Errorf("catalog: removing documents of %s: %w", volume, err)
	}
	c.logger.Info("catalog volume removed", "volume", volume)
	return nil
}
