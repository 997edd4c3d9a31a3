// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package documenttest provides a directory-backed document.Provider
// for tests. Document IDs have the "volume:relative/path" form used by
// external-storage providers, and every Query and OpenAssetFile call
// is counted per URI so tests can assert on provider traffic.
package documenttest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/learningequality/dynstatic/lib/document"
)

// Provider serves the files under a directory as documents of a single
// volume. Missing documents raise document.ErrIllegalArgument, matching
// real providers.
type Provider struct {
	document.Contract

	authority string
	volume    string
	root      string

	mu      sync.Mutex
	queries map[string]int
	opens   map[string]int
	failing map[string]error
}

// New returns a Provider for authority serving root as volume.
func New(t testing.TB, authority, volume, root string) *Provider {
	t.Helper()
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("documenttest.New: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("documenttest.New: %s is not a directory", root)
	}
	return &Provider{
		Contract:  document.NewContract(authority),
		authority: authority,
		volume:    volume,
		root:      root,
		queries:   make(map[string]int),
		opens:     make(map[string]int),
		failing:   make(map[string]error),
	}
}

// DocumentIDFor returns the document ID for a path relative to the
// volume root. The empty path is the root.
func (p *Provider) DocumentIDFor(relative string) string {
	return p.volume + ":" + strings.TrimPrefix(relative, "/")
}

// TreeURI returns the tree-document URI of the directory at relative,
// the form a root grant takes.
func (p *Provider) TreeURI(relative string) string {
	id := p.DocumentIDFor(relative)
	return document.TreeDocumentURI(p.authority, id, id)
}

// Fail makes every subsequent Query and OpenAssetFile for uri return
// err. A nil err clears the failure.
func (p *Provider) Fail(uri string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failing, uri)
		return
	}
	p.failing[uri] = err
}

// Queries returns the number of Query calls made for uri.
func (p *Provider) Queries(uri string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[uri]
}

// Opens returns the number of OpenAssetFile calls made for uri.
func (p *Provider) Opens(uri string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens[uri]
}

// TotalQueries returns the number of Query calls across all URIs.
func (p *Provider) TotalQueries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, count := range p.queries {
		total += count
	}
	return total
}

// TotalOpens returns the number of OpenAssetFile calls across all URIs.
func (p *Provider) TotalOpens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, count := range p.opens {
		total += count
	}
	return total
}

func (p *Provider) record(counts map[string]int, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts[uri]++
	return p.failing[uri]
}

// resolve maps a URI to the local path of its document.
func (p *Provider) resolve(uri string) (document.URI, string, error) {
	parsed, err := document.ParseURI(uri)
	if err != nil {
		return document.URI{}, "", err
	}
	if parsed.Authority != p.authority {
		return document.URI{}, "", fmt.Errorf("%w: unknown authority %q", document.ErrIllegalArgument, parsed.Authority)
	}
	volume, relative, found := strings.Cut(parsed.DocumentID, ":")
	if !found || volume != p.volume {
		return document.URI{}, "", fmt.Errorf("%w: unknown document %q", document.ErrIllegalArgument, parsed.DocumentID)
	}
	cleaned := path.Clean("/" + relative)
	return parsed, filepath.Join(p.root, filepath.FromSlash(cleaned)), nil
}

func (p *Provider) canonicalID(local string) string {
	relative, err := filepath.Rel(p.root, local)
	if err != nil || relative == "." {
		return p.DocumentIDFor("")
	}
	return p.DocumentIDFor(filepath.ToSlash(relative))
}

// Query implements document.Provider.
func (p *Provider) Query(ctx context.Context, uri string, columns []string) (document.Cursor, error) {
	if err := p.record(p.queries, uri); err != nil {
		return nil, err
	}
	parsed, local, err := p.resolve(uri)
	if err != nil {
		return nil, err
	}

	if parsed.Kind == document.KindChildren {
		entries, err := os.ReadDir(local)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", document.ErrIllegalArgument, err)
		}
		rows := make([][]any, 0, len(entries))
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			rows = append(rows, p.row(filepath.Join(local, entry.Name()), info, columns))
		}
		return document.NewRowCursor(rows), nil
	}

	info, err := os.Stat(local)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrIllegalArgument, err)
	}
	return document.NewRowCursor([][]any{p.row(local, info, columns)}), nil
}

func (p *Provider) row(local string, info fs.FileInfo, columns []string) []any {
	row := make([]any, len(columns))
	for i, column := range columns {
		switch column {
		case document.ColumnDocumentID:
			row[i] = p.canonicalID(local)
		case document.ColumnDisplayName:
			row[i] = info.Name()
		case document.ColumnSize:
			row[i] = info.Size()
		case document.ColumnLastModified:
			row[i] = info.ModTime().UnixMilli()
		case document.ColumnMIMEType:
			if info.IsDir() {
				row[i] = document.MIMETypeDirectory
			} else {
				row[i] = "application/octet-stream"
			}
		}
	}
	return row
}

// OpenAssetFile implements document.Provider.
func (p *Provider) OpenAssetFile(ctx context.Context, uri, mode string) (*os.File, error) {
	if err := p.record(p.opens, uri); err != nil {
		return nil, err
	}
	flag, err := document.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	_, local, err := p.resolve(uri)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(local, flag, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", document.ErrIllegalArgument, err)
		}
		return nil, err
	}
	return file, nil
}

var _ document.Provider = (*Provider)(nil)
