// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package catalog_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/learningequality/dynstatic/lib/clock"
	"github.com/learningequality/dynstatic/lib/document"
	"github.com/learningequality/dynstatic/lib/document/catalog"
	"github.com/learningequality/dynstatic/lib/testutil"
)

var epoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func openCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Open(context.Background(), catalog.Config{
		Path:      filepath.Join(t.TempDir(), "catalog.db"),
		Authority: "test.documents",
		PoolSize:  2,
		Clock:     clock.Fake(epoch),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := cat.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return cat
}

func importTree(t *testing.T, cat *catalog.Catalog, volume string, tree map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteTree(t, dir, tree, epoch)
	if _, err := cat.Import(context.Background(), volume, dir); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return dir
}

func TestImportCounts(t *testing.T) {
	cat := openCatalog(t)
	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{
		"content/storage/a.mp4": "video",
		"content/index.html":    "<html>",
		"README":                "hi",
	}, epoch)

	stats, err := cat.Import(context.Background(), "primary", dir)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Files != 3 {
		t.Errorf("Files = %d, want 3", stats.Files)
	}
	// root, content, content/storage
	if stats.Directories != 3 {
		t.Errorf("Directories = %d, want 3", stats.Directories)
	}
	if stats.Removed != 0 {
		t.Errorf("Removed = %d, want 0", stats.Removed)
	}

	volumes, err := cat.Volumes(context.Background())
	if err != nil {
		t.Fatalf("Volumes: %v", err)
	}
	if len(volumes) != 1 || volumes[0].Name != "primary" {
		t.Fatalf("Volumes = %+v, want one named primary", volumes)
	}
	if !volumes[0].ImportedAt.Equal(epoch) {
		t.Errorf("ImportedAt = %v, want %v", volumes[0].ImportedAt, epoch)
	}
}

func TestImportRejectsBadVolume(t *testing.T) {
	cat := openCatalog(t)
	for _, volume := range []string{"", "a:b", "a/b"} {
		if _, err := cat.Import(context.Background(), volume, t.TempDir()); err == nil {
			t.Errorf("Import(%q) succeeded", volume)
		}
	}
}

func TestAccessorOverCatalog(t *testing.T) {
	cat := openCatalog(t)
	importTree(t, cat, "primary", map[string]string{
		"Kolibri/content/storage/a.mp4": "video bytes",
	})
	accessor := document.NewAccessor(cat, nil)
	ctx := context.Background()
	tree := cat.TreeURI("primary", "Kolibri/content")

	uri, err := accessor.Join(tree, "storage/a.mp4")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !cat.IsDocumentURI(uri) {
		t.Errorf("IsDocumentURI(%s) = false", uri)
	}

	exists, err := accessor.Exists(ctx, uri)
	if err != nil || !exists {
		t.Fatalf("Exists(%s) = %v, %v; want true, nil", uri, exists, err)
	}

	info, err := accessor.Stat(ctx, uri)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(len("video bytes")) {
		t.Errorf("Size = %d", info.Size())
	}
	if !info.ModTime().Equal(epoch) {
		t.Errorf("ModTime = %v, want %v", info.ModTime(), epoch)
	}
	if stat := info.Sys().(*document.Stat); stat.DocumentID != "primary:Kolibri/content/storage/a.mp4" {
		t.Errorf("DocumentID = %q", stat.DocumentID)
	}

	file, err := accessor.Open(ctx, uri, os.O_RDONLY)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(data) != "video bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestQueryUnknownDocumentIsIllegalArgument(t *testing.T) {
	cat := openCatalog(t)
	importTree(t, cat, "primary", map[string]string{"a.txt": "a"})

	uri := document.DocumentURI(cat.Authority(), "primary:missing.txt")
	_, err := cat.Query(context.Background(), uri, []string{document.ColumnDocumentID})
	if !errors.Is(err, document.ErrIllegalArgument) {
		t.Fatalf("Query(missing) error = %v, want ErrIllegalArgument", err)
	}

	accessor := document.NewAccessor(cat, nil)
	exists, err := accessor.Exists(context.Background(), uri)
	if err != nil || exists {
		t.Errorf("Exists(missing) = %v, %v; want false, nil", exists, err)
	}
	if _, err := accessor.Stat(context.Background(), uri); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat(missing) error = %v, want fs.ErrNotExist", err)
	}
}

func TestQueryEnforcesTreeScope(t *testing.T) {
	cat := openCatalog(t)
	importTree(t, cat, "primary", map[string]string{
		"granted/a.txt": "a",
		"private/b.txt": "b",
	})

	tree := cat.TreeURI("primary", "granted")
	outside, err := cat.BuildDocumentURIUsingTree(tree, "primary:private/b.txt")
	if err != nil {
		t.Fatalf("BuildDocumentURIUsingTree: %v", err)
	}
	if _, err := cat.Query(context.Background(), outside, []string{document.ColumnDocumentID}); !errors.Is(err, document.ErrIllegalArgument) {
		t.Errorf("Query outside tree error = %v, want ErrIllegalArgument", err)
	}

	// "grantedX" shares a string prefix with "granted" but is not inside it.
	sibling, err := cat.BuildDocumentURIUsingTree(tree, "primary:grantedX/c.txt")
	if err != nil {
		t.Fatalf("BuildDocumentURIUsingTree: %v", err)
	}
	if _, err := cat.Query(context.Background(), sibling, []string{document.ColumnDocumentID}); !errors.Is(err, document.ErrIllegalArgument) {
		t.Errorf("Query sibling error = %v, want ErrIllegalArgument", err)
	}
}

func TestQueryRejectsUnknownColumn(t *testing.T) {
	cat := openCatalog(t)
	importTree(t, cat, "primary", map[string]string{"a.txt": "a"})
	uri := document.DocumentURI(cat.Authority(), "primary:a.txt")
	if _, err := cat.Query(context.Background(), uri, []string{"flags"}); !errors.Is(err, document.ErrIllegalArgument) {
		t.Errorf("Query(flags) error = %v, want ErrIllegalArgument", err)
	}
}

func TestListChildren(t *testing.T) {
	cat := openCatalog(t)
	importTree(t, cat, "primary", map[string]string{
		"content/b.css":     "b{}",
		"content/a.js":      "a()",
		"content/sub/c.txt": "c",
	})
	accessor := document.NewAccessor(cat, nil)

	children, err := accessor.ListChildren(context.Background(), cat.TreeURI("primary", "content"))
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("children = %v, want 3 entries", children)
	}
	if got := children["a.js"].MIMEType; got != "text/javascript" && got != "application/javascript" {
		t.Errorf("a.js MIME type = %q", got)
	}
	if !children["sub"].IsDir() {
		t.Error("sub is not a directory")
	}
	if children["b.css"].Size != 3 {
		t.Errorf("b.css size = %d, want 3", children["b.css"].Size)
	}

	empty := t.TempDir()
	if err := os.Mkdir(filepath.Join(empty, "nothing"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.Import(context.Background(), "spare", empty); err != nil {
		t.Fatalf("Import: %v", err)
	}
	children, err = accessor.ListChildren(context.Background(), cat.TreeURI("spare", "nothing"))
	if err != nil {
		t.Fatalf("ListChildren(empty): %v", err)
	}
	if len(children) != 0 {
		t.Errorf("empty directory listed %v", children)
	}

	if _, err := accessor.ListChildren(context.Background(), cat.TreeURI("spare", "absent")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ListChildren(absent) error = %v, want fs.ErrNotExist", err)
	}
}

func TestReimportRemovesStaleDocuments(t *testing.T) {
	cat := openCatalog(t)
	dir := importTree(t, cat, "primary", map[string]string{
		"keep.txt": "keep",
		"gone.txt": "gone",
	})
	if err := os.Remove(filepath.Join(dir, "gone.txt")); err != nil {
		t.Fatal(err)
	}

	stats, err := cat.Import(context.Background(), "primary", dir)
	if err != nil {
		t.Fatalf("re-Import: %v", err)
	}
	if stats.Removed != 1 {
		t.Errorf("Removed = %d, want 1", stats.Removed)
	}

	accessor := document.NewAccessor(cat, nil)
	tree := cat.TreeURI("primary", "")
	for name, want := range map[string]bool{"keep.txt": true, "gone.txt": false} {
		uri, err := accessor.Join(tree, name)
		if err != nil {
			t.Fatalf("Join: %v", err)
		}
		exists, err := accessor.Exists(context.Background(), uri)
		if err != nil {
			t.Fatalf("Exists(%s): %v", name, err)
		}
		if exists != want {
			t.Errorf("Exists(%s) = %v, want %v", name, exists, want)
		}
	}
}

func TestOpenAssetFile(t *testing.T) {
	cat := openCatalog(t)
	dir := importTree(t, cat, "primary", map[string]string{
		"a.txt":   "alpha",
		"d/b.txt": "bravo",
	})
	ctx := context.Background()

	if _, err := cat.OpenAssetFile(ctx, document.DocumentURI(cat.Authority(), "primary:d"), "r"); !errors.Is(err, document.ErrIllegalArgument) {
		t.Errorf("opening a directory: error = %v, want ErrIllegalArgument", err)
	}
	if _, err := cat.OpenAssetFile(ctx, document.DocumentURI(cat.Authority(), "primary:a.txt"), "q"); !errors.Is(err, document.ErrIllegalArgument) {
		t.Errorf("bad mode: error = %v, want ErrIllegalArgument", err)
	}
	if _, err := cat.OpenAssetFile(ctx, document.DocumentURI(cat.Authority(), "primary:none.txt"), "r"); !errors.Is(err, document.ErrIllegalArgument) {
		t.Errorf("missing document: error = %v, want ErrIllegalArgument", err)
	}

	file, err := cat.OpenAssetFile(ctx, document.DocumentURI(cat.Authority(), "primary:a.txt"), "wt")
	if err != nil {
		t.Fatalf("OpenAssetFile(wt): %v", err)
	}
	if _, err := file.WriteString("omega"); err != nil {
		t.Fatal(err)
	}
	file.Close()
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "omega" {
		t.Errorf("after wt write content = %q, want omega", data)
	}
}

func TestRemoveVolume(t *testing.T) {
	cat := openCatalog(t)
	importTree(t, cat, "primary", map[string]string{"a.txt": "a"})
	ctx := context.Background()

	if err := cat.RemoveVolume(ctx, "primary"); err != nil {
		t.Fatalf("RemoveVolume: %v", err)
	}
	if err := cat.RemoveVolume(ctx, "primary"); !errors.Is(err, catalog.ErrUnknownVolume) {
		t.Errorf("second RemoveVolume error = %v, want ErrUnknownVolume", err)
	}
	uri := document.DocumentURI(cat.Authority(), "primary:a.txt")
	if _, err := cat.Query(ctx, uri, []string{document.ColumnDocumentID}); !errors.Is(err, document.ErrIllegalArgument) {
		t.Errorf("Query after removal error = %v, want ErrIllegalArgument", err)
	}
}
