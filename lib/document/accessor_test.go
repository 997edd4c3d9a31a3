// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package document_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/learningequality/dynstatic/lib/document"
	"github.com/learningequality/dynstatic/lib/document/documenttest"
	"github.com/learningequality/dynstatic/lib/testutil"
)

const testAuthority = "com.example.documents"

func newAccessor(t *testing.T, tree map[string]string, modTime time.Time) (*document.Accessor, *documenttest.Provider) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, tree, modTime)
	provider := documenttest.New(t, testAuthority, "primary", root)
	return document.NewAccessor(provider, nil), provider
}

func TestExists(t *testing.T) {
	accessor, provider := newAccessor(t, map[string]string{
		"content/a.txt": "alpha",
	}, time.Time{})
	tree := provider.TreeURI("content")
	ctx := context.Background()

	present, err := accessor.Join(tree, "a.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	exists, err := accessor.Exists(ctx, present)
	if err != nil {
		t.Fatalf("Exists(present): %v", err)
	}
	if !exists {
		t.Errorf("Exists(%s) = false, want true", present)
	}

	// The provider raises IllegalArgument for a missing document.
	missing, err := accessor.Join(tree, "missing.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	exists, err = accessor.Exists(ctx, missing)
	if err != nil {
		t.Fatalf("Exists(missing) returned error %v, want false with nil error", err)
	}
	if exists {
		t.Errorf("Exists(%s) = true, want false", missing)
	}
}

func TestExistsRequiresExactlyOneRow(t *testing.T) {
	provider := &rowsProvider{
		Contract: document.NewContract(testAuthority),
		rows:     [][]any{{"primary:a"}, {"primary:b"}},
	}
	accessor := document.NewAccessor(provider, nil)
	uri := document.DocumentURI(testAuthority, "primary:a")

	exists, err := accessor.Exists(context.Background(), uri)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("Exists = true for a two-row result, want false")
	}

	provider.rows = nil
	exists, err = accessor.Exists(context.Background(), uri)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("Exists = true for an empty result, want false")
	}
}

func TestExistsPropagatesProviderFailure(t *testing.T) {
	accessor, provider := newAccessor(t, map[string]string{"a.txt": "alpha"}, time.Time{})
	uri, err := accessor.Join(provider.TreeURI(""), "a.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	failure := errors.New("provider crashed")
	provider.Fail(uri, failure)

	if _, err := accessor.Exists(context.Background(), uri); !errors.Is(err, failure) {
		t.Fatalf("Exists error = %v, want %v", err, failure)
	}
}

func TestStat(t *testing.T) {
	modTime := time.Date(2024, 3, 1, 12, 30, 15, 0, time.UTC)
	accessor, provider := newAccessor(t, map[string]string{
		"content/app.js": "console.log(1)",
	}, modTime)
	tree := provider.TreeURI("content")

	uri, err := accessor.Join(tree, "app.js")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	info, err := accessor.Stat(context.Background(), uri)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if info.Size() != int64(len("console.log(1)")) {
		t.Errorf("Size = %d, want %d", info.Size(), len("console.log(1)"))
	}
	if !info.ModTime().Equal(modTime) {
		t.Errorf("ModTime = %v, want %v", info.ModTime(), modTime)
	}
	if info.Mode() != 0o644 {
		t.Errorf("Mode = %v, want 0644", info.Mode())
	}
	if !info.Mode().IsRegular() {
		t.Errorf("Mode %v is not regular", info.Mode())
	}
	if info.Name() != "app.js" {
		t.Errorf("Name = %q, want app.js", info.Name())
	}

	stat, ok := info.Sys().(*document.Stat)
	if !ok {
		t.Fatalf("Sys() = %T, want *document.Stat", info.Sys())
	}
	if stat.DocumentID != "primary:content/app.js" {
		t.Errorf("DocumentID = %q, want primary:content/app.js", stat.DocumentID)
	}
	if stat.Inode != document.Inode("primary:content/app.js") {
		t.Errorf("Inode = %d, want Inode(document ID)", stat.Inode)
	}
}

func TestStatTruncatesMilliseconds(t *testing.T) {
	provider := &rowsProvider{
		Contract: document.NewContract(testAuthority),
		rows:     [][]any{{"primary:a", int64(10), int64(1_700_000_000_999)}},
	}
	accessor := document.NewAccessor(provider, nil)

	info, err := accessor.Stat(context.Background(), document.DocumentURI(testAuthority, "primary:a"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.ModTime().Unix(); got != 1_700_000_000 {
		t.Errorf("ModTime().Unix() = %d, want 1700000000", got)
	}
	if info.ModTime().Nanosecond() != 0 {
		t.Errorf("ModTime has sub-second part %d", info.ModTime().Nanosecond())
	}
}

func TestStatMissing(t *testing.T) {
	accessor, provider := newAccessor(t, map[string]string{"a.txt": "alpha"}, time.Time{})
	uri, err := accessor.Join(provider.TreeURI(""), "nope.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	_, err = accessor.Stat(context.Background(), uri)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Stat error = %v, want fs.ErrNotExist", err)
	}
	var pathError *fs.PathError
	if !errors.As(err, &pathError) || pathError.Path != uri {
		t.Errorf("Stat error = %#v, want *fs.PathError for %s", err, uri)
	}
}

func TestInodeIsStable(t *testing.T) {
	first := document.Inode("primary:content/app.js")
	second := document.Inode("primary:content/app.js")
	if first != second {
		t.Fatalf("Inode not deterministic: %d != %d", first, second)
	}
	if first == document.Inode("primary:content/app.css") {
		t.Error("distinct document IDs produced the same inode")
	}
}

func TestOpen(t *testing.T) {
	accessor, provider := newAccessor(t, map[string]string{
		"content/a.txt": "alpha",
	}, time.Time{})
	uri, err := accessor.Join(provider.TreeURI("content"), "a.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	file, err := accessor.Open(context.Background(), uri, os.O_RDONLY)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(data) != "alpha" {
		t.Errorf("content = %q, want alpha", data)
	}
	if provider.Opens(uri) != 1 {
		t.Errorf("provider opens = %d, want 1", provider.Opens(uri))
	}
}

func TestOpenMissing(t *testing.T) {
	accessor, provider := newAccessor(t, map[string]string{"a.txt": "alpha"}, time.Time{})
	uri, err := accessor.Join(provider.TreeURI(""), "nope.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := accessor.Open(context.Background(), uri, os.O_RDONLY); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Open error = %v, want fs.ErrNotExist", err)
	}
}

func TestOpenWriteAppend(t *testing.T) {
	accessor, provider := newAccessor(t, map[string]string{"log.txt": "one\n"}, time.Time{})
	uri, err := accessor.Join(provider.TreeURI(""), "log.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	file, err := accessor.Open(context.Background(), uri, os.O_WRONLY|os.O_APPEND)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := file.WriteString("two\n"); err != nil {
		t.Fatalf("writing: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	file, err = accessor.Open(context.Background(), uri, os.O_RDONLY)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("content = %q, want %q", data, "one\ntwo\n")
	}
}

func TestJoin(t *testing.T) {
	contract := document.NewContract(testAuthority)
	accessor := document.NewAccessor(&rowsProvider{Contract: contract}, nil)
	tree := document.TreeDocumentURI(testAuthority, "primary:Kolibri", "primary:Kolibri/content")

	tests := []struct {
		name     string
		relative string
		wantID   string
	}{
		{"file", "storage/a.mp4", "primary:Kolibri/content/storage/a.mp4"},
		{"dot segments", "storage/./x/../a.mp4", "primary:Kolibri/content/storage/a.mp4"},
		{"self", ".", "primary:Kolibri/content"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			joined, err := accessor.Join(tree, test.relative)
			if err != nil {
				t.Fatalf("Join: %v", err)
			}
			parsed, err := document.ParseURI(joined)
			if err != nil {
				t.Fatalf("ParseURI(%s): %v", joined, err)
			}
			if parsed.Kind != document.KindTreeDocument {
				t.Errorf("Kind = %v, want KindTreeDocument", parsed.Kind)
			}
			if parsed.TreeID != "primary:Kolibri" {
				t.Errorf("TreeID = %q, want primary:Kolibri", parsed.TreeID)
			}
			if parsed.DocumentID != test.wantID {
				t.Errorf("DocumentID = %q, want %q", parsed.DocumentID, test.wantID)
			}
		})
	}
}

func TestJoinRejects(t *testing.T) {
	accessor := document.NewAccessor(&rowsProvider{Contract: document.NewContract(testAuthority)}, nil)
	tree := document.TreeDocumentURI(testAuthority, "primary:x", "primary:x")

	if _, err := accessor.Join(tree, "/etc/passwd"); !errors.Is(err, document.ErrAbsolutePath) {
		t.Errorf("Join(absolute) error = %v, want ErrAbsolutePath", err)
	}
	if _, err := accessor.Join(tree, "../secret"); !errors.Is(err, document.ErrPathEscapes) {
		t.Errorf("Join(../secret) error = %v, want ErrPathEscapes", err)
	}
	if _, err := accessor.Join(tree, "a/../../secret"); !errors.Is(err, document.ErrPathEscapes) {
		t.Errorf("Join(a/../../secret) error = %v, want ErrPathEscapes", err)
	}
}

func TestListChildren(t *testing.T) {
	modTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	accessor, provider := newAccessor(t, map[string]string{
		"content/a.txt":     "alpha",
		"content/sub/b.txt": "bravo",
	}, modTime)

	children, err := accessor.ListChildren(context.Background(), provider.TreeURI("content"))
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("len(children) = %d, want 2: %v", len(children), children)
	}

	file, ok := children["a.txt"]
	if !ok {
		t.Fatal("a.txt missing from listing")
	}
	if file.ID != "primary:content/a.txt" {
		t.Errorf("a.txt ID = %q", file.ID)
	}
	if file.Size != 5 {
		t.Errorf("a.txt Size = %d, want 5", file.Size)
	}
	if file.LastModified != modTime.UnixMilli() {
		t.Errorf("a.txt LastModified = %d, want %d", file.LastModified, modTime.UnixMilli())
	}
	if file.IsDir() {
		t.Error("a.txt reported as directory")
	}

	directory, ok := children["sub"]
	if !ok {
		t.Fatal("sub missing from listing")
	}
	if !directory.IsDir() {
		t.Errorf("sub MIME type = %q, want directory", directory.MIMEType)
	}
	exists, err := accessor.Exists(context.Background(), file.URI)
	if err != nil || !exists {
		t.Errorf("child URI %s does not resolve: exists=%v err=%v", file.URI, exists, err)
	}
}

// rowsProvider answers every query with fixed rows.
type rowsProvider struct {
	document.Contract
	rows [][]any
}

func (p *rowsProvider) Query(ctx context.Context, uri string, columns []string) (document.Cursor, error) {
	return document.NewRowCursor(p.rows), nil
}

func (p *rowsProvider) OpenAssetFile(ctx context.Context, uri, mode string) (*os.File, error) {
	return nil, document.ErrIllegalArgument
}
