// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package finder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/learningequality/dynstatic/lib/document/documenttest"
	"github.com/learningequality/dynstatic/lib/storage"
	"github.com/learningequality/dynstatic/lib/testutil"
)

func mustNew(t *testing.T, cfg Config) *Finder {
	t.Helper()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestFindPrefixedAndCatchAll(t *testing.T) {
	static := t.TempDir()
	testutil.WriteTree(t, static, map[string]string{"app.js": "app()"}, time.Time{})
	documents := t.TempDir()
	testutil.WriteTree(t, documents, map[string]string{"tree/video.mp4": "mp4"}, time.Time{})
	provider := documenttest.New(t, "finder.documents", "primary", documents)
	backend := storage.New(provider, nil)
	tree := provider.TreeURI("tree")

	f := mustNew(t, Config{
		Locations: []Location{
			{Prefix: "assets/", Root: static},
			{Prefix: "", Root: tree},
		},
		Backend: backend,
	})
	ctx := context.Background()

	source, ok := f.Find(ctx, "assets/app.js")
	if !ok {
		t.Fatal("assets/app.js not found")
	}
	if source != filepath.Join(static, "app.js") {
		t.Errorf("assets/app.js resolved to %s, want %s", source, filepath.Join(static, "app.js"))
	}

	source, ok = f.Find(ctx, "video.mp4")
	if !ok {
		t.Fatal("video.mp4 not found through the catch-all")
	}
	want, err := backend.Accessor().Join(tree, "video.mp4")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if source != want {
		t.Errorf("video.mp4 resolved to %s, want %s", source, want)
	}

	if _, ok := f.Find(ctx, "missing.mp4"); ok {
		t.Error("missing.mp4 found")
	}
}

func TestPrefixNeedsSeparator(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"x": "x", "px": "px"}, time.Time{})
	f := mustNew(t, Config{Locations: []Location{{Prefix: "p", Root: root}}})
	ctx := context.Background()

	source, ok := f.Find(ctx, "p/x")
	if !ok || source != filepath.Join(root, "x") {
		t.Errorf("Find(p/x) = %q, %v; want %s", source, ok, filepath.Join(root, "x"))
	}
	if source, ok := f.Find(ctx, "px"); ok {
		t.Errorf("Find(px) = %q, want no match", source)
	}
	if f.Match("px") {
		t.Error("Match(px) = true")
	}
	if !f.Match("p/x") {
		t.Error("Match(p/x) = false")
	}
}

func TestFirstLocationWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	testutil.WriteTree(t, first, map[string]string{"a.txt": "1"}, time.Time{})
	testutil.WriteTree(t, second, map[string]string{"a.txt": "2", "b.txt": "2"}, time.Time{})
	f := mustNew(t, Config{Locations: []Location{
		{Prefix: "s", Root: first},
		{Prefix: "s", Root: second},
	}})
	ctx := context.Background()

	if source, _ := f.Find(ctx, "s/a.txt"); source != filepath.Join(first, "a.txt") {
		t.Errorf("s/a.txt resolved to %s, want the first location", source)
	}
	if source, _ := f.Find(ctx, "s/b.txt"); source != filepath.Join(second, "b.txt") {
		t.Errorf("s/b.txt resolved to %s, want the second location", source)
	}
}

func TestLeadingSlashPaths(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"favicon.ico": "ico", "js/app.js": "a"}, time.Time{})
	f := mustNew(t, Config{Locations: []Location{
		{Prefix: "/static/", Root: root},
		{Root: root},
	}})
	ctx := context.Background()

	if source, ok := f.Find(ctx, "/static/js/app.js"); !ok || source != filepath.Join(root, "js", "app.js") {
		t.Errorf("Find(/static/js/app.js) = %q, %v", source, ok)
	}
	if source, ok := f.Find(ctx, "/favicon.ico"); !ok || source != filepath.Join(root, "favicon.ico") {
		t.Errorf("Find(/favicon.ico) = %q, %v", source, ok)
	}
}

func TestTraversalRejected(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	testutil.WriteTree(t, parent, map[string]string{"secret.txt": "s", "root/ok.txt": "ok"}, time.Time{})
	f := mustNew(t, Config{Locations: []Location{{Prefix: "files", Root: root}}})
	ctx := context.Background()

	if _, ok := f.Find(ctx, "files/ok.txt"); !ok {
		t.Error("files/ok.txt not found")
	}
	for _, path := range []string{"files/../secret.txt", "files/a/../../secret.txt"} {
		if source, ok := f.Find(ctx, path); ok {
			t.Errorf("Find(%q) escaped to %s", path, source)
		}
	}
}

func TestDocumentTraversalRejected(t *testing.T) {
	documents := t.TempDir()
	testutil.WriteTree(t, documents, map[string]string{"secret.txt": "s", "tree/ok.txt": "ok"}, time.Time{})
	provider := documenttest.New(t, "finder.documents", "primary", documents)
	f := mustNew(t, Config{
		Locations: []Location{{Prefix: "d", Root: provider.TreeURI("tree")}},
		Backend:   storage.New(provider, nil),
	})
	ctx := context.Background()

	if _, ok := f.Find(ctx, "d/ok.txt"); !ok {
		t.Error("d/ok.txt not found")
	}
	if source, ok := f.Find(ctx, "d/../secret.txt"); ok {
		t.Errorf("d/../secret.txt escaped to %s", source)
	}
}

func TestProviderFailureIsAMiss(t *testing.T) {
	documents := t.TempDir()
	testutil.WriteTree(t, documents, map[string]string{"a.txt": "a"}, time.Time{})
	provider := documenttest.New(t, "finder.documents", "primary", documents)
	backend := storage.New(provider, nil)
	tree := provider.TreeURI("")
	f := mustNew(t, Config{Locations: []Location{{Root: tree}}, Backend: backend})

	uri, err := backend.Accessor().Join(tree, "a.txt")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	provider.Fail(uri, errors.New("media unmounted"))
	if _, ok := f.Find(context.Background(), "a.txt"); ok {
		t.Error("Find succeeded while the provider fails")
	}
}

func TestPrefixesAndDedup(t *testing.T) {
	f := mustNew(t, Config{Locations: []Location{
		{Prefix: "a/", Root: "/srv/a"},
		{Prefix: "a", Root: "/srv/a"},
		{Prefix: "a", Root: "/srv/other"},
		{Prefix: "b", Root: "/srv/b"},
	}})

	prefixes := f.Prefixes()
	if len(prefixes) != 2 || prefixes[0] != "a" || prefixes[1] != "b" {
		t.Errorf("Prefixes = %v, want [a b]", prefixes)
	}
	if got := len(f.Locations()); got != 3 {
		t.Errorf("len(Locations) = %d, want 3 after dropping the duplicate", got)
	}
	if f.HasCatchAll() {
		t.Error("HasCatchAll = true")
	}
	if f.Match("c/x") {
		t.Error("Match(c/x) = true")
	}
	if !f.Match("b/x") {
		t.Error("Match(b/x) = false")
	}
}

func TestCatchAllMatchesEverything(t *testing.T) {
	f := mustNew(t, Config{Locations: []Location{
		{Prefix: "a", Root: "/srv/a"},
		{Root: "/srv/all"},
	}})
	if !f.HasCatchAll() {
		t.Fatal("HasCatchAll = false")
	}
	for _, path := range []string{"", "x", "a/b", "zzz/yyy"} {
		if !f.Match(path) {
			t.Errorf("Match(%q) = false with a catch-all", path)
		}
	}
}

func TestNoLocations(t *testing.T) {
	f := mustNew(t, Config{})
	if f.Match("anything") {
		t.Error("Match = true with no locations")
	}
	if _, ok := f.Find(context.Background(), "anything"); ok {
		t.Error("Find succeeded with no locations")
	}
}

func TestRegexMetacharactersInPrefix(t *testing.T) {
	f := mustNew(t, Config{Locations: []Location{{Prefix: "a.b", Root: "/srv"}}})
	if f.Match("axb/c") {
		t.Error("prefix a.b matched axb/c")
	}
	if !f.Match("a.b/c") {
		t.Error("prefix a.b did not match a.b/c")
	}
}

func TestEmptyRootRejected(t *testing.T) {
	if _, err := New(Config{Locations: []Location{{Prefix: "a"}}}); err == nil {
		t.Error("New accepted a location without a root")
	}
}

func TestSafeJoin(t *testing.T) {
	tests := []struct {
		relative string
		want     string
		escapes  bool
	}{
		{"a/b.txt", "/srv/root/a/b.txt", false},
		{"", "/srv/root", false},
		{"a/../b", "/srv/root/b", false},
		{"..", "", true},
		{"../rootx/a", "", true},
		{"/etc/passwd", "", true},
	}
	for _, test := range tests {
		got, err := SafeJoin("/srv/root", test.relative)
		if test.escapes {
			if !errors.Is(err, ErrEscapesRoot) {
				t.Errorf("SafeJoin(%q) = %q, %v; want ErrEscapesRoot", test.relative, got, err)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("SafeJoin(%q) = %q, %v; want %q", test.relative, got, err, test.want)
		}
	}
}
