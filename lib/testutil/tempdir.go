// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SocketDir creates a temporary directory suitable for Unix domain
// sockets. The directory is removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "dynstatic-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// WriteTree creates the files in tree under root. Keys are
// slash-separated paths relative to root. If modTime is non-zero, it
// is applied to every written file.
func WriteTree(t *testing.T, root string, tree map[string]string, modTime time.Time) {
	t.Helper()
	for relative, content := range tree {
		path := filepath.Join(root, filepath.FromSlash(relative))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", relative, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", relative, err)
		}
		if !modTime.IsZero() {
			if err := os.Chtimes(path, modTime, modTime); err != nil {
				t.Fatalf("setting times on %s: %v", relative, err)
			}
		}
	}
}
