// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets, whose paths are limited to 108 bytes (sun_path);
// t.TempDir() paths under a build system's TEST_TMPDIR routinely
// exceed that.
//
// [WriteTree] populates a directory from a map of slash-separated
// relative paths to contents, creating parent directories, and
// optionally stamps a fixed modification time on every file so that
// Last-Modified and ETag values are predictable.
//
// [RequireReceive] and [RequireClosed] encapsulate the select with a
// timeout fallback so that individual tests do not need direct
// time.After calls.
//
// All helpers call t.Fatalf on failure.
package testutil
