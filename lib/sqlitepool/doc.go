// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// document catalog.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies one set
// of pragmas to every connection:
//
//   - journal_mode=WAL: catalog imports never block request-path
//     queries, and queries never block an import.
//   - synchronous=NORMAL: a crash loses at most the last import
//     transaction, which the next import rebuilds anyway.
//   - busy_timeout=5000: wait for a write lock instead of failing.
//   - cache_size=-8192 and mmap_size=268435456: the catalog is small
//     and read-mostly; keep it in memory.
//   - temp_store=MEMORY.
//
// With Config.QueryOnly set, connections additionally run
// PRAGMA query_only=ON, which the provider process uses when it serves
// a catalog that another process maintains.
//
// Callers either Take and Put a connection themselves or use [Pool.With]:
//
//	err := pool.With(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "SELECT ...", &sqlitex.ExecOptions{...})
//	})
//
// Connections are not safe for concurrent use; each goroutine holds its
// own connection for the duration of its work.
package sqlitepool
