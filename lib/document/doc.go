// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package document is the boundary between static-file resolution and
// a permissioned document provider: content exposed by URI through a
// provider abstraction rather than as a filesystem path.
//
// [Provider] is the capability injected from outside. It has three
// groups of primitives:
//
//   - URI navigation: IsDocumentURI, DocumentID,
//     BuildDocumentURIUsingTree, BuildChildDocumentsURIUsingTree.
//     [Contract] implements these for the
//     content://authority/tree/<id>/document/<id> URI shape.
//   - Query: a column projection over one document or a directory's
//     children, returned as a [Cursor].
//   - Open: a raw file descriptor detached from the provider, owned by
//     the caller.
//
// [Accessor] turns those primitives into filesystem-shaped results:
// existence checks, fs.FileInfo values with a synthesized inode and
// permission mode, and *os.File handles. Every miss surfaces as
// fs.ErrNotExist, including the provider's habit of raising
// [ErrIllegalArgument] instead of returning an empty result for a
// missing document, so callers treat document and filesystem misses
// identically.
//
// [Accessor.Join] derives a child document by appending a relative
// path to the tree's document ID. Document IDs are opaque in principle;
// this works because the external-storage provider uses
// "volume:relative/path" IDs, and it will not work for providers that
// do not.
package document
