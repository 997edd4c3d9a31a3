// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package static is HTTP middleware that serves files from filesystem
// directories and document trees in front of another handler.
//
// A request path is resolved once: the static prefix goes to a
// dedicated finder, other paths go to the dynamic locations, and the
// result is cached as a File descriptor holding the precomputed
// response headers and any .gz or .br alternatives. Requests that
// resolve to nothing, or whose file can no longer be opened, reach the
// wrapped handler unchanged.
//
// Conditional requests compare ETags exactly and If-Modified-Since on
// whole seconds. Only single byte ranges are honoured. Among the
// encodings the client accepts, the smallest file is sent.
package static
