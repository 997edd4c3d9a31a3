// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Dynstatic-server serves static files from filesystem directories and
// document trees in front of an upstream web application.
//
// Requests whose path resolves to a file in one of the configured
// locations are answered directly, with conditional, range and
// compressed-variant support. Everything else is proxied to
// server.upstream, or answered with 404 when no upstream is
// configured.
//
// Document trees are reached through a provider: either a remote
// provider on a Unix socket (provider.socket, see dynstatic-provider)
// or a catalog database opened in-process (provider.catalog).
//
// Usage:
//
//	dynstatic-server --config /etc/dynstatic/server.yaml
package main
