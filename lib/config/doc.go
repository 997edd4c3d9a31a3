// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads dynstatic configuration.
//
// Configuration is loaded from a single file specified by either the
// DYNSTATIC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file search.
// Files ending in .json or .jsonc are parsed as JSON with comments and
// trailing commas allowed; everything else is YAML.
//
// The file may carry development and production sections that
// override the static and logging settings when [Config].Environment
// matches.
//
// Variable expansion is performed on roots and paths after loading:
// ${HOME}, ${DYNSTATIC_ROOT} and ${VAR:-default} patterns are expanded.
// Roots may also be given in encoded form, a document URI behind a
// leading slash; they are decoded with [storage.DecodeRoot].
//
// Key exports:
//
//   - [Config] -- master struct with Server, Logging, Static, Provider
//   - [Default] -- returns a Config with the serving defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
