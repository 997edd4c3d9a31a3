// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for dynstatic
// binaries.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// They default to "unknown" / "0.1.0-dev" in development builds and
// test runs. [Info] formats them for --version output and [Print]
// writes that line for a named binary.
package version
