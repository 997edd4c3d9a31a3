// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that stamp records (resolved descriptors, catalog import
// runs, access log durations) take a Clock in their config instead of
// calling time.Now directly. Production code passes Real(); tests pass
// Fake() and move time explicitly with Advance or Set:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	middleware, err := static.New(next, static.Config{Clock: c, ...})
//	c.Advance(time.Minute)
package clock
