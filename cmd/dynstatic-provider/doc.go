// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Dynstatic-provider serves a document catalog on a Unix socket so
// that dynstatic-server instances, and anything else speaking the
// remote provider protocol, can resolve document URIs and receive
// open file descriptors without reading the catalog themselves.
//
// Volumes may be imported (or reimported) at startup:
//
//	dynstatic-provider --catalog /var/lib/dynstatic/catalog.db \
//	    --socket /run/dynstatic/provider.sock \
//	    --import primary=/mnt/usb0
package main
