// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Dynstatic is the operator tool for dynstatic deployments.
//
// Commands:
//
//	dynstatic compress DIR...
//	    write .gz and .br siblings for the files under each DIR
//
//	dynstatic catalog import --catalog DB VOLUME DIR
//	dynstatic catalog volumes --catalog DB
//	dynstatic catalog remove --catalog DB VOLUME
//	dynstatic catalog tree-uri --catalog DB VOLUME [PATH]
//	dynstatic catalog ls --catalog DB URI
//	    manage a document catalog and inspect what it serves
//
//	dynstatic version
package main
