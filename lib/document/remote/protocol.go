// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote serves a document.Provider over a Unix socket and
// provides a client that implements document.Provider against it,
// putting a process boundary between the static-file server and the
// provider the way a content resolver does.
//
// Each connection carries exactly one CBOR request and one CBOR
// response, then closes. Three actions exist:
//
//   - describe: returns the provider authorities. The client builds a
//     document.Contract from them and answers URI navigation locally.
//   - query: returns the projected rows for a document or children URI.
//   - open: opens a document and passes the descriptor to the client as
//     SCM_RIGHTS ancillary data attached to the response.
//
// Failures carry a kind so the client can restore the sentinel errors
// callers test for: document.ErrIllegalArgument and fs.ErrNotExist.
package remote

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/learningequality/dynstatic/lib/codec"
	"github.com/learningequality/dynstatic/lib/document"
)

// Action names.
const (
	ActionDescribe = "describe"
	ActionQuery    = "query"
	ActionOpen     = "open"
)

// Error kinds.
const (
	KindIllegalArgument = "illegal_argument"
	KindNotFound        = "not_found"
	KindInternal        = "internal"
)

// readTimeout is how long the server waits for the client's request.
const readTimeout = 30 * time.Second

// writeTimeout is how long the server waits for the response write.
const writeTimeout = 10 * time.Second

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for a response
// after writing the request.
const responseReadTimeout = 45 * time.Second

// maxMessageSize bounds requests and responses. Children listings of
// large directories are the biggest messages.
const maxMessageSize = 16 * 1024 * 1024

// Request is the wire form of every request.
type Request struct {
	Action  string   `cbor:"action"`
	URI     string   `cbor:"uri,omitempty"`
	Columns []string `cbor:"columns,omitempty"`
	Mode    string   `cbor:"mode,omitempty"`
}

// Response is the envelope for every response. A successful open
// response arrives with exactly one descriptor attached.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Kind  string           `cbor:"kind,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// DescribeResult is the data of a describe response.
type DescribeResult struct {
	Authorities []string `cbor:"authorities"`
}

// QueryResult is the data of a query response. Values are strings or
// integers, in projection order.
type QueryResult struct {
	Rows [][]any `cbor:"rows"`
}

// Error is returned by the client when the server answers ok=false.
type Error struct {
	Action  string
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote provider %s failed (%s): %s", e.Action, e.Kind, e.Message)
}

// Unwrap maps the error kind back to its sentinel.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindIllegalArgument:
		return document.ErrIllegalArgument
	case KindNotFound:
		return fs.ErrNotExist
	default:
		return nil
	}
}

// errorKind classifies a provider error for the wire.
func errorKind(err error) string {
	switch {
	case errors.Is(err, document.ErrIllegalArgument):
		return KindIllegalArgument
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	default:
		return KindInternal
	}
}
