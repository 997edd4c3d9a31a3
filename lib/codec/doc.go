// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by the
// document provider wire protocol.
//
// JSON and YAML are used for operator-facing files (configuration, CLI
// output). CBOR is used between processes: the remote document
// provider speaks one CBOR request and one CBOR response per Unix
// socket connection. Keeping the encoder and decoder modes here means
// the server and client can never disagree on integer widths or map
// key ordering.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2). The
// decoder converts CBOR integers to int64 when the target is an
// interface value, so cursor rows decoded into []any carry the same
// Go types on both ends of the socket.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
