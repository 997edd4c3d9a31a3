// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type queryMessage struct {
	Action  string   `cbor:"action"`
	URI     string   `cbor:"uri"`
	Columns []string `cbor:"columns,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	message := map[string]any{
		"uri":     "content://example/document/primary%3Aa",
		"action":  "query",
		"columns": []string{"document_id"},
	}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(message)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding is not deterministic")
		}
	}
}

func TestUnmarshalIntegersAsInt64(t *testing.T) {
	data, err := Marshal([]any{"primary:a.txt", int64(10), uint64(1700000000000)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var row []any
	if err := Unmarshal(data, &row); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(row) != 3 {
		t.Fatalf("row has %d values, want 3", len(row))
	}
	if _, ok := row[0].(string); !ok {
		t.Errorf("row[0] is %T, want string", row[0])
	}
	for _, index := range []int{1, 2} {
		if _, ok := row[index].(int64); !ok {
			t.Errorf("row[%d] is %T, want int64", index, row[index])
		}
	}
}

func TestStreamEncodeDecode(t *testing.T) {
	var buffer bytes.Buffer
	sent := queryMessage{Action: "query", URI: "content://example/tree/primary%3A", Columns: []string{"_size"}}
	if err := NewEncoder(&buffer).Encode(sent); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw RawMessage
	if err := NewDecoder(&buffer).Decode(&raw); err != nil {
		t.Fatalf("Decode raw: %v", err)
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := Unmarshal(raw, &header); err != nil {
		t.Fatalf("Unmarshal header: %v", err)
	}
	if header.Action != "query" {
		t.Errorf("action = %q, want %q", header.Action, "query")
	}

	var received queryMessage
	if err := Unmarshal(raw, &received); err != nil {
		t.Fatalf("Unmarshal full: %v", err)
	}
	if received.URI != sent.URI || len(received.Columns) != 1 || received.Columns[0] != "_size" {
		t.Errorf("received %+v, want %+v", received, sent)
	}
}
