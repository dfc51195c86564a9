// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration shared by the control socket
// server and its clients.
//
// JSON is used where humans or external tools read the output (the
// status.json control file, `coherence status --json`). CBOR is used on
// the control socket. Encoding uses Core Deterministic Encoding (RFC
// 8949 §4.2) so the same field value always produces the same bytes.
//
// Struct tags document the contract: a `cbor` tag marks a type that is
// only ever sent over the socket (request and response envelopes); a
// `json` tag marks a type rendered both ways (status, process listing),
// since fxamacker/cbor falls back to `json` tags when `cbor` tags are
// absent. Never put both tags on one field.
package codec
