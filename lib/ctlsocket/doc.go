// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ctlsocket serves the control surface over a Unix socket.
//
// The protocol is one CBOR request and one CBOR response per
// connection. A request is a map with an "action" key and any
// action-specific fields:
//
//	{action: "status"}
//	{action: "processes"}
//	{action: "pattern"}
//	{action: "command", line: "register 4242"}
//
// Every response is a [Response] envelope. Failures carry a stable
// Code that [Client] maps back to the control and proctable sentinel
// errors, so callers test failures with errors.Is regardless of
// transport.
//
// Commands are rate limited with a token bucket; reads are not.
package ctlsocket
