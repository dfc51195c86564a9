// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control is the transport-independent control surface shared
// by the FUSE mount, the control socket, and the CLI.
//
// Reads ([Surface.Status], [Surface.Processes], [Surface.SacredPattern])
// never mutate state. Writes arrive as one-line text commands:
//
//	register <pid>
//	unregister <pid>
//	set <pid> <metric>      (only when AllowSet is enabled)
//
// Malformed lines fail with [ErrInvalidCommand] before anything is
// touched. Registration resolves the pid through a [Resolver] and fails
// with [ErrProcessNotFound] when no such process exists. Table errors
// ([proctable.ErrAlreadyExists], [proctable.ErrNotFound]) pass through
// wrapped.
//
// The Render functions produce the text and JSON forms served by the
// FUSE files and printed by the CLI.
package control
