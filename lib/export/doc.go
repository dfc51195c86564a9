// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package export writes the current field to a flat key=value file so
// shell scripts and status bars can read it without talking to the
// daemon.
//
// The file is replaced atomically (temporary file, fsync, rename), so
// readers never observe a partial write.
package export
