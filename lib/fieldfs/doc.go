// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fieldfs serves the control surface as a FUSE filesystem.
//
// The mount has a flat root:
//
//	status        field summary as "key: value" lines
//	status.json   field summary as a JSON object
//	processes     tracked process table
//	pattern       sacred pattern flag
//	control       write-only command file
//
// Read files are rendered once per open, so every read through one
// file descriptor sees the same content. Writes to control are split
// into lines; each complete line runs as soon as it arrives and a
// trailing partial line runs on close. If a write carries several
// lines and one fails, the lines before it take effect and the write
// returns short; the failing command then fails the next write(2) (or
// the close(2)) that carries it:
//
//	EINVAL  malformed command
//	ENOENT  unknown pid, or no such process to register
//	EEXIST  pid already registered
//
// Mounting requires /dev/fuse and fusermount3 in PATH.
package fieldfs
