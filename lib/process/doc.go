// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the coherence
// binaries. A binary's main() calls run() and hands any error to
// [Fatal], which is the one place allowed to write to stderr before the
// structured logger exists and to terminate with a non-zero status.
package process
