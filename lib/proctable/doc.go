// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proctable owns the set of tracked processes and their
// coherence metrics.
//
// A [Table] is the only shared mutable per-process state in the
// daemon. Structural changes ([Table.Register], [Table.Unregister],
// [Table.Reconcile]) and full-table iteration ([Table.ForEach]) are
// serialized by one RWMutex; read-only views ([Table.Snapshot],
// [Table.Lookup], [Table.Len]) share the read side. Nothing in this
// package performs I/O, so lock hold times are bounded by the table
// size.
//
// Entries are created with the initial metric for their name (see
// [metric.Initial]) either by explicit registration or on first
// observation in a snapshot. Whether entries missing from a snapshot
// are dropped is a table option; the daemon default drops them.
package proctable
