// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs the periodic coherence cycle.
//
// One cycle moves through fixed phases:
//
//	IDLE -> SNAPSHOT -> RECONCILE -> UPDATE_METRICS -> MAP_AND_APPLY -> AGGREGATE -> IDLE
//
// SNAPSHOT lists live processes; RECONCILE brings the process table in
// line with the list; UPDATE_METRICS decays every unpinned metric
// under the table lock; MAP_AND_APPLY maps metrics to a priority and a
// cgroup weight, filters them through hysteresis, and hands the
// survivors to the [apply.Applier] with no lock held; AGGREGATE
// recomputes the global field and publishes it with one swap.
//
// Failures are contained: a failed snapshot keeps the previous table,
// and a failed apply leaves that process's recorded parameters
// untouched until a later cycle succeeds. Cancellation is checked
// between phases; a cycle abandoned before AGGREGATE never publishes
// a field.
package scheduler
