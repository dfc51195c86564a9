// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package procfs reads process information from /proc.
//
// [Scanner] produces the per-cycle process snapshot consumed by the
// scheduler and resolves a single pid to its command name for control
// registrations. [CPUSampler] turns cumulative /proc/<pid>/stat tick
// counters into per-process CPU usage between two samples.
//
// Every reader takes its root from the constructor so tests can point
// it at a fabricated tree. Processes that exit between the directory
// listing and the file read are skipped silently.
package procfs
