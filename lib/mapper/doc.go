// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mapper translates a coherence metric into scheduler
// parameters: an OS priority (nice value), a cgroup v2 cpu.weight, a
// cgroup v1 cpu.shares value, and a coarse policy [Tier].
//
// Every function is total over [0, 100]; inputs outside that range are
// clamped first. [Hysteresis] decides whether a newly computed value
// differs enough from the last applied one to be worth writing.
package mapper
