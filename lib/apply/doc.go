// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package apply turns computed scheduler parameters into OS effects.
//
// An [Applier] receives a priority (nice value) and a cgroup weight
// for one process. [Nice] calls setpriority(2); [Cgroup] moves each
// process into its own child cgroup and writes cpu.weight; [None]
// discards everything, for read-only deployments that only serve the
// control plane. [Multi] fans out to several adapters.
//
// Adapters ignore the parameter they have no control over. Every
// failure wraps [ErrApply]; the scheduler logs it and retries on a
// later cycle.
package apply
