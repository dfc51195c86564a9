// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metric computes per-process coherence metrics.
//
// A metric is an advisory integer in [0, 100]. [Initial] assigns a
// starting value from a process name, [Update] decays it once per
// scheduler cycle (optionally nudged by observed CPU usage), and
// [Fluctuator] adds bounded random variance from a seedable source.
// Every function here is pure apart from the Fluctuator's random
// stream, and every result is clamped.
package metric
