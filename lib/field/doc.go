// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package field computes the global coherence field: the mean metric of
// every tracked process, its momentum over a rolling window, and two
// independent derived flags (breakthrough and sacred pattern).
//
// An [Aggregator] owns the rolling [History] and is driven once per
// scheduler cycle. The resulting [Field] is published through a
// [Store], which readers load as a complete value; a Field is never
// modified after it is stored.
package field
