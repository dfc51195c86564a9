// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapper

import (
	"math"

	"github.com/bureau-foundation/coherence/lib/metric"
)

// priorityStep maps every metric at or above floor to priority.
type priorityStep struct {
	floor    int
	priority int
}

// priorityStaircase is ordered by descending floor. The last step
// covers everything below 20.
var priorityStaircase = []priorityStep{
	{90, -10},
	{80, -5},
	{70, -2},
	{60, 0},
	{40, 5},
	{20, 10},
	{metric.Min, 15},
}

// Priority maps a metric to an OS priority. Higher metrics map to
// numerically lower (more favorable) priorities.
func Priority(value int) int {
	value = metric.Clamp(value)
	for _, step := range priorityStaircase {
		if value >= step.floor {
			return step.priority
		}
	}
	return priorityStaircase[len(priorityStaircase)-1].priority
}

// Bounds of the OS nice range.
const (
	NiceMin = -20
	NiceMax = 19
)

// Nice clamps a priority to the nice range accepted by setpriority(2).
func Nice(priority int) int {
	return min(max(priority, NiceMin), NiceMax)
}

// cgroup v2 cpu.weight and v1 cpu.shares bounds.
const (
	CgroupWeightMin = 1
	CgroupWeightMax = 10000
	SharesMin       = 2
	SharesMax       = 2048
)

// WeightRange is a linear cpu.weight mapping: metric 0 maps to Min and
// metric 100 maps to Max.
type WeightRange struct {
	Min int
	Max int
}

// DefaultWeightRange is the documented [10, 1000] range.
var DefaultWeightRange = WeightRange{Min: 10, Max: 1000}

// Map returns the weight for a metric, saturating at both ends and
// never leaving the cgroup v2 range.
func (r WeightRange) Map(value int) int {
	low := min(max(r.Min, CgroupWeightMin), CgroupWeightMax)
	high := min(max(r.Max, low), CgroupWeightMax)
	return linear(metric.Clamp(value), low, high)
}

// Weight maps a metric onto DefaultWeightRange.
func Weight(value int) int {
	return DefaultWeightRange.Map(value)
}

// Shares maps a metric onto the cgroup v1 cpu.shares range.
func Shares(value int) int {
	return linear(metric.Clamp(value), SharesMin, SharesMax)
}

func linear(value, low, high int) int {
	span := float64(high - low)
	return low + int(math.Round(span*float64(value)/float64(metric.Max)))
}

// Tier is a coarse scheduling class.
type Tier int

const (
	Background Tier = iota
	Normal
	Elevated
)

// String returns the tier name used in listings.
func (t Tier) String() string {
	switch t {
	case Background:
		return "background"
	case Normal:
		return "normal"
	case Elevated:
		return "elevated"
	default:
		return "unknown"
	}
}

// TierFor classifies a metric: Elevated at 80 and above, Normal from
// 40, Background below.
func TierFor(value int) Tier {
	switch value = metric.Clamp(value); {
	case value >= 80:
		return Elevated
	case value >= 40:
		return Normal
	default:
		return Background
	}
}

// Hysteresis suppresses re-application of values that moved less than
// Threshold since the last successful apply.
type Hysteresis struct {
	Threshold int
}

// Default hysteresis thresholds. The priority band is in metric points
// (see ShouldApplyMapped); the weight band is in weight units.
var (
	PriorityHysteresis = Hysteresis{Threshold: 5}
	WeightHysteresis   = Hysteresis{Threshold: 50}
)

// ShouldApply reports whether next should be written given the last
// applied value. applied is false when nothing has been written yet,
// in which case the first value is always applied.
func (h Hysteresis) ShouldApply(previous int, applied bool, next int) bool {
	if !applied {
		return true
	}
	if next == previous {
		return false
	}
	return abs(next-previous) >= h.Threshold
}

// ShouldApplyMapped is ShouldApply for a stepped mapping such as
// Priority, whose adjacent steps can be closer together than any useful
// band. The band is measured on the metric instead: a mapped value that
// differs from the applied one is written once the metric has moved at
// least Threshold points from the metric it was applied at. Every step
// stays reachable.
func (h Hysteresis) ShouldApplyMapped(applied bool, appliedValue, appliedMetric, nextValue, nextMetric int) bool {
	if !applied {
		return true
	}
	if nextValue == appliedValue {
		return false
	}
	return abs(nextMetric-appliedMetric) >= h.Threshold
}

func abs(value int) int {
	if value < 0 {
		return -value
	}
	return value
}
