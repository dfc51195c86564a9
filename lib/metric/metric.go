// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metric

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
)

const (
	// Min and Max bound every metric.
	Min = 0
	Max = 100

	// Base is the initial metric of a name that matches no class.
	Base = 50

	// decayFactor and decayFloor define m' = m*decayFactor + decayFloor.
	// The fixed point is 100, so idle processes drift upward slowly.
	decayFactor = 0.95
	decayFloor  = 5.0

	// boost is added after decay unless decay already reached Max.
	boost = 1

	// CPU thresholds, in percent of one core.
	highUsage    = 80.0
	lowUsage     = 5.0
	highPenalty  = -10
	lowIncentive = 2
)

// Class is a named group of name keywords sharing one bonus.
type Class struct {
	Name  string
	Bonus int

	// Keywords match anywhere in the lowercased name.
	Keywords []string

	// Tokens match only a whole name component, split on '-', '_',
	// '.', '/' and spaces. Short words that are common inside other
	// names go here: "go" must not match "mongod" or "cargo".
	Tokens []string
}

// Classes are checked in order; the first class with a matching
// keyword or token wins.
var Classes = []Class{
	{Name: "focus", Bonus: 30, Keywords: []string{"meditation", "focus", "mindful", "sacred", "luminous", "consciousness"}},
	{Name: "creative", Bonus: 25, Keywords: []string{"editor", "vim", "emacs", "code", "compose", "write"}, Tokens: []string{"ide"}},
	{Name: "tooling", Bonus: 20, Keywords: []string{"compiler", "rustc", "gcc", "make", "build", "test"}, Tokens: []string{"go"}},
	{Name: "comms", Bonus: 15, Keywords: []string{"terminal", "shell", "bash", "zsh", "mail", "chat"}},
}

// Classify returns the class a process name falls into, or "generic".
func Classify(name string) Class {
	lower := strings.ToLower(name)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == '/' || r == ' '
	})
	for _, class := range Classes {
		for _, keyword := range class.Keywords {
			if strings.Contains(lower, keyword) {
				return class
			}
		}
		for _, token := range class.Tokens {
			if slices.Contains(tokens, token) {
				return class
			}
		}
	}
	return Class{Name: "generic"}
}

// Initial returns the starting metric for a process name.
func Initial(name string) int {
	return Clamp(Base + Classify(name).Bonus)
}

// Update advances a metric by one cycle. cpuPercent is optional; nil
// means no usage signal is available for this process.
func Update(metric int, cpuPercent *float64) int {
	next := float64(Clamp(metric))*decayFactor + decayFloor
	if next < Max {
		next += boost
	}
	if cpuPercent != nil {
		switch {
		case *cpuPercent >= highUsage:
			next += highPenalty
		case *cpuPercent <= lowUsage:
			next += lowIncentive
		}
	}
	return Clamp(int(math.Round(next)))
}

// Clamp bounds a metric to [Min, Max].
func Clamp(metric int) int {
	return min(max(metric, Min), Max)
}

// Fluctuator perturbs metrics with a bounded symmetric random offset.
// It is not safe for concurrent use; the scheduler loop owns one.
type Fluctuator struct {
	random *rand.Rand
}

// NewFluctuator returns a Fluctuator drawing from a PCG source seeded
// with seed. Equal seeds produce equal sequences.
func NewFluctuator(seed uint64) *Fluctuator {
	return &Fluctuator{random: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewFluctuatorFrom wraps an existing random source.
func NewFluctuatorFrom(random *rand.Rand) *Fluctuator {
	return &Fluctuator{random: random}
}

// Blend adds a uniform offset in [-delta, +delta] and clamps. A delta
// of zero or less returns the clamped metric unchanged.
func (f *Fluctuator) Blend(metric, delta int) int {
	if delta <= 0 {
		return Clamp(metric)
	}
	offset := f.random.IntN(2*delta+1) - delta
	return Clamp(metric + offset)
}
