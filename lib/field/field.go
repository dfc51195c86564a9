// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package field

import (
	"math"
	"sync"
	"time"

	"github.com/bureau-foundation/coherence/lib/metric"
	"github.com/bureau-foundation/coherence/lib/proctable"
)

// Baseline is the coherence reported when no processes are tracked,
// and the value the history is seeded with.
const Baseline = 75

// Momentum is the qualitative trend of the aggregate metric.
type Momentum string

const (
	Rising       Momentum = "RISING"
	Stable       Momentum = "STABLE"
	Falling      Momentum = "FALLING"
	Oscillating  Momentum = "OSCILLATING"
	Breakthrough Momentum = "BREAKTHROUGH"
)

// Label is the human-readable description shown in status output.
func (m Momentum) Label() string {
	switch m {
	case Rising:
		return "rising, coherence building"
	case Stable:
		return "stable, holding steady"
	case Falling:
		return "falling, coherence dispersing"
	case Oscillating:
		return "oscillating, seeking equilibrium"
	case Breakthrough:
		return "breakthrough, sudden high coherence"
	default:
		return "unknown"
	}
}

// Distribution counts processes per coherence band.
type Distribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Band thresholds used by Distribution.
const (
	highBand   = 85
	mediumBand = 50
)

// Field is one published state of the global field.
type Field struct {
	Coherence    int      `json:"coherence"`
	Momentum     Momentum `json:"momentum"`
	Participants int      `json:"participants"`

	// Influence is the multiplier applied this cycle, 0 when no
	// external influence was active.
	Influence float64 `json:"influence,omitempty"`

	Breakthrough  bool         `json:"breakthrough"`
	SacredPattern bool         `json:"sacred_pattern"`
	Distribution  Distribution `json:"distribution"`

	Cycle     uint64    `json:"cycle"`
	Timestamp time.Time `json:"timestamp"`
}

// Initial returns the field published before the first cycle.
func Initial(now time.Time) Field {
	return Field{
		Coherence: Baseline,
		Momentum:  Stable,
		Timestamp: now,
	}
}

// Influence is the external input for one recompute.
type Influence struct {
	// Active is set when enough independent sources agree.
	Active bool

	// Multiplier scales the mean metric while Active.
	Multiplier float64

	// Sources is how many sources contributed.
	Sources int
}

// Momentum window positions. Older readings are the first three of the
// window, recent readings the last three.
const (
	HistorySize     = 10
	momentumSamples = 3

	risingDelta  = 5.0
	stableDelta  = 2.0
	breakthrough = 90
	breakDelta   = 10.0
)

// momentumDelta returns recent average minus older average.
func momentumDelta(history []int) float64 {
	if len(history) < momentumSamples {
		return 0
	}
	return mean(history[len(history)-momentumSamples:]) - mean(history[:momentumSamples])
}

// ClassifyMomentum classifies a window of readings, oldest first. It
// never returns Breakthrough.
func ClassifyMomentum(history []int) Momentum {
	delta := momentumDelta(history)
	switch {
	case delta > risingDelta:
		return Rising
	case delta < -risingDelta:
		return Falling
	case math.Abs(delta) < stableDelta:
		return Stable
	default:
		return Oscillating
	}
}

// DetectBreakthrough reports a jump to high coherence: the latest
// reading is at least 90 and the window rose by at least 10.
func DetectBreakthrough(history []int) bool {
	if len(history) == 0 {
		return false
	}
	return history[len(history)-1] >= breakthrough && momentumDelta(history) >= breakDelta
}

// SacredPattern reports whether more than half of the metrics exceed 80.
func SacredPattern(metrics []int) bool {
	if len(metrics) == 0 {
		return false
	}
	high := 0
	for _, value := range metrics {
		if value > 80 {
			high++
		}
	}
	return high*2 > len(metrics)
}

// Harmonics returns φ, e and π scaled by coherence/100.
func Harmonics(coherence int) [3]float64 {
	scale := float64(coherence) / 100
	return [3]float64{math.Phi * scale, math.E * scale, math.Pi * scale}
}

// Distribute counts metrics per band.
func Distribute(metrics []int) Distribution {
	var distribution Distribution
	for _, value := range metrics {
		switch {
		case value >= highBand:
			distribution.High++
		case value >= mediumBand:
			distribution.Medium++
		default:
			distribution.Low++
		}
	}
	return distribution
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, value := range values {
		sum += value
	}
	return float64(sum) / float64(len(values))
}

// Aggregator recomputes the field each cycle. It is owned by the
// scheduler loop and is not safe for concurrent use.
type Aggregator struct {
	history *History
	cycle   uint64
}

// NewAggregator returns an aggregator with a history seeded at Baseline.
func NewAggregator() *Aggregator {
	return &Aggregator{history: NewHistory(HistorySize, Baseline)}
}

// History returns the readings currently in the window, oldest first.
func (a *Aggregator) History() []int {
	return a.history.Values()
}

// Recompute builds the next field from a table snapshot.
func (a *Aggregator) Recompute(snapshot []proctable.TrackedProcess, influence Influence, now time.Time) Field {
	metrics := make([]int, len(snapshot))
	for i, process := range snapshot {
		metrics[i] = process.Metric
	}

	average := float64(Baseline)
	if len(metrics) > 0 {
		average = mean(metrics)
	}

	next := Field{
		Participants:  len(metrics),
		SacredPattern: SacredPattern(metrics),
		Distribution:  Distribute(metrics),
		Timestamp:     now,
	}

	if influence.Active && influence.Multiplier > 0 {
		average *= influence.Multiplier
		next.Influence = influence.Multiplier
	}
	next.Coherence = metric.Clamp(int(math.Round(average)))

	a.history.Push(next.Coherence)
	window := a.history.Values()
	next.Breakthrough = DetectBreakthrough(window)
	if next.Breakthrough {
		next.Momentum = Breakthrough
	} else {
		next.Momentum = ClassifyMomentum(window)
	}

	a.cycle++
	next.Cycle = a.cycle
	return next
}

// Store publishes the current field to concurrent readers.
type Store struct {
	mu      sync.RWMutex
	current Field
}

// NewStore returns a store holding initial.
func NewStore(initial Field) *Store {
	return &Store{current: initial}
}

// Load returns the current field.
func (s *Store) Load() Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Swap publishes next and returns the field it replaced.
func (s *Store) Swap(next Field) Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.current
	s.current = next
	return previous
}
