// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package field

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/coherence/lib/proctable"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func repeat(value, count int) []int {
	values := make([]int, count)
	for i := range values {
		values[i] = value
	}
	return values
}

func processes(metrics ...int) []proctable.TrackedProcess {
	snapshot := make([]proctable.TrackedProcess, len(metrics))
	for i, value := range metrics {
		snapshot[i] = proctable.TrackedProcess{PID: i + 1, Metric: value}
	}
	return snapshot
}

func TestClassifyMomentum(t *testing.T) {
	tests := []struct {
		name    string
		history []int
		want    Momentum
	}{
		{"rising", append(repeat(75, 7), 85, 85, 85), Rising},
		{"constant", repeat(60, 10), Stable},
		{"falling", append(repeat(80, 7), 70, 70, 70), Falling},
		{"oscillating", append(repeat(70, 7), 73, 73, 73), Oscillating},
		{"small drift is stable", append(repeat(70, 7), 71, 71, 71), Stable},
		{"short history", []int{10, 90}, Stable},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ClassifyMomentum(test.history); got != test.want {
				t.Errorf("ClassifyMomentum(%v) = %s, want %s", test.history, got, test.want)
			}
		})
	}
}

func TestClassifyMomentumNeverBreakthrough(t *testing.T) {
	history := append(repeat(50, 7), 100, 100, 100)
	if got := ClassifyMomentum(history); got != Rising {
		t.Fatalf("ClassifyMomentum = %s, want RISING", got)
	}
	if !DetectBreakthrough(history) {
		t.Fatal("DetectBreakthrough should fire for a jump to 100")
	}
}

func TestDetectBreakthrough(t *testing.T) {
	if DetectBreakthrough(append(repeat(85, 7), 92, 92, 92)) {
		t.Error("delta 7 must not be a breakthrough")
	}
	if DetectBreakthrough(append(repeat(60, 7), 85, 85, 89)) {
		t.Error("latest below 90 must not be a breakthrough")
	}
	if DetectBreakthrough(nil) {
		t.Error("empty history must not be a breakthrough")
	}
}

func TestSacredPattern(t *testing.T) {
	if SacredPattern(nil) {
		t.Error("no processes cannot form a pattern")
	}
	if SacredPattern([]int{81, 81, 20, 20}) {
		t.Error("exactly half is not a majority")
	}
	if !SacredPattern([]int{81, 95, 20}) {
		t.Error("two of three above 80 is a majority")
	}
	if SacredPattern([]int{80, 80, 80}) {
		t.Error("80 is not above 80")
	}
}

func TestHarmonics(t *testing.T) {
	got := Harmonics(100)
	want := [3]float64{math.Phi, math.E, math.Pi}
	if got != want {
		t.Fatalf("Harmonics(100) = %v, want %v", got, want)
	}
	if Harmonics(0) != [3]float64{} {
		t.Fatalf("Harmonics(0) = %v", Harmonics(0))
	}
}

func TestDistribute(t *testing.T) {
	got := Distribute([]int{90, 85, 84, 50, 49, 0})
	want := Distribution{High: 2, Medium: 2, Low: 2}
	if got != want {
		t.Fatalf("Distribute = %+v, want %+v", got, want)
	}
}

func TestHistorySeededAndBounded(t *testing.T) {
	history := NewHistory(10, 75)
	if diff := cmp.Diff(repeat(75, 10), history.Values()); diff != "" {
		t.Fatalf("seeded history (-want +got):\n%s", diff)
	}
	for i := range 25 {
		history.Push(i)
		if history.Len() != 10 {
			t.Fatalf("history length %d after push %d", history.Len(), i)
		}
	}
	want := []int{15, 16, 17, 18, 19, 20, 21, 22, 23, 24}
	if diff := cmp.Diff(want, history.Values()); diff != "" {
		t.Fatalf("history after pushes (-want +got):\n%s", diff)
	}
}

func TestRecomputeEmptyTableUsesBaseline(t *testing.T) {
	aggregator := NewAggregator()
	got := aggregator.Recompute(nil, Influence{}, now)
	if got.Coherence != Baseline || got.Participants != 0 || got.Momentum != Stable {
		t.Fatalf("empty recompute = %+v", got)
	}
	if got.Cycle != 1 || !got.Timestamp.Equal(now) {
		t.Fatalf("cycle/timestamp = %d/%v", got.Cycle, got.Timestamp)
	}
}

func TestRecomputeMean(t *testing.T) {
	aggregator := NewAggregator()
	got := aggregator.Recompute(processes(80, 75, 54, 54), Influence{}, now)
	// (80+75+54+54)/4 = 65.75
	if got.Coherence != 66 {
		t.Fatalf("Coherence = %d, want 66", got.Coherence)
	}
	if got.Participants != 4 {
		t.Fatalf("Participants = %d, want 4", got.Participants)
	}
	if got.Influence != 0 {
		t.Fatalf("Influence = %v, want 0", got.Influence)
	}
}

func TestRecomputeInfluence(t *testing.T) {
	aggregator := NewAggregator()
	got := aggregator.Recompute(processes(70, 70), Influence{Active: true, Multiplier: 1.2, Sources: 2}, now)
	if got.Coherence != 84 || got.Influence != 1.2 {
		t.Fatalf("influenced field = %+v, want coherence 84", got)
	}

	inactive := aggregator.Recompute(processes(70, 70), Influence{Active: false, Multiplier: 1.2}, now)
	if inactive.Coherence != 70 || inactive.Influence != 0 {
		t.Fatalf("inactive influence changed the field: %+v", inactive)
	}

	saturated := aggregator.Recompute(processes(95), Influence{Active: true, Multiplier: 1.5}, now)
	if saturated.Coherence != 100 {
		t.Fatalf("influence must clamp to 100, got %d", saturated.Coherence)
	}
}

func TestRecomputeMomentumAndBreakthrough(t *testing.T) {
	aggregator := NewAggregator()
	var last Field
	for range 3 {
		last = aggregator.Recompute(processes(100, 100), Influence{}, now)
	}
	// History is [75 x7, 100, 100, 100]: delta 25 with latest 100.
	if !last.Breakthrough || last.Momentum != Breakthrough {
		t.Fatalf("expected breakthrough, got %+v", last)
	}
	if !last.SacredPattern {
		t.Fatal("all processes above 80 should form the sacred pattern")
	}
	for range 10 {
		last = aggregator.Recompute(processes(100, 100), Influence{}, now)
	}
	if last.Breakthrough || last.Momentum != Stable {
		t.Fatalf("steady high field should settle to STABLE, got %+v", last)
	}
	if last.Cycle != 13 {
		t.Fatalf("Cycle = %d, want 13", last.Cycle)
	}
}

func TestStoreSwapIsAtomic(t *testing.T) {
	store := NewStore(Initial(now))
	if got := store.Load(); got.Coherence != Baseline {
		t.Fatalf("initial coherence = %d", got.Coherence)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for cycle := range 100 {
				store.Swap(Field{Coherence: writer, Participants: writer, Cycle: uint64(cycle)})
			}
		}(i)
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				loaded := store.Load()
				if loaded.Cycle != 0 && loaded.Coherence != loaded.Participants {
					t.Errorf("torn field: %+v", loaded)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMomentumLabels(t *testing.T) {
	for _, momentum := range []Momentum{Rising, Stable, Falling, Oscillating, Breakthrough} {
		if momentum.Label() == "unknown" {
			t.Errorf("%s has no label", momentum)
		}
	}
}
