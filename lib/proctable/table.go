// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proctable

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/coherence/lib/clock"
	"github.com/bureau-foundation/coherence/lib/metric"
)

var (
	// ErrAlreadyExists is returned when registering a live pid.
	ErrAlreadyExists = errors.New("process already registered")

	// ErrNotFound is returned for operations on an untracked pid.
	ErrNotFound = errors.New("process not tracked")
)

// Entry is one element of a process snapshot.
type Entry struct {
	PID  int
	Name string
}

// TrackedProcess is one row of the table.
type TrackedProcess struct {
	PID    int
	Name   string
	Metric int

	// Priority and Weight are the last values an apply adapter
	// accepted. They are meaningless until the matching Applied flag
	// is set. PriorityMetric is the metric Priority was derived from.
	Priority        int
	PriorityMetric  int
	PriorityApplied bool
	Weight          int
	WeightApplied   bool

	// Override is set when the metric was pinned by a control command.
	// The loop leaves pinned metrics alone.
	Override bool

	LastUpdate time.Time
}

// Options configures a Table.
type Options struct {
	// DropAbsent removes tracked processes missing from a snapshot.
	DropAbsent bool

	// Clock stamps LastUpdate. Defaults to clock.Real().
	Clock clock.Clock
}

// Table is a concurrency-safe set of tracked processes keyed by pid.
type Table struct {
	mu         sync.RWMutex
	entries    map[int]*TrackedProcess
	dropAbsent bool
	clock      clock.Clock
}

// New returns an empty table.
func New(options Options) *Table {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	return &Table{
		entries:    make(map[int]*TrackedProcess),
		dropAbsent: options.DropAbsent,
		clock:      options.Clock,
	}
}

func (t *Table) newEntry(pid int, name string) *TrackedProcess {
	return &TrackedProcess{
		PID:        pid,
		Name:       name,
		Metric:     metric.Initial(name),
		LastUpdate: t.clock.Now(),
	}
}

// Register starts tracking pid with the initial metric for name.
func (t *Table) Register(pid int, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[pid]; exists {
		return fmt.Errorf("pid %d: %w", pid, ErrAlreadyExists)
	}
	t.entries[pid] = t.newEntry(pid, name)
	return nil
}

// Unregister stops tracking pid.
func (t *Table) Unregister(pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[pid]; !exists {
		return fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	delete(t.entries, pid)
	return nil
}

// ReconcileResult lists the pids a Reconcile call inserted and removed,
// each in ascending order. A pid whose name changed appears in both:
// the kernel reused it for a different program.
type ReconcileResult struct {
	Added   []int
	Removed []int
}

// Changed reports whether the reconcile mutated the table.
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Reconcile brings the table in line with a snapshot of live
// processes. Calling it again with the same snapshot is a no-op.
func (t *Table) Reconcile(snapshot []Entry) ReconcileResult {
	var result ReconcileResult

	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[int]struct{}, len(snapshot))
	for _, entry := range snapshot {
		if _, duplicate := seen[entry.PID]; duplicate {
			continue
		}
		seen[entry.PID] = struct{}{}

		existing, exists := t.entries[entry.PID]
		if exists && existing.Name == entry.Name {
			continue
		}
		if exists {
			result.Removed = append(result.Removed, entry.PID)
		}
		t.entries[entry.PID] = t.newEntry(entry.PID, entry.Name)
		result.Added = append(result.Added, entry.PID)
	}

	if t.dropAbsent {
		for pid := range t.entries {
			if _, present := seen[pid]; !present {
				delete(t.entries, pid)
				result.Removed = append(result.Removed, pid)
			}
		}
	}

	slices.Sort(result.Added)
	slices.Sort(result.Removed)
	return result
}

// sortedPIDs returns the live pids in ascending order. Caller holds mu.
func (t *Table) sortedPIDs() []int {
	pids := make([]int, 0, len(t.entries))
	for pid := range t.entries {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

// ForEach calls fn for every live entry in ascending pid order, under
// the write lock. fn may change Metric and LastUpdate but must not
// block or call back into the table.
func (t *Table) ForEach(fn func(*TrackedProcess)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pid := range t.sortedPIDs() {
		entry := t.entries[pid]
		fn(entry)
		entry.Metric = metric.Clamp(entry.Metric)
	}
}

// Snapshot returns a copy of every entry in ascending pid order.
func (t *Table) Snapshot() []TrackedProcess {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make([]TrackedProcess, 0, len(t.entries))
	for _, pid := range t.sortedPIDs() {
		snapshot = append(snapshot, *t.entries[pid])
	}
	return snapshot
}

// Lookup returns a copy of the entry for pid.
func (t *Table) Lookup(pid int) (TrackedProcess, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, exists := t.entries[pid]
	if !exists {
		return TrackedProcess{}, false
	}
	return *entry, true
}

// Len returns the number of tracked processes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// RecordPriority stores a priority an apply adapter accepted together
// with the metric it was mapped from. It is a no-op if pid was removed
// while the apply was in flight.
func (t *Table) RecordPriority(pid, priority, metric int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[pid]; exists {
		entry.Priority = priority
		entry.PriorityMetric = metric
		entry.PriorityApplied = true
	}
}

// RecordWeight stores a weight an apply adapter accepted.
func (t *Table) RecordWeight(pid, weight int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[pid]; exists {
		entry.Weight = weight
		entry.WeightApplied = true
	}
}

// SetMetric pins the metric of pid. The value is clamped.
func (t *Table) SetMetric(pid, value int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[pid]
	if !exists {
		return fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	entry.Metric = metric.Clamp(value)
	entry.Override = true
	entry.LastUpdate = t.clock.Now()
	return nil
}
