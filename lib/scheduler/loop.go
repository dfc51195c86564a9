// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/coherence/lib/apply"
	"github.com/bureau-foundation/coherence/lib/clock"
	"github.com/bureau-foundation/coherence/lib/field"
	"github.com/bureau-foundation/coherence/lib/mapper"
	"github.com/bureau-foundation/coherence/lib/metric"
	"github.com/bureau-foundation/coherence/lib/proctable"
	"github.com/bureau-foundation/coherence/lib/tracing"
)

// DefaultInterval is the cycle period when Options.Interval is zero.
const DefaultInterval = 5 * time.Second

// Snapshotter lists live processes, ordered by pid.
type Snapshotter interface {
	List(ctx context.Context) ([]proctable.Entry, error)
}

// UsageSource reports CPU usage in percent of one core for the pids it
// has a measurement for.
type UsageSource interface {
	Sample(pids []int) map[int]float64
}

// InfluenceSource supplies the external influence for a cycle.
type InfluenceSource interface {
	Influence() field.Influence
}

// State is the phase the loop is in.
type State int32

const (
	Idle State = iota
	Snapshot
	Reconcile
	UpdateMetrics
	MapAndApply
	Aggregate
)

// String returns the phase name used in status output.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Snapshot:
		return "SNAPSHOT"
	case Reconcile:
		return "RECONCILE"
	case UpdateMetrics:
		return "UPDATE_METRICS"
	case MapAndApply:
		return "MAP_AND_APPLY"
	case Aggregate:
		return "AGGREGATE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures a Loop. Table, Store, Snapshotter and Applier
// are required.
type Options struct {
	Table       *proctable.Table
	Store       *field.Store
	Snapshotter Snapshotter
	Applier     apply.Applier

	// Usage feeds the CPU nudge of metric.Update. Nil disables it.
	Usage UsageSource

	// Influence is read once per cycle. Nil means no influence.
	Influence InfluenceSource

	// Fluctuator perturbs each updated metric by up to Fluctuation.
	// Either being zero disables it.
	Fluctuator  *metric.Fluctuator
	Fluctuation int

	// Hysteresis thresholds. The zero value re-applies any change.
	PriorityHysteresis mapper.Hysteresis
	WeightHysteresis   mapper.Hysteresis

	// Weights maps metrics to cgroup weights. Zero uses
	// mapper.DefaultWeightRange.
	Weights mapper.WeightRange

	// Interval between cycles. Zero uses DefaultInterval.
	Interval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// OnCycle, when set, is called with every completed cycle's report.
	OnCycle func(Report)
}

// Report summarizes one cycle.
type Report struct {
	Cycle uint64

	// SnapshotErr is set when the process listing failed and
	// reconciliation was skipped.
	SnapshotErr error

	Added   []int
	Removed []int

	Updated           int
	PrioritiesApplied int
	WeightsApplied    int
	ApplyFailures     int

	Field field.Field
}

// Loop drives the cycle.
type Loop struct {
	options    Options
	aggregator *field.Aggregator
	state      atomic.Int32
}

// New validates options and returns a loop in the Idle state.
func New(options Options) (*Loop, error) {
	var errs []error
	if options.Table == nil {
		errs = append(errs, errors.New("scheduler: Table is required"))
	}
	if options.Store == nil {
		errs = append(errs, errors.New("scheduler: Store is required"))
	}
	if options.Snapshotter == nil {
		errs = append(errs, errors.New("scheduler: Snapshotter is required"))
	}
	if options.Applier == nil {
		errs = append(errs, errors.New("scheduler: Applier is required"))
	}
	if options.Interval < 0 {
		errs = append(errs, fmt.Errorf("scheduler: negative interval %s", options.Interval))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if options.Interval == 0 {
		options.Interval = DefaultInterval
	}
	if options.Weights == (mapper.WeightRange{}) {
		options.Weights = mapper.DefaultWeightRange
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	return &Loop{options: options, aggregator: field.NewAggregator()}, nil
}

// State returns the phase currently executing.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) enter(state State) {
	l.state.Store(int32(state))
}

// Run executes a cycle immediately and then once per interval until
// ctx is cancelled. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.options.Clock.NewTicker(l.options.Interval)
	defer ticker.Stop()

	l.options.Logger.Info("scheduler loop started",
		"interval", l.options.Interval,
		"applier", l.options.Applier.Name(),
	)

	for {
		if _, err := l.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				l.options.Logger.Info("scheduler loop stopped", "reason", "cycle abandoned")
				return nil
			}
			l.options.Logger.Error("scheduler cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			l.options.Logger.Info("scheduler loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle executes one full cycle. The only error it returns is the
// context's, when the cycle was abandoned before publishing.
func (l *Loop) RunCycle(ctx context.Context) (report Report, err error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.cycle")
	defer func() {
		l.enter(Idle)
		span.End(err)
	}()

	entries, snapshotErr := l.snapshot(ctx)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if snapshotErr != nil {
		report.SnapshotErr = snapshotErr
		l.options.Logger.Warn("process snapshot failed, keeping table", "error", snapshotErr)
	} else {
		l.reconcile(ctx, entries, &report)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	l.updateMetrics(ctx, &report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	l.mapAndApply(ctx, &report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.Field = l.aggregate(ctx)
	report.Cycle = report.Field.Cycle
	span.SetInt("participants", report.Field.Participants)
	span.SetInt("coherence", report.Field.Coherence)

	if l.options.OnCycle != nil {
		l.options.OnCycle(report)
	}
	return report, nil
}

func (l *Loop) snapshot(ctx context.Context) ([]proctable.Entry, error) {
	l.enter(Snapshot)
	ctx, span := tracing.StartSpan(ctx, "scheduler.snapshot")
	entries, err := l.options.Snapshotter.List(ctx)
	span.SetInt("processes", len(entries))
	span.End(err)
	return entries, err
}

func (l *Loop) reconcile(ctx context.Context, entries []proctable.Entry, report *Report) {
	l.enter(Reconcile)
	_, span := tracing.StartSpan(ctx, "scheduler.reconcile")
	defer span.End(nil)

	result := l.options.Table.Reconcile(entries)
	report.Added, report.Removed = result.Added, result.Removed
	span.SetInt("added", len(result.Added))
	span.SetInt("removed", len(result.Removed))

	forgetter, ok := l.options.Applier.(apply.Forgetter)
	if !ok {
		return
	}
	for _, pid := range result.Removed {
		if err := forgetter.Forget(pid); err != nil {
			l.options.Logger.Warn("releasing apply state failed", "pid", pid, "error", err)
		}
	}
}

func (l *Loop) updateMetrics(ctx context.Context, report *Report) {
	l.enter(UpdateMetrics)
	_, span := tracing.StartSpan(ctx, "scheduler.update_metrics")
	defer span.End(nil)

	// Usage sampling reads /proc, so it happens before the lock is taken.
	var usage map[int]float64
	if l.options.Usage != nil {
		current := l.options.Table.Snapshot()
		pids := make([]int, len(current))
		for i, process := range current {
			pids[i] = process.PID
		}
		usage = l.options.Usage.Sample(pids)
	}

	now := l.options.Clock.Now()
	fluctuate := l.options.Fluctuator != nil && l.options.Fluctuation > 0

	l.options.Table.ForEach(func(process *proctable.TrackedProcess) {
		if process.Override {
			return
		}
		var cpu *float64
		if percent, ok := usage[process.PID]; ok {
			cpu = &percent
		}
		next := metric.Update(process.Metric, cpu)
		if fluctuate {
			next = l.options.Fluctuator.Blend(next, l.options.Fluctuation)
		}
		process.Metric = next
		process.LastUpdate = now
		report.Updated++
	})
	span.SetInt("updated", report.Updated)
}

// planItem is one process's pending writes.
type planItem struct {
	pid           int
	metric        int
	priority      int
	applyPriority bool
	weight        int
	applyWeight   bool
}

func (l *Loop) plan() []planItem {
	var plan []planItem
	for _, process := range l.options.Table.Snapshot() {
		item := planItem{
			pid:      process.PID,
			metric:   process.Metric,
			priority: mapper.Priority(process.Metric),
			weight:   l.options.Weights.Map(process.Metric),
		}
		item.applyPriority = l.options.PriorityHysteresis.ShouldApplyMapped(
			process.PriorityApplied, process.Priority, process.PriorityMetric, item.priority, item.metric)
		item.applyWeight = l.options.WeightHysteresis.ShouldApply(process.Weight, process.WeightApplied, item.weight)
		if item.applyPriority || item.applyWeight {
			plan = append(plan, item)
		}
	}
	return plan
}

func (l *Loop) mapAndApply(ctx context.Context, report *Report) {
	l.enter(MapAndApply)
	_, span := tracing.StartSpan(ctx, "scheduler.map_and_apply")
	defer span.End(nil)

	applier := l.options.Applier
	for _, item := range l.plan() {
		if item.applyPriority {
			if err := applier.ApplyPriority(item.pid, item.priority); err != nil {
				report.ApplyFailures++
				l.options.Logger.Warn("applying priority failed",
					"pid", item.pid, "priority", item.priority, "error", err)
			} else {
				l.options.Table.RecordPriority(item.pid, item.priority, item.metric)
				report.PrioritiesApplied++
			}
		}
		if item.applyWeight {
			if err := applier.ApplyWeight(item.pid, item.weight); err != nil {
				report.ApplyFailures++
				l.options.Logger.Warn("applying weight failed",
					"pid", item.pid, "weight", item.weight, "error", err)
			} else {
				l.options.Table.RecordWeight(item.pid, item.weight)
				report.WeightsApplied++
			}
		}
	}
	span.SetInt("priorities_applied", report.PrioritiesApplied)
	span.SetInt("weights_applied", report.WeightsApplied)
	span.SetInt("failures", report.ApplyFailures)
}

func (l *Loop) aggregate(ctx context.Context) field.Field {
	l.enter(Aggregate)
	_, span := tracing.StartSpan(ctx, "scheduler.aggregate")
	defer span.End(nil)

	var influence field.Influence
	if l.options.Influence != nil {
		influence = l.options.Influence.Influence()
	}

	next := l.aggregator.Recompute(l.options.Table.Snapshot(), influence, l.options.Clock.Now())
	l.options.Store.Swap(next)

	span.SetString("momentum", string(next.Momentum))
	l.options.Logger.Debug("field published",
		"cycle", next.Cycle,
		"coherence", next.Coherence,
		"momentum", next.Momentum,
		"participants", next.Participants,
	)
	return next
}
