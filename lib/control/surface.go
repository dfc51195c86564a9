// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/coherence/lib/field"
	"github.com/bureau-foundation/coherence/lib/mapper"
	"github.com/bureau-foundation/coherence/lib/proctable"
)

var (
	// ErrInvalidCommand is returned for malformed control input.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrProcessNotFound is returned when a registration target does
	// not exist.
	ErrProcessNotFound = errors.New("process not found")
)

// Resolver maps a pid to its command name.
type Resolver interface {
	Resolve(pid int) (string, error)
}

// Options configures a Surface. Table, Store and Resolver are required.
type Options struct {
	Table    *proctable.Table
	Store    *field.Store
	Resolver Resolver

	// AllowSet enables the set verb.
	AllowSet bool

	// Phase reports the scheduler phase for status output. Optional.
	Phase func() string

	// OnUnregister runs after a pid is removed by an unregister
	// command. Optional.
	OnUnregister func(pid int)

	Logger *slog.Logger
}

// Surface serves reads and executes write commands.
type Surface struct {
	options Options
}

// New returns a Surface.
func New(options Options) *Surface {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Surface{options: options}
}

// Status is the aggregate view of the field.
type Status struct {
	Field     field.Field   `json:"field"`
	Label     string        `json:"label"`
	Harmonics [3]float64    `json:"harmonics"`
	Phase     string        `json:"phase,omitempty"`
	Top       []ProcessView `json:"top,omitempty"`
}

// ProcessView is one row of the process listing.
type ProcessView struct {
	PID    int    `json:"pid"`
	Name   string `json:"name"`
	Metric int    `json:"metric"`
	Tier   string `json:"tier"`
	Pinned bool   `json:"pinned,omitempty"`

	// Priority and Weight are the values last applied, or nil when
	// nothing has been applied yet.
	Priority *int `json:"priority,omitempty"`
	Weight   *int `json:"weight,omitempty"`

	// Mapped is the priority the current metric maps to.
	Mapped int `json:"mapped"`
}

// topCount is the number of processes included in Status.
const topCount = 5

// Status returns the current field with its label and the highest
// coherence processes.
func (s *Surface) Status() Status {
	current := s.options.Store.Load()
	status := Status{
		Field:     current,
		Label:     current.Momentum.Label(),
		Harmonics: field.Harmonics(current.Coherence),
	}
	if s.options.Phase != nil {
		status.Phase = s.options.Phase()
	}
	processes := s.Processes()
	status.Top = processes[:min(topCount, len(processes))]
	return status
}

// Processes lists every tracked process by descending metric, ties
// broken by pid.
func (s *Surface) Processes() []ProcessView {
	snapshot := s.options.Table.Snapshot()
	views := make([]ProcessView, len(snapshot))
	for i, process := range snapshot {
		view := ProcessView{
			PID:    process.PID,
			Name:   process.Name,
			Metric: process.Metric,
			Tier:   mapper.TierFor(process.Metric).String(),
			Pinned: process.Override,
			Mapped: mapper.Priority(process.Metric),
		}
		if process.PriorityApplied {
			priority := process.Priority
			view.Priority = &priority
		}
		if process.WeightApplied {
			weight := process.Weight
			view.Weight = &weight
		}
		views[i] = view
	}
	slices.SortStableFunc(views, func(a, b ProcessView) int {
		if a.Metric != b.Metric {
			return b.Metric - a.Metric
		}
		return a.PID - b.PID
	})
	return views
}

// SacredPattern reports whether more than half of the live processes
// have a metric above 80.
func (s *Surface) SacredPattern() bool {
	snapshot := s.options.Table.Snapshot()
	metrics := make([]int, len(snapshot))
	for i, process := range snapshot {
		metrics[i] = process.Metric
	}
	return field.SacredPattern(metrics)
}

// Verbs accepted by ParseCommand.
const (
	VerbRegister   = "register"
	VerbUnregister = "unregister"
	VerbSet        = "set"
)

// Command is a parsed control line.
type Command struct {
	Verb   string
	PID    int
	Metric int
}

// ParseCommand parses one whitespace-separated control line.
func ParseCommand(line string, allowSet bool) (Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}

	verb := tokens[0]
	var wantTokens int
	switch {
	case verb == VerbRegister || verb == VerbUnregister:
		wantTokens = 2
	case verb == VerbSet && allowSet:
		wantTokens = 3
	default:
		return Command{}, fmt.Errorf("%w: unknown verb %q", ErrInvalidCommand, verb)
	}
	if len(tokens) != wantTokens {
		return Command{}, fmt.Errorf("%w: %s takes %d argument(s), got %d",
			ErrInvalidCommand, verb, wantTokens-1, len(tokens)-1)
	}

	pid, err := strconv.Atoi(tokens[1])
	if err != nil || pid <= 0 {
		return Command{}, fmt.Errorf("%w: pid %q is not a positive integer", ErrInvalidCommand, tokens[1])
	}
	command := Command{Verb: verb, PID: pid}

	if verb == VerbSet {
		value, err := strconv.Atoi(tokens[2])
		if err != nil || value < 0 || value > 100 {
			return Command{}, fmt.Errorf("%w: metric %q is not an integer in [0, 100]", ErrInvalidCommand, tokens[2])
		}
		command.Metric = value
	}
	return command, nil
}

// Execute parses and runs one control line.
func (s *Surface) Execute(line string) error {
	command, err := ParseCommand(line, s.options.AllowSet)
	if err != nil {
		return err
	}

	switch command.Verb {
	case VerbRegister:
		name, err := s.options.Resolver.Resolve(command.PID)
		if err != nil {
			return fmt.Errorf("%w: pid %d: %v", ErrProcessNotFound, command.PID, err)
		}
		if err := s.options.Table.Register(command.PID, name); err != nil {
			return err
		}
		s.options.Logger.Info("process registered", "pid", command.PID, "name", name)

	case VerbUnregister:
		if err := s.options.Table.Unregister(command.PID); err != nil {
			return err
		}
		if s.options.OnUnregister != nil {
			s.options.OnUnregister(command.PID)
		}
		s.options.Logger.Info("process unregistered", "pid", command.PID)

	case VerbSet:
		if err := s.options.Table.SetMetric(command.PID, command.Metric); err != nil {
			return err
		}
		s.options.Logger.Info("metric pinned", "pid", command.PID, "metric", command.Metric)
	}
	return nil
}
