// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/coherence/lib/clock"
	"github.com/bureau-foundation/coherence/lib/field"
)

// Sensor is one external input. Run publishes readings until ctx is
// cancelled and returns nil on cancellation.
type Sensor interface {
	Name() string
	Run(ctx context.Context, publish func(value float64)) error
}

// Options configures a Hub.
type Options struct {
	// Threshold is the reading every agreeing source must reach.
	Threshold float64

	// MinSources is the number of agreeing sources that activates the
	// influence.
	MinSources int

	// Multiplier is reported in the Influence while active.
	Multiplier float64

	// MaxAge discards stale readings. Zero keeps readings forever.
	MaxAge time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Reading is the latest value of one source.
type Reading struct {
	Source string    `json:"source"`
	Value  float64   `json:"value"`
	At     time.Time `json:"at"`
}

// Hub holds one slot per source.
type Hub struct {
	options Options

	mu    sync.Mutex
	slots map[string]Reading
}

// NewHub returns an empty hub.
func NewHub(options Options) *Hub {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.MinSources < 1 {
		options.MinSources = 1
	}
	return &Hub{options: options, slots: make(map[string]Reading)}
}

// Update stores the latest reading for source, clamped to [0, 1].
func (h *Hub) Update(source string, value float64) {
	value = min(max(value, 0), 1)
	now := h.options.Clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots[source] = Reading{Source: source, Value: value, At: now}
}

// Readings returns every slot ordered by source name.
func (h *Hub) Readings() []Reading {
	h.mu.Lock()
	defer h.mu.Unlock()

	readings := make([]Reading, 0, len(h.slots))
	for _, reading := range h.slots {
		readings = append(readings, reading)
	}
	slices.SortFunc(readings, func(a, b Reading) int {
		if a.Source < b.Source {
			return -1
		}
		if a.Source > b.Source {
			return 1
		}
		return 0
	})
	return readings
}

// Influence reduces the current slots. Sources counts fresh readings;
// the result is active when at least MinSources of them meet Threshold.
func (h *Hub) Influence() field.Influence {
	now := h.options.Clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	fresh, agreeing := 0, 0
	for _, reading := range h.slots {
		if h.options.MaxAge > 0 && now.Sub(reading.At) > h.options.MaxAge {
			continue
		}
		fresh++
		if reading.Value >= h.options.Threshold {
			agreeing++
		}
	}

	influence := field.Influence{Sources: fresh, Multiplier: h.options.Multiplier}
	influence.Active = agreeing >= h.options.MinSources
	return influence
}

// Run starts every sensor and blocks until ctx is cancelled or one of
// them fails. A failing sensor cancels the others.
func (h *Hub) Run(ctx context.Context, sensors []Sensor) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, sensor := range sensors {
		name := sensor.Name()
		group.Go(func() error {
			h.options.Logger.Info("sensor started", "source", name)
			err := sensor.Run(groupCtx, func(value float64) {
				h.Update(name, value)
			})
			if err != nil {
				return fmt.Errorf("sensor %s: %w", name, err)
			}
			return nil
		})
	}
	return group.Wait()
}
