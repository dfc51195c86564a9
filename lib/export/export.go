// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/coherence/lib/clock"
	"github.com/bureau-foundation/coherence/lib/field"
)

// Encode renders f as key=value lines in a fixed order.
func Encode(f field.Field) []byte {
	harmonics := field.Harmonics(f.Coherence)
	var buffer bytes.Buffer
	line := func(key string, value any) {
		fmt.Fprintf(&buffer, "%s=%v\n", key, value)
	}
	line("coherence", f.Coherence)
	line("momentum", f.Momentum)
	line("label", f.Momentum.Label())
	line("participants", f.Participants)
	line("breakthrough", f.Breakthrough)
	line("sacred_pattern", f.SacredPattern)
	line("influence", strconv.FormatFloat(f.Influence, 'f', 2, 64))
	line("distribution_high", f.Distribution.High)
	line("distribution_medium", f.Distribution.Medium)
	line("distribution_low", f.Distribution.Low)
	line("harmonic_phi", strconv.FormatFloat(harmonics[0], 'f', 4, 64))
	line("harmonic_e", strconv.FormatFloat(harmonics[1], 'f', 4, 64))
	line("harmonic_pi", strconv.FormatFloat(harmonics[2], 'f', 4, 64))
	line("cycle", f.Cycle)
	line("timestamp", f.Timestamp.Unix())
	return buffer.Bytes()
}

// Write atomically replaces path with the encoded field. The parent
// directory must already exist.
func Write(path string, f field.Field) error {
	data := Encode(f)
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary export file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary export file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary export file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary export file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming export file into place: %w", err)
	}
	return nil
}

// Read parses an export file into a key to value map. When the file
// does not exist, the returned error wraps os.ErrNotExist.
func Read(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: missing '='", path, lineNumber)
		}
		values[key] = value
	}
	return values, scanner.Err()
}

// Exporter periodically writes the published field.
type Exporter struct {
	path     string
	interval time.Duration
	store    *field.Store
	clock    clock.Clock
	logger   *slog.Logger

	lastCycle uint64
	written   bool
}

// NewExporter returns an exporter for store. A nil clock uses the real
// clock; a nil logger discards.
func NewExporter(path string, interval time.Duration, store *field.Store, clk clock.Clock, logger *slog.Logger) (*Exporter, error) {
	if path == "" {
		return nil, fmt.Errorf("export path is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("export interval must be positive, got %s", interval)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{
		path:     path,
		interval: interval,
		store:    store,
		clock:    clk,
		logger:   logger,
	}, nil
}

// Run writes the field once, then on every tick when the cycle has
// advanced, until ctx is cancelled. Write failures are logged and
// retried on the next tick.
func (e *Exporter) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	e.export()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.export()
		}
	}
}

func (e *Exporter) export() {
	current := e.store.Load()
	if e.written && current.Cycle == e.lastCycle {
		return
	}
	if err := Write(e.path, current); err != nil {
		e.logger.Warn("field export failed", "path", e.path, "error", err)
		return
	}
	e.lastCycle = current.Cycle
	e.written = true
}
