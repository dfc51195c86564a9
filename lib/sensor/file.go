// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileSensor publishes the number stored in a file. Values above 1
// are read as percentages. The parent directory is watched rather than
// the file so that atomic rename-over writes are seen.
type FileSensor struct {
	path   string
	logger *slog.Logger
}

// NewFileSensor returns a sensor for path.
func NewFileSensor(path string, logger *slog.Logger) *FileSensor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileSensor{path: filepath.Clean(path), logger: logger}
}

// Name returns the file's base name.
func (s *FileSensor) Name() string {
	return filepath.Base(s.path)
}

// Run watches the file until ctx is cancelled.
func (s *FileSensor) Run(ctx context.Context, publish func(float64)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	s.publishCurrent(publish)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.publishCurrent(publish)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("sensor watch error", "path", s.path, "error", err)
		}
	}
}

func (s *FileSensor) publishCurrent(publish func(float64)) {
	value, err := ReadValue(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("unreadable sensor value", "path", s.path, "error", err)
		}
		return
	}
	publish(value)
}

// ReadValue parses the first field of a sensor file as a reading in
// [0, 1]. Values in (1, 100] are treated as percentages.
func ReadValue(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("%s: empty", path)
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if value > 1 {
		value /= 100
	}
	return min(max(value, 0), 1), nil
}
