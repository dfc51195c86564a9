// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/coherence/lib/proctable"
)

// DefaultRoot is the procfs mount point.
const DefaultRoot = "/proc"

// ErrNoProcess is returned by Resolve for a pid with no /proc entry.
var ErrNoProcess = errors.New("no such process")

// Scanner lists processes under a procfs root.
type Scanner struct {
	root string
}

// NewScanner returns a scanner for root, or DefaultRoot when empty.
func NewScanner(root string) *Scanner {
	if root == "" {
		root = DefaultRoot
	}
	return &Scanner{root: root}
}

// List returns every process with a readable comm, ordered by pid.
func (s *Scanner) List(ctx context.Context) ([]proctable.Entry, error) {
	directory, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}

	entries := make([]proctable.Entry, 0, len(directory))
	for _, dirent := range directory {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid, err := strconv.Atoi(dirent.Name())
		if err != nil || pid <= 0 {
			continue
		}
		name, err := s.readComm(pid)
		if err != nil {
			continue
		}
		entries = append(entries, proctable.Entry{PID: pid, Name: name})
	}

	slices.SortFunc(entries, func(a, b proctable.Entry) int { return a.PID - b.PID })
	return entries, nil
}

// Resolve returns the command name of pid.
func (s *Scanner) Resolve(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("pid %d: %w", pid, ErrNoProcess)
	}
	name, err := s.readComm(pid)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("pid %d: %w", pid, ErrNoProcess)
	}
	if err != nil {
		return "", fmt.Errorf("pid %d: %w", pid, err)
	}
	return name, nil
}

func (s *Scanner) readComm(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, strconv.Itoa(pid), "comm"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
