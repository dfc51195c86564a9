// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/bureau-foundation/coherence/lib/mapper"
)

// Cgroup applies weights through cgroup v2. Each process gets a child
// cgroup "pid-<pid>" under the root; the child's cpu.weight is set and
// the pid is written to its cgroup.procs once.
type Cgroup struct {
	root   string
	logger *slog.Logger
	remove func(string) error

	mu    sync.Mutex
	moved map[int]bool
}

// NewCgroup returns an adapter rooted at root.
func NewCgroup(root string, logger *slog.Logger) *Cgroup {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cgroup{root: root, logger: logger, remove: os.Remove, moved: make(map[int]bool)}
}

func (c *Cgroup) Name() string { return BackendCgroup }

// Prepare creates the root cgroup and enables the cpu controller for
// its children.
func (c *Cgroup) Prepare() error {
	if err := os.MkdirAll(c.root, 0755); err != nil {
		return fmt.Errorf("%w: creating cgroup %s: %w", ErrApply, c.root, err)
	}
	if err := writeControl(filepath.Join(c.root, "cgroup.subtree_control"), "+cpu"); err != nil {
		return fmt.Errorf("%w: enabling cpu controller in %s: %w", ErrApply, c.root, err)
	}
	return nil
}

func (c *Cgroup) childPath(pid int) string {
	return filepath.Join(c.root, "pid-"+strconv.Itoa(pid))
}

// ApplyPriority is a no-op: priorities go through the nice adapter.
func (c *Cgroup) ApplyPriority(int, int) error { return nil }

// ApplyWeight writes cpu.weight for pid's child cgroup, creating it and
// moving the process into it on first use.
func (c *Cgroup) ApplyWeight(pid, weight int) error {
	weight = min(max(weight, mapper.CgroupWeightMin), mapper.CgroupWeightMax)
	child := c.childPath(pid)

	if err := os.MkdirAll(child, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrApply, child, err)
	}
	if err := writeControl(filepath.Join(child, "cpu.weight"), strconv.Itoa(weight)); err != nil {
		return fmt.Errorf("%w: writing cpu.weight for pid %d: %w", ErrApply, pid, err)
	}

	c.mu.Lock()
	moved := c.moved[pid]
	c.mu.Unlock()
	if moved {
		return nil
	}

	if err := writeControl(filepath.Join(child, "cgroup.procs"), strconv.Itoa(pid)); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("%w: pid %d exited", ErrApply, pid)
		}
		return fmt.Errorf("%w: moving pid %d into %s: %w", ErrApply, pid, child, err)
	}
	c.mu.Lock()
	c.moved[pid] = true
	c.mu.Unlock()
	return nil
}

// Forget removes pid's child cgroup. The kernel refuses to remove a
// cgroup that still has members; that case is logged and left for the
// next Forget.
func (c *Cgroup) Forget(pid int) error {
	c.mu.Lock()
	delete(c.moved, pid)
	c.mu.Unlock()

	err := c.remove(c.childPath(pid))
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return nil
	case errors.Is(err, syscall.EBUSY):
		c.logger.Debug("cgroup still populated", "pid", pid)
		return nil
	default:
		return fmt.Errorf("%w: removing cgroup for pid %d: %w", ErrApply, pid, err)
	}
}

// writeControl writes a cgroup control file. On cgroupfs the file
// already exists and the create flag is ignored.
func writeControl(path, value string) error {
	return os.WriteFile(path, []byte(value), 0644)
}
