// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/coherence/lib/mapper"
)

// Nice applies priorities with setpriority(2). Lowering a nice value
// below the current one needs CAP_SYS_NICE; without it the kernel
// returns EACCES and the error is reported like any other.
type Nice struct {
	setpriority func(which, who, priority int) error
}

// NewNice returns the setpriority adapter.
func NewNice() *Nice {
	return &Nice{setpriority: unix.Setpriority}
}

func (n *Nice) Name() string { return BackendNice }

// ApplyPriority sets the nice value of pid, clamped to [-20, 19].
func (n *Nice) ApplyPriority(pid, priority int) error {
	err := n.setpriority(unix.PRIO_PROCESS, pid, mapper.Nice(priority))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: pid %d exited", ErrApply, pid)
	default:
		return fmt.Errorf("%w: setpriority pid %d to %d: %w", ErrApply, pid, priority, err)
	}
}

// ApplyWeight is a no-op: nice has no weight control.
func (n *Nice) ApplyWeight(int, int) error { return nil }
