// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrApply wraps every failure to apply a parameter.
var ErrApply = errors.New("apply failed")

// Applier writes scheduler parameters for a process.
type Applier interface {
	Name() string
	ApplyPriority(pid, priority int) error
	ApplyWeight(pid, weight int) error
}

// Forgetter is implemented by adapters that hold per-process state
// (such as a child cgroup) which must be released when a process is no
// longer tracked.
type Forgetter interface {
	Forget(pid int) error
}

// None discards every parameter.
type None struct{}

func (None) Name() string                { return "none" }
func (None) ApplyPriority(int, int) error { return nil }
func (None) ApplyWeight(int, int) error   { return nil }

// Multi applies to every adapter in order. All adapters are attempted
// even when an earlier one fails.
type Multi []Applier

// Name joins the adapter names with "+".
func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, applier := range m {
		names[i] = applier.Name()
	}
	return strings.Join(names, "+")
}

func (m Multi) ApplyPriority(pid, priority int) error {
	var errs []error
	for _, applier := range m {
		if err := applier.ApplyPriority(pid, priority); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ApplyWeight(pid, weight int) error {
	var errs []error
	for _, applier := range m {
		if err := applier.ApplyWeight(pid, weight); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forget releases per-process state in every adapter that holds any.
func (m Multi) Forget(pid int) error {
	var errs []error
	for _, applier := range m {
		if forgetter, ok := applier.(Forgetter); ok {
			if err := forgetter.Forget(pid); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Backend names accepted by New.
const (
	BackendNice   = "nice"
	BackendCgroup = "cgroup"
	BackendNone   = "none"
)

// New builds an Applier from backend names. An empty list yields None.
// The cgroup backend is prepared (its parent created and the cpu
// controller delegated) before New returns.
func New(backends []string, cgroupRoot string, logger *slog.Logger) (Applier, error) {
	var appliers Multi
	for _, backend := range backends {
		switch backend {
		case BackendNice:
			appliers = append(appliers, NewNice())
		case BackendCgroup:
			cgroup := NewCgroup(cgroupRoot, logger)
			if err := cgroup.Prepare(); err != nil {
				return nil, err
			}
			appliers = append(appliers, cgroup)
		case BackendNone:
			appliers = append(appliers, None{})
		default:
			return nil, fmt.Errorf("unknown apply backend %q", backend)
		}
	}

	switch len(appliers) {
	case 0:
		return None{}, nil
	case 1:
		return appliers[0], nil
	default:
		return appliers, nil
	}
}
