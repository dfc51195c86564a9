// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/coherence/lib/proctable"
)

// fakeProc builds a minimal procfs tree.
type fakeProc struct {
	t    *testing.T
	root string
}

func newFakeProc(t *testing.T) *fakeProc {
	return &fakeProc{t: t, root: t.TempDir()}
}

func (p *fakeProc) write(relative, content string) {
	p.t.Helper()
	path := filepath.Join(p.root, relative)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		p.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.t.Fatal(err)
	}
}

func (p *fakeProc) process(pid int, comm string, utime, stime uint64) {
	p.write(filepath.Join(strconv.Itoa(pid), "comm"), comm+"\n")
	p.write(filepath.Join(strconv.Itoa(pid), "stat"),
		fmt.Sprintf("%d (%s) S 1 1 1 0 -1 4194304 100 0 0 0 %d %d 0 0 20 0 1 0 100 0 0\n", pid, comm, utime, stime))
}

func (p *fakeProc) totalJiffies(busy, idle uint64) {
	p.write("stat", fmt.Sprintf("cpu  %d 0 0 %d 0 0 0 0 0 0\ncpu0 0 0 0 0 0 0 0 0 0 0\n", busy, idle))
}

func TestListOrdersByPIDAndSkipsNonProcesses(t *testing.T) {
	proc := newFakeProc(t)
	proc.process(300, "editor", 0, 0)
	proc.process(12, "zsh", 0, 0)
	proc.process(45, "meditation app", 0, 0)
	proc.write("self/comm", "ignored\n")
	proc.write("stat", "cpu 0 0 0 0 0 0 0 0\n")
	if err := os.MkdirAll(filepath.Join(proc.root, "99"), 0755); err != nil {
		t.Fatal(err)
	}

	entries, err := NewScanner(proc.root).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []proctable.Entry{{PID: 12, Name: "zsh"}, {PID: 45, Name: "meditation app"}, {PID: 300, Name: "editor"}}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("List (-want +got):\n%s", diff)
	}
}

func TestListHonorsCancellation(t *testing.T) {
	proc := newFakeProc(t)
	proc.process(1, "init", 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewScanner(proc.root).List(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("List error = %v, want context.Canceled", err)
	}
}

func TestListMissingRoot(t *testing.T) {
	if _, err := NewScanner(filepath.Join(t.TempDir(), "absent")).List(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestResolve(t *testing.T) {
	proc := newFakeProc(t)
	proc.process(100, "vim", 0, 0)
	scanner := NewScanner(proc.root)

	name, err := scanner.Resolve(100)
	if err != nil || name != "vim" {
		t.Fatalf("Resolve(100) = %q, %v", name, err)
	}
	if _, err := scanner.Resolve(101); !errors.Is(err, ErrNoProcess) {
		t.Fatalf("Resolve(101) error = %v, want ErrNoProcess", err)
	}
	if _, err := scanner.Resolve(-1); !errors.Is(err, ErrNoProcess) {
		t.Fatalf("Resolve(-1) error = %v, want ErrNoProcess", err)
	}
}

func TestCPUSamplerDeltas(t *testing.T) {
	proc := newFakeProc(t)
	sampler := NewCPUSampler(proc.root)
	sampler.cpuCount = 2

	proc.totalJiffies(1000, 1000)
	proc.process(10, "busy (worker)", 100, 100)
	proc.process(20, "idle", 50, 0)
	if usage := sampler.Sample([]int{10, 20}); len(usage) != 0 {
		t.Fatalf("first sample = %v, want empty", usage)
	}

	// 200 jiffies across 2 CPUs = 100 per core.
	proc.totalJiffies(1100, 1100)
	proc.process(10, "busy (worker)", 150, 140)
	proc.process(20, "idle", 51, 0)
	usage := sampler.Sample([]int{10, 20, 30})

	want := map[int]float64{10: 90, 20: 1}
	if diff := cmp.Diff(want, usage); diff != "" {
		t.Fatalf("usage (-want +got):\n%s", diff)
	}
}

func TestCPUSamplerForgetsDroppedPIDs(t *testing.T) {
	proc := newFakeProc(t)
	sampler := NewCPUSampler(proc.root)
	sampler.cpuCount = 1

	proc.totalJiffies(100, 100)
	proc.process(10, "a", 10, 0)
	sampler.Sample([]int{10})
	proc.totalJiffies(200, 200)
	sampler.Sample(nil)
	proc.totalJiffies(300, 300)
	proc.process(10, "a", 30, 0)

	if usage := sampler.Sample([]int{10}); len(usage) != 0 {
		t.Fatalf("forgotten pid reported usage: %v", usage)
	}
}

func TestReadProcessTicksRejectsGarbage(t *testing.T) {
	proc := newFakeProc(t)
	proc.write("bad/stat", "no parenthesis here")
	if _, ok := readProcessTicks(filepath.Join(proc.root, "bad/stat")); ok {
		t.Fatal("expected parse failure")
	}
}
