// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/coherence/lib/field"
	"github.com/bureau-foundation/coherence/lib/metric"
	"github.com/bureau-foundation/coherence/lib/proctable"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mapResolver resolves pids from a fixed map.
type mapResolver map[int]string

func (r mapResolver) Resolve(pid int) (string, error) {
	if name, ok := r[pid]; ok {
		return name, nil
	}
	return "", fmt.Errorf("pid %d: no such process", pid)
}

func newTestSurface(allowSet bool) (*Surface, *proctable.Table, *field.Store) {
	table := proctable.New(proctable.Options{DropAbsent: true})
	store := field.NewStore(field.Initial(epoch))
	surface := New(Options{
		Table:    table,
		Store:    store,
		Resolver: mapResolver{100: "editor", 200: "meditation", 300: "zsh"},
		AllowSet: allowSet,
	})
	return surface, table, store
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line     string
		allowSet bool
		want     Command
		wantErr  bool
	}{
		{"register 100", false, Command{Verb: VerbRegister, PID: 100}, false},
		{"  unregister\t7 \n", false, Command{Verb: VerbUnregister, PID: 7}, false},
		{"set 5 90", true, Command{Verb: VerbSet, PID: 5, Metric: 90}, false},
		{"register abc", false, Command{}, true},
		{"delete 5", false, Command{}, true},
		{"register", false, Command{}, true},
		{"register 1 2", false, Command{}, true},
		{"register -4", false, Command{}, true},
		{"", false, Command{}, true},
		{"set 5 90", false, Command{}, true},
		{"set 5 101", true, Command{}, true},
		{"set 5", true, Command{}, true},
		{"REGISTER 5", false, Command{}, true},
	}
	for _, test := range tests {
		got, err := ParseCommand(test.line, test.allowSet)
		if test.wantErr {
			if !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("ParseCommand(%q) error = %v, want ErrInvalidCommand", test.line, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCommand(%q): %v", test.line, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", test.line, got, test.want)
		}
	}
}

func TestExecuteCommands(t *testing.T) {
	surface, table, _ := newTestSurface(false)

	if err := surface.Execute("register 100"); err != nil {
		t.Fatalf("register 100: %v", err)
	}
	entry, ok := table.Lookup(100)
	if !ok || entry.Name != "editor" || entry.Metric != metric.Initial("editor") {
		t.Fatalf("registered entry = %+v, %v", entry, ok)
	}

	if err := surface.Execute("register 100"); !errors.Is(err, proctable.ErrAlreadyExists) {
		t.Fatalf("duplicate register = %v, want ErrAlreadyExists", err)
	}
	if err := surface.Execute("register 4242"); !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("unresolvable register = %v, want ErrProcessNotFound", err)
	}
	if err := surface.Execute("register abc"); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("register abc = %v, want ErrInvalidCommand", err)
	}
	if err := surface.Execute("delete 5"); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("delete 5 = %v, want ErrInvalidCommand", err)
	}
	if err := surface.Execute("unregister 999"); !errors.Is(err, proctable.ErrNotFound) {
		t.Fatalf("unregister 999 = %v, want ErrNotFound", err)
	}
	if err := surface.Execute("set 100 90"); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("set without AllowSet = %v, want ErrInvalidCommand", err)
	}
	if table.Len() != 1 {
		t.Fatalf("failed commands had side effects: Len = %d", table.Len())
	}

	if err := surface.Execute("unregister 100"); err != nil {
		t.Fatalf("unregister 100: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("Len = %d after unregister", table.Len())
	}
}

func TestUnregisterRunsHook(t *testing.T) {
	table := proctable.New(proctable.Options{DropAbsent: true})
	var released []int
	surface := New(Options{
		Table:        table,
		Store:        field.NewStore(field.Initial(epoch)),
		Resolver:     mapResolver{100: "editor"},
		OnUnregister: func(pid int) { released = append(released, pid) },
	})

	if err := surface.Execute("register 100"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("hook ran on register: %v", released)
	}
	if err := surface.Execute("unregister 100"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := surface.Execute("unregister 100"); err == nil {
		t.Fatal("second unregister succeeded")
	}
	if len(released) != 1 || released[0] != 100 {
		t.Fatalf("hook calls = %v, want [100]", released)
	}
}

func TestExecuteSet(t *testing.T) {
	surface, table, _ := newTestSurface(true)
	if err := surface.Execute("set 300 95"); !errors.Is(err, proctable.ErrNotFound) {
		t.Fatalf("set on untracked pid = %v, want ErrNotFound", err)
	}
	if err := surface.Execute("register 300"); err != nil {
		t.Fatal(err)
	}
	if err := surface.Execute("set 300 95"); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, _ := table.Lookup(300)
	if entry.Metric != 95 || !entry.Override {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestRegisterUnregisterLeavesReadsUnchanged(t *testing.T) {
	surface, table, _ := newTestSurface(false)
	table.Reconcile([]proctable.Entry{{PID: 1, Name: "init"}})
	beforeList := surface.Processes()
	beforePattern := surface.SacredPattern()

	if err := surface.Execute("register 200"); err != nil {
		t.Fatal(err)
	}
	if err := surface.Execute("unregister 200"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(beforeList, surface.Processes()); diff != "" {
		t.Fatalf("listing changed (-before +after):\n%s", diff)
	}
	if surface.SacredPattern() != beforePattern {
		t.Fatal("pattern changed")
	}
}

func TestProcessesOrdering(t *testing.T) {
	surface, table, _ := newTestSurface(true)
	table.Reconcile([]proctable.Entry{
		{PID: 3, Name: "random"},
		{PID: 1, Name: "meditation"},
		{PID: 2, Name: "other"},
	})
	table.RecordPriority(1, -5, 85)

	views := surface.Processes()
	var pids []int
	for _, view := range views {
		pids = append(pids, view.PID)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, pids); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	if views[0].Priority == nil || *views[0].Priority != -5 || views[0].Tier != "elevated" {
		t.Fatalf("first view = %+v", views[0])
	}
	if views[1].Priority != nil || views[1].Weight != nil {
		t.Fatalf("unapplied view reports parameters: %+v", views[1])
	}
}

func TestSacredPatternFromTable(t *testing.T) {
	surface, table, _ := newTestSurface(true)
	table.Reconcile([]proctable.Entry{{PID: 1, Name: "a"}, {PID: 2, Name: "b"}, {PID: 3, Name: "c"}})
	if surface.SacredPattern() {
		t.Fatal("generic processes form no pattern")
	}
	for _, pid := range []int{1, 2} {
		if err := table.SetMetric(pid, 90); err != nil {
			t.Fatal(err)
		}
	}
	if !surface.SacredPattern() {
		t.Fatal("two of three above 80 should form the pattern")
	}
}

func TestStatusAndRenderers(t *testing.T) {
	surface, table, store := newTestSurface(false)
	table.Reconcile([]proctable.Entry{{PID: 1, Name: "editor"}})
	store.Swap(field.Field{
		Coherence:    80,
		Momentum:     field.Rising,
		Participants: 1,
		Cycle:        3,
		Timestamp:    epoch,
	})

	status := surface.Status()
	if status.Label != field.Rising.Label() || len(status.Top) != 1 {
		t.Fatalf("status = %+v", status)
	}

	text := RenderStatusText(status)
	for _, line := range []string{"coherence: 80\n", "momentum: RISING\n", "participants: 1\n", "cycle: 3\n"} {
		if !strings.Contains(text, line) {
			t.Errorf("status text missing %q:\n%s", line, text)
		}
	}

	data, err := RenderStatusJSON(status)
	if err != nil {
		t.Fatalf("RenderStatusJSON: %v", err)
	}
	var document map[string]any
	if err := json.Unmarshal(data, &document); err != nil {
		t.Fatalf("status JSON invalid: %v", err)
	}
	var keys []string
	for key := range document {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	want := []string{"coherence", "harmonics", "momentum", "participants", "timestamp"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("status JSON keys (-want +got):\n%s", diff)
	}
	if document["timestamp"].(float64) != float64(epoch.Unix()) {
		t.Fatalf("timestamp = %v", document["timestamp"])
	}

	listing := RenderProcessesText(surface.Processes())
	if !strings.HasPrefix(listing, "PID") || !strings.Contains(listing, "editor") {
		t.Fatalf("listing:\n%s", listing)
	}
	if RenderPatternText(true) != "sacred_pattern: active\n" || RenderPatternText(false) != "sacred_pattern: inactive\n" {
		t.Fatal("pattern text wrong")
	}
}

func TestConcurrentCommandsAndReads(t *testing.T) {
	table := proctable.New(proctable.Options{})
	resolver := make(mapResolver)
	for pid := 1; pid <= 50; pid++ {
		resolver[pid] = fmt.Sprintf("worker-%d", pid)
	}
	surface := New(Options{Table: table, Store: field.NewStore(field.Initial(epoch)), Resolver: resolver})

	var wg sync.WaitGroup
	for pid := 1; pid <= 50; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			if err := surface.Execute(fmt.Sprintf("register %d", pid)); err != nil {
				t.Errorf("register %d: %v", pid, err)
			}
		}(pid)
	}
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_ = surface.Status()
				_ = surface.Processes()
			}
		}()
	}
	wg.Wait()

	if got := len(surface.Processes()); got != 50 {
		t.Fatalf("listing has %d processes, want 50", got)
	}
}
