// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Scheduler.Interval != 5*time.Second {
		t.Errorf("expected interval=5s, got %s", cfg.Scheduler.Interval)
	}
	if !cfg.Table.DropAbsent {
		t.Error("expected drop_absent=true by default")
	}
	if cfg.Mapper.PriorityHysteresis != 5 {
		t.Errorf("expected priority_hysteresis=5, got %d", cfg.Mapper.PriorityHysteresis)
	}
	if cfg.Control.AllowSet {
		t.Error("expected allow_set=false by default")
	}

	cfg.Expand()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoad_RequiresCoherenceConfig(t *testing.T) {
	t.Setenv("COHERENCE_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when COHERENCE_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "COHERENCE_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithCoherenceConfig(t *testing.T) {
	path := writeConfig(t, "coherence.yaml", `
environment: staging
scheduler:
  interval: 2s
  fluctuation: 5
table:
  drop_absent: false
control:
  socket_path: /test/control.sock
  allow_set: true
`)
	t.Setenv("COHERENCE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Scheduler.Interval != 2*time.Second {
		t.Errorf("expected interval=2s, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Fluctuation != 5 {
		t.Errorf("expected fluctuation=5, got %d", cfg.Scheduler.Fluctuation)
	}
	if cfg.Table.DropAbsent {
		t.Error("expected drop_absent=false from file")
	}
	if cfg.Control.SocketPath != "/test/control.sock" {
		t.Errorf("expected socket_path=/test/control.sock, got %s", cfg.Control.SocketPath)
	}
	if !cfg.Control.AllowSet {
		t.Error("expected allow_set=true from file")
	}
	// Unspecified values keep their defaults.
	if cfg.Mapper.WeightMax != 1000 {
		t.Errorf("expected weight_max default 1000, got %d", cfg.Mapper.WeightMax)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "coherence.jsonc", `{
  // Faster loop for a laptop.
  "scheduler": {"interval": "1s"},
  "apply": {"backends": ["cgroup", "nice"],},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Scheduler.Interval != time.Second {
		t.Errorf("expected interval=1s, got %s", cfg.Scheduler.Interval)
	}
	if len(cfg.Apply.Backends) != 2 || cfg.Apply.Backends[0] != BackendCgroup {
		t.Errorf("unexpected backends: %v", cfg.Apply.Backends)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "coherence.yaml", `
environment: production
scheduler:
  interval: 5s
production:
  scheduler:
    interval: 11s
    cpu_nudge: true
  apply:
    backends: [cgroup]
  log:
    level: warn
development:
  scheduler:
    interval: 1s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Scheduler.Interval != 11*time.Second {
		t.Errorf("expected production interval 11s, got %s", cfg.Scheduler.Interval)
	}
	if len(cfg.Apply.Backends) != 1 || cfg.Apply.Backends[0] != BackendCgroup {
		t.Errorf("expected production backends [cgroup], got %v", cfg.Apply.Backends)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Log.Level)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("COHERENCE_TEST_DIR", "/from/env")

	tests := []struct {
		name  string
		input string
		vars  map[string]string
		want  string
	}{
		{"provided var", "${HOME}/x", map[string]string{"HOME": "/home/u"}, "/home/u/x"},
		{"environment fallback", "${COHERENCE_TEST_DIR}/y", nil, "/from/env/y"},
		{"default used", "${COHERENCE_UNSET_VAR:-/run}/coherence", nil, "/run/coherence"},
		{"empty provided uses default", "${XDG_RUNTIME_DIR:-/run}", map[string]string{"XDG_RUNTIME_DIR": ""}, "/run"},
		{"no pattern", "/plain/path", nil, "/plain/path"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := expandVars(test.input, test.vars); got != test.want {
				t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"interval too short", func(c *Config) { c.Scheduler.Interval = 100 * time.Millisecond }, "scheduler.interval"},
		{"interval too long", func(c *Config) { c.Scheduler.Interval = 12 * time.Second }, "scheduler.interval"},
		{"unknown backend", func(c *Config) { c.Apply.Backends = []string{"renice"} }, "unknown backend"},
		{"cgroup without root", func(c *Config) {
			c.Apply.Backends = []string{BackendCgroup}
			c.Apply.CgroupRoot = ""
		}, "cgroup_root"},
		{"inverted weights", func(c *Config) { c.Mapper.WeightMin, c.Mapper.WeightMax = 500, 100 }, "weight range"},
		{"weight above cgroup max", func(c *Config) { c.Mapper.WeightMax = 20000 }, "weight range"},
		{"bad threshold", func(c *Config) { c.Sensor.AgreementThreshold = 1.5 }, "agreement_threshold"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"export without interval", func(c *Config) {
			c.Export.Path = "/tmp/field"
			c.Export.Interval = 0
		}, "export.interval"},
		{"bad environment", func(c *Config) { c.Environment = "qa" }, "invalid environment"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "debug"}.SlogLevel()
	if err != nil {
		t.Fatalf("SlogLevel: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", level)
	}
}
