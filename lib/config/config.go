// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Loop interval bounds. The lower bound keeps a full /proc scan from
// dominating a core; the upper bound is the slowest cadence the field
// momentum window is calibrated for.
const (
	MinInterval = 500 * time.Millisecond
	MaxInterval = 11 * time.Second
)

// Apply backend names accepted in apply.backends.
const (
	BackendNice   = "nice"
	BackendCgroup = "cgroup"
	BackendNone   = "none"
)

// Config is the master configuration for the coherence daemon.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Table     TableConfig     `yaml:"table"`
	Mapper    MapperConfig    `yaml:"mapper"`
	Apply     ApplyConfig     `yaml:"apply"`
	Control   ControlConfig   `yaml:"control"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Export    ExportConfig    `yaml:"export"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Scheduler *SchedulerConfig `yaml:"scheduler,omitempty"`
	Apply     *ApplyConfig     `yaml:"apply,omitempty"`
	Control   *ControlConfig   `yaml:"control,omitempty"`
	Export    *ExportConfig    `yaml:"export,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// SchedulerConfig configures the periodic loop.
type SchedulerConfig struct {
	// Interval between cycles. Default: 5s.
	Interval time.Duration `yaml:"interval"`

	// Fluctuation is the symmetric random perturbation applied to each
	// metric after decay. Zero disables it.
	Fluctuation int `yaml:"fluctuation"`

	// CPUNudge enables the per-process CPU usage signal in metric updates.
	CPUNudge bool `yaml:"cpu_nudge"`
}

// TableConfig configures the process table.
type TableConfig struct {
	// DropAbsent removes tracked processes that are missing from a
	// snapshot. When false, entries stay until explicitly unregistered.
	DropAbsent bool `yaml:"drop_absent"`
}

// MapperConfig configures metric to scheduler-parameter mapping.
type MapperConfig struct {
	// PriorityHysteresis is the distance in metric points between the
	// metric a priority was applied at and the current metric before a
	// changed priority is re-applied. Default: 5.
	PriorityHysteresis int `yaml:"priority_hysteresis"`

	// WeightHysteresis is the same for cgroup weights. Default: 50.
	WeightHysteresis int `yaml:"weight_hysteresis"`

	// WeightMin and WeightMax bound the cgroup cpu.weight range.
	WeightMin int `yaml:"weight_min"`
	WeightMax int `yaml:"weight_max"`
}

// ApplyConfig selects how computed parameters reach the OS.
type ApplyConfig struct {
	// Backends lists apply adapters: nice, cgroup, none.
	Backends []string `yaml:"backends"`

	// CgroupRoot is the parent cgroup v2 directory. One child cgroup
	// per process is created beneath it.
	CgroupRoot string `yaml:"cgroup_root"`
}

// ControlConfig configures the control plane surfaces.
type ControlConfig struct {
	// SocketPath is the CBOR control socket.
	SocketPath string `yaml:"socket_path"`

	// Mountpoint is the FUSE mount directory. Empty disables the mount.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther lets users other than the daemon's read the mount.
	AllowOther bool `yaml:"allow_other"`

	// AllowSet enables the "set <pid> <metric>" control verb.
	AllowSet bool `yaml:"allow_set"`

	// WriteRate is the sustained rate of write commands per second
	// accepted on the socket. WriteBurst is the bucket size.
	WriteRate  float64 `yaml:"write_rate"`
	WriteBurst int     `yaml:"write_burst"`
}

// SensorConfig configures external influence inputs.
type SensorConfig struct {
	// Files are watched sensor files, each holding one reading in [0,1].
	Files []string `yaml:"files"`

	// AgreementThreshold is the reading every agreeing source must meet.
	AgreementThreshold float64 `yaml:"agreement_threshold"`

	// MinSources is how many sources must agree to activate influence.
	MinSources int `yaml:"min_sources"`

	// Multiplier is applied to the aggregate metric while active.
	Multiplier float64 `yaml:"multiplier"`

	// MaxAge discards readings older than this.
	MaxAge time.Duration `yaml:"max_age"`
}

// ExportConfig configures the flat key=value field export.
type ExportConfig struct {
	// Path of the export file. Empty disables export.
	Path string `yaml:"path"`

	// Interval between exports.
	Interval time.Duration `yaml:"interval"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// TracingConfig configures cycle tracing.
type TracingConfig struct {
	// Stdout exports spans as JSON to stdout.
	Stdout bool `yaml:"stdout"`
}

// Default returns the default configuration. Loaded files are merged
// on top of it.
func Default() *Config {
	return &Config{
		Environment: Development,
		Scheduler: SchedulerConfig{
			Interval: 5 * time.Second,
			CPUNudge: true,
		},
		Table: TableConfig{
			DropAbsent: true,
		},
		Mapper: MapperConfig{
			PriorityHysteresis: 5,
			WeightHysteresis:   50,
			WeightMin:          10,
			WeightMax:          1000,
		},
		Apply: ApplyConfig{
			Backends:   []string{BackendNice},
			CgroupRoot: "/sys/fs/cgroup/coherence",
		},
		Control: ControlConfig{
			SocketPath: "${XDG_RUNTIME_DIR:-/run}/coherence/control.sock",
			WriteRate:  5,
			WriteBurst: 10,
		},
		Sensor: SensorConfig{
			AgreementThreshold: 0.7,
			MinSources:         2,
			Multiplier:         1.2,
			MaxAge:             30 * time.Second,
		},
		Export: ExportConfig{
			Interval: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the COHERENCE_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("COHERENCE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("COHERENCE_CONFIG environment variable not set; " +
			"set it to the path of your coherence.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges one file into the current config. JSON is a subset
// of YAML, so JSONC input is stripped to plain JSON and handed to the
// same decoder.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Scheduler != nil {
		if overrides.Scheduler.Interval != 0 {
			c.Scheduler.Interval = overrides.Scheduler.Interval
		}
		if overrides.Scheduler.Fluctuation != 0 {
			c.Scheduler.Fluctuation = overrides.Scheduler.Fluctuation
		}
		// CPUNudge is a bool, so it is always applied from overrides.
		c.Scheduler.CPUNudge = overrides.Scheduler.CPUNudge
	}

	if overrides.Apply != nil {
		if len(overrides.Apply.Backends) > 0 {
			c.Apply.Backends = overrides.Apply.Backends
		}
		if overrides.Apply.CgroupRoot != "" {
			c.Apply.CgroupRoot = overrides.Apply.CgroupRoot
		}
	}

	if overrides.Control != nil {
		if overrides.Control.SocketPath != "" {
			c.Control.SocketPath = overrides.Control.SocketPath
		}
		if overrides.Control.Mountpoint != "" {
			c.Control.Mountpoint = overrides.Control.Mountpoint
		}
		c.Control.AllowOther = overrides.Control.AllowOther
		c.Control.AllowSet = overrides.Control.AllowSet
		if overrides.Control.WriteRate != 0 {
			c.Control.WriteRate = overrides.Control.WriteRate
		}
		if overrides.Control.WriteBurst != 0 {
			c.Control.WriteBurst = overrides.Control.WriteBurst
		}
	}

	if overrides.Export != nil {
		if overrides.Export.Path != "" {
			c.Export.Path = overrides.Export.Path
		}
		if overrides.Export.Interval != 0 {
			c.Export.Interval = overrides.Export.Interval
		}
	}

	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
	}

	c.Apply.CgroupRoot = expandVars(c.Apply.CgroupRoot, vars)
	c.Control.SocketPath = expandVars(c.Control.SocketPath, vars)
	c.Control.Mountpoint = expandVars(c.Control.Mountpoint, vars)
	c.Export.Path = expandVars(c.Export.Path, vars)
	for i, file := range c.Sensor.Files {
		c.Sensor.Files[i] = expandVars(file, vars)
	}
}

// Expand applies ${VAR} expansion to the path fields of a config that
// was not produced by LoadFile, such as [Default].
func (c *Config) Expand() {
	c.expandVariables()
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Scheduler.Interval < MinInterval || c.Scheduler.Interval > MaxInterval {
		errs = append(errs, fmt.Errorf("scheduler.interval %s outside [%s, %s]",
			c.Scheduler.Interval, MinInterval, MaxInterval))
	}
	if c.Scheduler.Fluctuation < 0 || c.Scheduler.Fluctuation > 50 {
		errs = append(errs, fmt.Errorf("scheduler.fluctuation must be in [0, 50], got %d", c.Scheduler.Fluctuation))
	}

	if c.Mapper.PriorityHysteresis < 0 {
		errs = append(errs, fmt.Errorf("mapper.priority_hysteresis must not be negative"))
	}
	if c.Mapper.WeightHysteresis < 0 {
		errs = append(errs, fmt.Errorf("mapper.weight_hysteresis must not be negative"))
	}
	if c.Mapper.WeightMin < 1 || c.Mapper.WeightMax > 10000 || c.Mapper.WeightMin >= c.Mapper.WeightMax {
		errs = append(errs, fmt.Errorf("mapper weight range [%d, %d] must satisfy 1 <= min < max <= 10000",
			c.Mapper.WeightMin, c.Mapper.WeightMax))
	}

	backendValues := []string{BackendNice, BackendCgroup, BackendNone}
	for _, backend := range c.Apply.Backends {
		if !contains(backendValues, backend) {
			errs = append(errs, fmt.Errorf("apply.backends: unknown backend %q (want one of %v)", backend, backendValues))
		}
		if backend == BackendCgroup && c.Apply.CgroupRoot == "" {
			errs = append(errs, fmt.Errorf("apply.cgroup_root is required for the cgroup backend"))
		}
	}

	if c.Control.SocketPath == "" {
		errs = append(errs, fmt.Errorf("control.socket_path is required"))
	}
	if c.Control.WriteRate <= 0 {
		errs = append(errs, fmt.Errorf("control.write_rate must be positive"))
	}
	if c.Control.WriteBurst < 1 {
		errs = append(errs, fmt.Errorf("control.write_burst must be at least 1"))
	}

	if c.Sensor.AgreementThreshold < 0 || c.Sensor.AgreementThreshold > 1 {
		errs = append(errs, fmt.Errorf("sensor.agreement_threshold must be in [0, 1]"))
	}
	if c.Sensor.MinSources < 1 {
		errs = append(errs, fmt.Errorf("sensor.min_sources must be at least 1"))
	}
	if c.Sensor.Multiplier <= 0 {
		errs = append(errs, fmt.Errorf("sensor.multiplier must be positive"))
	}
	if c.Sensor.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("sensor.max_age must be positive"))
	}

	if c.Export.Path != "" && c.Export.Interval <= 0 {
		errs = append(errs, fmt.Errorf("export.interval must be positive when export.path is set"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel parses Level into a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
