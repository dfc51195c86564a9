// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procfs

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// CPUSampler computes per-process CPU usage, in percent of one core,
// from successive samples. It is not safe for concurrent use.
type CPUSampler struct {
	root     string
	cpuCount int

	previousTotal uint64
	previous      map[int]uint64
}

// NewCPUSampler returns a sampler for root, or DefaultRoot when empty.
func NewCPUSampler(root string) *CPUSampler {
	if root == "" {
		root = DefaultRoot
	}
	return &CPUSampler{
		root:     root,
		cpuCount: runtime.NumCPU(),
		previous: make(map[int]uint64),
	}
}

// Sample reads current counters for pids and returns usage for every
// pid that was also present in the previous sample. The first call
// returns an empty map. Pids not passed are forgotten.
func (s *CPUSampler) Sample(pids []int) map[int]float64 {
	usage := make(map[int]float64)

	total, ok := readTotalJiffies(filepath.Join(s.root, "stat"))
	if !ok {
		return usage
	}
	totalDelta := total - s.previousTotal
	havePrevious := s.previousTotal != 0 && total > s.previousTotal

	current := make(map[int]uint64, len(pids))
	for _, pid := range pids {
		ticks, ok := readProcessTicks(filepath.Join(s.root, strconv.Itoa(pid), "stat"))
		if !ok {
			continue
		}
		current[pid] = ticks

		previous, seen := s.previous[pid]
		if !havePrevious || !seen || ticks < previous {
			continue
		}
		// totalDelta covers every CPU; divide it down to one core.
		perCore := float64(totalDelta) / float64(max(s.cpuCount, 1))
		usage[pid] = float64(ticks-previous) / perCore * 100
	}

	s.previous = current
	s.previousTotal = total
	return usage
}

// readTotalJiffies sums every field of the aggregate cpu line in
// /proc/stat except guest time, which is already counted in user.
func readTotalJiffies(path string) (uint64, bool) {
	file, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return 0, false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return 0, false
	}

	// user nice system idle iowait irq softirq steal
	var total uint64
	for _, field := range fields[1:9] {
		value, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return 0, false
		}
		total += value
	}
	return total, true
}

// readProcessTicks returns utime+stime from /proc/<pid>/stat. The comm
// field is parenthesized and may contain spaces, so fields are counted
// from the last closing parenthesis.
func readProcessTicks(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	line := string(data)
	closing := strings.LastIndexByte(line, ')')
	if closing < 0 {
		return 0, false
	}
	// After ")": state(0) ppid pgrp session tty_nr tpgid flags minflt
	// cminflt majflt cmajflt utime(11) stime(12).
	fields := strings.Fields(line[closing+1:])
	if len(fields) < 13 {
		return 0, false
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, false
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, false
	}
	return utime + stime, true
}
