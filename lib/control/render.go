// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
)

// RenderStatusText renders status as "key: value" lines.
func RenderStatusText(status Status) string {
	var builder strings.Builder
	current := status.Field
	fmt.Fprintf(&builder, "coherence: %d\n", current.Coherence)
	fmt.Fprintf(&builder, "momentum: %s\n", current.Momentum)
	fmt.Fprintf(&builder, "label: %s\n", status.Label)
	fmt.Fprintf(&builder, "participants: %d\n", current.Participants)
	fmt.Fprintf(&builder, "breakthrough: %t\n", current.Breakthrough)
	fmt.Fprintf(&builder, "sacred_pattern: %t\n", current.SacredPattern)
	if current.Influence != 0 {
		fmt.Fprintf(&builder, "influence: %.2f\n", current.Influence)
	}
	fmt.Fprintf(&builder, "distribution: high=%d medium=%d low=%d\n",
		current.Distribution.High, current.Distribution.Medium, current.Distribution.Low)
	fmt.Fprintf(&builder, "harmonics: %.4f %.4f %.4f\n",
		status.Harmonics[0], status.Harmonics[1], status.Harmonics[2])
	if status.Phase != "" {
		fmt.Fprintf(&builder, "phase: %s\n", status.Phase)
	}
	fmt.Fprintf(&builder, "cycle: %d\n", current.Cycle)
	fmt.Fprintf(&builder, "timestamp: %d\n", current.Timestamp.Unix())
	return builder.String()
}

// statusDocument is the fixed JSON shape of the status resource.
type statusDocument struct {
	Coherence    int        `json:"coherence"`
	Momentum     string     `json:"momentum"`
	Participants int        `json:"participants"`
	Timestamp    int64      `json:"timestamp"`
	Harmonics    [3]float64 `json:"harmonics"`
}

// RenderStatusJSON renders the status resource as a single-line JSON
// object with a trailing newline.
func RenderStatusJSON(status Status) ([]byte, error) {
	data, err := json.Marshal(statusDocument{
		Coherence:    status.Field.Coherence,
		Momentum:     string(status.Field.Momentum),
		Participants: status.Field.Participants,
		Timestamp:    status.Field.Timestamp.Unix(),
		Harmonics:    status.Harmonics,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding status: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderProcessesText renders the process listing as aligned columns.
func RenderProcessesText(processes []ProcessView) string {
	var builder strings.Builder
	writer := tabwriter.NewWriter(&builder, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PID\tNAME\tMETRIC\tTIER\tPRIORITY\tWEIGHT")
	for _, process := range processes {
		name := process.Name
		if process.Pinned {
			name += "*"
		}
		fmt.Fprintf(writer, "%d\t%s\t%d\t%s\t%s\t%s\n",
			process.PID, name, process.Metric, process.Tier,
			optional(process.Priority), optional(process.Weight))
	}
	writer.Flush()
	return builder.String()
}

func optional(value *int) string {
	if value == nil {
		return "-"
	}
	return strconv.Itoa(*value)
}

// RenderPatternText renders the sacred pattern flag.
func RenderPatternText(active bool) string {
	if active {
		return "sacred_pattern: active\n"
	}
	return "sacred_pattern: inactive\n"
}
