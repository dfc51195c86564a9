// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/bureau-foundation/coherence/lib/control"
	"github.com/bureau-foundation/coherence/lib/field"
)

// styles colors status output when it goes to a terminal.
type styles struct {
	color    bool
	renderer *lipgloss.Renderer
}

func newStyles(w io.Writer) *styles {
	file, ok := w.(*os.File)
	color := ok && term.IsTerminal(int(file.Fd()))
	return &styles{color: color, renderer: lipgloss.NewRenderer(w)}
}

// momentumColors maps momentum to ANSI palette indices. Stable keeps
// the terminal's default foreground.
var momentumColors = map[field.Momentum]string{
	field.Rising:       "2",
	field.Falling:      "1",
	field.Oscillating:  "3",
	field.Breakthrough: "5",
}

func (s *styles) momentum(momentum field.Momentum) string {
	style := s.renderer.NewStyle()
	if color, ok := momentumColors[momentum]; ok {
		style = style.Foreground(lipgloss.Color(color))
	}
	if momentum == field.Breakthrough {
		style = style.Bold(true)
	}
	return style.Render(string(momentum))
}

// status renders the status text, coloring the coherence and momentum
// values on a terminal.
func (s *styles) status(status control.Status) string {
	text := control.RenderStatusText(status)
	if !s.color {
		return text
	}

	lines := strings.SplitAfter(text, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "coherence: "):
			value := strings.TrimSuffix(strings.TrimPrefix(line, "coherence: "), "\n")
			lines[i] = "coherence: " + s.renderer.NewStyle().Bold(true).Render(value) + "\n"
		case strings.HasPrefix(line, "momentum: "):
			lines[i] = "momentum: " + s.momentum(status.Field.Momentum) + "\n"
		}
	}
	return strings.Join(lines, "")
}
