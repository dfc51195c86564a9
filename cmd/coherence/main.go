// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// coherence is the command-line client for coherence-daemon.
package main

import (
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/coherence/lib/process"
)

func main() {
	if err := root(os.Stdout).Execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// newLogger returns a text logger on a terminal and a JSON logger when
// stderr is redirected.
func newLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
