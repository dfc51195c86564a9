// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/coherence/lib/config"
	"github.com/bureau-foundation/coherence/lib/control"
	"github.com/bureau-foundation/coherence/lib/ctlsocket"
	"github.com/bureau-foundation/coherence/lib/version"
)

// requestTimeout bounds every call to the daemon.
const requestTimeout = 10 * time.Second

// connection holds the flags shared by every command that talks to
// the daemon.
type connection struct {
	socketPath string
}

func (c *connection) register(flags *pflag.FlagSet) {
	flags.StringVar(&c.socketPath, "socket", "",
		"control socket path (default: $COHERENCE_SOCKET, then the configured default)")
}

func (c *connection) client() *ctlsocket.Client {
	path := c.socketPath
	if path == "" {
		path = os.Getenv("COHERENCE_SOCKET")
	}
	if path == "" {
		cfg := config.Default()
		cfg.Expand()
		path = cfg.Control.SocketPath
	}
	return ctlsocket.NewClient(path)
}

func (c *connection) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// root builds the command tree writing results to stdout.
func root(stdout io.Writer) *Command {
	styles := newStyles(stdout)
	return &Command{
		Name:    "coherence",
		Usage:   "coherence <command> [flags]",
		Summary: "Inspect and steer the coherence daemon.",
		Subcommands: []*Command{
			statusCommand(stdout, styles),
			processesCommand(stdout),
			patternCommand(stdout),
			commandCommand("register", "Track a process", "coherence register <pid>", 1),
			commandCommand("unregister", "Stop tracking a process", "coherence unregister <pid>", 1),
			commandCommand("set", "Pin a process metric (requires control.allow_set)", "coherence set <pid> <metric>", 2),
			{
				Name:    "version",
				Summary: "Print version information",
				Usage:   "coherence version",
				Run: func([]string) error {
					version.Print("coherence")
					return nil
				},
			},
		},
	}
}

func statusCommand(stdout io.Writer, styles *styles) *Command {
	var (
		conn   connection
		asJSON bool
	)
	return &Command{
		Name:    "status",
		Summary: "Show the coherence field",
		Usage:   "coherence status [--json]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			conn.register(flags)
			flags.BoolVar(&asJSON, "json", false, "print the field as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return usagef("status takes no arguments")
			}
			ctx, cancel := conn.context()
			defer cancel()
			status, err := conn.client().Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				data, err := control.RenderStatusJSON(status)
				if err != nil {
					return err
				}
				_, err = stdout.Write(data)
				return err
			}
			_, err = io.WriteString(stdout, styles.status(status))
			return err
		},
	}
}

func processesCommand(stdout io.Writer) *Command {
	var conn connection
	return &Command{
		Name:    "processes",
		Summary: "List tracked processes",
		Usage:   "coherence processes",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("processes", pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return usagef("processes takes no arguments")
			}
			ctx, cancel := conn.context()
			defer cancel()
			processes, err := conn.client().Processes(ctx)
			if err != nil {
				return err
			}
			_, err = io.WriteString(stdout, control.RenderProcessesText(processes))
			return err
		},
	}
}

func patternCommand(stdout io.Writer) *Command {
	var conn connection
	return &Command{
		Name:    "pattern",
		Summary: "Report whether the sacred pattern is active",
		Usage:   "coherence pattern",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("pattern", pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return usagef("pattern takes no arguments")
			}
			ctx, cancel := conn.context()
			defer cancel()
			active, err := conn.client().Pattern(ctx)
			if err != nil {
				return err
			}
			_, err = io.WriteString(stdout, control.RenderPatternText(active))
			return err
		},
	}
}

// commandCommand builds a subcommand that sends "<verb> <args...>" as
// one control line.
func commandCommand(verb, summary, usage string, argCount int) *Command {
	var conn connection
	return &Command{
		Name:    verb,
		Summary: summary,
		Usage:   usage,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet(verb, pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != argCount {
				return usagef("usage: %s", usage)
			}
			line := verb
			for _, arg := range args {
				if _, err := strconv.Atoi(arg); err != nil {
					return usagef("%s: %q is not an integer", verb, arg)
				}
				line += " " + arg
			}

			ctx, cancel := conn.context()
			defer cancel()
			if err := conn.client().Execute(ctx, line); err != nil {
				return err
			}
			newLogger().Info("control command accepted", "command", line)
			return nil
		},
	}
}
