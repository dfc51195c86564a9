// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ctlsocket

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/coherence/lib/codec"
	"github.com/bureau-foundation/coherence/lib/control"
	"github.com/bureau-foundation/coherence/lib/proctable"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 20 * time.Second
	maxResponseSize     = 1024 * 1024
)

// ServerError is returned when the daemon answers ok=false.
type ServerError struct {
	Action  string
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Unwrap returns the sentinel matching Code, so errors.Is works
// across the socket.
func (e *ServerError) Unwrap() error {
	switch e.Code {
	case CodeInvalid:
		return control.ErrInvalidCommand
	case CodeNoProcess:
		return control.ErrProcessNotFound
	case CodeNotFound:
		return proctable.ErrNotFound
	case CodeExists:
		return proctable.ErrAlreadyExists
	case CodeRateLimited:
		return ErrRateLimited
	}
	return nil
}

// Client talks to a daemon's control socket. Each call opens a new
// connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Status returns the current field summary.
func (c *Client) Status(ctx context.Context) (control.Status, error) {
	var status control.Status
	err := c.call(ctx, ActionStatus, nil, &status)
	return status, err
}

// Processes returns the tracked process table.
func (c *Client) Processes(ctx context.Context) ([]control.ProcessView, error) {
	var processes []control.ProcessView
	err := c.call(ctx, ActionProcesses, nil, &processes)
	return processes, err
}

// Pattern reports whether the sacred pattern is active.
func (c *Client) Pattern(ctx context.Context) (bool, error) {
	var result PatternResult
	err := c.call(ctx, ActionPattern, nil, &result)
	return result.Active, err
}

// Execute runs one control line on the daemon.
func (c *Client) Execute(ctx context.Context, line string) error {
	return c.call(ctx, ActionCommand, map[string]any{"line": line}, nil)
}

func (c *Client) call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &ServerError{Action: action, Code: response.Code, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
