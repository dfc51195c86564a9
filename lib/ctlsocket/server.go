// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ctlsocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/coherence/lib/codec"
	"github.com/bureau-foundation/coherence/lib/control"
	"github.com/bureau-foundation/coherence/lib/proctable"
)

// Actions served by the socket.
const (
	ActionStatus    = "status"
	ActionProcesses = "processes"
	ActionPattern   = "pattern"
	ActionCommand   = "command"
)

// Failure codes carried in Response.Code.
const (
	CodeInvalid     = "invalid"
	CodeNoProcess   = "no_process"
	CodeNotFound    = "not_found"
	CodeExists      = "exists"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// ErrRateLimited is returned when a command arrives faster than the
// configured write rate allows.
var ErrRateLimited = errors.New("command rate exceeded")

// Response is the wire envelope for every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// PatternResult is the data of a pattern response.
type PatternResult struct {
	Active bool `cbor:"active"`
}

// actionFunc handles one decoded request. raw is the complete request.
type actionFunc func(ctx context.Context, raw []byte) (any, error)

// Options configures a Server.
type Options struct {
	SocketPath string
	Surface    *control.Surface

	// WriteRate is the sustained number of commands per second. Zero
	// or negative disables limiting.
	WriteRate float64

	// WriteBurst is the number of commands accepted back to back.
	WriteBurst int

	Logger *slog.Logger
}

// Server serves the control protocol. Each connection handles exactly
// one request-response cycle.
type Server struct {
	socketPath string
	surface    *control.Surface
	limiter    *rate.Limiter
	handlers   map[string]actionFunc
	logger     *slog.Logger

	activeConnections sync.WaitGroup
}

// NewServer returns a server for the given surface.
func NewServer(options Options) (*Server, error) {
	if options.SocketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	if options.Surface == nil {
		return nil, fmt.Errorf("control surface is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	limit := rate.Inf
	burst := options.WriteBurst
	if options.WriteRate > 0 {
		limit = rate.Limit(options.WriteRate)
		if burst < 1 {
			burst = 1
		}
	}

	server := &Server{
		socketPath: options.SocketPath,
		surface:    options.Surface,
		limiter:    rate.NewLimiter(limit, burst),
		handlers:   make(map[string]actionFunc),
		logger:     options.Logger,
	}
	server.handle(ActionStatus, server.handleStatus)
	server.handle(ActionProcesses, server.handleProcesses)
	server.handle(ActionPattern, server.handlePattern)
	server.handle(ActionCommand, server.handleCommand)
	return server, nil
}

func (s *Server) handle(action string, handler actionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("ctlsocket: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

func (s *Server) handleStatus(context.Context, []byte) (any, error) {
	return s.surface.Status(), nil
}

func (s *Server) handleProcesses(context.Context, []byte) (any, error) {
	return s.surface.Processes(), nil
}

func (s *Server) handlePattern(context.Context, []byte) (any, error) {
	return PatternResult{Active: s.surface.SacredPattern()}, nil
}

func (s *Server) handleCommand(_ context.Context, raw []byte) (any, error) {
	var request struct {
		Line string `cbor:"line"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("%w: %v", control.ErrInvalidCommand, err)
	}
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}
	if err := s.surface.Execute(request.Line); err != nil {
		return nil, err
	}
	return nil, nil
}

// Serve listens on the socket and dispatches requests until ctx is
// cancelled, then waits for in-flight requests to finish. A stale
// socket file is replaced; the socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second

	// maxRequestSize bounds one request. Control lines are short.
	maxRequestSize = 64 * 1024
)

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, CodeInvalid, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, CodeInvalid, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, CodeInvalid, "missing required field: action")
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, CodeInvalid, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.writeError(conn, codeFor(err), err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

func (s *Server) writeError(conn net.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{Error: message, Code: code}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, CodeInternal, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}

// codeFor classifies a handler error for the wire.
func codeFor(err error) string {
	switch {
	case errors.Is(err, control.ErrInvalidCommand):
		return CodeInvalid
	case errors.Is(err, control.ErrProcessNotFound):
		return CodeNoProcess
	case errors.Is(err, proctable.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, proctable.ErrAlreadyExists):
		return CodeExists
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
