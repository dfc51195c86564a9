// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fieldfs

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"

	"github.com/bureau-foundation/coherence/lib/control"
)

// maxPendingLine bounds the unterminated tail a writer may leave.
const maxPendingLine = 4096

// executor runs one control line.
type executor interface {
	Execute(line string) error
}

var _ executor = (*control.Surface)(nil)

// commandHandle splits written bytes into lines and executes each
// complete line. Offsets are ignored: the control file is a stream.
type commandHandle struct {
	mu       sync.Mutex
	executor executor
	logger   *slog.Logger
	pending  []byte
	flushed  bool
}

var _ gofuse.FileWriter = (*commandHandle)(nil)
var _ gofuse.FileFlusher = (*commandHandle)(nil)
var _ gofuse.FileReleaser = (*commandHandle)(nil)

func newCommandHandle(executor executor, logger *slog.Logger) *commandHandle {
	return &commandHandle{executor: executor, logger: logger}
}

// Write executes every complete line in data. When a line fails, the
// lines before it have already taken effect, so the write comes back
// short with no error and the writer's retry of the remainder reports
// the failure.
func (h *commandHandle) Write(_ context.Context, data []byte, _ int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	carried := len(h.pending)
	h.pending = append(h.pending, data...)
	consumed := 0
	for {
		newline := bytes.IndexByte(h.pending, '\n')
		if newline < 0 {
			break
		}
		line := string(h.pending[:newline])
		h.pending = h.pending[newline+1:]
		if errno := h.run(line); errno != 0 {
			h.pending = nil
			if written := consumed - carried; written > 0 {
				return uint32(written), 0
			}
			return 0, errno
		}
		consumed += newline + 1
	}

	if len(h.pending) > maxPendingLine {
		h.pending = nil
		return 0, syscall.EINVAL
	}
	return uint32(len(data)), 0
}

// Flush runs an unterminated final line. Later flushes from dup'd
// descriptors are no-ops.
func (h *commandHandle) Flush(_ context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.flushed {
		return 0
	}
	h.flushed = true

	line := string(h.pending)
	h.pending = nil
	return h.run(line)
}

func (h *commandHandle) Release(_ context.Context) syscall.Errno {
	return 0
}

// run executes line unless it is blank.
func (h *commandHandle) run(line string) syscall.Errno {
	if strings.TrimSpace(line) == "" {
		return 0
	}
	err := h.executor.Execute(line)
	if err != nil {
		h.logger.Info("control command rejected", "command", strings.TrimSpace(line), "error", err)
	}
	return errnoFor(err)
}
