// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fieldfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/coherence/lib/control"
	"github.com/bureau-foundation/coherence/lib/proctable"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is created if it does not exist.
	Mountpoint string

	// Surface serves every file.
	Surface *control.Surface

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, errors go to stderr.
	Logger *slog.Logger
}

// Mount mounts the control filesystem. The caller must call Unmount on
// the returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Surface == nil {
		return nil, fmt.Errorf("control surface is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	// File content changes every cycle; the kernel must not cache
	// attributes that carry the size.
	entryTimeout := 1 * time.Second
	attrTimeout := time.Duration(0)
	negativeTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "coherence",
			Name:       "coherence",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("coherence FUSE filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// rootNode is the filesystem root with a fixed set of children.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeOnAdder = (*rootNode)(nil)

func (r *rootNode) OnAdd(ctx context.Context) {
	for name, render := range renderers(r.options.Surface) {
		node := &renderedFile{render: render, logger: r.options.Logger}
		child := r.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
		r.AddChild(name, child, true)
	}

	controlFile := r.NewPersistentInode(ctx, &controlNode{options: r.options}, gofuse.StableAttr{Mode: syscall.S_IFREG})
	r.AddChild("control", controlFile, true)
}

// renderers maps each read-only file name to its content function.
func renderers(surface *control.Surface) map[string]func() ([]byte, error) {
	return map[string]func() ([]byte, error){
		"status": func() ([]byte, error) {
			return []byte(control.RenderStatusText(surface.Status())), nil
		},
		"status.json": func() ([]byte, error) {
			return control.RenderStatusJSON(surface.Status())
		},
		"processes": func() ([]byte, error) {
			return []byte(control.RenderProcessesText(surface.Processes())), nil
		},
		"pattern": func() ([]byte, error) {
			return []byte(control.RenderPatternText(surface.SacredPattern())), nil
		},
	}
}

// renderedFile is a read-only file whose content is produced on open.
type renderedFile struct {
	gofuse.Inode
	render func() ([]byte, error)
	logger *slog.Logger
}

var _ gofuse.InodeEmbedder = (*renderedFile)(nil)
var _ gofuse.NodeGetattrer = (*renderedFile)(nil)
var _ gofuse.NodeOpener = (*renderedFile)(nil)

func (f *renderedFile) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	if content, ok := handle.(*contentHandle); ok {
		out.Size = uint64(len(content.data))
		return 0
	}
	data, err := f.render()
	if err != nil {
		return syscall.EIO
	}
	out.Size = uint64(len(data))
	return 0
}

func (f *renderedFile) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	data, err := f.render()
	if err != nil {
		f.logger.Error("rendering control file failed", "error", err)
		return nil, 0, syscall.EIO
	}
	return &contentHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

// contentHandle holds the content rendered at open time.
type contentHandle struct {
	data []byte
}

var _ gofuse.FileReader = (*contentHandle)(nil)

func (h *contentHandle) Read(_ context.Context, dest []byte, offset int64) (fuse.ReadResult, syscall.Errno) {
	if offset >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := min(offset+int64(len(dest)), int64(len(h.data)))
	return fuse.ReadResultData(h.data[offset:end]), 0
}

// controlNode is the write-only command file.
type controlNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*controlNode)(nil)
var _ gofuse.NodeGetattrer = (*controlNode)(nil)
var _ gofuse.NodeOpener = (*controlNode)(nil)
var _ gofuse.NodeSetattrer = (*controlNode)(nil)

func (c *controlNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o200
	return 0
}

// Setattr accepts the truncation that shell redirection performs.
func (c *controlNode) Setattr(_ context.Context, _ gofuse.FileHandle, _ *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o200
	return 0
}

func (c *controlNode) Open(_ context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) == 0 {
		return nil, 0, syscall.EACCES
	}
	return newCommandHandle(c.options.Surface, c.options.Logger), fuse.FOPEN_DIRECT_IO, 0
}

// errnoFor maps control errors to the errno reported to the writer.
func errnoFor(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, control.ErrInvalidCommand):
		return syscall.EINVAL
	case errors.Is(err, control.ErrProcessNotFound), errors.Is(err, proctable.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, proctable.ErrAlreadyExists):
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}
