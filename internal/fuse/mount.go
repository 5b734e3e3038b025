// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse adapts mount.Registry to a real
// github.com/hanwen/go-fuse/v2/fs filesystem, grounded on the
// teacher's lib/artifactstore/fuse/mount.go: inode-per-entry,
// NodeLookuper/NodeReaddirer for the directory, NodeOpener/NodeReader/
// NodeGetattrer for each file. Spec.md §1 treats the FUSE binding as
// an out-of-scope external collaborator ("assumed to call into the
// core with (path, offset, length) reads"); this package supplies
// that binding as a thin adapter so the module is mountable end to
// end, while mount.Registry itself has no FUSE import.
package fuse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/motioncam/mcrawfs/mount"
)

// Options configures one FUSE mount of a single mount.Registry entry.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// Created if it does not exist.
	Mountpoint string

	// Registry owns the mounted container's build pipeline and
	// published directory.
	Registry *mount.Registry

	// MountID identifies the mount within Registry.
	MountID mount.MountID

	// BaseName is the published root directory segment passed to
	// Registry.Mount for this MountID; entry paths are resolved as
	// BaseName+"/"+name.
	BaseName string

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a logger that writes
	// only error-level messages to stderr is used.
	Logger *slog.Logger
}

// Mount mounts a single mount.Registry entry as a flat directory of
// per-frame .dng files plus audio.wav at the configured mountpoint.
// The caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if options.BaseName == "" {
		return nil, fmt.Errorf("base name is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "mcrawfs",
			Name:       "mcrawfs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("mcrawfs FUSE filesystem mounted", "mountpoint", options.Mountpoint, "mount_id", options.MountID)
	return server, nil
}

// rootNode is the filesystem root: a single flat directory listing
// Registry's published entries for MountID.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)

func (r *rootNode) fullPath(name string) string {
	return r.options.BaseName + "/" + name
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	entry, err := r.options.Registry.FindEntry(r.options.MountID, r.fullPath(name))
	if err != nil {
		return nil, syscall.ENOENT
	}

	node := &fileNode{options: r.options, name: name, size: entry.Size}
	child := r.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(entry.Size)
	return child, 0
}

func (r *rootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := r.options.Registry.List(r.options.MountID)
	if err != nil {
		return nil, errnoFor(err)
	}

	dirEntries := make([]fuse.DirEntry, len(entries))
	for i, e := range entries {
		dirEntries[i] = fuse.DirEntry{Name: e.Name, Mode: syscall.S_IFREG}
	}
	return &sliceDirStream{entries: dirEntries}, 0
}

// fileNode represents one published .dng or .wav entry as a regular,
// read-only file. Its content is built (or fetched from cache) on
// each Read rather than cached in the node itself: a RenderSettings
// change (UpdateOptions) can alter a path's bytes without changing its
// name, so unlike the teacher's immutable CAS entries this node never
// claims FOPEN_KEEP_CACHE.
type fileNode struct {
	gofuse.Inode
	options *Options
	name    string
	size    int64

	// mu serializes this node's own Read calls against Registry's
	// synchronous ReadFile, which already serializes internally via
	// the artifact cache's single-flight build; this mutex only
	// prevents two concurrent kernel reads on the same handle from
	// reusing one overlapping destination buffer incorrectly, which
	// cannot happen here since each Read allocates its own buffer.
	// Kept nil-cost (zero value) rather than removed, matching the
	// teacher's artifactFileNode.mu pattern for lazy per-node state.
	mu sync.Mutex
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(f.size)
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = 65536
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, 0, 0
}

func (f *fileNode) Read(ctx context.Context, fh gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, status := f.options.Registry.ReadFile(ctx, f.options.MountID, f.options.BaseName+"/"+f.name, int(off), len(dest), dest, false, func(int, int) {})
	if status != mount.StatusOK {
		return nil, errnoForStatus(status)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// errnoFor maps a Registry-level error to a syscall errno via
// mount.Registry's own status classification, so internal/fuse never
// needs to import internal/scheduler or lib/errs to interpret errors.
func errnoFor(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return errnoForStatus(mount.StatusFor(err))
}

func errnoForStatus(status int) syscall.Errno {
	switch status {
	case mount.StatusOK:
		return 0
	case mount.StatusNotFound:
		return syscall.ENOENT
	case mount.StatusInvalidArgument, mount.StatusInvalidContainer:
		return syscall.EINVAL
	case mount.StatusCancelled:
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
