// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package mount implements the mount registry (spec component C8):
// the root-importable entrypoint that parses a source container into
// a published virtual directory, wires its build pipeline, and serves
// reads against it. internal/fuse and cmd/mcrawfs talk to Registry for
// every operation. internal/fuse never imports internal/scheduler,
// internal/cache, internal/vfs, internal/container, or
// internal/process directly; cmd/mcrawfs imports internal/scheduler
// only for its pool Config and internal/container only to build its
// synthetic source. internal/types' plain data structures
// (Entry, RenderSettings, FrameRatePlan) are shared vocabulary read by
// every layer, the same way the teacher's lib/artifactstore/fuse
// imports artifactstore's record types directly.
package mount

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/motioncam/mcrawfs/internal/cache"
	"github.com/motioncam/mcrawfs/internal/container"
	"github.com/motioncam/mcrawfs/internal/framerate"
	"github.com/motioncam/mcrawfs/internal/scheduler"
	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/internal/vfs"
	"github.com/motioncam/mcrawfs/lib/errs"
	"github.com/motioncam/mcrawfs/lib/fingerprint"
)

// MountID identifies one mounted container for the lifetime of the
// process.
type MountID string

// Status codes returned by ReadFile (spec §7), re-exported from
// internal/scheduler so callers above this package classify results
// without importing internal/scheduler themselves.
const (
	StatusOK               = scheduler.StatusOK
	StatusInvalidContainer = scheduler.StatusInvalidContainer
	StatusInvalidArgument  = scheduler.StatusInvalidArgument
	StatusNotFound         = scheduler.StatusNotFound
	StatusCancelled        = scheduler.StatusCancelled
	StatusIOError          = scheduler.StatusIOError
)

// StatusFor classifies err into one of the Status* codes above,
// re-exported from internal/scheduler.StatusFor for the same reason:
// callers above this package (internal/fuse's error mapping) never
// import internal/scheduler or lib/errs directly.
func StatusFor(err error) int {
	return scheduler.StatusFor(err)
}

// Options configures a Registry.
type Options struct {
	Scheduler scheduler.Config

	// CacheCapBytes bounds the shared artifact cache (spec §4.7).
	CacheCapBytes int64

	// SafetyMarginBytes is added to the one-time probe's measured
	// size to account for opcode-list/shading-map size variance
	// across frames (spec §4.10). Defaults to 4096 when zero.
	SafetyMarginBytes int64

	Logger *slog.Logger
}

// Registry owns every active mount plus the shared scheduler and
// artifact cache those mounts build against.
type Registry struct {
	mu     sync.RWMutex
	mounts map[MountID]*mountEntry

	scheduler    *scheduler.Scheduler
	cache        *cache.Cache
	probes       *probeCache
	safetyMargin int64
	logger       *slog.Logger

	nextID atomic.Uint64
}

// mountEntry is one mount's state. settings/typicalDngSize/dir are
// guarded by mu since updateOptions (spec §4.1) may change them
// concurrently with reads; builder.Reader and builder.Plan are
// immutable for the mount's lifetime (a size-affecting settings
// change republishes directory metadata, it never re-parses the
// container).
type mountEntry struct {
	mu sync.Mutex

	id       MountID
	dstPath  string
	base     string
	builder  *scheduler.Builder
	dir      *vfs.Directory
	settings types.RenderSettings

	sourceFingerprint fingerprint.Hash
	hasAudio          bool
	audioSize         int64
	typicalDngSize    int64
}

// New creates a Registry. Call Close when the process shuts down to
// stop the scheduler's worker pools.
func New(opts Options) *Registry {
	margin := opts.SafetyMarginBytes
	if margin == 0 {
		margin = 4096
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Registry{
		mounts:       make(map[MountID]*mountEntry),
		scheduler:    scheduler.New(opts.Scheduler),
		cache:        cache.New(opts.CacheCapBytes),
		probes:       newProbeCache(),
		safetyMargin: margin,
		logger:       logger,
	}
}

// Close stops the registry's scheduler pools. Existing mounts are not
// explicitly unmounted; callers should Unmount each first.
func (r *Registry) Close() {
	r.scheduler.Close()
}

// Mount parses a container into a published virtual directory and
// registers its build pipeline (spec §4.1's mount(settings, srcFile,
// dstPath)). source is read once, end to end, to compute the
// probe-descriptor cache key (spec §4.10); reader is the
// already-decoded container (real MCRAW parsing is out of scope, per
// spec.md §1 — callers supply a container.Reader directly). baseName
// is the published root directory segment (e.g. the source file's
// name without extension).
func (r *Registry) Mount(ctx context.Context, settings types.RenderSettings, source io.Reader, reader container.Reader, baseName, dstPath string) (MountID, error) {
	if reader.FrameCount() < 1 {
		return "", fmt.Errorf("mount: container has no frames: %w", errs.ErrInvalidContainer)
	}

	metas := make([]framerate.FrameMeta, reader.FrameCount())
	for i := range metas {
		m, err := reader.FrameMetadata(i)
		if err != nil {
			return "", fmt.Errorf("mount: frame %d metadata: %w", i, err)
		}
		metas[i] = framerate.FrameMeta{ISO: m.ISO, ExposureTimeNs: m.ExposureTimeNs, TimestampNs: m.TimestampNs}
	}
	first, err := reader.FrameMetadata(0)
	if err != nil {
		return "", fmt.Errorf("mount: frame 0 metadata: %w", err)
	}

	plan, err := framerate.Plan(metas, settings, first.Width, first.Height)
	if err != nil {
		return "", fmt.Errorf("mount: planning frame rate: %w", err)
	}

	sourceHash, err := fingerprint.Source(source)
	if err != nil {
		return "", fmt.Errorf("mount: fingerprinting source: %w", err)
	}

	id := MountID(fmt.Sprintf("mnt-%d", r.nextID.Add(1)))

	builder := &scheduler.Builder{
		MountID: string(id),
		Reader:  reader,
		Plan:    plan,
		Config:  reader.CameraConfiguration(),
		Cache:   r.cache,
	}

	entry := &mountEntry{
		id:                id,
		dstPath:           dstPath,
		base:              baseName,
		builder:           builder,
		settings:          settings,
		sourceFingerprint: sourceHash,
	}
	builder.Settings = func() types.RenderSettings {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		return entry.settings
	}

	audio := reader.AudioStream()
	entry.hasAudio = len(audio) > 0
	entry.audioSize = int64(len(audio))

	size, err := r.resolveTypicalSize(ctx, builder, sourceHash, settings)
	if err != nil {
		return "", fmt.Errorf("mount: probing typical frame size: %w", err)
	}
	entry.typicalDngSize = size
	entry.dir = vfs.New(baseName, len(plan.SourceIndex), size, entry.hasAudio, entry.audioSize)

	r.mu.Lock()
	r.mounts[id] = entry
	r.mu.Unlock()

	r.logger.Info("mcrawfs: mounted", "mount_id", id, "dst_path", dstPath, "frames", len(plan.SourceIndex), "typical_dng_size", size)
	return id, nil
}

// UpdateOptions atomically replaces a mount's RenderSettings and
// republishes directory metadata, since size-affecting options may
// shift frame sizes (spec §4.1).
func (r *Registry) UpdateOptions(ctx context.Context, id MountID, settings types.RenderSettings) error {
	entry, err := r.lookup(id)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	size, err := r.resolveTypicalSize(ctx, entry.builder, entry.sourceFingerprint, settings)
	if err != nil {
		return fmt.Errorf("mount: re-probing typical frame size: %w", err)
	}

	entry.settings = settings
	entry.typicalDngSize = size
	entry.dir.Rebuild(len(entry.builder.Plan.SourceIndex), size, entry.hasAudio, entry.audioSize)

	r.logger.Info("mcrawfs: updated options", "mount_id", id, "typical_dng_size", size)
	return nil
}

// Unmount detaches a mount: in-flight builds for it are cancelled
// (already-running CPU work completes, but its result is discarded
// rather than delivered, spec §5), and its cache entries are dropped.
func (r *Registry) Unmount(id MountID) error {
	r.mu.Lock()
	entry, ok := r.mounts[id]
	if ok {
		delete(r.mounts, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("mount: %q: %w", id, errs.ErrNotFound)
	}

	r.scheduler.Cancel(string(id))
	r.cache.InvalidateMount(string(id))
	r.logger.Info("mcrawfs: unmounted", "mount_id", id, "dst_path", entry.dstPath)
	return nil
}

// GetFileInfo returns the mount's current FrameRatePlan summary (spec
// §4.1).
func (r *Registry) GetFileInfo(id MountID) (types.FrameRatePlan, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return types.FrameRatePlan{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return *entry.builder.Plan, nil
}

// List returns the mount's currently published directory entries.
func (r *Registry) List(id MountID) ([]types.Entry, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return entry.dir.List(), nil
}

// FindEntry resolves a full path within a mount's published directory
// (spec §4.2's findEntry).
func (r *Registry) FindEntry(id MountID, fullPath string) (types.Entry, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return types.Entry{}, err
	}
	return entry.dir.FindEntry(fullPath)
}

// ReadFile serves one ranged read against a mount's published path,
// building (or reusing a cached build of) the underlying artifact
// first (spec §4.8). See internal/scheduler.ReadFile for the
// synchronous/asynchronous completion contract and status codes.
func (r *Registry) ReadFile(ctx context.Context, id MountID, fullPath string, offset, length int, dst []byte, async bool, completion func(n, status int)) (int, int) {
	entry, err := r.lookup(id)
	if err != nil {
		status := scheduler.StatusFor(err)
		completion(0, status)
		return 0, status
	}

	e, err := entry.dir.FindEntry(fullPath)
	if err != nil {
		status := scheduler.StatusFor(err)
		completion(0, status)
		return 0, status
	}

	isAudio := e.Name == "audio.wav"
	var audio []byte
	outputIndex := 0
	if isAudio {
		audio = entry.builder.Reader.AudioStream()
	} else {
		idx, ok := entry.dir.OutputIndexForName(e.Name)
		if !ok {
			status := scheduler.StatusFor(fmt.Errorf("mount: %q: %w", fullPath, errs.ErrNotFound))
			completion(0, status)
			return 0, status
		}
		outputIndex = idx
	}

	return r.scheduler.ReadFile(ctx, entry.builder, e, outputIndex, isAudio, audio, entry.builder.Settings(), offset, length, dst, async, completion)
}

func (r *Registry) lookup(id MountID) (*mountEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.mounts[id]
	if !ok {
		return nil, fmt.Errorf("mount: %q: %w", id, errs.ErrNotFound)
	}
	return entry, nil
}

// resolveTypicalSize returns the conservative per-frame size upper
// bound for (sourceHash, settings), reusing the probe cache when the
// same source/settings pair was already measured (spec §4.10).
func (r *Registry) resolveTypicalSize(ctx context.Context, builder *scheduler.Builder, sourceHash fingerprint.Hash, settings types.RenderSettings) (int64, error) {
	settingsHash, err := fingerprint.RenderSettings(settings)
	if err != nil {
		return 0, fmt.Errorf("fingerprinting settings: %w", err)
	}
	key := probeKey{source: sourceHash, settings: settingsHash}

	if size, ok := r.probes.lookup(key); ok {
		return size, nil
	}

	data, err := builder.BuildSync(ctx, 0, settings)
	if err != nil {
		return 0, fmt.Errorf("building probe frame: %w", err)
	}
	size := int64(len(data)) + r.safetyMargin

	if err := r.probes.store(key, size); err != nil {
		// Non-fatal: the probe still succeeded, it just won't be
		// reusable by a later Mount/UpdateOptions call.
		r.logger.Warn("mcrawfs: failed to persist probe descriptor", "error", err)
	}
	return size, nil
}
