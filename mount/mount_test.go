// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/motioncam/mcrawfs/internal/container"
	"github.com/motioncam/mcrawfs/internal/scheduler"
	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/lib/errs"
)

func solidFrame(w, h int, value uint16) []uint16 {
	raw := make([]uint16, w*h)
	for i := range raw {
		raw[i] = value
	}
	return raw
}

func newFixture(t *testing.T, frameCount int, audio []byte) container.Reader {
	t.Helper()
	const w, h = 16, 16

	config := types.CameraConfiguration{
		SensorArrangement: types.SensorRGGB,
		BlackLevel:        [4]float64{64, 64, 64, 64},
		WhiteLevel:        1023,
	}
	metas := make([]types.CameraFrameMetadata, frameCount)
	frames := make([][]uint16, frameCount)
	for i := range metas {
		metas[i] = types.CameraFrameMetadata{
			OriginalWidth:     w,
			OriginalHeight:    h,
			Width:             w,
			Height:            h,
			DynamicBlackLevel: [4]float64{64, 64, 64, 64},
			DynamicWhiteLevel: 1023,
			TimestampNs:       int64(i) * 1_000_000_000 / 30,
		}
		frames[i] = solidFrame(w, h, 512)
	}

	reader, err := container.NewFixtureReader(config, metas, frames, audio)
	if err != nil {
		t.Fatalf("NewFixtureReader: %v", err)
	}
	return reader
}

func newRegistry() *Registry {
	return New(Options{
		Scheduler:     scheduler.Config{IOPoolSize: 1, CPUPoolSize: 1},
		CacheCapBytes: 1 << 20,
	})
}

func TestMountPublishesFrameAndAudioEntries(t *testing.T) {
	r := newRegistry()
	defer r.Close()

	reader := newFixture(t, 3, []byte("RIFFaudio"))
	id, err := r.Mount(context.Background(), types.RenderSettings{Levels: "Static"}, strings.NewReader("source-bytes"), reader, "clip", "/mnt/clip")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	entries, err := r.List(id)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 4 { // 3 frames + audio
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	if _, err := r.FindEntry(id, "clip/clip_000000.dng"); err != nil {
		t.Errorf("FindEntry(frame 0): %v", err)
	}
	if _, err := r.FindEntry(id, "clip/audio.wav"); err != nil {
		t.Errorf("FindEntry(audio): %v", err)
	}
}

func TestReadFileBuildsFrameZero(t *testing.T) {
	r := newRegistry()
	defer r.Close()

	reader := newFixture(t, 2, nil)
	id, err := r.Mount(context.Background(), types.RenderSettings{Levels: "Static"}, strings.NewReader("source-bytes"), reader, "clip", "/mnt/clip")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	dst := make([]byte, 1<<16)
	n, status := r.ReadFile(context.Background(), id, "clip/clip_000000.dng", 0, len(dst), dst, false, func(int, int) {})
	if status != scheduler.StatusOK {
		t.Fatalf("ReadFile status = %d, want StatusOK", status)
	}
	if n == 0 || dst[0] != 'I' || dst[1] != 'I' {
		t.Fatalf("ReadFile did not return a TIFF-header-prefixed DNG, got %d bytes starting % x", n, dst[:4])
	}
}

func TestReadFileUnknownPathReturnsNotFound(t *testing.T) {
	r := newRegistry()
	defer r.Close()

	reader := newFixture(t, 2, nil)
	id, err := r.Mount(context.Background(), types.RenderSettings{Levels: "Static"}, strings.NewReader("source-bytes"), reader, "clip", "/mnt/clip")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	dst := make([]byte, 16)
	completed := false
	_, status := r.ReadFile(context.Background(), id, "clip/does_not_exist.dng", 0, len(dst), dst, false, func(int, int) { completed = true })
	if status != scheduler.StatusNotFound {
		t.Fatalf("status = %d, want StatusNotFound", status)
	}
	if !completed {
		t.Fatal("completion callback was not invoked for a not-found path")
	}
}

func TestUpdateOptionsRepublishesDirectorySizes(t *testing.T) {
	r := newRegistry()
	defer r.Close()

	reader := newFixture(t, 2, nil)
	id, err := r.Mount(context.Background(), types.RenderSettings{Levels: "Static"}, strings.NewReader("source-bytes"), reader, "clip", "/mnt/clip")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	before, err := r.FindEntry(id, "clip/clip_000000.dng")
	if err != nil {
		t.Fatalf("FindEntry before: %v", err)
	}

	// Draft mode halves output dimensions, shrinking the packed image
	// data and hence the probed typical size.
	err = r.UpdateOptions(context.Background(), id, types.RenderSettings{
		Levels:     "Static",
		Options:    types.OptDraft,
		DraftScale: 2,
	})
	if err != nil {
		t.Fatalf("UpdateOptions: %v", err)
	}

	after, err := r.FindEntry(id, "clip/clip_000000.dng")
	if err != nil {
		t.Fatalf("FindEntry after: %v", err)
	}
	if after.Size == before.Size {
		t.Fatal("UpdateOptions with a size-affecting option did not republish a different typicalDngSize")
	}
}

func TestUnmountDropsEntryAndCacheAndRejectsFurtherReads(t *testing.T) {
	r := newRegistry()
	defer r.Close()

	reader := newFixture(t, 2, nil)
	id, err := r.Mount(context.Background(), types.RenderSettings{Levels: "Static"}, strings.NewReader("source-bytes"), reader, "clip", "/mnt/clip")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if err := r.Unmount(id); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	if _, err := r.List(id); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("List after unmount = %v, want errs.ErrNotFound", err)
	}
	if err := r.Unmount(id); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("double Unmount = %v, want errs.ErrNotFound", err)
	}
}

func TestGetFileInfoReportsFrameRatePlan(t *testing.T) {
	r := newRegistry()
	defer r.Close()

	reader := newFixture(t, 4, nil)
	id, err := r.Mount(context.Background(), types.RenderSettings{Levels: "Static"}, strings.NewReader("source-bytes"), reader, "clip", "/mnt/clip")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	plan, err := r.GetFileInfo(id)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if plan.TotalFrames != 4 {
		t.Fatalf("plan.TotalFrames = %d, want 4", plan.TotalFrames)
	}
	if len(plan.SourceIndex) != 4 {
		t.Fatalf("len(plan.SourceIndex) = %d, want 4", len(plan.SourceIndex))
	}
}

func TestMountReusesProbeForRepeatedSourceAndSettings(t *testing.T) {
	r := newRegistry()
	defer r.Close()

	settings := types.RenderSettings{Levels: "Static"}

	reader1 := newFixture(t, 2, nil)
	id1, err := r.Mount(context.Background(), settings, strings.NewReader("identical-source"), reader1, "clip", "/mnt/clip1")
	if err != nil {
		t.Fatalf("first Mount: %v", err)
	}
	info1, err := r.FindEntry(id1, "clip/clip_000000.dng")
	if err != nil {
		t.Fatalf("FindEntry 1: %v", err)
	}

	reader2 := newFixture(t, 2, nil)
	id2, err := r.Mount(context.Background(), settings, strings.NewReader("identical-source"), reader2, "clip", "/mnt/clip2")
	if err != nil {
		t.Fatalf("second Mount: %v", err)
	}
	info2, err := r.FindEntry(id2, "clip/clip_000000.dng")
	if err != nil {
		t.Fatalf("FindEntry 2: %v", err)
	}

	if info1.Size != info2.Size {
		t.Fatalf("probe cache miss: size1=%d size2=%d for identical source+settings", info1.Size, info2.Size)
	}

	r.probes.mu.Lock()
	probeEntries := len(r.probes.entries)
	r.probes.mu.Unlock()
	if probeEntries != 1 {
		t.Fatalf("probe cache holds %d descriptors, want 1 (second Mount should reuse the first probe)", probeEntries)
	}
}
