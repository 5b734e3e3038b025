// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/motioncam/mcrawfs/internal/container"
	"github.com/motioncam/mcrawfs/internal/scheduler"
	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/mount"
)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real FUSE mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

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

// testMount mounts a FixtureReader-backed clip under a temp registry
// and mountpoint. The mount is torn down automatically at test end.
func testMount(t *testing.T, frameCount int, audio []byte) (mountpoint string, registry *mount.Registry, id mount.MountID) {
	t.Helper()
	fuseAvailable(t)

	registry = mount.New(mount.Options{
		Scheduler:     scheduler.Config{IOPoolSize: 1, CPUPoolSize: 1},
		CacheCapBytes: 1 << 20,
	})
	t.Cleanup(registry.Close)

	reader := newFixture(t, frameCount, audio)
	var err error
	id, err = registry.Mount(context.Background(), types.RenderSettings{Levels: "Static"}, strings.NewReader("source"), reader, "clip", "")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	mountpoint = filepath.Join(t.TempDir(), "mnt")
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		Registry:   registry,
		MountID:    id,
		BaseName:   "clip",
	})
	if err != nil {
		t.Fatalf("fuse.Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	return mountpoint, registry, id
}

func TestMountListsFramesAndAudio(t *testing.T) {
	mountpoint, _, _ := testMount(t, 3, []byte("RIFFaudio"))

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	if !names["clip_000000.dng"] {
		t.Error("missing clip_000000.dng")
	}
	if !names["audio.wav"] {
		t.Error("missing audio.wav")
	}
}

func TestMountReadsFrameContent(t *testing.T) {
	mountpoint, _, _ := testMount(t, 2, nil)

	data, err := os.ReadFile(filepath.Join(mountpoint, "clip_000000.dng"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) < 4 || data[0] != 'I' || data[1] != 'I' {
		t.Fatalf("frame content does not start with a TIFF little-endian header: % x", data[:4])
	}
}

func TestMountReadsAudioContent(t *testing.T) {
	mountpoint, _, _ := testMount(t, 2, []byte("RIFFaudio-bytes"))

	data, err := os.ReadFile(filepath.Join(mountpoint, "audio.wav"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "RIFFaudio-bytes" {
		t.Fatalf("audio content = %q, want %q", data, "RIFFaudio-bytes")
	}
}

func TestMountUnknownFileReturnsNotFound(t *testing.T) {
	mountpoint, _, _ := testMount(t, 2, nil)

	_, err := os.ReadFile(filepath.Join(mountpoint, "does_not_exist.dng"))
	if !os.IsNotExist(err) {
		t.Fatalf("ReadFile(missing) error = %v, want IsNotExist", err)
	}
}
