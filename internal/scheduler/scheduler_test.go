// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/motioncam/mcrawfs/internal/cache"
	"github.com/motioncam/mcrawfs/internal/container"
	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/lib/testutil"
)

func testMeta(w, h int, ts int64) types.CameraFrameMetadata {
	return types.CameraFrameMetadata{
		OriginalWidth:     w,
		OriginalHeight:    h,
		Width:             w,
		Height:            h,
		DynamicBlackLevel: [4]float64{64, 64, 64, 64},
		DynamicWhiteLevel: 1023,
		TimestampNs:       ts,
	}
}

func testConfig() types.CameraConfiguration {
	return types.CameraConfiguration{
		SensorArrangement: types.SensorRGGB,
		BlackLevel:        [4]float64{64, 64, 64, 64},
		WhiteLevel:        1023,
	}
}

func solidFrame(w, h int, value uint16) []uint16 {
	raw := make([]uint16, w*h)
	for i := range raw {
		raw[i] = value
	}
	return raw
}

func newTestBuilder(t *testing.T, frameCount int) (*Builder, *container.FixtureReader) {
	t.Helper()
	const w, h = 16, 16

	metas := make([]types.CameraFrameMetadata, frameCount)
	frames := make([][]uint16, frameCount)
	for i := range metas {
		metas[i] = testMeta(w, h, int64(i)*1_000_000_000/30)
		frames[i] = solidFrame(w, h, 512)
	}

	reader, err := container.NewFixtureReader(testConfig(), metas, frames, []byte("RIFFaudio"))
	if err != nil {
		t.Fatalf("NewFixtureReader: %v", err)
	}

	sourceIndex := make([]int, frameCount)
	for i := range sourceIndex {
		sourceIndex[i] = i
	}
	plan := &types.FrameRatePlan{
		MedFps:      30,
		AvgFps:      30,
		TargetFps:   30,
		TotalFrames: frameCount,
		Width:       w,
		Height:      h,
		SourceIndex: sourceIndex,
	}

	b := &Builder{
		MountID: "m1",
		Reader:  reader,
		Plan:    plan,
		Config:  testConfig(),
		Settings: func() types.RenderSettings {
			return types.RenderSettings{Levels: "Static"}
		},
		Cache: cache.New(1 << 20),
	}
	return b, reader
}

func TestReadFileSyncBuildsAndCopiesFrameBytes(t *testing.T) {
	s := New(Config{IOPoolSize: 1, CPUPoolSize: 1})
	defer s.Close()

	b, _ := newTestBuilder(t, 2)
	settings := b.Settings()

	dst := make([]byte, 4096)
	var completedN, completedStatus int
	n, status := s.ReadFile(context.Background(), b, types.Entry{}, 0, false, nil, settings, 0, len(dst), dst, false,
		func(n int, status int) { completedN, completedStatus = n, status })

	if status != StatusOK {
		t.Fatalf("ReadFile status = %d, want StatusOK", status)
	}
	if n == 0 {
		t.Fatal("ReadFile returned 0 bytes for a frame that should have built a non-empty DNG")
	}
	if completedN != n || completedStatus != status {
		t.Fatalf("completion callback (%d, %d) != synchronous return (%d, %d)", completedN, completedStatus, n, status)
	}
	// A DNG's first four bytes are the TIFF/DNG header: "II" + magic 42.
	if dst[0] != 'I' || dst[1] != 'I' || dst[2] != 42 || dst[3] != 0 {
		t.Fatalf("built artifact does not start with a little-endian TIFF header: % x", dst[:4])
	}
}

func TestReadFilePartialReadTruncatesAtTail(t *testing.T) {
	s := New(Config{IOPoolSize: 1, CPUPoolSize: 1})
	defer s.Close()

	b, _ := newTestBuilder(t, 1)
	settings := b.Settings()

	full := make([]byte, 1<<20)
	fullN, status := s.ReadFile(context.Background(), b, types.Entry{}, 0, false, nil, settings, 0, len(full), full, false, func(int, int) {})
	if status != StatusOK {
		t.Fatalf("building the full artifact failed: status %d", status)
	}

	// Request a range that runs past the artifact's actual length.
	dst := make([]byte, 4096)
	offset := fullN - 10
	n, status := s.ReadFile(context.Background(), b, types.Entry{}, 0, false, nil, settings, offset, len(dst), dst, false, func(int, int) {})
	if status != StatusOK {
		t.Fatalf("tail read status = %d, want StatusOK", status)
	}
	if n != 10 {
		t.Fatalf("tail read returned %d bytes, want exactly the 10 remaining bytes", n)
	}
}

func TestReadFileOffsetPastEndReturnsZeroBytes(t *testing.T) {
	s := New(Config{IOPoolSize: 1, CPUPoolSize: 1})
	defer s.Close()

	b, _ := newTestBuilder(t, 1)
	settings := b.Settings()

	dst := make([]byte, 16)
	n, status := s.ReadFile(context.Background(), b, types.Entry{}, 0, false, nil, settings, 1<<30, len(dst), dst, false, func(int, int) {})
	if status != StatusOK {
		t.Fatalf("status = %d, want StatusOK for an offset past end-of-file", status)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 for an offset past end-of-file", n)
	}
}

func TestReadFileAudioBypassesBuildPipeline(t *testing.T) {
	s := New(Config{IOPoolSize: 1, CPUPoolSize: 1})
	defer s.Close()

	b, _ := newTestBuilder(t, 1)
	audio := []byte("RIFFaudio")

	dst := make([]byte, len(audio))
	n, status := s.ReadFile(context.Background(), b, types.Entry{}, 0, true, audio, types.RenderSettings{}, 0, len(dst), dst, false, func(int, int) {})
	if status != StatusOK || n != len(audio) {
		t.Fatalf("audio read = (%d, %d), want (%d, %d)", n, status, len(audio), StatusOK)
	}
	if string(dst) != string(audio) {
		t.Fatalf("audio bytes = %q, want %q", dst, audio)
	}
}

func TestReadFileAsyncDeliversViaCompletion(t *testing.T) {
	s := New(Config{IOPoolSize: 1, CPUPoolSize: 1})
	defer s.Close()

	b, _ := newTestBuilder(t, 1)
	settings := b.Settings()

	dst := make([]byte, 4096)
	done := make(chan struct {
		n      int
		status int
	}, 1)

	n, status := s.ReadFile(context.Background(), b, types.Entry{}, 0, false, nil, settings, 0, len(dst), dst, true,
		func(n int, status int) {
			done <- struct {
				n      int
				status int
			}{n, status}
		})
	if n != 0 || status != StatusOK {
		t.Fatalf("async ReadFile immediate return = (%d, %d), want (0, StatusOK)", n, status)
	}

	result := testutil.RequireReceive(t, done, 5*time.Second, "async build completion")
	if result.status != StatusOK || result.n == 0 {
		t.Fatalf("async completion = (%d, %d), want (>0, StatusOK)", result.n, result.status)
	}
}

func TestReadFileCachesSecondCallWithoutRebuilding(t *testing.T) {
	s := New(Config{IOPoolSize: 1, CPUPoolSize: 1})
	defer s.Close()

	b, _ := newTestBuilder(t, 1)
	settings := b.Settings()

	dst1 := make([]byte, 4096)
	n1, status1 := s.ReadFile(context.Background(), b, types.Entry{}, 0, false, nil, settings, 0, len(dst1), dst1, false, func(int, int) {})
	if status1 != StatusOK {
		t.Fatalf("first build failed: status %d", status1)
	}

	dst2 := make([]byte, 4096)
	n2, status2 := s.ReadFile(context.Background(), b, types.Entry{}, 0, false, nil, settings, 0, len(dst2), dst2, false, func(int, int) {})
	if status2 != StatusOK || n2 != n1 {
		t.Fatalf("cached read = (%d, %d), want (%d, StatusOK)", n2, status2, n1)
	}
	if string(dst1[:n1]) != string(dst2[:n2]) {
		t.Fatal("cached read returned different bytes than the original build")
	}

	stats := b.Cache.Stats()
	if stats.Entries != 1 {
		t.Fatalf("cache entries = %d, want 1 (single-flight + cache hit, no duplicate insert)", stats.Entries)
	}
}

func TestSchedulerCancelSuppressesInFlightDelivery(t *testing.T) {
	s := New(Config{IOPoolSize: 1, CPUPoolSize: 1})
	defer s.Close()

	var delivered int32
	started := make(chan struct{})
	release := make(chan struct{})

	task := NewTask("mount-x",
		func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "io-result", nil
		},
		func(ctx context.Context, io any) ([]byte, error) {
			return []byte("built"), nil
		},
		func(data []byte, err error) {
			atomic.AddInt32(&delivered, 1)
		},
	)

	s.Submit(context.Background(), task)
	testutil.RequireClosed(t, started, 5*time.Second, "io stage to start")

	s.Cancel("mount-x")
	close(release)

	// Give the workers a moment to process the now-cancelled task;
	// its delivery must be suppressed.
	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&delivered) != 0 {
		t.Fatal("cancelled task's CPU result was delivered")
	}
}
