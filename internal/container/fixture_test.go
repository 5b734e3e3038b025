// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"testing"

	"github.com/motioncam/mcrawfs/internal/types"
)

func TestFixtureReaderRejectsMismatchedFrameCount(t *testing.T) {
	_, err := NewFixtureReader(types.CameraConfiguration{}, nil, [][]uint16{{1, 2}}, nil)
	if err == nil {
		t.Fatal("expected error for mismatched frame/metadata count")
	}
}

func TestFixtureReaderRejectsMismatchedSampleCount(t *testing.T) {
	metadata := []types.CameraFrameMetadata{{Width: 4, Height: 4}}
	_, err := NewFixtureReader(types.CameraConfiguration{}, metadata, [][]uint16{{1, 2}}, nil)
	if err == nil {
		t.Fatal("expected error for frame sample count mismatch")
	}
}

func TestFixtureReaderRoundTrip(t *testing.T) {
	metadata := []types.CameraFrameMetadata{
		{Width: 2, Height: 2, TimestampNs: 0},
		{Width: 2, Height: 2, TimestampNs: 1_000_000},
	}
	frames := [][]uint16{{1, 2, 3, 4}, {5, 6, 7, 8}}

	r, err := NewFixtureReader(types.CameraConfiguration{SensorArrangement: types.SensorRGGB}, metadata, frames, []byte("RIFF"))
	if err != nil {
		t.Fatalf("NewFixtureReader: %v", err)
	}

	if r.FrameCount() != 2 {
		t.Fatalf("FrameCount() = %d, want 2", r.FrameCount())
	}
	got, err := r.ReadFrame(1)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got[0] != 5 {
		t.Errorf("ReadFrame(1)[0] = %d, want 5", got[0])
	}
	if len(r.Timestamps()) != 2 {
		t.Fatalf("Timestamps() len = %d, want 2", len(r.Timestamps()))
	}
	if string(r.AudioStream()) != "RIFF" {
		t.Errorf("AudioStream() = %q, want RIFF", r.AudioStream())
	}
}
