// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package container defines the consumed MCRAW container-reader
// interface and ships one concrete implementation, FixtureReader, an
// in-memory reader used by tests and by cmd/mcrawfs's synthetic demo
// mode. A real MCRAW parser is out of scope (spec §1): the core only
// needs something that satisfies Reader.
package container

import (
	"fmt"

	"github.com/motioncam/mcrawfs/internal/types"
)

// Reader is the consumed collaborator that decodes a source MCRAW
// file. All methods must be safe for concurrent use by multiple
// goroutines; implementations that wrap a single file handle must
// serialize their own I/O internally (see spec §5's "raw source
// reader is serialized per mount file handle").
type Reader interface {
	FrameCount() int
	FrameMetadata(index int) (types.CameraFrameMetadata, error)
	ReadFrame(index int) ([]uint16, error)
	CameraConfiguration() types.CameraConfiguration
	AudioStream() []byte // nil if the container carries no audio
	Timestamps() []int64 // nanoseconds, one per frame, source order
}

// FixtureReader is an in-memory Reader over synthetic data. It is
// the module's only Reader implementation and is built once per
// mount from caller-supplied frames.
type FixtureReader struct {
	config    types.CameraConfiguration
	metadata  []types.CameraFrameMetadata
	frames    [][]uint16
	audio     []byte
	timestamps []int64
}

// NewFixtureReader builds a FixtureReader. len(frames) must equal
// len(metadata); each frame's sample count must equal
// metadata[i].Width * metadata[i].Height.
func NewFixtureReader(config types.CameraConfiguration, metadata []types.CameraFrameMetadata, frames [][]uint16, audio []byte) (*FixtureReader, error) {
	if len(frames) != len(metadata) {
		return nil, fmt.Errorf("container: %d frames but %d metadata entries", len(frames), len(metadata))
	}
	timestamps := make([]int64, len(metadata))
	for i, m := range metadata {
		timestamps[i] = m.TimestampNs
		want := m.Width * m.Height
		if len(frames[i]) != want {
			return nil, fmt.Errorf("container: frame %d has %d samples, want %d (%dx%d)",
				i, len(frames[i]), want, m.Width, m.Height)
		}
	}
	return &FixtureReader{
		config:     config,
		metadata:   metadata,
		frames:     frames,
		audio:      audio,
		timestamps: timestamps,
	}, nil
}

func (r *FixtureReader) FrameCount() int { return len(r.frames) }

func (r *FixtureReader) FrameMetadata(index int) (types.CameraFrameMetadata, error) {
	if index < 0 || index >= len(r.metadata) {
		return types.CameraFrameMetadata{}, fmt.Errorf("container: frame index %d out of range [0,%d)", index, len(r.metadata))
	}
	return r.metadata[index], nil
}

func (r *FixtureReader) ReadFrame(index int) ([]uint16, error) {
	if index < 0 || index >= len(r.frames) {
		return nil, fmt.Errorf("container: frame index %d out of range [0,%d)", index, len(r.frames))
	}
	return r.frames[index], nil
}

func (r *FixtureReader) CameraConfiguration() types.CameraConfiguration { return r.config }

func (r *FixtureReader) AudioStream() []byte { return r.audio }

func (r *FixtureReader) Timestamps() []int64 { return r.timestamps }
