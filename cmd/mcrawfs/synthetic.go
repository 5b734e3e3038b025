// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/motioncam/mcrawfs/internal/container"
	"github.com/motioncam/mcrawfs/internal/types"
)

// syntheticConfig parameterizes the generated demo clip.
type syntheticConfig struct {
	frameCount int
	width      int
	height     int
	fps        float64
	withAudio  bool
}

// syntheticClip wraps a container.FixtureReader with the raw
// descriptor bytes used to seed it, so the mount registry can
// fingerprint "the source file" the way it would a real MCRAW
// container without this binary owning a second copy of the pixel
// data.
type syntheticClip struct {
	*container.FixtureReader
	descriptor []byte
}

func (c *syntheticClip) sourceBytes() io.Reader {
	return bytes.NewReader(c.descriptor)
}

// newSyntheticReader generates a checkerboard Bayer test pattern that
// shifts one tile per frame, giving each output DNG visually distinct
// content. Raw samples are in sensor space (12-bit range) with a
// synthetic black level baked in, matching what a real raw frame looks
// like before processing.
func newSyntheticReader(cfg syntheticConfig) (*syntheticClip, error) {
	if cfg.frameCount < 2 {
		return nil, fmt.Errorf("frame count must be at least 2, got %d", cfg.frameCount)
	}
	if cfg.width <= 0 || cfg.height <= 0 {
		return nil, fmt.Errorf("width and height must be positive, got %dx%d", cfg.width, cfg.height)
	}
	if cfg.width%2 != 0 || cfg.height%2 != 0 {
		return nil, fmt.Errorf("width and height must be even (2x2 Bayer tiling), got %dx%d", cfg.width, cfg.height)
	}
	if cfg.fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %g", cfg.fps)
	}

	const (
		blackLevel = 64.0
		whiteLevel = 4095.0
		tileSize   = 32
	)

	config := types.CameraConfiguration{
		SensorArrangement: types.SensorRGGB,
		BlackLevel:        [4]float64{blackLevel, blackLevel, blackLevel, blackLevel},
		WhiteLevel:        whiteLevel,
		ColorMatrix1:      [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		ForwardMatrix1:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		BuildModel:        "mcrawfs-synthetic",
	}

	frameIntervalNs := int64(1e9/cfg.fps + 0.5)

	metas := make([]types.CameraFrameMetadata, cfg.frameCount)
	frames := make([][]uint16, cfg.frameCount)
	for i := range metas {
		metas[i] = types.CameraFrameMetadata{
			ISO:               100,
			ExposureTimeNs:    frameIntervalNs / 2,
			DynamicBlackLevel: [4]float64{blackLevel, blackLevel, blackLevel, blackLevel},
			DynamicWhiteLevel: whiteLevel,
			OriginalWidth:     cfg.width,
			OriginalHeight:    cfg.height,
			Width:             cfg.width,
			Height:            cfg.height,
			TimestampNs:       int64(i) * frameIntervalNs,
		}
		frames[i] = checkerboardFrame(cfg.width, cfg.height, i, tileSize, blackLevel, whiteLevel)
	}

	var audio []byte
	if cfg.withAudio {
		audio = syntheticAudio(cfg.frameCount, cfg.fps)
	}

	reader, err := container.NewFixtureReader(config, metas, frames, audio)
	if err != nil {
		return nil, err
	}

	descriptor := fmt.Sprintf("mcrawfs-synthetic:%dx%d:%d:%g", cfg.width, cfg.height, cfg.frameCount, cfg.fps)
	return &syntheticClip{FixtureReader: reader, descriptor: []byte(descriptor)}, nil
}

// checkerboardFrame generates one raw Bayer-pattern frame: a
// tileSize-square checkerboard whose phase shifts by one tile per
// frame index, so sequential frames are visually distinguishable.
func checkerboardFrame(width, height, frameIndex, tileSize int, black, white float64) []uint16 {
	raw := make([]uint16, width*height)
	amplitude := white - black
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tileX := (x / tileSize) + frameIndex
			tileY := y / tileSize
			var level float64
			if (tileX+tileY)%2 == 0 {
				level = black + amplitude*0.75
			} else {
				level = black + amplitude*0.25
			}
			raw[y*width+x] = uint16(math.Min(white, level))
		}
	}
	return raw
}

// syntheticAudio generates a minimal RIFF/WAVE header followed by a
// silent PCM body sized to match the clip's nominal duration, enough
// for the audio.wav entry to be a structurally valid (if silent) WAV
// file.
func syntheticAudio(frameCount int, fps float64) []byte {
	const sampleRate = 48000
	const bitsPerSample = 16
	const channels = 1

	durationSeconds := float64(frameCount) / fps
	sampleCount := int(durationSeconds * sampleRate)
	dataSize := sampleCount * channels * bitsPerSample / 8

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	writeLE32(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeLE32(buf, 16)
	writeLE16(buf, 1) // PCM
	writeLE16(buf, channels)
	writeLE32(buf, sampleRate)
	writeLE32(buf, sampleRate*channels*bitsPerSample/8)
	writeLE16(buf, channels*bitsPerSample/8)
	writeLE16(buf, bitsPerSample)
	buf.WriteString("data")
	writeLE32(buf, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func writeLE32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeLE16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}
