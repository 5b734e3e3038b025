// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"

	"github.com/motioncam/mcrawfs/internal/bitpack"
	"github.com/motioncam/mcrawfs/internal/cache"
	"github.com/motioncam/mcrawfs/internal/container"
	"github.com/motioncam/mcrawfs/internal/dng"
	"github.com/motioncam/mcrawfs/internal/process"
	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/lib/errs"
	"github.com/motioncam/mcrawfs/lib/fingerprint"
)

// Builder ties one mount's collaborators together so the scheduler can
// run the C3->C1->C2 CPU stage without knowing their internals: read
// the source frame (I/O stage), then process/pack/encode it (CPU
// stage). One Builder is constructed per mount by the mount package.
type Builder struct {
	MountID  string
	Reader   container.Reader
	Plan     *types.FrameRatePlan
	Config   types.CameraConfiguration
	Settings func() types.RenderSettings // current settings, may change via updateOptions
	Cache    *cache.Cache
}

type ioResult struct {
	raw  []uint16
	meta types.CameraFrameMetadata
}

// ioStage reads the raw source frame for outputIndex (spec §4.8's I/O
// task). Runs on the I/O pool.
func (b *Builder) ioStage(outputIndex int) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if outputIndex < 0 || outputIndex >= len(b.Plan.SourceIndex) {
			return nil, fmt.Errorf("scheduler: output index %d out of range: %w", outputIndex, errs.ErrInvalidArgument)
		}
		sourceIndex := b.Plan.SourceIndex[outputIndex]
		meta, err := b.Reader.FrameMetadata(sourceIndex)
		if err != nil {
			return nil, fmt.Errorf("scheduler: frame metadata %d: %w", sourceIndex, err)
		}
		raw, err := b.Reader.ReadFrame(sourceIndex)
		if err != nil {
			return nil, fmt.Errorf("scheduler: read frame %d: %w", sourceIndex, err)
		}
		return ioResult{raw: raw, meta: meta}, nil
	}
}

// cpuStage runs the C3 processor, C1 bit-packer, and C2 DNG encoder
// (spec §4.8's CPU task) against the I/O stage's frame. Runs on the
// CPU pool.
func (b *Builder) cpuStage(settings types.RenderSettings) func(ctx context.Context, io any) ([]byte, error) {
	return func(ctx context.Context, io any) ([]byte, error) {
		r := io.(ioResult)

		result := process.Process(r.raw, r.meta, b.Config, settings)

		bits := bitpack.BitsFor(bitpack.BitsNeeded(uint32(result.PackBits)))
		packed, err := bitpack.Pack(result.Samples, bits)
		if err != nil {
			return nil, fmt.Errorf("scheduler: pack samples: %w", err)
		}

		fc := dng.FrameContext{
			Meta:             r.meta,
			Config:           b.Config,
			Settings:         settings,
			BaselineExpValue: b.Plan.BaselineExpValue,
			TargetFps:        b.Plan.TargetFps,
		}
		fc.TimecodeFrames, fc.TimecodeSeconds, fc.TimecodeMinutes, fc.TimecodeHours = timecodeFor(r.meta, b.Plan.TargetFps)

		return dng.Encode(result, packed, fc), nil
	}
}

// timecodeFor derives an SMPTE-ish timecode from a frame's timestamp
// and the planned output rate (spec §4.6's TimeCodes tag). There is no
// wall-clock start-of-day reference in a raw MCRAW container, so the
// timecode is relative to the clip's first frame at 0:00:00:00.
func timecodeFor(meta types.CameraFrameMetadata, targetFps float64) (frames, seconds, minutes, hours int) {
	if targetFps <= 0 {
		return 0, 0, 0, 0
	}
	totalFrames := int(float64(meta.TimestampNs) / 1e9 * targetFps)
	fps := int(targetFps + 0.5)
	if fps <= 0 {
		fps = 1
	}
	frames = totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds = totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes = totalMinutes % 60
	hours = (totalMinutes / 60) % 24
	return
}

// BuildTask packages ioStage/cpuStage for outputIndex into a Task
// ready for Scheduler.Submit.
func (b *Builder) BuildTask(outputIndex int, settings types.RenderSettings, complete func(data []byte, err error)) Task {
	return NewTask(b.MountID, b.ioStage(outputIndex), b.cpuStage(settings), complete)
}

// BuildSync runs the I/O and CPU stages directly in the calling
// goroutine, bypassing the scheduler's pools entirely. Used by the
// mount package's one-time typicalDngSize probe (spec §4.10), which
// must complete before Mount returns and gains nothing from queuing.
func (b *Builder) BuildSync(ctx context.Context, outputIndex int, settings types.RenderSettings) ([]byte, error) {
	io, err := b.ioStage(outputIndex)(ctx)
	if err != nil {
		return nil, err
	}
	return b.cpuStage(settings)(ctx, io)
}

// CacheKey computes this builder's cache key for an output frame
// under the given settings (spec §4.7).
func (b *Builder) CacheKey(outputIndex int, settings types.RenderSettings) (cache.Key, error) {
	h, err := fingerprint.RenderSettings(settings)
	if err != nil {
		return cache.Key{}, fmt.Errorf("scheduler: fingerprint settings: %w", err)
	}
	return cache.Key{MountID: b.MountID, OutputIndex: outputIndex, Fingerprint: [32]byte(h)}, nil
}
