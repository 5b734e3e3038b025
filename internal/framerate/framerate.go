// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package framerate computes the frame-rate plan: median/average fps,
// the target constant frame rate, and the output→source frame index
// mapping that synthesizes CFR from a variable-cadence source.
package framerate

import (
	"fmt"
	"math"
	"sort"

	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/lib/errs"
)

// broadcastRates are the candidate rates for CFRPreferDropFrame,
// paired with the nearest-integer rate that selects them.
var broadcastRates = []struct {
	integer    int
	dropFrame  float64
	wholeFrame float64
}{
	{24, 23.976, 24},
	{30, 29.97, 30},
	{60, 59.94, 60},
}

// FrameMeta is the minimal per-frame input the planner needs: its ISO,
// exposure time, and capture timestamp.
type FrameMeta struct {
	ISO           float64
	ExposureTimeNs int64
	TimestampNs   int64
}

// Plan computes the FrameRatePlan for a container whose frames are
// described by metas (in source order, not necessarily sorted by
// time). width/height are the frame's output dimensions, copied
// through to the plan. Fails with errs.ErrInvalidContainer if fewer
// than two frames are given or timestamps are non-monotonic after
// sorting equal-valued runs are allowed, but strictly decreasing
// values after sort are not possible by construction).
func Plan(metas []FrameMeta, settings types.RenderSettings, width, height int) (*types.FrameRatePlan, error) {
	if len(metas) < 2 {
		return nil, fmt.Errorf("framerate: %w: need at least 2 frames, got %d", errs.ErrInvalidContainer, len(metas))
	}

	sorted := make([]FrameMeta, len(metas))
	copy(sorted, metas)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampNs < sorted[j].TimestampNs })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].TimestampNs < sorted[i-1].TimestampNs {
			return nil, fmt.Errorf("framerate: %w: timestamps non-monotonic after sort", errs.ErrInvalidContainer)
		}
	}

	medFps, err := medianFps(sorted)
	if err != nil {
		return nil, err
	}
	avgFps := averageFps(sorted)

	target := medFps
	if settings.Options.Has(types.OptFramerateConversion) {
		target = resolveTarget(medFps, avgFps, settings.CFRTarget)
	}

	sourceIndex, dropped, duplicated := buildIndex(sorted, target)

	baseline := baselineExposure(sorted)

	return &types.FrameRatePlan{
		MedFps:           medFps,
		AvgFps:           avgFps,
		TargetFps:        target,
		TotalFrames:      len(sourceIndex),
		DroppedFrames:    dropped,
		DuplicatedFrames: duplicated,
		Width:            width,
		Height:           height,
		BaselineExpValue: baseline,
		SourceIndex:      sourceIndex,
	}, nil
}

func medianFps(sorted []FrameMeta) (float64, error) {
	deltas := interFrameDeltasSec(sorted)
	if len(deltas) == 0 {
		return 0, fmt.Errorf("framerate: %w: no inter-frame deltas", errs.ErrInvalidContainer)
	}
	sortedDeltas := append([]float64(nil), deltas...)
	sort.Float64s(sortedDeltas)
	med := median(sortedDeltas)
	if med <= 0 {
		return 0, fmt.Errorf("framerate: %w: non-positive median delta", errs.ErrInvalidContainer)
	}
	return 1.0 / med, nil
}

func averageFps(sorted []FrameMeta) float64 {
	deltas := interFrameDeltasSec(sorted)
	sum := 0.0
	for _, d := range deltas {
		sum += d
	}
	mean := sum / float64(len(deltas))
	if mean <= 0 {
		return 0
	}
	return 1.0 / mean
}

func interFrameDeltasSec(sorted []FrameMeta) []float64 {
	deltas := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		deltaNs := sorted[i].TimestampNs - sorted[i-1].TimestampNs
		deltas = append(deltas, float64(deltaNs)/1e9)
	}
	return deltas
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func baselineExposure(sorted []FrameMeta) float64 {
	values := make([]float64, len(sorted))
	for i, m := range sorted {
		values[i] = m.ISO * (float64(m.ExposureTimeNs) / 1e9)
	}
	sort.Float64s(values)
	return median(values)
}

// resolveTarget maps medFps/avgFps to a target CFR per the requested
// CFRTarget mode.
func resolveTarget(medFps, avgFps float64, target types.CFRTarget) float64 {
	switch target.Mode {
	case types.CFRPreferInteger:
		return math.Round(medFps)
	case types.CFRPreferDropFrame:
		return nearestBroadcastRate(medFps)
	case types.CFRMedianSlowMotion:
		return math.Floor(medFps)
	case types.CFRAverageTesting:
		return avgFps
	case types.CFRCustom:
		return target.CustomValue
	default:
		return medFps
	}
}

// nearestBroadcastRate rounds medFps to the nearest broadcast rate in
// {23.976, 24, 25, 29.97, 30, 50, 59.94, 60}. For the 24/30/60 family,
// the drop-frame variant is selected when medFps lies below the
// integer candidate.
func nearestBroadcastRate(medFps float64) float64 {
	nearestInt := math.Round(medFps)

	for _, r := range broadcastRates {
		if float64(r.integer) == nearestInt {
			if medFps < float64(r.integer) {
				return r.dropFrame
			}
			return r.wholeFrame
		}
	}

	// Otherwise pick the closest rate in the full broadcast set (25 and
	// 50 have no drop-frame variant).
	candidates := []float64{23.976, 24, 25, 29.97, 30, 50, 59.94, 60}
	best := candidates[0]
	bestDist := math.Abs(medFps - best)
	for _, c := range candidates[1:] {
		if d := math.Abs(medFps - c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// buildIndex constructs the output→source frame index mapping: for
// each output slot at time k/targetFps, pick the source frame whose
// timestamp is closest. Contiguous repeats count as duplications;
// skipped source frames count as drops.
func buildIndex(sorted []FrameMeta, targetFps float64) (index []int, dropped, duplicated int) {
	if targetFps <= 0 || len(sorted) == 0 {
		index = make([]int, len(sorted))
		for i := range index {
			index[i] = i
		}
		return index, 0, 0
	}

	durationSec := float64(sorted[len(sorted)-1].TimestampNs-sorted[0].TimestampNs) / 1e9
	numOutput := int(math.Round(durationSec*targetFps)) + 1
	if numOutput < 1 {
		numOutput = 1
	}

	startNs := sorted[0].TimestampNs
	index = make([]int, numOutput)

	srcPos := 0
	for k := 0; k < numOutput; k++ {
		targetNs := startNs + int64(float64(k)/targetFps*1e9)
		for srcPos < len(sorted)-1 &&
			absInt64(sorted[srcPos+1].TimestampNs-targetNs) <= absInt64(sorted[srcPos].TimestampNs-targetNs) {
			srcPos++
		}
		index[k] = srcPos
	}

	maxSeen := 0
	for k, src := range index {
		if k > 0 && src == index[k-1] {
			duplicated++
		}
		if src > maxSeen {
			if src-maxSeen > 1 {
				dropped += src - maxSeen - 1
			}
			maxSeen = src
		}
	}
	return index, dropped, duplicated
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
