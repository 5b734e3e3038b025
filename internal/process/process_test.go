// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"testing"

	"github.com/motioncam/mcrawfs/internal/types"
)

func solidFrame(w, h int, value uint16) []uint16 {
	raw := make([]uint16, w*h)
	for i := range raw {
		raw[i] = value
	}
	return raw
}

func baseMeta(w, h int) types.CameraFrameMetadata {
	return types.CameraFrameMetadata{
		OriginalWidth:     w,
		OriginalHeight:    h,
		Width:             w,
		Height:            h,
		DynamicBlackLevel: [4]float64{64, 64, 64, 64},
		DynamicWhiteLevel: 1023,
	}
}

func baseConfig() types.CameraConfiguration {
	return types.CameraConfiguration{
		SensorArrangement: types.SensorRGGB,
		BlackLevel:        [4]float64{64, 64, 64, 64},
		WhiteLevel:        1023,
	}
}

// A frame held at black level everywhere must remap to dst black
// everywhere, and a frame held at white level must remap to dst white
// everywhere (testable property 4 in spec §8, KeepInput-style
// identity at the extremes).
func TestProcessBlackAndWhiteIdentity(t *testing.T) {
	const w, h = 16, 16
	meta := baseMeta(w, h)
	config := baseConfig()
	settings := types.RenderSettings{Levels: "Static"}

	black := solidFrame(w, h, 64)
	res := Process(black, meta, config, settings)
	for i, v := range res.Samples {
		if v != 0 {
			t.Fatalf("sample %d: got %d, want 0 for an all-black input frame", i, v)
		}
	}

	white := solidFrame(w, h, 1023)
	res = Process(white, meta, config, settings)
	for i, v := range res.Samples {
		if int(v) != res.DstWhite {
			t.Fatalf("sample %d: got %d, want dst white %d for an all-white input frame", i, v, res.DstWhite)
		}
	}
}

func TestProcessStandardOutputDimsFloorToFour(t *testing.T) {
	meta := baseMeta(18, 18)
	config := baseConfig()
	settings := types.RenderSettings{Levels: "Static"}

	res := Process(solidFrame(18, 18, 500), meta, config, settings)
	if res.Width%4 != 0 || res.Height%4 != 0 {
		t.Fatalf("output dims %dx%d not floored to a multiple of 4", res.Width, res.Height)
	}
	if len(res.Samples) != res.Width*res.Height {
		t.Fatalf("sample count %d does not match %dx%d", len(res.Samples), res.Width, res.Height)
	}
}

func TestProcessQuadBayerUsesFourByFourLayout(t *testing.T) {
	const w, h = 32, 32
	meta := baseMeta(w, h)
	meta.NeedRemosaic = true
	config := baseConfig()
	settings := types.RenderSettings{Levels: "Static"}

	res := Process(solidFrame(w, h, 500), meta, config, settings)
	if res.CFAWide != 4 {
		t.Fatalf("CFAWide = %d, want 4 for a quad-Bayer frame at scale 1", res.CFAWide)
	}
	if len(res.CFA) != 16 {
		t.Fatalf("len(CFA) = %d, want 16", len(res.CFA))
	}
}

func TestProcessDraftHalvesOutputDims(t *testing.T) {
	const w, h = 64, 64
	meta := baseMeta(w, h)
	config := baseConfig()
	settings := types.RenderSettings{
		Options:    types.OptDraft,
		DraftScale: 2,
		Levels:     "Static",
	}

	res := Process(solidFrame(w, h, 500), meta, config, settings)
	if res.Width != w/2 || res.Height != h/2 {
		t.Fatalf("draft output dims = %dx%d, want %dx%d", res.Width, res.Height, w/2, h/2)
	}
}

func TestProcessLogTransformEmitsLinearizationTable(t *testing.T) {
	const w, h = 16, 16
	meta := baseMeta(w, h)
	config := baseConfig()
	settings := types.RenderSettings{
		Levels:       "Static",
		LogTransform: types.LogReduce4Bit,
	}

	res := Process(solidFrame(w, h, 500), meta, config, settings)
	if res.LinearizationTable == nil {
		t.Fatal("expected a linearization table for an active log transform")
	}
	if len(res.LinearizationTable) != res.PackBits+1 {
		t.Fatalf("linearization table length = %d, want %d", len(res.LinearizationTable), res.PackBits+1)
	}
	if res.LinearizationTable[0] != 0 {
		t.Fatalf("linearization table[0] = %d, want 0", res.LinearizationTable[0])
	}
	if res.LinearizationTable[len(res.LinearizationTable)-1] != 65535 {
		t.Fatalf("linearization table[last] = %d, want 65535", res.LinearizationTable[len(res.LinearizationTable)-1])
	}
	if res.DstWhite != 65534 || res.DstBlack != [4]int{0, 0, 0, 0} {
		t.Fatalf("DstBlack/DstWhite not overridden for the 16-bit table domain: got black=%v white=%d", res.DstBlack, res.DstWhite)
	}
}

func TestProcessKeepInputWithoutShadingSkipsTable(t *testing.T) {
	const w, h = 16, 16
	meta := baseMeta(w, h)
	config := baseConfig()
	settings := types.RenderSettings{
		Levels:       "Static",
		LogTransform: types.LogKeepInput,
	}

	res := Process(solidFrame(w, h, 500), meta, config, settings)
	if res.LinearizationTable != nil {
		t.Fatal("KeepInput without shading applied should not emit a linearization table (DESIGN.md Open Question 3)")
	}
}
