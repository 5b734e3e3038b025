// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package process implements the frame processor (spec component C3):
// black/white level remap, lens-shading apply-or-defer, optional log
// tone mapping with deterministic dither, downscale, crop, and
// quad-Bayer block layout. Grounded on
// _examples/original_source/src/Utils.cpp's per-pixel remap loop; the
// package excludes that file's commented-out demosaic+remosaic
// interpolation experiment (see DESIGN.md Open Question 1).
package process

import (
	"math"

	"github.com/motioncam/mcrawfs/internal/bitpack"
	"github.com/motioncam/mcrawfs/internal/types"
)

// Result is the frame processor's output: 16-bit domain samples ready
// for bit-packing, plus everything the DNG encoder needs to describe
// them.
type Result struct {
	Samples  []uint16
	Width    int
	Height   int
	CFAWide  int // 2 (standard Bayer) or 4 (quad-Bayer block layout)
	CFA      []int // len 4 or len 16, DNG CFAPattern channel indices
	DstBlack [4]int
	DstWhite int

	// PackBits is the quantized pixel domain's max value (not a bit
	// count): callers select the packing depth with
	// bitpack.BitsFor(bitpack.BitsNeeded(PackBits)). Equal
	// to DstWhite, except when a linearization table overrides
	// DstWhite to describe the expanded 16-bit domain instead.
	PackBits int

	// CropLeft/CropTop are the active-area offsets in original-sensor
	// coordinates, needed by the shading-map opcode builder (C9) when
	// shading is deferred to an opcode rather than applied here.
	CropLeft int
	CropTop  int

	// ShadingApplied is true when lens-shading gains were baked into
	// Samples; false means the caller must emit an opcode list
	// instead (spec §4.6 "Opcode list 2").
	ShadingApplied bool

	// LinearizationTable is non-nil when a log transform requires a
	// linearization curve (spec §4.6); its length is PackBits+1 (one
	// entry per quantized sample value).
	LinearizationTable []uint16
}

// Process runs the frame processor over one raw Bayer frame.
func Process(raw []uint16, meta types.CameraFrameMetadata, config types.CameraConfiguration, settings types.RenderSettings) Result {
	cfaBase := config.SensorArrangement.CFAPattern()
	quadBayer := settings.Options.Has(types.OptInterpretAsQuadBayer) || meta.NeedRemosaic
	cfaSize := 1
	if quadBayer {
		cfaSize = 2
	}

	crop := resolveCrop(settings.CropTarget, settings.Options.Has(types.OptCropping), meta.OriginalWidth, meta.OriginalHeight, meta.Width, meta.Height)
	scale := resolveDraftScale(settings.Options.Has(types.OptDraft), settings.DraftScale)
	outW, outH := outputDims(crop.Width, crop.Height, scale)
	if outW <= 0 {
		outW = 4
	}
	if outH <= 0 {
		outH = 4
	}

	lv := resolveLevels(settings.Levels, meta.DynamicBlackLevel, meta.DynamicWhiteLevel, config.BlackLevel, config.WhiteLevel)
	srcBlack := lv.Black
	srcWhite := lv.White
	if quadBayer && scale == 2 {
		srcWhite *= 4
		for i := range srcBlack {
			srcBlack[i] *= 4
		}
	}

	applyShading := settings.Options.Has(types.OptApplyVignetteCorrection)
	debugShadingMap := settings.Options.Has(types.OptDebugShadingMap)
	sMap := prepareShadingMap(meta.LensShadingMap, meta.LensShadingMapW, meta.LensShadingMapH, cfaBase,
		settings.Options.Has(types.OptVignetteOnlyColor), settings.Options.Has(types.OptNormalizeShadingMap), debugShadingMap)

	dstBlack, dstWhite := resolveDstLevels(settings, applyShading, srcWhite)

	linear := [4]float64{}
	for i := 0; i < 4; i++ {
		denom := srcWhite - srcBlack[i]
		if denom == 0 {
			linear[i] = 0
		} else {
			linear[i] = 1.0 / denom
		}
	}

	var samples []uint16
	var effectiveCFA []int
	var cfaWide int

	if cfaSize == 2 && scale == 1 {
		samples, effectiveCFA = processQuadBayerBlocks(raw, meta, cfaBase, settings, outW, outH, linear, srcBlack, srcWhite,
			dstBlack, dstWhite, sMap, applyShading, crop)
		cfaWide = 4
	} else {
		samples = processStandardBlocks(raw, meta, cfaBase, settings, outW, outH, cfaSize, scale, linear, srcBlack, srcWhite,
			dstBlack, dstWhite, sMap, applyShading, debugShadingMap, crop)
		effectiveCFA = cfaBase[:]
		cfaWide = 2
	}

	result := Result{
		Samples:        samples,
		Width:          outW,
		Height:         outH,
		CFAWide:        cfaWide,
		CFA:            effectiveCFA,
		PackBits:       int(dstWhite),
		DstBlack:       [4]int{int(dstBlack[0]), int(dstBlack[1]), int(dstBlack[2]), int(dstBlack[3])},
		DstWhite:       int(dstWhite),
		CropLeft:       crop.Left,
		CropTop:        crop.Top,
		ShadingApplied: applyShading,
	}

	if needsLinearizationTable(settings.LogTransform, applyShading) {
		result.LinearizationTable = buildLinearizationTable(int(dstWhite))
		// The linearization table expands quantized samples into the
		// 16-bit domain before white balance; the declared DNG
		// BlackLevel/WhiteLevel describe that expanded domain, not
		// the packed pixel range (spec §4.6).
		result.DstBlack = [4]int{0, 0, 0, 0}
		result.DstWhite = 65534
	}

	return result
}

// resolveDstLevels implements spec §4.4 step 6: the destination
// bit-range selection. dstBlack/dstWhite are expressed in the 16-bit
// sample domain the processor emits before bit-packing.
func resolveDstLevels(settings types.RenderSettings, applyShading bool, srcWhite float64) (dstBlack [4]float64, dstWhite float64) {
	logActive := settings.LogTransform != types.LogDisabled
	normalizeShading := settings.Options.Has(types.OptNormalizeShadingMap)

	if !applyShading && !logActive {
		return [4]float64{}, srcWhite
	}

	srcBits := bitpack.BitsNeeded(uint32(srcWhite))
	var useBits int
	switch {
	case normalizeShading && applyShading:
		useBits = min(16, srcBits+4)
	case settings.LogTransform == types.LogKeepInput:
		useBits = srcBits
	case settings.LogTransform.ReduceBits() > 0:
		useBits = srcBits - settings.LogTransform.ReduceBits()
		if useBits > 16 {
			useBits = 16
		}
	case applyShading:
		useBits = srcBits + 2
	default:
		// Log transform active, shading not applied, not KeepInput:
		// still needs an output range (spec step 6 gates on "shading
		// applied OR log active"); fall back to the +2 bit headroom.
		useBits = srcBits + 2
	}
	if useBits < 1 {
		useBits = 1
	}

	dstWhite = math.Pow(2, float64(useBits)) - 1
	return [4]float64{}, dstWhite
}

func needsLinearizationTable(logTransform types.LogTransformMode, applyShading bool) bool {
	if logTransform == types.LogDisabled {
		return false
	}
	if logTransform == types.LogKeepInput && !applyShading {
		return false
	}
	return true
}

// buildLinearizationTable builds the inverse-log curve of spec §4.6.
// Size is dstWhite+1; table[0]=0 and table[last]=65535 are forced.
func buildLinearizationTable(dstWhite int) []uint16 {
	if dstWhite < 1 {
		dstWhite = 1
	}
	table := make([]uint16, dstWhite+1)
	log61 := math.Log2(61)
	for i := range table {
		linear := (math.Pow(2, float64(i)/float64(dstWhite)*log61) - 1) / 60
		if linear < 0 {
			linear = 0
		}
		if linear > 1 {
			linear = 1
		}
		table[i] = uint16(math.Round(linear * 65535))
	}
	table[0] = 0
	table[len(table)-1] = 65535
	return table
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
