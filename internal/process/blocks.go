// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"math"

	"github.com/motioncam/mcrawfs/internal/types"
)

// processStandardBlocks implements the 2x2-block remap loop (spec
// §4.4 steps 7; Utils.cpp's `cfaSize < 2 || scale > 1` branch): every
// standard (non-quad-Bayer) frame, and quad-Bayer frames downscaled
// by more than the block size.
func processStandardBlocks(
	raw []uint16, meta types.CameraFrameMetadata, cfa [4]int, settings types.RenderSettings,
	outW, outH, cfaSize, scale int,
	linear, srcBlack [4]float64, srcWhite float64,
	dstBlack [4]float64, dstWhite float64,
	sMap shadingMap, applyShading, debugShadingMap bool, crop cropRect,
) []uint16 {
	originalWidth := meta.OriginalWidth
	scaleX := 1.0 / float64(meta.OriginalWidth)
	scaleY := 1.0 / float64(meta.OriginalHeight)

	dst := make([]uint16, outW*outH)
	dstOffset := 0

	for y := 0; y < outH; y += 2 {
		for x := 0; x < outW; x += 2 {
			srcY := y * scale
			srcX := x * scale

			var s [4]float64
			if cfaSize == 2 && scale == 2 {
				s[0] = sum4(raw, originalWidth, srcY, srcX)
				s[1] = sum4(raw, originalWidth, srcY, srcX+2)
				s[2] = sum4(raw, originalWidth, srcY+2, srcX)
				s[3] = sum4(raw, originalWidth, srcY+2, srcX+2)
			} else {
				s[0] = float64(sampleAt(raw, originalWidth, srcY, srcX))
				s[1] = float64(sampleAt(raw, originalWidth, srcY, srcX+cfaSize))
				s[2] = float64(sampleAt(raw, originalWidth, srcY+cfaSize, srcX))
				s[3] = float64(sampleAt(raw, originalWidth, srcY+cfaSize, srcX+cfaSize))
			}

			var shadingVals [4]float32
			for i := range shadingVals {
				shadingVals[i] = 1.0
			}
			if applyShading {
				shadingVals[0] = sMap.sample(float64(srcX+crop.Left)*scaleX, float64(srcY+crop.Top)*scaleY, cfa[0])
				shadingVals[1] = sMap.sample(float64(srcX+crop.Left+scale)*scaleX, float64(srcY+crop.Top)*scaleY, cfa[1])
				shadingVals[2] = sMap.sample(float64(srcX+crop.Left)*scaleX, float64(srcY+crop.Top+scale)*scaleY, cfa[2])
				shadingVals[3] = sMap.sample(float64(srcX+crop.Left+scale)*scaleX, float64(srcY+crop.Top+scale)*scaleY, cfa[3])
			}

			var p [4]float64
			switch {
			case debugShadingMap:
				for i := 0; i < 4; i++ {
					p[i] = math.Max(0, linear[i]*(srcWhite-srcBlack[i])*float64(shadingVals[i])) * (dstWhite - dstBlack[i])
				}
			case settings.LogTransform == types.LogDisabled:
				for i := 0; i < 4; i++ {
					p[i] = math.Max(0, linear[i]*(s[i]-srcBlack[i])*float64(shadingVals[i])) * (dstWhite - dstBlack[i])
				}
			default:
				for i := 0; i < 4; i++ {
					logValue := math.Log2(1+60*math.Max(0, linear[i]*(s[i]-srcBlack[i])*float64(shadingVals[i]))) / math.Log2(61)
					p[i] = logValue*dstWhite + dither(x, y, i)
				}
			}

			for i := 0; i < 4; i++ {
				s[i] = clampRound(p[i]+dstBlack[i], 0, dstWhite)
			}

			dst[dstOffset] = uint16(s[0])
			dst[dstOffset+1] = uint16(s[1])
			dst[dstOffset+outW] = uint16(s[2])
			dst[dstOffset+outW+1] = uint16(s[3])

			dstOffset += 2
		}
		dstOffset += outW
	}

	return dst
}

// processQuadBayerBlocks implements the 4x4-block remap loop for
// quad-Bayer sources at scale==1 (Utils.cpp's else branch), excluding
// the experimental demosaic+remosaic path (DESIGN.md Open Question 1).
// The 16 source samples are remapped per-pixel and written back in
// the interleaved 4x4 order the encoder expects for
// SetCFARepeatPatternDim(4,4).
func processQuadBayerBlocks(
	raw []uint16, meta types.CameraFrameMetadata, cfa [4]int, settings types.RenderSettings,
	outW, outH int,
	linear, srcBlack [4]float64, srcWhite float64,
	dstBlack [4]float64, dstWhite float64,
	sMap shadingMap, applyShading bool, crop cropRect,
) ([]uint16, []int) {
	originalWidth := meta.OriginalWidth
	scaleX := 1.0 / float64(meta.OriginalWidth)
	scaleY := 1.0 / float64(meta.OriginalHeight)
	const cfaSize = 2

	dst := make([]uint16, outW*outH)
	dstOffset := 0

	for y := 0; y < outH; y += 4 {
		for x := 0; x < outW; x += 4 {
			srcY, srcX := y, x

			var s [16]float64
			idx := 0
			for _, dy := range [2]int{0, 1} {
				for _, dx := range [2]int{0, 1} {
					s[idx] = float64(sampleAt(raw, originalWidth, srcY+dy, srcX+dx))
					idx++
				}
			}
			for _, dy := range [2]int{0, 1} {
				for _, dx := range [2]int{2, 3} {
					s[idx] = float64(sampleAt(raw, originalWidth, srcY+dy, srcX+dx))
					idx++
				}
			}
			for _, dy := range [2]int{2, 3} {
				for _, dx := range [2]int{0, 1} {
					s[idx] = float64(sampleAt(raw, originalWidth, srcY+dy, srcX+dx))
					idx++
				}
			}
			for _, dy := range [2]int{2, 3} {
				for _, dx := range [2]int{2, 3} {
					s[idx] = float64(sampleAt(raw, originalWidth, srcY+dy, srcX+dx))
					idx++
				}
			}

			var shadingVals [16]float32
			for i := range shadingVals {
				shadingVals[i] = 1.0
			}
			if applyShading {
				shadingVals[0] = sMap.sample(float64(srcX+crop.Left)*scaleX, float64(srcY+crop.Top)*scaleY, 0)
				shadingVals[1] = sMap.sample(float64(srcX+crop.Left+1)*scaleX, float64(srcY+crop.Top)*scaleY, 0)
				shadingVals[2] = sMap.sample(float64(srcX+crop.Left)*scaleX, float64(srcY+crop.Top+1)*scaleY, 0)
				shadingVals[3] = sMap.sample(float64(srcX+crop.Left+1)*scaleX, float64(srcY+crop.Top+1)*scaleY, 0)
				shadingVals[4] = sMap.sample(float64(srcX+crop.Left+cfaSize*2)*scaleX, float64(srcY+crop.Top)*scaleY, 1)
				shadingVals[5] = sMap.sample(float64(srcX+crop.Left+cfaSize*2+1)*scaleX, float64(srcY+crop.Top)*scaleY, 1)
				shadingVals[6] = sMap.sample(float64(srcX+crop.Left+cfaSize*2)*scaleX, float64(srcY+crop.Top+1)*scaleY, 1)
				shadingVals[7] = sMap.sample(float64(srcX+crop.Left+cfaSize*2+1)*scaleX, float64(srcY+crop.Top+1)*scaleY, 1)
				shadingVals[8] = sMap.sample(float64(srcX+crop.Left)*scaleX, float64(srcY+crop.Top+cfaSize*2)*scaleY, 2)
				shadingVals[9] = sMap.sample(float64(srcX+crop.Left+1)*scaleX, float64(srcY+crop.Top+cfaSize*2)*scaleY, 2)
				shadingVals[10] = sMap.sample(float64(srcX+crop.Left)*scaleX, float64(srcY+crop.Top+cfaSize*2+1)*scaleY, 2)
				shadingVals[11] = sMap.sample(float64(srcX+crop.Left+1)*scaleX, float64(srcY+crop.Top+cfaSize*2+1)*scaleY, 2)
				shadingVals[12] = sMap.sample(float64(srcX+crop.Left+cfaSize*2)*scaleX, float64(srcY+crop.Top+cfaSize*2)*scaleY, 3)
				shadingVals[13] = sMap.sample(float64(srcX+crop.Left+cfaSize*2+1)*scaleX, float64(srcY+crop.Top+cfaSize*2)*scaleY, 3)
				shadingVals[14] = sMap.sample(float64(srcX+crop.Left+cfaSize*2)*scaleX, float64(srcY+crop.Top+cfaSize*2+1)*scaleY, 3)
				shadingVals[15] = sMap.sample(float64(srcX+crop.Left+cfaSize*2+1)*scaleX, float64(srcY+crop.Top+cfaSize*2+1)*scaleY, 3)
			}

			var p [16]float64
			for i := 0; i < 16; i++ {
				p[i] = linear[i%4] * (s[i] - srcBlack[i%4]) * float64(shadingVals[i])
			}

			if settings.LogTransform == types.LogDisabled {
				for i := 0; i < 16; i++ {
					p[i] = math.Max(0, p[i]*(dstWhite-dstBlack[i%4]))
				}
			} else {
				for i := 0; i < 16; i++ {
					logValue := math.Log2(1+60*math.Max(0, p[i])) / math.Log2(61)
					p[i] = logValue*dstWhite + dither(x, y, i%4)
				}
			}

			for i := 0; i < 16; i++ {
				s[i] = clampRound(p[i]+dstBlack[i%4], 0, dstWhite)
			}

			dst[dstOffset] = uint16(s[0])
			dst[dstOffset+1] = uint16(s[1])
			dst[dstOffset+outW] = uint16(s[2])
			dst[dstOffset+outW+1] = uint16(s[3])
			dst[dstOffset+2] = uint16(s[4])
			dst[dstOffset+3] = uint16(s[5])
			dst[dstOffset+outW+2] = uint16(s[6])
			dst[dstOffset+outW+3] = uint16(s[7])
			dst[dstOffset+outW*2] = uint16(s[8])
			dst[dstOffset+outW*2+1] = uint16(s[9])
			dst[dstOffset+outW*3] = uint16(s[10])
			dst[dstOffset+outW*3+1] = uint16(s[11])
			dst[dstOffset+outW*2+2] = uint16(s[12])
			dst[dstOffset+outW*2+3] = uint16(s[13])
			dst[dstOffset+outW*3+2] = uint16(s[14])
			dst[dstOffset+outW*3+3] = uint16(s[15])

			dstOffset += 2 * cfaSize
		}
		dstOffset += outW * 3
	}

	// The DNG CFAPattern for a 4x4 quad-Bayer layout repeats each
	// channel across its 2x2 sub-block.
	pattern := make([]int, 16)
	for py := 0; py < 4; py++ {
		for px := 0; px < 4; px++ {
			blockIdx := (py/2)*2 + (px / 2)
			pattern[py*4+px] = cfa[blockIdx]
		}
	}

	return dst, pattern
}

func sum4(raw []uint16, stride, y, x int) float64 {
	return float64(sampleAt(raw, stride, y, x)) +
		float64(sampleAt(raw, stride, y, x+1)) +
		float64(sampleAt(raw, stride, y+1, x)) +
		float64(sampleAt(raw, stride, y+1, x+1))
}

func sampleAt(raw []uint16, stride, y, x int) uint16 {
	idx := y*stride + x
	if idx < 0 || idx >= len(raw) {
		return 0
	}
	return raw[idx]
}

func clampRound(v, lo, hi float64) float64 {
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
