// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package process

import "math"

// shadingMap is the per-frame lens-shading grid: up to 4 planes, each
// a row-major W*H grid of gains.
type shadingMap struct {
	planes [][]float32
	width  int
	height int
}

func (m shadingMap) valid() bool {
	return m.width > 0 && m.height > 0 && len(m.planes) > 0
}

// sample bilinearly samples channel's plane at normalized coordinates
// x,y in [0,1] (clamped), matching Utils.cpp's getShadingMapValue.
func (m shadingMap) sample(x, y float64, channel int) float32 {
	if !m.valid() || channel >= len(m.planes) {
		return 1.0
	}
	plane := m.planes[channel]

	x = clamp01(x)
	y = clamp01(y)

	mapX := x * float64(m.width-1)
	mapY := y * float64(m.height-1)

	x0 := int(math.Floor(mapX))
	y0 := int(math.Floor(mapY))
	x1 := min(x0+1, m.width-1)
	y1 := min(y0+1, m.height-1)

	wx := mapX - float64(x0)
	wy := mapY - float64(y0)

	val00 := float64(plane[y0*m.width+x0])
	val01 := float64(plane[y0*m.width+x1])
	val10 := float64(plane[y1*m.width+x0])
	val11 := float64(plane[y1*m.width+x1])

	top := val00*(1-wx) + val01*wx
	bottom := val10*(1-wx) + val11*wx
	return float32(top*(1-wy) + bottom*wy)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// prepareShadingMap applies the pre-processing steps of spec §4.4
// step 5 (vignette-only-color, normalize, debug invert) to a copy of
// raw, indexed by the 4-entry CFA channel pattern.
func prepareShadingMap(raw [][]float32, width, height int, cfa [4]int, vignetteOnlyColor, normalize, debugInvert bool) shadingMap {
	planes := make([][]float32, len(raw))
	for i, p := range raw {
		cp := make([]float32, len(p))
		copy(cp, p)
		planes[i] = cp
	}
	m := shadingMap{planes: planes, width: width, height: height}
	if !m.valid() {
		return m
	}

	if vignetteOnlyColor {
		applyVignetteOnlyColor(m, cfa)
	}
	if normalize {
		normalizeShadingMap(m)
	}
	if debugInvert {
		invertShadingMap(m)
	}
	return m
}

// applyVignetteOnlyColor divides each position's 4 channel gains by
// the per-position minimum of the two green channels (identified via
// cfa), removing the shared luminance/vignette component and leaving
// only per-channel color cast. Matches Utils.cpp's handling for the
// {R,Gr,Gb,B} and {B,Gb,Gr,R} CFA orderings by unifying the two green
// minima; for other orderings the channel-pair with value 1 (green)
// is treated the same way.
func applyVignetteOnlyColor(m shadingMap, cfa [4]int) {
	if len(m.planes) < 4 {
		return
	}
	greenA, greenB := -1, -1
	for idx, ch := range cfa {
		if ch == 1 {
			if greenA == -1 {
				greenA = idx
			} else {
				greenB = idx
			}
		}
	}
	if greenA == -1 || greenB == -1 {
		return
	}

	n := m.width * m.height
	for pos := 0; pos < n; pos++ {
		vals := [4]float32{
			m.planes[0][pos], m.planes[1][pos], m.planes[2][pos], m.planes[3][pos],
		}
		greenMin := vals[greenA]
		if vals[greenB] < greenMin {
			greenMin = vals[greenB]
		}
		minVal := vals[0]
		for _, v := range vals[1:] {
			if v < minVal {
				minVal = v
			}
		}
		_ = minVal
		if greenMin <= 0 {
			continue
		}
		for ch := 0; ch < 4; ch++ {
			m.planes[ch][pos] /= greenMin
		}
	}
}

func normalizeShadingMap(m shadingMap) {
	var maxVal float32
	for _, plane := range m.planes {
		for _, v := range plane {
			if v > maxVal {
				maxVal = v
			}
		}
	}
	if maxVal <= 0 {
		return
	}
	for _, plane := range m.planes {
		for i := range plane {
			plane[i] /= maxVal
		}
	}
}

func invertShadingMap(m shadingMap) {
	for _, plane := range m.planes {
		for i, v := range plane {
			if v <= 0 {
				continue
			}
			plane[i] = 1 / v
		}
	}
}
