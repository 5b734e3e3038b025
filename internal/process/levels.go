// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"strconv"
	"strings"
)

// cropRect is an active-area rectangle in original-sensor coordinates.
type cropRect struct {
	Left, Top, Width, Height int
}

// resolveCrop parses cropTarget as "WxH"; if valid and no larger than
// the frame, the active area is that centered sub-rectangle of the
// original sensor area. Malformed or oversized values fall back to
// the full current frame centered in the original sensor area
// (spec §4.4 step 2, §7: cropTarget parse failures are non-fatal).
func resolveCrop(cropTarget string, cropping bool, origW, origH, frameW, frameH int) cropRect {
	if cropping {
		if w, h, ok := parseWxH(cropTarget); ok && w <= frameW && h <= frameH {
			return cropRect{
				Left:   (origW - w) / 2,
				Top:    (origH - h) / 2,
				Width:  w,
				Height: h,
			}
		}
	}
	return cropRect{
		Left:   (origW - frameW) / 2,
		Top:    (origH - frameH) / 2,
		Width:  frameW,
		Height: frameH,
	}
}

func parseWxH(s string) (w, h int, ok bool) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	wVal, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || wVal <= 0 {
		return 0, 0, false
	}
	hVal, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || hVal <= 0 {
		return 0, 0, false
	}
	return wVal, hVal, true
}

// resolveDraftScale returns the integer downscale factor: draftScale
// rounded down to the nearest even number (minimum 2) when draft is
// requested, otherwise 1.
func resolveDraftScale(draft bool, draftScale int) int {
	if !draft {
		return 1
	}
	scale := draftScale
	if scale < 2 {
		scale = 2
	}
	if scale%2 != 0 {
		scale--
	}
	return scale
}

// outputDims returns the output dimensions for a crop of size
// (cropW, cropH) downscaled by scale, each floored to a multiple of 4
// (spec §4.4 step 3).
func outputDims(cropW, cropH, scale int) (w, h int) {
	w = (cropW / scale) &^ 3
	h = (cropH / scale) &^ 3
	return w, h
}

// levels is the resolved black/white level set for one frame.
type levels struct {
	Black [4]float64
	White float64
}

// resolveLevels resolves the "Dynamic"/"Static"/"WHITE/BLACK[,...]"
// levels string against per-frame and per-mount defaults (spec §4.4
// step 4). Unparsable custom values fall back to dynamic (per-frame)
// levels, matching the non-fatal parse-failure policy of spec §7.
func resolveLevels(spec string, dynamicBlack [4]float64, dynamicWhite float64, staticBlack [4]float64, staticWhite float64) levels {
	switch spec {
	case "", "Dynamic":
		return levels{Black: dynamicBlack, White: dynamicWhite}
	case "Static":
		return levels{Black: staticBlack, White: staticWhite}
	}

	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return levels{Black: dynamicBlack, White: dynamicWhite}
	}
	white, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return levels{Black: dynamicBlack, White: dynamicWhite}
	}

	blackParts := strings.Split(parts[1], ",")
	var black [4]float64
	first, err := strconv.ParseFloat(strings.TrimSpace(blackParts[0]), 64)
	if err != nil {
		return levels{Black: dynamicBlack, White: dynamicWhite}
	}
	for i := range black {
		black[i] = first
	}
	for i := 1; i < len(blackParts) && i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(blackParts[i]), 64)
		if err != nil {
			return levels{Black: dynamicBlack, White: dynamicWhite}
		}
		black[i] = v
	}

	return levels{Black: black, White: white}
}

// parseExposureCompensation parses a string of the form "<float>ev".
// Unparsable values contribute zero, matching spec §4.6's
// exposureOffset policy.
func parseExposureCompensation(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "ev")
	s = strings.TrimSuffix(s, "EV")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
