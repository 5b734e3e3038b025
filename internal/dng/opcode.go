// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package dng

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/motioncam/mcrawfs/internal/types"
)

// gainMapOpcode is the DNG OpcodeList "GainMap" (opcode ID 9)
// descriptor, spec §4.6/§4.9.
type gainMapOpcode struct {
	top, left, bottom, right     uint32
	plane, planes                uint32
	rowPitch, colPitch           uint32
	mapPointsV, mapPointsH       uint32
	mapSpacingV, mapSpacingH     float64
	mapOriginV, mapOriginH       float64
	mapGains                     []float32 // plane-major, row-major within each plane
}

// BuildGainMapOpcode implements C9: a pure function from
// (metadata.lensShadingMap, dims, crop offset) to a GainMap
// descriptor. Returns ok=false when the map is missing, any dimension
// is zero, or the gain data doesn't match points_v*points_h*planes
// (spec §4.9).
func BuildGainMapOpcode(meta types.CameraFrameMetadata, imageWidth, imageHeight, cropLeft, cropTop int) (gainMapOpcode, bool) {
	planes := len(meta.LensShadingMap)
	pointsV, pointsH := meta.LensShadingMapH, meta.LensShadingMapW
	if planes == 0 || pointsV <= 0 || pointsH <= 0 || imageWidth <= 0 || imageHeight <= 0 {
		return gainMapOpcode{}, false
	}

	gains := make([]float32, 0, planes*pointsV*pointsH)
	for _, plane := range meta.LensShadingMap {
		if len(plane) != pointsV*pointsH {
			return gainMapOpcode{}, false
		}
		for _, g := range plane {
			gains = append(gains, clampGain(g))
		}
	}
	if len(gains) != planes*pointsV*pointsH {
		return gainMapOpcode{}, false
	}

	rowPitch := pitchOf(imageHeight, pointsV)
	colPitch := pitchOf(imageWidth, pointsH)

	return gainMapOpcode{
		top: uint32(cropTop), left: uint32(cropLeft),
		bottom: uint32(cropTop + imageHeight), right: uint32(cropLeft + imageWidth),
		plane: 0, planes: uint32(planes),
		rowPitch: rowPitch, colPitch: colPitch,
		mapPointsV: uint32(pointsV), mapPointsH: uint32(pointsH),
		mapSpacingV: float64(rowPitch) / float64(imageHeight),
		mapSpacingH: float64(colPitch) / float64(imageWidth),
		mapOriginV:  float64(max(0, cropTop)) / float64(imageHeight),
		mapOriginH:  float64(max(0, cropLeft)) / float64(imageWidth),
		mapGains:    gains,
	}, true
}

// pitchOf implements spec §4.6's "max(1, (imageRows-1)/(points-1))"
// pitch formula, falling back to the full image extent when there is
// only one sample point.
func pitchOf(imageExtent, points int) uint32 {
	if points <= 1 {
		return uint32(imageExtent)
	}
	pitch := (imageExtent - 1) / (points - 1)
	if pitch < 1 {
		pitch = 1
	}
	return uint32(pitch)
}

func clampGain(g float32) float32 {
	if math.IsNaN(float64(g)) || math.IsInf(float64(g), 0) || g <= 0 {
		return 1
	}
	if g > 16 {
		return 16
	}
	return g
}

// encodeOpcodeList2 serializes one GainMap opcode into the DNG
// OpcodeList binary format: a big-endian uint32 opcode count followed
// by, per opcode, {id(4) version(4) flags(4) paramLen(4) params...}.
// GainMap's own parameter layout (DNG spec table): Top/Left/Bottom/
// Right/Plane/Planes/RowPitch/ColPitch (uint32 each), MapPointsV/H
// (uint32), MapSpacingV/H, MapOriginV/H (double each), MapPlanes
// (uint32, repeated as "Planes"), then the gain values as
// big-endian float32, plane-major row-major.
func encodeOpcodeList2(gm gainMapOpcode) []byte {
	const opcodeIDGainMap = 9
	const opcodeVersion = 0x01010000

	params := &bytes.Buffer{}
	for _, v := range []uint32{gm.top, gm.left, gm.bottom, gm.right, gm.plane, gm.planes, gm.rowPitch, gm.colPitch, gm.mapPointsV, gm.mapPointsH} {
		binary.Write(params, binary.BigEndian, v)
	}
	for _, v := range []float64{gm.mapSpacingV, gm.mapSpacingH, gm.mapOriginV, gm.mapOriginH} {
		binary.Write(params, binary.BigEndian, v)
	}
	binary.Write(params, binary.BigEndian, gm.planes)
	for _, g := range gm.mapGains {
		binary.Write(params, binary.BigEndian, g)
	}

	out := &bytes.Buffer{}
	binary.Write(out, binary.BigEndian, uint32(1)) // one opcode in this list
	binary.Write(out, binary.BigEndian, uint32(opcodeIDGainMap))
	binary.Write(out, binary.BigEndian, uint32(opcodeVersion))
	binary.Write(out, binary.BigEndian, uint32(0)) // flags: not optional
	binary.Write(out, binary.BigEndian, uint32(params.Len()))
	out.Write(params.Bytes())

	return out.Bytes()
}
