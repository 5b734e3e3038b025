// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package dng

import (
	"math"
	"strconv"
	"strings"

	"github.com/motioncam/mcrawfs/internal/bitpack"
	"github.com/motioncam/mcrawfs/internal/process"
	"github.com/motioncam/mcrawfs/internal/types"
)

// TIFF/DNG tag numbers used by the encoder (spec §4.6's tag set).
const (
	tagNewSubfileType          = 254
	tagImageWidth              = 256
	tagImageLength             = 257
	tagBitsPerSample           = 258
	tagCompression             = 259
	tagPhotometricInterp       = 262
	tagMake                    = 271
	tagModel                   = 272
	tagStripOffsets            = 273
	tagOrientation             = 274
	tagSamplesPerPixel         = 277
	tagRowsPerStrip            = 278
	tagStripByteCounts         = 279
	tagXResolution             = 282
	tagYResolution             = 283
	tagPlanarConfiguration     = 284
	tagResolutionUnit          = 296
	tagSoftware                = 305
	tagExposureTime            = 33434
	tagISOSpeedRatings         = 34855
	tagCFARepeatPatternDim     = 33421
	tagCFAPattern              = 33422
	tagDNGVersion              = 50706
	tagDNGBackwardVersion      = 50707
	tagUniqueCameraModel       = 50708
	tagCFALayout               = 50711
	tagLinearizationTable      = 50712
	tagBlackLevelRepeatDim     = 50713
	tagBlackLevel              = 50714
	tagWhiteLevel              = 50717
	tagColorMatrix1            = 50721
	tagColorMatrix2            = 50722
	tagCameraCalibration1      = 50723
	tagCameraCalibration2      = 50724
	tagAnalogBalance           = 50727
	tagAsShotNeutral           = 50728
	tagBaselineExposure        = 50730
	tagForwardMatrix1          = 50964
	tagForwardMatrix2          = 50965
	tagCalibrationIlluminant1  = 50778
	tagCalibrationIlluminant2  = 50779
	tagActiveArea              = 50829
	tagOpcodeList2             = 51009
	tagTimeCodes               = 51043
	tagFrameRate               = 51044
)

const (
	photometricCFA   = 32803
	compressionNone  = 1
	planarChunky     = 1
	resolutionInches = 2

	orientationNormal        = 1
	orientationMirror        = 2
	orientationRotate180     = 3
	orientationMirror180     = 4
	orientationMirror90CW    = 5
	orientationRotate90CW    = 6
	orientationMirror90CCW   = 7
	orientationRotate90CCW   = 8
)

// FrameContext carries everything from a container read beyond the
// processor result that the tag set needs.
type FrameContext struct {
	Meta     types.CameraFrameMetadata
	Config   types.CameraConfiguration
	Settings types.RenderSettings

	TimecodeFrames, TimecodeSeconds, TimecodeMinutes, TimecodeHours int
	BaselineExpValue                                                float64

	// TargetFps is the frame-rate planner's resolved output rate
	// (types.FrameRatePlan.TargetFps), written verbatim to the
	// FrameRate tag.
	TargetFps float64
}

// Encode renders one processed frame plus its container/metadata
// context into a complete DNG file (spec §4.6). The image strip is
// the caller-supplied bit-packed sample buffer (internal/bitpack's
// Pack output for result.PackBits).
func Encode(result process.Result, packed []byte, ctx FrameContext) []byte {
	fields := baseFields(result, ctx)

	if result.LinearizationTable != nil {
		fields = append(fields, shortField(tagLinearizationTable, result.LinearizationTable...))
	}

	if !result.ShadingApplied {
		if gm, ok := BuildGainMapOpcode(ctx.Meta, result.Width, result.Height, result.CropLeft, result.CropTop); ok {
			fields = append(fields, undefField(tagOpcodeList2, encodeOpcodeList2(gm)))
		}
	}

	// StripOffsets/StripByteCounts must be present (as placeholders)
	// before computing the strip's final offset, since their own IFD
	// entries shift everything that follows them.
	fields = append(fields, longField(tagStripOffsets, 0))
	fields = append(fields, longField(tagStripByteCounts, uint32(len(packed))))

	stripOffset := stripOffsetPlaceholder(fields)
	for i := range fields {
		if fields[i].tag == tagStripOffsets {
			fields[i] = longField(tagStripOffsets, stripOffset)
		}
	}

	return writeTIFF(fields, packed)
}

func baseFields(result process.Result, ctx FrameContext) []tiffField {
	cfaCount := result.CFAWide * result.CFAWide
	cfaBytes := make([]byte, cfaCount)
	for i, v := range result.CFA {
		cfaBytes[i] = byte(v)
	}

	make_, model := cameraMakeModel(ctx.Settings.CameraModel, ctx.Config.BuildModel)

	fields := []tiffField{
		longField(tagNewSubfileType, 0),
		longField(tagImageWidth, uint32(result.Width)),
		longField(tagImageLength, uint32(result.Height)),
		shortField(tagBitsPerSample, uint16(bitpack.BitsFor(bitpack.BitsNeeded(uint32(result.PackBits))))),
		shortField(tagCompression, compressionNone),
		shortField(tagPhotometricInterp, photometricCFA),
		asciiField(tagMake, make_),
		asciiField(tagModel, model),
		shortField(tagOrientation, uint16(orientation(ctx.Meta.Orientation, ctx.Config.Flipped))),
		shortField(tagSamplesPerPixel, 1),
		longField(tagRowsPerStrip, uint32(result.Height)),
		rationalField(tagXResolution, [2]uint32{300, 1}),
		rationalField(tagYResolution, [2]uint32{300, 1}),
		shortField(tagPlanarConfiguration, planarChunky),
		shortField(tagResolutionUnit, resolutionInches),
		asciiField(tagSoftware, "MotionCam Tools"),
		byteField(tagDNGVersion, []byte{1, 4, 0, 0}),
		byteField(tagDNGBackwardVersion, []byte{1, 1, 0, 0}),
		asciiField(tagUniqueCameraModel, model),
		shortField(tagCFALayout, 1),
		shortField(tagCFARepeatPatternDim, uint16(result.CFAWide), uint16(result.CFAWide)),
		byteField(tagCFAPattern, cfaBytes),
		shortField(tagBlackLevelRepeatDim, 2, 2),
		longField(tagBlackLevel, uint32(result.DstBlack[0]), uint32(result.DstBlack[1]), uint32(result.DstBlack[2]), uint32(result.DstBlack[3])),
		longField(tagWhiteLevel, uint32(result.DstWhite)),
		rationalField(tagExposureTime, [2]uint32{uint32(ctx.Meta.ExposureTimeNs), 1000000000}),
		shortField(tagISOSpeedRatings, uint16(ctx.Meta.ISO)),
		srationalField(tagBaselineExposure, [2]int32{int32(math.Round(baselineExposure(ctx) * 100)), 100}),
		longField(tagActiveArea, 0, 0, uint32(result.Height), uint32(result.Width)),
		rationalArray(tagAsShotNeutral, ctx.Meta.AsShotNeutral[:]),
		shortField(tagCalibrationIlluminant1, uint16(ctx.Config.ColorIlluminant1)),
		shortField(tagCalibrationIlluminant2, uint16(ctx.Config.ColorIlluminant2)),
		srationalArray(tagColorMatrix1, ctx.Config.ColorMatrix1[:]),
		srationalArray(tagColorMatrix2, ctx.Config.ColorMatrix2[:]),
		srationalArray(tagCameraCalibration1, identity3x3()),
		srationalArray(tagCameraCalibration2, identity3x3()),
		byteField(tagTimeCodes, timecodeBCD(ctx)),
		rationalField(tagFrameRate, [2]uint32{uint32(math.Round(ctx.TargetFps * 1000)), 1000}),
	}

	if !allZero(ctx.Config.ForwardMatrix1[:]) {
		fields = append(fields, srationalArray(tagForwardMatrix1, ctx.Config.ForwardMatrix1[:]))
	}
	if !allZero(ctx.Config.ForwardMatrix2[:]) {
		fields = append(fields, srationalArray(tagForwardMatrix2, ctx.Config.ForwardMatrix2[:]))
	}

	return fields
}

func rationalArray(tag uint16, vs []float64) tiffField {
	pairs := make([][2]uint32, len(vs))
	for i, v := range vs {
		n, d := toRational(v, 1000000)
		pairs[i] = [2]uint32{uint32(n), uint32(d)}
	}
	return rationalField(tag, pairs...)
}

func srationalArray(tag uint16, vs []float64) tiffField {
	pairs := make([][2]int32, len(vs))
	for i, v := range vs {
		n, d := toSRational(v, 1000000)
		pairs[i] = [2]int32{int32(n), int32(d)}
	}
	return srationalField(tag, pairs...)
}

func toRational(v float64, scale int64) (int64, int64) {
	if v < 0 {
		v = 0
	}
	return int64(math.Round(v * float64(scale))), scale
}

func toSRational(v float64, scale int64) (int64, int64) {
	return int64(math.Round(v * float64(scale))), scale
}

func identity3x3() []float64 {
	return []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func allZero(vs []float64) bool {
	for _, v := range vs {
		if v != 0 {
			return false
		}
	}
	return true
}

// cameraMakeModel resolves the UniqueCameraModel override table (spec
// §4.6): specific camera-model strings override Make/Model, any other
// non-empty override is used verbatim as the model, and an empty
// override falls back to the container's build model.
func cameraMakeModel(override, buildModel string) (make_, model string) {
	switch override {
	case "Panasonic":
		return "Panasonic", "Panasonic Varicam RAW"
	case "Blackmagic":
		return "Blackmagic Design", "Blackmagic Pocket Cinema Camera 4K"
	case "Fujifilm", "Fujifilm X-T5":
		return "Fujifilm", "Fujifilm X-T5"
	case "":
		return "", buildModel
	default:
		return "", override
	}
}

func orientation(o types.Orientation, flipped bool) int {
	switch o {
	case types.OrientationPortrait:
		if flipped {
			return orientationMirror90CW
		}
		return orientationRotate90CW
	case types.OrientationReversePortrait:
		if flipped {
			return orientationMirror90CCW
		}
		return orientationRotate90CCW
	case types.OrientationReverseLandscape:
		if flipped {
			return orientationMirror180
		}
		return orientationRotate180
	default: // LANDSCAPE
		if flipped {
			return orientationMirror
		}
		return orientationNormal
	}
}

// baselineExposure implements spec §4.6's BaselineExposure formula.
func baselineExposure(ctx FrameContext) float64 {
	offset := exposureOffset(ctx.Settings.CameraModel, ctx.Settings.ExposureCompensation)
	if !ctx.Settings.Options.Has(types.OptNormalizeExposure) {
		return offset
	}
	denom := ctx.Meta.ISO * (float64(ctx.Meta.ExposureTimeNs) / 1e9)
	if denom <= 0 || ctx.BaselineExpValue <= 0 {
		return offset
	}
	return math.Log2(ctx.BaselineExpValue/denom) + offset
}

func exposureOffset(cameraModel, exposureCompensation string) float64 {
	var base float64
	if cameraModel == "Panasonic" {
		base = -2.0
	}
	return base + parseExposureCompensation(exposureCompensation)
}

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

// timecodeBCD encodes a SMPTE BCD timecode: frames&0x3F, seconds&0x7F,
// minutes&0x7F, hours&0x3F, each packed as (v/10)<<4 | v%10 (spec
// §4.6).
func timecodeBCD(ctx FrameContext) []byte {
	toBCD := func(v int) byte {
		return byte((v/10)<<4 | v%10)
	}
	return []byte{
		toBCD(ctx.TimecodeFrames & 0x3F),
		toBCD(ctx.TimecodeSeconds & 0x7F),
		toBCD(ctx.TimecodeMinutes & 0x7F),
		toBCD(ctx.TimecodeHours & 0x3F),
	}
}
