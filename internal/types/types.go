// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package types holds the data model shared across the mcrawfs core:
// the synthetic directory entry, the render-settings fingerprint
// domain, the per-frame and per-container metadata consumed from the
// container reader, and the computed frame-rate plan.
package types

// EntryType distinguishes a synthetic file from a synthetic directory
// in the virtual directory projection.
type EntryType int

const (
	EntryFile EntryType = iota
	EntryDir
)

func (t EntryType) String() string {
	if t == EntryDir {
		return "DIR"
	}
	return "FILE"
}

// Entry is a synthetic directory item published by a mount. Equality
// and hashing ignore Size: two entries with the same Type and path are
// the same entry regardless of the currently-published size.
type Entry struct {
	Type         EntryType
	PathSegments []string
	Name         string

	// Size is the entry's published size. For frame entries this is
	// the conservative typicalDngSize upper bound established by the
	// one-time probe (never the exact rendered size); for the audio
	// entry it is the exact byte length.
	Size int64
}

// Path joins PathSegments and Name with "/", matching the host path
// convention reported by the filesystem bridge.
func (e Entry) Path() string {
	path := ""
	for _, seg := range e.PathSegments {
		path += seg + "/"
	}
	return path + e.Name
}

// RenderOption is a bitset of feature toggles affecting how a frame is
// processed. Equal RenderSettings values (hence equal Options) must
// fingerprint identically — see lib/fingerprint.
type RenderOption uint32

const (
	OptDraft RenderOption = 1 << iota
	OptApplyVignetteCorrection
	OptNormalizeShadingMap
	OptDebugShadingMap
	OptVignetteOnlyColor
	OptNormalizeExposure
	OptFramerateConversion
	OptCropping
	OptCamModelOverride
	OptLogTransform
	OptInterpretAsQuadBayer
)

func (o RenderOption) Has(flag RenderOption) bool { return o&flag != 0 }

// CFRMode selects how the frame-rate planner derives a target constant
// frame rate from the source's median/average fps.
type CFRMode int

const (
	CFRPreferInteger CFRMode = iota
	CFRPreferDropFrame
	CFRMedianSlowMotion
	CFRAverageTesting
	CFRCustom
)

// CFRTarget configures the frame-rate planner's CFR derivation.
type CFRTarget struct {
	Mode        CFRMode `cbor:"mode"`
	CustomValue float64 `cbor:"custom_value"`
}

// LogTransformMode selects the optional log tone-mapping curve and its
// output bit-depth reduction.
type LogTransformMode int

const (
	LogDisabled LogTransformMode = iota
	LogKeepInput
	LogReduce2Bit
	LogReduce4Bit
	LogReduce6Bit
	LogReduce8Bit
)

// ReduceBits returns the bit-depth reduction for a Reduce{N}Bit
// variant, or 0 for modes that don't reduce bit depth.
func (m LogTransformMode) ReduceBits() int {
	switch m {
	case LogReduce2Bit:
		return 2
	case LogReduce4Bit:
		return 4
	case LogReduce6Bit:
		return 6
	case LogReduce8Bit:
		return 8
	default:
		return 0
	}
}

// QuadBayerMode selects how a quad-Bayer (4×4) sensor pattern is
// represented in the output DNG.
type QuadBayerMode int

const (
	QuadBayerRemosaic QuadBayerMode = iota
	QuadBayerWrongCFAMetadata
	QuadBayerCorrectQBCFAMetadata
)

// SensorArrangement is the physical 2×2 Bayer tiling of the sensor,
// read from the container's CameraConfiguration.
type SensorArrangement int

const (
	SensorRGGB SensorArrangement = iota
	SensorBGGR
	SensorGRBG
	SensorGBRG
)

// CFAPattern returns the 4-entry {top-left,top-right,bottom-left,
// bottom-right} channel-index pattern for the arrangement, using the
// 3-symbol scheme 0=R, 1=green (both Gr and Gb), 2=B. Both green
// positions share index 1: the DNG CFAPattern tag has no fourth color
// code for a Bayer sensor, and the shading-map channel lookup treats
// Gr/Gb as one plane.
func (s SensorArrangement) CFAPattern() [4]int {
	switch s {
	case SensorRGGB:
		return [4]int{0, 1, 1, 2}
	case SensorBGGR:
		return [4]int{2, 1, 1, 0}
	case SensorGRBG:
		return [4]int{1, 0, 2, 1}
	case SensorGBRG:
		return [4]int{1, 2, 0, 1}
	default:
		return [4]int{0, 1, 1, 2}
	}
}

// Orientation is the per-frame sensor-to-display rotation reported by
// the container.
type Orientation int

const (
	OrientationPortrait Orientation = iota
	OrientationReversePortrait
	OrientationLandscape
	OrientationReverseLandscape
)

// RenderSettings is the option-fingerprint domain: the full set of
// user-controlled knobs that determine the bytes of a produced DNG for
// a given source frame. Two RenderSettings that compare equal (field
// by field) must fingerprint identically — see lib/fingerprint.
type RenderSettings struct {
	Options               RenderOption `cbor:"options"`
	DraftScale            int          `cbor:"draft_scale"`
	CFRTarget             CFRTarget    `cbor:"cfr_target"`
	CropTarget            string       `cbor:"crop_target"`
	CameraModel           string       `cbor:"camera_model"`
	Levels                string       `cbor:"levels"`
	LogTransform          LogTransformMode `cbor:"log_transform"`
	ExposureCompensation  string       `cbor:"exposure_compensation"`
	QuadBayerOption       QuadBayerMode `cbor:"quad_bayer_option"`
}

// CameraFrameMetadata is per-frame metadata supplied by the container
// reader.
type CameraFrameMetadata struct {
	ISO                float64
	ExposureTimeNs      int64
	AsShotNeutral       [3]float64
	DynamicBlackLevel   [4]float64
	DynamicWhiteLevel   float64
	LensShadingMap      [][]float32 // per-plane, row-major H*W
	LensShadingMapW     int
	LensShadingMapH     int
	OriginalWidth       int
	OriginalHeight      int
	Width               int
	Height              int
	Orientation         Orientation
	NeedRemosaic        bool
	TimestampNs         int64
}

// CameraConfiguration is constant per mount, supplied once by the
// container reader.
type CameraConfiguration struct {
	SensorArrangement SensorArrangement
	BlackLevel        [4]float64
	WhiteLevel        float64
	ColorMatrix1      [9]float64
	ColorMatrix2      [9]float64
	ForwardMatrix1    [9]float64
	ForwardMatrix2    [9]float64
	ColorIlluminant1  int
	ColorIlluminant2  int
	Flipped           bool
	BuildModel        string
}

// FrameRatePlan is the per-mount output of the frame-rate planner
// (internal/framerate).
type FrameRatePlan struct {
	MedFps           float64
	AvgFps           float64
	TargetFps        float64
	TotalFrames      int
	DroppedFrames    int
	DuplicatedFrames int
	Width            int
	Height           int
	BaselineExpValue float64

	// SourceIndex maps output frame index to source frame index.
	SourceIndex []int
}
