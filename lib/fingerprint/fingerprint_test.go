// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"strings"
	"testing"

	"github.com/motioncam/mcrawfs/internal/types"
)

func sample() types.RenderSettings {
	return types.RenderSettings{
		Options:              types.OptApplyVignetteCorrection | types.OptLogTransform,
		DraftScale:           2,
		CFRTarget:            types.CFRTarget{Mode: types.CFRPreferDropFrame},
		CameraModel:          "Panasonic",
		Levels:               "Dynamic",
		LogTransform:         types.LogReduce4Bit,
		ExposureCompensation: "0.5ev",
		QuadBayerOption:      types.QuadBayerCorrectQBCFAMetadata,
	}
}

func TestRenderSettingsDeterministic(t *testing.T) {
	a, err := RenderSettings(sample())
	if err != nil {
		t.Fatalf("RenderSettings: %v", err)
	}
	b, err := RenderSettings(sample())
	if err != nil {
		t.Fatalf("RenderSettings: %v", err)
	}
	if a != b {
		t.Errorf("fingerprint not deterministic: %s != %s", a, b)
	}
}

func TestRenderSettingsDistinguishesFields(t *testing.T) {
	base := sample()
	changed := sample()
	changed.DraftScale = 4

	a, err := RenderSettings(base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RenderSettings(changed)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("changing DraftScale did not change the fingerprint")
	}
}

func TestSourceDistinguishesContentAndIsDeterministic(t *testing.T) {
	a, err := Source(strings.NewReader("mcraw-content-a"))
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	aAgain, err := Source(strings.NewReader("mcraw-content-a"))
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if a != aAgain {
		t.Errorf("Source not deterministic: %s != %s", a, aAgain)
	}

	b, err := Source(strings.NewReader("mcraw-content-b"))
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if a == b {
		t.Error("different file contents produced the same fingerprint")
	}
}

func TestSourceAndRenderSettingsDomainsDoNotCollide(t *testing.T) {
	settings := sample()
	encoded, err := RenderSettings(settings)
	if err != nil {
		t.Fatal(err)
	}
	source, err := Source(strings.NewReader(string(encoded[:])))
	if err != nil {
		t.Fatal(err)
	}
	if encoded == Hash(source) {
		t.Error("source and render-settings domains produced colliding digests for related input")
	}
}
