// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "testing"

// CFAPattern must use the 3-symbol {R=0,green=1,B=2} scheme, with both
// green positions sharing index 1, per original_source/src/Utils.cpp's
// cfa arrays and spec.md §8 S1 (CFAPattern=[0,1,1,2] for rggb).
func TestSensorArrangementCFAPattern(t *testing.T) {
	cases := []struct {
		arrangement SensorArrangement
		want        [4]int
	}{
		{SensorRGGB, [4]int{0, 1, 1, 2}},
		{SensorBGGR, [4]int{2, 1, 1, 0}},
		{SensorGRBG, [4]int{1, 0, 2, 1}},
		{SensorGBRG, [4]int{1, 2, 0, 1}},
	}
	for _, c := range cases {
		got := c.arrangement.CFAPattern()
		if got != c.want {
			t.Errorf("SensorArrangement(%d).CFAPattern() = %v, want %v", c.arrangement, got, c.want)
		}
	}
}
